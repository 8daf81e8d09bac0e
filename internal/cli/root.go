package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/idilsaglam/recipebox/internal/apiclient"
	"github.com/idilsaglam/recipebox/internal/cache"
	"github.com/idilsaglam/recipebox/internal/config"
	"github.com/idilsaglam/recipebox/internal/docstore"
	"github.com/idilsaglam/recipebox/internal/identity"
	"github.com/idilsaglam/recipebox/internal/logging"
	"github.com/idilsaglam/recipebox/internal/model"
	"github.com/idilsaglam/recipebox/internal/session"
	"github.com/idilsaglam/recipebox/internal/tui"
	"github.com/idilsaglam/recipebox/internal/ui"
)

type App struct {
	ConfigPath string
	Theme      string
	Color      bool
	NoColor    bool
	Verbose    bool

	cfg     config.Client
	log     *log.Logger
	closers []io.Closer

	// store and ident replace the configured backend when set.
	store  docstore.Store
	ident  identity.Provider
	server *identity.ServerProvider
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	var kind kindValue

	cmd := &cobra.Command{
		Use:           "recipebox",
		Short:         "Recipes and ingredients, from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start the interactive browser
  recipebox

  # Sign in against recipesd
  recipebox auth login

  # Scriptable commands
  recipebox items list --type ingredients
  recipebox items list --where 'len(ingredients) > 2'
  recipebox items show 3f2c... --type recipes
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return runTUI(cmd, app, kind.k)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.load()
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) { app.close() }

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("RECIPEBOX_CONFIG", ""), "Path to config.toml (default: $XDG_CONFIG_HOME/recipebox/config.toml)")
	cmd.PersistentFlags().StringVar(&app.Theme, "theme", envOr("RECIPEBOX_THEME", "classic"), "Output theme (classic|neon|mono)")
	cmd.PersistentFlags().BoolVar(&app.Color, "color", false, "Force colored output")
	cmd.PersistentFlags().BoolVar(&app.NoColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colored output")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Log at debug level")
	addKindFlag(cmd, &kind)

	cmd.AddCommand(newAuthCmd(app))
	cmd.AddCommand(newItemsCmd(app))
	cmd.AddCommand(newCacheCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

func (app *App) load() error {
	if err := config.LoadDotenvIfPresent(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	path, err := app.configPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return err
	}
	app.cfg = cfg
	ui.SetTheme(app.Theme)
	ui.SetColorForcing(app.Color, app.NoColor)
	return nil
}

func (app *App) configPath() (string, error) {
	if app.ConfigPath != "" {
		return app.ConfigPath, nil
	}
	return config.DefaultClientPath()
}

func (app *App) close() {
	for _, c := range app.closers {
		_ = c.Close()
	}
	app.closers = nil
}

func (app *App) cacheDir() (string, error) {
	if app.cfg.Cache.Dir != "" {
		return app.cfg.Cache.Dir, nil
	}
	return cache.DefaultDir()
}

func (app *App) logLevel() string {
	if app.Verbose {
		return "debug"
	}
	return app.cfg.Log.Level
}

// logger writes to stderr for one-shot commands. The TUI owns the terminal,
// so it logs to a file instead.
func (app *App) logger(cmd *cobra.Command, interactive bool) (*log.Logger, error) {
	path := app.cfg.Log.File
	if path == "" && interactive {
		dir, err := app.cacheDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "recipebox.log")
	}
	if path == "" {
		return logging.New(cmd.ErrOrStderr(), app.logLevel(), "recipebox"), nil
	}
	l, c, err := logging.OpenFile(path, app.logLevel(), "recipebox")
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, c)
	return l, nil
}

// backend builds the document store and identity provider named by the
// config. prompts, when non-nil, receives sign-in URLs instead of the
// terminal.
func (app *App) backend(cmd *cobra.Command, prompts chan<- identity.LoginPrompt) (docstore.Store, identity.Provider, error) {
	if app.store != nil && app.ident != nil {
		return app.store, app.ident, nil
	}
	switch app.cfg.Backend {
	case config.BackendHTTP:
		client, err := apiclient.New(app.cfg.ServerURL)
		if err != nil {
			return nil, nil, err
		}
		statePath := app.cfg.AuthFile
		if statePath == "" {
			if statePath, err = identity.DefaultStatePath(); err != nil {
				return nil, nil, err
			}
		}
		sp := identity.NewServerProvider(client, statePath)
		if prompts != nil {
			sp.Out = io.Discard
			sp.Notify = func(lp identity.LoginPrompt) {
				select {
				case prompts <- lp:
				default:
				}
			}
		} else {
			sp.Out = cmd.ErrOrStderr()
			sp.PromptCode = promptCode(cmd)
		}
		app.server = sp
		return docstore.NewHTTPStore(client, sp.Token), sp, nil
	case config.BackendS3:
		st, err := docstore.NewS3Store(docstore.S3Config{
			Bucket:    app.cfg.S3.Bucket,
			Prefix:    app.cfg.S3.Prefix,
			Endpoint:  app.cfg.S3.Endpoint,
			Region:    app.cfg.S3.Region,
			AccessKey: app.cfg.S3.AccessKey,
			SecretKey: app.cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, app.localUser(), nil
	case config.BackendMemory:
		if prompts == nil {
			ui.Warn(cmd.ErrOrStderr(), "memory backend: documents last only for this process")
		}
		return docstore.NewMemoryStore(), app.localUser(), nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", app.cfg.Backend)
}

func (app *App) localUser() *identity.StaticProvider {
	return identity.NewStaticProvider(app.cfg.Identity.LocalUser, app.cfg.Identity.LocalName)
}

func (app *App) controller(cmd *cobra.Command, prompts chan<- identity.LoginPrompt) (*session.Controller, error) {
	logger, err := app.logger(cmd, prompts != nil)
	if err != nil {
		return nil, err
	}
	store, ident, err := app.backend(cmd, prompts)
	if err != nil {
		return nil, err
	}
	dir, err := app.cacheDir()
	if err != nil {
		return nil, err
	}
	app.log = logger
	logger.Debug("controller ready", "backend", app.cfg.Backend, "cache", dir, "refresh", app.cfg.Cache.Refresh)
	return session.New(store, ident, session.Options{
		Cache:   cache.NewFileCache(dir, app.cfg.Cache.Encrypt),
		Refresh: app.cfg.Cache.Refresh,
		MaxAge:  app.cfg.Cache.MaxAge,
		Logger:  logger,
	}), nil
}

// signedIn returns a controller with the persisted user restored. Commands
// that read or change items need one.
func (app *App) signedIn(cmd *cobra.Command) (*session.Controller, error) {
	ctrl, err := app.controller(cmd, nil)
	if err != nil {
		return nil, err
	}
	if _, ok := ctrl.Resume(cmd.Context()); !ok {
		return nil, errNotSignedIn
	}
	return ctrl, nil
}

var errNotSignedIn = errors.New("not signed in (run: recipebox auth login)")

func runTUI(cmd *cobra.Command, app *App, kind model.Kind) error {
	defer app.close()
	prompts := make(chan identity.LoginPrompt, 1)
	ctrl, err := app.controller(cmd, prompts)
	if err != nil {
		return err
	}
	return tui.Run(cmd.Context(), ctrl, tui.Options{Kind: kind, Prompts: prompts, Logger: app.log})
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
