package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/recipebox/internal/cache"
	"github.com/idilsaglam/recipebox/internal/ui"
)

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local list snapshots",
	}
	cmd.AddCommand(newCacheShowCmd(app))
	return cmd
}

// cache show prints the raw snapshot, whoever owns it. Use
// `items list --cached` for the signed-in user's view.
func newCacheShowCmd(app *App) *cobra.Command {
	var kind kindValue
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the cached snapshot of one type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := app.cacheDir()
			if err != nil {
				return err
			}
			c := cache.NewFileCache(dir, app.cfg.Cache.Encrypt)
			snap, err := c.Read(kind.k)
			if errors.Is(err, cache.ErrMiss) {
				ui.Warn(cmd.OutOrStdout(), "no cached "+kind.k.Collection())
				return nil
			}
			if err != nil {
				return err
			}
			t := ui.Current()
			age := time.Since(snap.Fresh()).Round(time.Second)
			meta := fmt.Sprintf("owner %s · verified %s ago", snap.Owner, age)
			if snap.Stale(app.cfg.Cache.MaxAge, time.Now()) {
				meta += " · stale"
			}
			lines := []string{
				ui.C(t.Title, "Cached "+kind.k.Collection()) + "  " + ui.C(t.Muted, fmt.Sprintf("%d items", len(snap.Items))),
				ui.C(t.Muted, meta),
				"",
			}
			for _, it := range snap.Items {
				lines = append(lines, ui.ItemLine(it))
			}
			ui.Panel(cmd.OutOrStdout(), lines)
			return nil
		},
	}
	addKindFlag(cmd, &kind)
	return cmd
}
