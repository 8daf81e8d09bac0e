package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cobra"

	"github.com/idilsaglam/recipebox/internal/model"
	"github.com/idilsaglam/recipebox/internal/session"
	"github.com/idilsaglam/recipebox/internal/ui"
)

func newItemsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item"},
		Short:   "List, show, create and delete recipes and ingredients",
	}
	cmd.AddCommand(newItemsListCmd(app))
	cmd.AddCommand(newItemsShowCmd(app))
	cmd.AddCommand(newItemsCreateCmd(app))
	cmd.AddCommand(newItemsRmCmd(app))
	return cmd
}

func newItemsListCmd(app *App) *cobra.Command {
	var (
		kind   kindValue
		cached bool
		where  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your items of one type",
		Example: strings.TrimSpace(`
  recipebox items list
  recipebox items list --type ingredients --cached
  recipebox items list --where 'name startsWith "S" && len(ingredients) >= 2'
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var prog *vm.Program
			if strings.TrimSpace(where) != "" {
				p, err := compileWhere(where)
				if err != nil {
					return err
				}
				prog = p
			}
			ctrl, err := app.signedIn(cmd)
			if err != nil {
				return err
			}
			var items []model.Item
			if cached {
				items, err = ctrl.RetrieveCached(kind.k)
			} else {
				items, err = ctrl.FetchItems(cmd.Context(), kind.k)
			}
			if err != nil {
				return err
			}
			if prog != nil {
				if items, err = filterItems(prog, items); err != nil {
					return err
				}
			}
			st := ctrl.Snapshot()
			if st.Stale {
				ui.Warn(cmd.ErrOrStderr(), fmt.Sprintf("cached %s from %s is older than %s", kind.k.Collection(), st.CachedAt.Format(time.RFC3339), app.cfg.Cache.MaxAge))
			}
			if asJSON {
				if items == nil {
					items = []model.Item{}
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}
			printList(cmd.OutOrStdout(), kind.k, items, st.Source)
			return nil
		},
	}
	addKindFlag(cmd, &kind)
	cmd.Flags().BoolVar(&cached, "cached", false, "Read the local snapshot instead of the store")
	cmd.Flags().StringVar(&where, "where", "", "Filter expression over id, type, name, description, ingredients, created_by")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printList(w io.Writer, kind model.Kind, items []model.Item, src session.Source) {
	t := ui.Current()
	title := strings.ToUpper(kind.Collection()[:1]) + kind.Collection()[1:]
	lines := []string{
		ui.C(t.Title, title) + "  " + ui.C(t.Muted, fmt.Sprintf("%d · %s", len(items), src)),
		"",
	}
	if len(items) == 0 {
		lines = append(lines, ui.C(t.Muted, fmt.Sprintf("No %s yet. Add one with `recipebox items create <name> --type %s`.", kind.Collection(), kind.Collection())))
	}
	for _, it := range items {
		lines = append(lines, ui.ItemLine(it))
	}
	ui.Panel(w, lines)
}

func newItemsShowCmd(app *App) *cobra.Command {
	var (
		kind   kindValue
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item and its resolved ingredients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := app.signedIn(cmd)
			if err != nil {
				return err
			}
			it, selErr := ctrl.SelectItem(cmd.Context(), strings.TrimSpace(args[0]), kind.k)
			st := ctrl.Snapshot()
			if st.Selection == nil {
				return selErr
			}
			// A failed ingredient fetch still leaves the ones that resolved.
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), itemDetail{Item: it, Ingredients: st.Ingredients}); err != nil {
					return err
				}
			} else {
				ui.Panel(cmd.OutOrStdout(), ui.ItemCard(*st.Selection, st.Ingredients))
			}
			return selErr
		},
	}
	addKindFlag(cmd, &kind)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

type itemDetail struct {
	Item        model.Item   `json:"item"`
	Ingredients []model.Item `json:"ingredients"`
}

func newItemsCreateCmd(app *App) *cobra.Command {
	var (
		kind        kindValue
		description string
		ingredients []string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:     "create <name>",
		Aliases: []string{"add"},
		Short:   "Create an item owned by the signed-in user",
		Example: strings.TrimSpace(`
  recipebox items create Salt --type ingredients
  recipebox items create "Leek soup" --description "winter" --ingredient 1a2b --ingredient 3c4d
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				return errors.New("create: empty name")
			}
			if kind.k == model.KindIngredient && len(ingredients) > 0 {
				return errors.New("create: only recipes reference ingredients")
			}
			ctrl, err := app.signedIn(cmd)
			if err != nil {
				return err
			}
			refs := make([]string, 0, len(ingredients))
			for _, ref := range ingredients {
				if ref = strings.TrimSpace(ref); ref != "" {
					refs = append(refs, ref)
				}
			}
			it, err := ctrl.CreateItem(cmd.Context(), kind.k, name, strings.TrimSpace(description), refs...)
			if it.ID == "" {
				return err
			}
			if asJSON {
				if jerr := writeJSON(cmd.OutOrStdout(), it); jerr != nil {
					return jerr
				}
			} else {
				ui.OK(cmd.OutOrStdout(), "created "+it.Key()+" ("+it.Data.Name+")")
			}
			// The item exists; a failed list refresh is reported but not fatal.
			if err != nil {
				ui.Warn(cmd.ErrOrStderr(), "refresh after create: "+err.Error())
			}
			return nil
		},
	}
	addKindFlag(cmd, &kind)
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().StringArrayVarP(&ingredients, "ingredient", "i", nil, "Referenced ingredient id (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the created item as JSON")
	return cmd
}

func newItemsRmCmd(app *App) *cobra.Command {
	var kind kindValue
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete one of your items",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := app.signedIn(cmd)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := ctrl.DeleteItem(cmd.Context(), id, kind.k); err != nil {
				return err
			}
			ui.OK(cmd.OutOrStdout(), "deleted "+model.Item{Kind: kind.k, ID: id}.Key())
			return nil
		},
	}
	addKindFlag(cmd, &kind)
	return cmd
}

// itemEnv is what --where expressions see.
type itemEnv struct {
	ID          string   `expr:"id"`
	Type        string   `expr:"type"`
	Name        string   `expr:"name"`
	Description string   `expr:"description"`
	Ingredients []string `expr:"ingredients"`
	CreatedBy   string   `expr:"created_by"`
}

func envFor(it model.Item) itemEnv {
	return itemEnv{
		ID:          it.ID,
		Type:        it.Kind.Collection(),
		Name:        it.Data.Name,
		Description: it.Data.Description,
		Ingredients: it.Data.Ingredients,
		CreatedBy:   it.Data.CreatedBy,
	}
}

func compileWhere(src string) (*vm.Program, error) {
	prog, err := expr.Compile(src, expr.Env(itemEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("--where: %w", err)
	}
	return prog, nil
}

func filterItems(prog *vm.Program, items []model.Item) ([]model.Item, error) {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		v, err := expr.Run(prog, envFor(it))
		if err != nil {
			return nil, fmt.Errorf("--where on %s: %w", it.Key(), err)
		}
		if ok, _ := v.(bool); ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
