package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/recipebox/internal/model"
)

// kindValue is a --type flag holding a model.Kind.
type kindValue struct{ k model.Kind }

func (v *kindValue) String() string {
	if !v.k.Valid() {
		return ""
	}
	return v.k.Collection()
}

func (v *kindValue) Set(s string) error {
	k, err := model.ParseKind(s)
	if err != nil {
		return err
	}
	v.k = k
	return nil
}

func (v *kindValue) Type() string { return "type" }

func addKindFlag(cmd *cobra.Command, v *kindValue) {
	v.k = model.KindRecipe
	cmd.Flags().Var(v, "type", "Item type (recipes|ingredients)")
	_ = cmd.RegisterFlagCompletionFunc("type", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"recipes", "ingredients"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// promptCode reads a pasted sign-in code from stdin. An empty line cancels.
func promptCode(cmd *cobra.Command) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		fmt.Fprint(cmd.ErrOrStderr(), "Paste the code shown in the browser (empty to cancel): ")
		type result struct {
			line string
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			ch <- result{strings.TrimSpace(line), err}
		}()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-ch:
			if r.err != nil && !errors.Is(r.err, io.EOF) {
				return "", r.err
			}
			return r.line, nil
		}
	}
}
