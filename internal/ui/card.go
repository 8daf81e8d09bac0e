package ui

import (
	"fmt"
	"strings"

	"github.com/idilsaglam/recipebox/internal/model"
)

func symbolFor(k model.Kind) string {
	if k == model.KindIngredient {
		return Current().SymIngredient
	}
	return Current().SymRecipe
}

// ItemLine is the one-line summary used by list output.
func ItemLine(it model.Item) string {
	t := Current()
	line := C(t.Accent, symbolFor(it.Kind)) + " " + C(t.Title, it.Data.Name) + "  " + C(t.Muted, it.ID)
	if d := strings.TrimSpace(it.Data.Description); d != "" {
		line += "  " + d
	}
	if n := len(it.Data.Ingredients); n > 0 {
		line += C(t.Muted, fmt.Sprintf("  (%d ingredients)", n))
	}
	return line
}

// ItemCard is the detail view of one item and its resolved ingredients.
// The meter compares resolved ingredients with the item's references.
func ItemCard(it model.Item, ingredients []model.Item) []string {
	t := Current()
	lines := []string{
		C(t.Title, symbolFor(it.Kind)+" "+it.Data.Name),
		C(t.Muted, it.Key()+"  by "+it.Data.CreatedBy),
	}
	if d := strings.TrimSpace(it.Data.Description); d != "" {
		lines = append(lines, "", d)
	}
	if refs := len(it.Data.Ingredients); refs > 0 {
		lines = append(lines, "", C(t.Accent, "Ingredients")+"  "+C(t.Muted, ProgressBar(len(ingredients), refs, 12)))
		for _, ing := range ingredients {
			lines = append(lines, "  "+t.SymBullet+" "+ing.Data.Name+"  "+C(t.Muted, ing.ID))
		}
	}
	return lines
}
