package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/idilsaglam/recipebox/internal/model"
)

func TestProgressBar(t *testing.T) {
	if got := ProgressBar(1, 2, 10); got != "█████░░░░░ 1/2" {
		t.Fatalf("unexpected bar %q", got)
	}
	if got := ProgressBar(3, 0, 1); !strings.HasSuffix(got, "3/1") {
		t.Fatalf("zero total should be clamped, got %q", got)
	}
}

func TestPanelPadsToWidestLine(t *testing.T) {
	SetColorForcing(false, true)
	SetTheme("mono")
	defer SetTheme("classic")

	var buf bytes.Buffer
	Panel(&buf, []string{"ab", "abcd"})
	want := "+------+\n| ab   |\n| abcd |\n+------+\n"
	if buf.String() != want {
		t.Fatalf("unexpected panel:\n%s", buf.String())
	}
}

func TestItemCard(t *testing.T) {
	SetColorForcing(false, true)
	it := model.Item{Kind: model.KindRecipe, ID: "r1", Data: model.Data{
		Name: "Soup", Description: "hot", CreatedBy: "u1", Ingredients: []string{"i1", "i2"},
	}}
	ings := []model.Item{{Kind: model.KindIngredient, ID: "i1", Data: model.Data{Name: "Leek"}}}
	out := strings.Join(ItemCard(it, ings), "\n")
	for _, want := range []string{"Soup", "recipes/r1", "by u1", "hot", "1/2", "Leek"} {
		if !strings.Contains(out, want) {
			t.Fatalf("card missing %q:\n%s", want, out)
		}
	}
	if line := ItemLine(it); !strings.Contains(line, "(2 ingredients)") {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestOKAndFailWriteToGivenWriter(t *testing.T) {
	SetColorForcing(false, true)
	var buf bytes.Buffer
	OK(&buf, "saved")
	Fail(&buf, "boom")
	if buf.String() != "✔ saved\n✖ boom\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
