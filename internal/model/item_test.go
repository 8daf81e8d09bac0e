package model

import (
	"encoding/json"
	"testing"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"recipes":      KindRecipe,
		"recipe":       KindRecipe,
		" Ingredients": KindIngredient,
		"INGREDIENT":   KindIngredient,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseKind("desserts"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestItemJSONUsesCollectionTag(t *testing.T) {
	it := Item{Kind: KindIngredient, ID: "i1", Data: Data{Name: "Salt", CreatedBy: "u1"}}
	b, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"ingredients","id":"i1","data":{"name":"Salt","description":"","created_by":"u1"}}`
	if string(b) != want {
		t.Fatalf("got %s\nwant %s", b, want)
	}

	var back Item
	if err := json.Unmarshal([]byte(`{"type":"bogus","id":"x"}`), &back); err == nil {
		t.Fatalf("expected unknown type to be rejected")
	}
}

func TestKeyDistinguishesKinds(t *testing.T) {
	a := Item{Kind: KindRecipe, ID: "same"}
	b := Item{Kind: KindIngredient, ID: "same"}
	if a.Key() == b.Key() {
		t.Fatalf("keys should differ across kinds: %q", a.Key())
	}
}

func TestOwnedBy(t *testing.T) {
	it := Item{Data: Data{CreatedBy: "u1"}}
	if !it.OwnedBy("u1") || it.OwnedBy("u2") || it.OwnedBy("") {
		t.Fatalf("unexpected ownership result")
	}
}
