package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags which collection a document lives in.
type Kind int

const (
	KindRecipe Kind = iota + 1
	KindIngredient
)

// Kinds lists every valid Kind in display order.
var Kinds = []Kind{KindRecipe, KindIngredient}

// Collection is the store collection name for k.
func (k Kind) Collection() string {
	switch k {
	case KindRecipe:
		return "recipes"
	case KindIngredient:
		return "ingredients"
	}
	return ""
}

func (k Kind) String() string {
	switch k {
	case KindRecipe:
		return "recipe"
	case KindIngredient:
		return "ingredient"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Valid() bool { return k == KindRecipe || k == KindIngredient }

// ParseKind accepts a collection name ("recipes") or the singular tag ("recipe").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recipes", "recipe":
		return KindRecipe, nil
	case "ingredients", "ingredient":
		return KindIngredient, nil
	}
	return 0, fmt.Errorf("unknown item type %q (want recipes or ingredients)", s)
}

// Cache entries and API payloads carry the collection name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
	return []byte(k.Collection()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Data is the document payload.
type Data struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Ingredients []string `json:"ingredients,omitempty"`
	CreatedBy   string   `json:"created_by"`
}

// Item is one document as read from a collection.
type Item struct {
	Kind Kind   `json:"type"`
	ID   string `json:"id"`
	Data Data   `json:"data"`
}

// Key identifies an item across collections; ids alone may collide.
func (it Item) Key() string { return it.Kind.Collection() + "/" + it.ID }

// OwnedBy reports whether uid created the item.
func (it Item) OwnedBy(uid string) bool {
	return uid != "" && it.Data.CreatedBy == uid
}

// EncodeItems is the canonical serialized form used for cache comparison.
func EncodeItems(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(items)
}
