// Package docstore talks to the remote document store that owns recipes and
// ingredients. The controller only sees the Store interface; backends are
// an S3-compatible bucket, the recipesd HTTP API, a SQLite file (used by
// recipesd itself) and an in-memory map.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/idilsaglam/recipebox/internal/model"
)

// ErrNotFound is returned by Get and Delete when no document exists at (kind, id).
var ErrNotFound = errors.New("document not found")

// Store is the minimal document API consumed by the session controller.
type Store interface {
	Create(ctx context.Context, kind model.Kind, data model.Data) (string, error)
	Get(ctx context.Context, kind model.Kind, id string) (model.Item, error)
	List(ctx context.Context, kind model.Kind) ([]model.Item, error)
	Delete(ctx context.Context, kind model.Kind, id string) error
}

func checkKind(kind model.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid collection %v", kind)
	}
	return nil
}

func notFound(kind model.Kind, id string) error {
	return fmt.Errorf("%s/%s: %w", kind.Collection(), id, ErrNotFound)
}
