package docstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/idilsaglam/recipebox/internal/apiclient"
	"github.com/idilsaglam/recipebox/internal/model"
)

// TokenFunc yields the bearer token for the current session.
type TokenFunc func(ctx context.Context) (string, error)

// HTTPStore reads and writes documents through the recipesd API.
type HTTPStore struct {
	client *apiclient.Client
	token  TokenFunc
}

func NewHTTPStore(client *apiclient.Client, token TokenFunc) *HTTPStore {
	return &HTTPStore{client: client, token: token}
}

type createResponse struct {
	ID string `json:"id"`
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body, dst any) error {
	tok := ""
	if s.token != nil {
		var err error
		if tok, err = s.token(ctx); err != nil {
			return err
		}
	}
	return s.client.DoJSON(ctx, method, path, tok, body, dst)
}

func collectionPath(kind model.Kind) string {
	return "/api/v1/" + kind.Collection()
}

func documentPath(kind model.Kind, id string) string {
	return collectionPath(kind) + "/" + url.PathEscape(id)
}

func (s *HTTPStore) Create(ctx context.Context, kind model.Kind, data model.Data) (string, error) {
	if err := checkKind(kind); err != nil {
		return "", err
	}
	var out createResponse
	if err := s.do(ctx, http.MethodPost, collectionPath(kind), data, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create %s: server returned empty id", kind.Collection())
	}
	return out.ID, nil
}

func (s *HTTPStore) Get(ctx context.Context, kind model.Kind, id string) (model.Item, error) {
	if err := checkKind(kind); err != nil {
		return model.Item{}, err
	}
	var it model.Item
	if err := s.do(ctx, http.MethodGet, documentPath(kind, id), nil, &it); err != nil {
		if apiclient.StatusCode(err) == http.StatusNotFound {
			return model.Item{}, notFound(kind, id)
		}
		return model.Item{}, err
	}
	it.Kind = kind
	return it, nil
}

func (s *HTTPStore) List(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	var items []model.Item
	if err := s.do(ctx, http.MethodGet, collectionPath(kind), nil, &items); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Kind = kind
	}
	return items, nil
}

func (s *HTTPStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodDelete, documentPath(kind, id), nil, nil); err != nil {
		if apiclient.StatusCode(err) == http.StatusNotFound {
			return notFound(kind, id)
		}
		return err
	}
	return nil
}
