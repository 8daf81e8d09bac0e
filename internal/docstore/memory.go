package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/idilsaglam/recipebox/internal/model"
)

// MemoryStore keeps documents in process memory. Insertion order is preserved
// for List so results are stable.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[model.Kind]map[string]model.Data
	order map[model.Kind][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  map[model.Kind]map[string]model.Data{},
		order: map[model.Kind][]string{},
	}
}

// Put stores data under a caller-chosen id, replacing any existing document.
func (s *MemoryStore) Put(kind model.Kind, id string, data model.Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(kind, id, data)
}

func (s *MemoryStore) putLocked(kind model.Kind, id string, data model.Data) {
	m := s.docs[kind]
	if m == nil {
		m = map[string]model.Data{}
		s.docs[kind] = m
	}
	if _, exists := m[id]; !exists {
		s.order[kind] = append(s.order[kind], id)
	}
	m[id] = cloneData(data)
}

func (s *MemoryStore) Create(ctx context.Context, kind model.Kind, data model.Data) (string, error) {
	if err := checkKind(kind); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(kind, id, data)
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, kind model.Kind, id string) (model.Item, error) {
	if err := checkKind(kind); err != nil {
		return model.Item{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[kind][id]
	if !ok {
		return model.Item{}, notFound(kind, id)
	}
	return model.Item{Kind: kind, ID: id, Data: cloneData(data)}, nil
}

func (s *MemoryStore) List(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Item, 0, len(s.order[kind]))
	for _, id := range s.order[kind] {
		out = append(out, model.Item{Kind: kind, ID: id, Data: cloneData(s.docs[kind][id])})
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[kind][id]; !ok {
		return notFound(kind, id)
	}
	delete(s.docs[kind], id)
	ids := s.order[kind]
	for i, v := range ids {
		if v == id {
			s.order[kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func cloneData(d model.Data) model.Data {
	if d.Ingredients != nil {
		d.Ingredients = append([]string(nil), d.Ingredients...)
	}
	return d
}
