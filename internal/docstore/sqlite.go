package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/idilsaglam/recipebox/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps documents in a single SQLite file. recipesd serves it.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		json TEXT NOT NULL,
		created_at_unixms INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, kind model.Kind, data model.Data) (string, error) {
	if err := checkKind(kind); err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(collection, id, json, created_at_unixms) VALUES(?, ?, ?, ?)`,
		kind.Collection(), id, string(raw), time.Now().UTC().UnixMilli()); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, kind model.Kind, id string) (model.Item, error) {
	if err := checkKind(kind); err != nil {
		return model.Item{}, err
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT json FROM documents WHERE collection = ? AND id = ?`,
		kind.Collection(), id).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.Item{}, notFound(kind, id)
	}
	if err != nil {
		return model.Item{}, err
	}
	var data model.Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return model.Item{}, fmt.Errorf("decode %s/%s: %w", kind.Collection(), id, err)
	}
	return model.Item{Kind: kind, ID: id, Data: data}, nil
}

func (s *SQLiteStore) List(ctx context.Context, kind model.Kind) ([]model.Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, json FROM documents WHERE collection = ? ORDER BY created_at_unixms ASC, id ASC`,
		kind.Collection())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var data model.Data
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", kind.Collection(), id, err)
		}
		out = append(out, model.Item{Kind: kind, ID: id, Data: data})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, kind.Collection(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
