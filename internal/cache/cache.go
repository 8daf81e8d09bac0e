// Package cache mirrors the last fetched item list of each kind to local disk.
// The cache is never authoritative: it is written through after each remote
// fetch and read only when the user asks for the cached copy.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/idilsaglam/recipebox/internal/model"
)

// ErrMiss means no snapshot exists for the kind.
var ErrMiss = errors.New("no cached snapshot")

// Snapshot is one cached list.
type Snapshot struct {
	Kind      model.Kind `json:"type"`
	Owner     string     `json:"owner"`
	WrittenAt time.Time  `json:"written_at"`
	// VerifiedAt is the last time the items were confirmed against the
	// store. It moves even when the items do not.
	VerifiedAt time.Time    `json:"verified_at,omitempty"`
	Items      []model.Item `json:"items"`
}

// Fresh is when the items were last known to match the store.
func (s Snapshot) Fresh() time.Time {
	if !s.VerifiedAt.IsZero() {
		return s.VerifiedAt
	}
	return s.WrittenAt
}

// Stale reports whether the snapshot was last verified more than maxAge ago.
// A zero maxAge never goes stale.
func (s Snapshot) Stale(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(s.Fresh()) > maxAge
}

// Cache is the key-value view the controller uses, keyed by kind.
type Cache interface {
	Read(kind model.Kind) (Snapshot, error)
	// Write replaces the snapshot for snap.Kind unless the stored one already
	// holds the same owner and items, in which case only a newer VerifiedAt
	// is recorded. It reports whether the items changed.
	Write(snap Snapshot) (bool, error)
}

// FileCache keeps one JSON file per kind in Dir.
type FileCache struct {
	Dir     string
	Encrypt bool

	now func() time.Time
}

func NewFileCache(dir string, encrypt bool) *FileCache {
	return &FileCache{Dir: dir, Encrypt: encrypt, now: time.Now}
}

// DefaultDir is $XDG_CACHE_HOME/recipebox (or the OS equivalent).
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache dir: %w", err)
	}
	return filepath.Join(base, "recipebox"), nil
}

func (c *FileCache) path(kind model.Kind) string {
	name := kind.Collection() + ".json"
	if c.Encrypt {
		name += ".age"
	}
	return filepath.Join(c.Dir, name)
}

func (c *FileCache) identityPath() string {
	return filepath.Join(c.Dir, "cache.agekey")
}

func (c *FileCache) Read(kind model.Kind) (Snapshot, error) {
	if !kind.Valid() {
		return Snapshot{}, fmt.Errorf("invalid kind %v", kind)
	}
	b, err := os.ReadFile(c.path(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, ErrMiss
		}
		return Snapshot{}, fmt.Errorf("read cache: %w", err)
	}
	if c.Encrypt {
		if b, err = c.open(b); err != nil {
			return Snapshot{}, err
		}
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse cache: %w", err)
	}
	if snap.Kind != kind {
		return Snapshot{}, fmt.Errorf("cache file for %s holds %s", kind.Collection(), snap.Kind.Collection())
	}
	return snap, nil
}

func (c *FileCache) Write(snap Snapshot) (bool, error) {
	if !snap.Kind.Valid() {
		return false, fmt.Errorf("invalid kind %v", snap.Kind)
	}
	if snap.WrittenAt.IsZero() {
		snap.WrittenAt = c.now().UTC()
	}
	// An unreadable snapshot is simply overwritten.
	if prev, err := c.Read(snap.Kind); err == nil && sameContent(prev, snap) {
		if !snap.VerifiedAt.After(prev.Fresh()) {
			return false, nil
		}
		prev.VerifiedAt = snap.VerifiedAt
		return false, c.put(prev)
	}
	if err := c.put(snap); err != nil {
		return false, err
	}
	return true, nil
}

func (c *FileCache) put(snap Snapshot) error {
	if snap.Items == nil {
		snap.Items = []model.Item{}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if c.Encrypt {
		if b, err = c.seal(b); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return writeFileAtomic(c.path(snap.Kind), b)
}

func sameContent(a, b Snapshot) bool {
	if a.Owner != b.Owner {
		return false
	}
	ea, err1 := model.EncodeItems(a.Items)
	eb, err2 := model.EncodeItems(b.Items)
	return err1 == nil && err2 == nil && bytes.Equal(ea, eb)
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (c *FileCache) seal(plain []byte) ([]byte, error) {
	id, err := c.identity(true)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, id.Recipient())
	if err != nil {
		return nil, fmt.Errorf("seal cache: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("seal cache: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("seal cache: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *FileCache) open(sealed []byte) ([]byte, error) {
	id, err := c.identity(false)
	if err != nil {
		return nil, err
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), id)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return io.ReadAll(r)
}

// identity loads the cache key, generating it on first write.
func (c *FileCache) identity(create bool) (*age.X25519Identity, error) {
	b, err := os.ReadFile(c.identityPath())
	if err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "AGE-SECRET-KEY-") {
				return age.ParseX25519Identity(line)
			}
		}
		return nil, errors.New("cache key file holds no AGE-SECRET-KEY")
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read cache key: %w", err)
	}
	if !create {
		return nil, ErrMiss
	}
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	content := "# recipebox cache key\n" + id.String() + "\n"
	if err := os.WriteFile(c.identityPath(), []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("write cache key: %w", err)
	}
	return id, nil
}
