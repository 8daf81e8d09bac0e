package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/idilsaglam/recipebox/internal/model"
)

// ErrNoState means no auth state file exists yet.
var ErrNoState = errors.New("auth state not found")

// State is what a successful sign-in leaves on disk so later runs can resume.
type State struct {
	Version     int        `toml:"version"`
	ServerURL   string     `toml:"server_url"`
	AccessToken string     `toml:"access_token,omitempty"`
	ExpiresAt   time.Time  `toml:"expires_at,omitempty"`
	User        model.User `toml:"user"`
}

// Expired reports whether the token has a known expiry in the past.
func (s State) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// DefaultStatePath is $XDG_CONFIG_HOME/recipebox/auth.toml.
func DefaultStatePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "recipebox", "auth.toml"), nil
}

func LoadState(path string) (State, error) {
	var s State
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNoState
		}
		return State{}, err
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return State{}, fmt.Errorf("parse auth state: %w", err)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	s.ServerURL = strings.TrimRight(strings.TrimSpace(s.ServerURL), "/")
	return s, nil
}

// WriteState saves s owner-only (0600); it carries a bearer token.
func WriteState(path string, s State) error {
	s.ServerURL = strings.TrimRight(strings.TrimSpace(s.ServerURL), "/")
	if s.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}

// DeleteState removes the file; a missing file is not an error.
func DeleteState(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}
