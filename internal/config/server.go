package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerUser is an account recipesd can sign in. PasswordHash is bcrypt.
type ServerUser struct {
	ID           string `toml:"id"`
	Email        string `toml:"email"`
	DisplayName  string `toml:"display_name"`
	PasswordHash string `toml:"password_hash"`
}

// Server is the recipesd configuration.
type Server struct {
	Addr           string        `toml:"addr"`
	BaseURL        string        `toml:"base_url"`
	DBPath         string        `toml:"db_path"`
	CodeTTL        time.Duration `toml:"code_ttl"`
	AccessTTL      time.Duration `toml:"access_ttl"`
	DevAutoApprove bool          `toml:"dev_auto_approve"`
	Users          []ServerUser  `toml:"users"`
	Log            Log           `toml:"log"`
}

func DefaultServer() Server {
	return Server{
		Addr:      "127.0.0.1:8420",
		DBPath:    "recipesd.sqlite",
		CodeTTL:   5 * time.Minute,
		AccessTTL: 24 * time.Hour,
		Log:       Log{Level: "info"},
	}
}

// LoadServer reads path (missing means defaults) and applies RECIPESD_* overrides.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Server{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	cfg.Addr = envOrDefault("RECIPESD_ADDR", cfg.Addr)
	cfg.BaseURL = envOrDefault("RECIPESD_BASE_URL", cfg.BaseURL)
	cfg.DBPath = envOrDefault("RECIPESD_DB", cfg.DBPath)
	cfg.CodeTTL = durationOrDefault("RECIPESD_CODE_TTL", cfg.CodeTTL)
	cfg.AccessTTL = durationOrDefault("RECIPESD_ACCESS_TTL", cfg.AccessTTL)
	cfg.DevAutoApprove = boolOrDefault("RECIPESD_DEV_AUTO_APPROVE", cfg.DevAutoApprove)
	cfg.Log.Level = envOrDefault("RECIPESD_LOG_LEVEL", cfg.Log.Level)

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.Addr
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) Validate() error {
	if s.CodeTTL <= 0 || s.AccessTTL <= 0 {
		return errors.New("code_ttl and access_ttl must be > 0")
	}
	if len(s.Users) == 0 && !s.DevAutoApprove {
		return errors.New("no users configured; add [[users]] or enable dev_auto_approve")
	}
	seen := map[string]bool{}
	for _, u := range s.Users {
		if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
			return errors.New("every user needs id and email")
		}
		key := strings.ToLower(u.Email)
		if seen[key] {
			return fmt.Errorf("duplicate user email %s", u.Email)
		}
		seen[key] = true
	}
	return nil
}

// FindUser looks a user up by email, case-insensitively.
func (s Server) FindUser(email string) (ServerUser, bool) {
	email = strings.TrimSpace(email)
	for _, u := range s.Users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return ServerUser{}, false
}
