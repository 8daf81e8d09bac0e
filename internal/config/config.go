// Package config loads recipebox and recipesd settings: a .env file for local
// development, a TOML file, then RECIPEBOX_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendHTTP = "http"
	BackendS3   = "s3"
	// BackendMemory keeps documents for one process only; it suits the TUI
	// and tests, not a sequence of one-shot commands.
	BackendMemory = "memory"

	RefreshRemote = "remote"
	RefreshCache  = "cache"
)

type S3 struct {
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Endpoint  string `toml:"endpoint,omitempty"`
	Region    string `toml:"region,omitempty"`
	AccessKey string `toml:"-"`
	SecretKey string `toml:"-"`
}

type Cache struct {
	Dir     string        `toml:"dir,omitempty"`
	MaxAge  time.Duration `toml:"max_age"`
	Encrypt bool          `toml:"encrypt"`
	Refresh string        `toml:"refresh"`
}

type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

// Identity configures the fixed local user used by the memory and s3
// backends, which have no sign-in service of their own.
type Identity struct {
	LocalUser string `toml:"local_user,omitempty"`
	LocalName string `toml:"local_name,omitempty"`
}

// Client is the recipebox (TUI/CLI) configuration.
type Client struct {
	Backend   string   `toml:"backend"`
	ServerURL string   `toml:"server_url"`
	AuthFile  string   `toml:"auth_file,omitempty"`
	S3        S3       `toml:"s3"`
	Cache     Cache    `toml:"cache"`
	Log       Log      `toml:"log"`
	Identity  Identity `toml:"identity"`
}

// DefaultClient is used when no config file exists.
func DefaultClient() Client {
	return Client{
		Backend:   BackendHTTP,
		ServerURL: "http://127.0.0.1:8420",
		S3:        S3{Prefix: "recipebox", Region: "auto"},
		Cache:     Cache{MaxAge: 24 * time.Hour, Refresh: RefreshRemote},
		Log:       Log{Level: "info"},
	}
}

// ConfigDir is $XDG_CONFIG_HOME/recipebox.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "recipebox"), nil
}

// DefaultClientPath honours RECIPEBOX_CONFIG before falling back to ConfigDir.
func DefaultClientPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("RECIPEBOX_CONFIG")); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadClient reads path (a missing file means defaults), applies environment
// overrides and validates the result.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Client{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	applyClientEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func applyClientEnv(cfg *Client) {
	cfg.Backend = envOrDefault("RECIPEBOX_BACKEND", cfg.Backend)
	cfg.ServerURL = envOrDefault("RECIPEBOX_SERVER_URL", cfg.ServerURL)
	cfg.AuthFile = envOrDefault("RECIPEBOX_AUTH_FILE", cfg.AuthFile)
	cfg.S3.Bucket = envOrDefault("RECIPEBOX_S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.Endpoint = envOrDefault("RECIPEBOX_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Region = envOrDefault("RECIPEBOX_S3_REGION", cfg.S3.Region)
	cfg.S3.AccessKey = envOrDefault("RECIPEBOX_S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = envOrDefault("RECIPEBOX_S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.Cache.Dir = envOrDefault("RECIPEBOX_CACHE_DIR", cfg.Cache.Dir)
	cfg.Cache.MaxAge = durationOrDefault("RECIPEBOX_CACHE_MAX_AGE", cfg.Cache.MaxAge)
	cfg.Cache.Encrypt = boolOrDefault("RECIPEBOX_CACHE_ENCRYPT", cfg.Cache.Encrypt)
	cfg.Cache.Refresh = envOrDefault("RECIPEBOX_CACHE_REFRESH", cfg.Cache.Refresh)
	cfg.Log.Level = envOrDefault("RECIPEBOX_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = envOrDefault("RECIPEBOX_LOG_FILE", cfg.Log.File)
	cfg.Identity.LocalUser = envOrDefault("RECIPEBOX_LOCAL_USER", cfg.Identity.LocalUser)
	cfg.Identity.LocalName = envOrDefault("RECIPEBOX_LOCAL_NAME", cfg.Identity.LocalName)
}

func (c Client) Validate() error {
	switch c.Backend {
	case BackendHTTP:
		if strings.TrimSpace(c.ServerURL) == "" {
			return errors.New("server_url is required for the http backend")
		}
	case BackendS3:
		if strings.TrimSpace(c.S3.Bucket) == "" {
			return errors.New("s3.bucket is required for the s3 backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want http, s3 or memory)", c.Backend)
	}
	switch c.Cache.Refresh {
	case RefreshRemote, RefreshCache:
	case "":
		return errors.New("cache.refresh is required")
	default:
		return fmt.Errorf("unknown cache.refresh %q (want remote or cache)", c.Cache.Refresh)
	}
	if c.Backend != BackendHTTP && strings.TrimSpace(c.Identity.LocalUser) == "" {
		return fmt.Errorf("identity.local_user is required for the %s backend", c.Backend)
	}
	return nil
}

// WriteClient saves cfg as TOML, creating parent directories.
func WriteClient(path string, cfg Client) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// durationOrDefault accepts Go durations ("90m") or plain seconds.
func durationOrDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func boolOrDefault(key string, fallback bool) bool {
	if v := strings.TrimSpace(strings.ToLower(os.Getenv(key))); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
