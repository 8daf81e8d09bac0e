package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadClientMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendHTTP || cfg.Cache.Refresh != RefreshRemote || cfg.Cache.MaxAge != 24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadClientFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := strings.TrimSpace(`
backend = "s3"

[s3]
bucket = "kitchen"
prefix = "team"

[cache]
max_age = "90m"
refresh = "cache"
encrypt = true

[identity]
local_user = "u1"
`)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RECIPEBOX_S3_ACCESS_KEY", "ak")
	t.Setenv("RECIPEBOX_S3_SECRET_KEY", "sk")
	t.Setenv("RECIPEBOX_LOG_LEVEL", "debug")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendS3 || cfg.S3.Bucket != "kitchen" || cfg.S3.Prefix != "team" {
		t.Fatalf("unexpected s3 config: %+v", cfg)
	}
	if cfg.S3.AccessKey != "ak" || cfg.S3.SecretKey != "sk" {
		t.Fatalf("expected credentials from env")
	}
	if cfg.Cache.MaxAge != 90*time.Minute || cfg.Cache.Refresh != RefreshCache || !cfg.Cache.Encrypt {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Log.Level)
	}
}

func TestClientValidate(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Client)
	}{
		{"unknown backend", func(c *Client) { c.Backend = "ftp" }},
		{"s3 without bucket", func(c *Client) { c.Backend = BackendS3; c.Identity.LocalUser = "u1" }},
		{"memory without user", func(c *Client) { c.Backend = BackendMemory }},
		{"bad refresh", func(c *Client) { c.Cache.Refresh = "sometimes" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultClient()
			tc.edit(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestWriteClientRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultClient()
	cfg.ServerURL = "http://kitchen.local:9000"
	cfg.S3.SecretKey = "do-not-write"
	if err := WriteClient(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "do-not-write") {
		t.Fatalf("secret written to config file")
	}
	back, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.ServerURL != cfg.ServerURL {
		t.Fatalf("server url = %q", back.ServerURL)
	}
}

func TestLoadServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipesd.toml")
	body := strings.TrimSpace(`
addr = "127.0.0.1:9999"
code_ttl = "2m"

[[users]]
id = "u1"
email = "cook@example.com"
display_name = "Cook"
password_hash = "$2a$10$abc"
`)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://127.0.0.1:9999" || cfg.CodeTTL != 2*time.Minute {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
	u, ok := cfg.FindUser("COOK@example.com")
	if !ok || u.ID != "u1" {
		t.Fatalf("expected case-insensitive user lookup")
	}
}

func TestLoadServerRequiresUsersOrDevMode(t *testing.T) {
	if _, err := LoadServer(""); err == nil {
		t.Fatalf("expected error without users")
	}
	t.Setenv("RECIPESD_DEV_AUTO_APPROVE", "true")
	if _, err := LoadServer(""); err != nil {
		t.Fatalf("dev mode should load: %v", err)
	}
}
