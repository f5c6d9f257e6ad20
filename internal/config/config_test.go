package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	loader, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != filepath.Join(dir, "fieldsync.db") {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("sync interval = %v", cfg.SyncInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server_url: https://api.example.com/api
api_token: tok123
user_id: 3
sync_interval: 45s
`)
	if err := os.WriteFile(filepath.Join(dir, DefaultFileName), content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loader, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerURL != "https://api.example.com/api" || cfg.APIToken != "tok123" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.UserID != 3 {
		t.Errorf("user id = %d", cfg.UserID)
	}
	if cfg.SyncInterval != 45*time.Second {
		t.Errorf("sync interval = %v", cfg.SyncInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRequiresServerAndUser(t *testing.T) {
	if err := (&Config{UserID: 3}).Validate(); err == nil {
		t.Error("missing server_url should fail validation")
	}
	if err := (&Config{ServerURL: "https://x"}).Validate(); err == nil {
		t.Error("missing user_id should fail validation")
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteDefault(dir, &Config{ServerURL: "https://x", UserID: 3})
	if err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if _, err := WriteDefault(dir, &Config{}); err == nil {
		t.Error("second WriteDefault should refuse to overwrite")
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteDefault(dir, &Config{ServerURL: "https://api.example.com", APIToken: "tok", UserID: 7}); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	loader, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://api.example.com" || cfg.UserID != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
}
