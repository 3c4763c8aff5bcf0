package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Engine.DefaultTimeout <= 0 {
		t.Error("Engine.DefaultTimeout should have a positive default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromFile_MissingFileIsNotAnError(t *testing.T) {
	cfg := New()
	if err := loadFromFile(filepath.Join(t.TempDir(), "missing.yaml"), cfg); err != nil {
		t.Errorf("loadFromFile() with missing file = %v, want nil", err)
	}
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "cache:\n  max_entries: 50\n  default_ttl: 1m\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if cfg.Cache.MaxEntries != 50 {
		t.Errorf("Cache.MaxEntries = %d, want 50", cfg.Cache.MaxEntries)
	}
}

func TestValidate_RejectsNonPositiveFields(t *testing.T) {
	cfg := New()
	cfg.Cache.MaxEntries = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject a non-positive cache.max_entries")
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 from env override", cfg.Server.Port)
	}
}
