package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.History.Backend != "sqlite" {
		t.Errorf("History.Backend = %q, want sqlite", cfg.History.Backend)
	}
	if cfg.RollupCache.Capacity <= 0 {
		t.Error("RollupCache.Capacity should be positive by default")
	}
	if !cfg.Sequences.VerifyContent {
		t.Error("sequence content verification should be on by default")
	}
	if cfg.Auth.Enabled {
		t.Error("auth should be disabled by default")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad version", func(c *Config) { c.Version = 9 }, "version"},
		{"empty root", func(c *Config) { c.StorageRoot = "" }, "storageRoot"},
		{"unknown backend", func(c *Config) { c.History.Backend = "svn" }, "history.backend"},
		{"git without binary", func(c *Config) { c.History.Backend = "git"; c.History.GitBinary = "" }, "history.gitBinary"},
		{"git backend", func(c *Config) { c.History.Backend = "git" }, ""},
		{"compression out of range", func(c *Config) { c.History.CompressionLevel = 9 }, "history.compressionLevel"},
		{"zero timeout", func(c *Config) { c.History.TimeoutMs = 0 }, "history.timeoutMs"},
		{"negative capacity", func(c *Config) { c.RollupCache.Capacity = -1 }, "rollupCache.capacity"},
		{"unbounded cache", func(c *Config) { c.RollupCache.Capacity = 0 }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			cerr, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.wantErr {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.History.Backend != "sqlite" {
		t.Errorf("History.Backend = %q, want sqlite", cfg.History.Backend)
	}
	if cfg.StorageRoot != root {
		t.Errorf("StorageRoot = %q, want %q", cfg.StorageRoot, root)
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.History.Backend = "git"
	cfg.RollupCache.Capacity = 8
	cfg.Server.Port = 8088
	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, FileName)); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.History.Backend != "git" {
		t.Errorf("History.Backend = %q, want git", loaded.History.Backend)
	}
	if loaded.RollupCache.Capacity != 8 {
		t.Errorf("RollupCache.Capacity = %d, want 8", loaded.RollupCache.Capacity)
	}
	if loaded.Server.Port != 8088 {
		t.Errorf("Server.Port = %d, want 8088", loaded.Server.Port)
	}
	if loaded.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", loaded.Logging.Level)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("GENESTORE_HISTORY_BACKEND", "git")
	t.Setenv("GENESTORE_ROLLUPCACHE_CAPACITY", "0")

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.History.Backend != "git" {
		t.Errorf("History.Backend = %q, want git from env", cfg.History.Backend)
	}
	if cfg.RollupCache.Capacity != 0 {
		t.Errorf("RollupCache.Capacity = %d, want 0 from env", cfg.RollupCache.Capacity)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(root); err == nil {
		t.Error("LoadConfig should fail on malformed JSON")
	}
}
