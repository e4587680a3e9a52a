package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mapLookup(env map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.BasePath != "" {
		t.Errorf("BasePath = %q, want empty after trimming", cfg.Server.BasePath)
	}
	if cfg.Search.MaxResults != 250 || cfg.Search.Threshold != 10 {
		t.Errorf("Search = %+v", cfg.Search)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9000
  base_path: /anisong/
database:
  path: /tmp/file.db
logging:
  level: debug
  format: text
search:
  threshold: 20
watch:
  enabled: false
  debounce: 5s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASDB_DB_PATH", "/tmp/env.db")
	t.Setenv("ASDB_MAX_RESULTS", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.BasePath != "/anisong" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Search.Threshold != 20 || cfg.Search.MaxResults != 50 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Watch.Enabled || cfg.Watch.Debounce != 5*time.Second {
		t.Errorf("Watch = %+v", cfg.Watch)
	}
}

func TestLoadFromEnv_ReportsBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.loadFromEnv(mapLookup(map[string]string{
		"ASDB_PORT":           "eighty",
		"ASDB_WATCH":          "maybe",
		"ASDB_WATCH_DEBOUNCE": "1s",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("valid variables should still apply, Debounce = %s", cfg.Watch.Debounce)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"db path", func(c *Config) { c.Database.Path = "" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"max results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"threshold", func(c *Config) { c.Search.Threshold = -1 }},
		{"backup retention", func(c *Config) { c.Backup.MaxCount = -2 }},
		{"rate", func(c *Config) { c.Server.SearchRate = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_BurstDefaultsToOne(t *testing.T) {
	cfg := Default()
	cfg.Server.SearchBurst = 0
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Server.SearchBurst != 1 {
		t.Errorf("SearchBurst = %d, want 1", cfg.Server.SearchBurst)
	}
}
