package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultConfig(t *testing.T) {
	cfg := LoadDefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Catalog.Name != "icecap" {
		t.Errorf("unexpected catalog name: %s", cfg.Catalog.Name)
	}
	if cfg.GetWarehouse() != "s3://default-warehouse" {
		t.Errorf("unexpected warehouse: %s", cfg.GetWarehouse())
	}
	if cfg.GetHTTPPort() != DefaultHTTPPort {
		t.Errorf("unexpected http port: %d", cfg.GetHTTPPort())
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icecap.yml")

	content := `
log:
  level: debug
  console: false
  file_path: ""
storage:
  database_path: /var/lib/icecap/catalog.db
  warehouse: s3://analytics-warehouse/
catalog:
  name: analytics
  max_page_size: 250
http:
  port: 9191
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("log level not applied: %s", cfg.Log.Level)
	}
	if cfg.GetWarehouse() != "s3://analytics-warehouse" {
		t.Errorf("warehouse should be trimmed of trailing slash: %s", cfg.GetWarehouse())
	}
	if cfg.Catalog.MaxPageSize != 250 {
		t.Errorf("max page size not applied: %d", cfg.Catalog.MaxPageSize)
	}
	// Unset sections keep defaults
	if cfg.Catalog.ScanPlans.IdleTTL != time.Hour {
		t.Errorf("scan plan TTL default lost: %v", cfg.Catalog.ScanPlans.IdleTTL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/icecap.yml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Storage.DatabasePath = "" }},
		{"empty warehouse", func(c *Config) { c.Storage.Warehouse = "" }},
		{"empty catalog name", func(c *Config) { c.Catalog.Name = "  " }},
		{"zero page size", func(c *Config) { c.Catalog.MaxPageSize = 0 }},
		{"zero workers", func(c *Config) { c.Catalog.ScanPlans.Workers = 0 }},
		{"negative ttl", func(c *Config) { c.Catalog.ScanPlans.IdleTTL = -time.Second }},
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := LoadDefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation failure for %s", tc.name)
			}
		})
	}
}
