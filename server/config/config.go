package config

import (
	"os"
	"strings"
	"time"

	"github.com/icecapdb/icecap/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the catalog server configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Catalog CatalogConfig `yaml:"catalog"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`      // "json" or "console"
	FilePath   string `yaml:"file_path"`   // Path to log file
	Console    bool   `yaml:"console"`     // Whether to log to console
	MaxSize    int    `yaml:"max_size"`    // Max file size in MB
	MaxBackups int    `yaml:"max_backups"` // Max number of backup files
	MaxAge     int    `yaml:"max_age"`     // Max age in days
	Cleanup    bool   `yaml:"cleanup"`     // Whether to cleanup log file on startup
}

// StorageConfig represents persistence configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"` // SQLite catalog database file
	Warehouse    string `yaml:"warehouse"`     // Default warehouse location prefix
}

// CatalogConfig represents catalog behavior configuration
type CatalogConfig struct {
	Name        string         `yaml:"name"`
	MaxPageSize int            `yaml:"max_page_size"`
	ScanPlans   ScanPlanConfig `yaml:"scan_plans"`
}

// ScanPlanConfig bounds the scan-plan working set
type ScanPlanConfig struct {
	Workers       int           `yaml:"workers"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// HTTPConfig represents the REST listener configuration
type HTTPConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoadDefaultConfig returns a default configuration
func LoadDefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			FilePath:   "logs/icecap-server.log",
			Console:    true,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Cleanup:    true,
		},
		Storage: StorageConfig{
			DatabasePath: "./data/catalog.db",
			Warehouse:    "s3://default-warehouse",
		},
		Catalog: CatalogConfig{
			Name:        "icecap",
			MaxPageSize: 1000,
			ScanPlans: ScanPlanConfig{
				Workers:       4,
				IdleTTL:       time.Hour,
				SweepInterval: 5 * time.Minute,
			},
		},
		HTTP: HTTPConfig{
			Address: "0.0.0.0",
			Port:    DefaultHTTPPort,
		},
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.New(ErrConfigFileReadFailed, "failed to read config file", err)
	}

	config := LoadDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.New(ErrConfigFileParseFailed, "failed to parse config file", err)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.New(ErrConfigValidationFailed, "configuration validation failed", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.New(ErrConfigFileMarshalFailed, "failed to marshal config", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.New(ErrConfigFileWriteFailed, "failed to write config file", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	if !IsValidPort(c.HTTP.Port) {
		return errors.Newf(ErrInvalidPort, "http port %d out of range", c.HTTP.Port)
	}
	return nil
}

// Validate validates the storage configuration
func (s *StorageConfig) Validate() error {
	if s.DatabasePath == "" {
		return errors.New(ErrDatabasePathRequired, "database_path is required in storage configuration", nil)
	}
	if s.Warehouse == "" {
		return errors.New(ErrWarehouseRequired, "warehouse is required in storage configuration", nil)
	}
	return nil
}

// Validate validates the catalog configuration
func (c *CatalogConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New(ErrCatalogNameRequired, "catalog name is required", nil)
	}
	if c.MaxPageSize < 1 {
		return errors.Newf(ErrInvalidPageSize, "max_page_size must be positive, got %d", c.MaxPageSize)
	}
	if c.ScanPlans.Workers < 1 {
		return errors.Newf(ErrInvalidScanPlanConfig, "scan_plans.workers must be positive, got %d", c.ScanPlans.Workers)
	}
	if c.ScanPlans.IdleTTL <= 0 || c.ScanPlans.SweepInterval <= 0 {
		return errors.New(ErrInvalidScanPlanConfig, "scan_plans idle_ttl and sweep_interval must be positive", nil)
	}
	return nil
}

// GetDatabasePath returns the catalog database path
func (c *Config) GetDatabasePath() string {
	return c.Storage.DatabasePath
}

// GetWarehouse returns the default warehouse location
func (c *Config) GetWarehouse() string {
	return strings.TrimRight(c.Storage.Warehouse, "/")
}

// GetHTTPPort returns the REST listener port
func (c *Config) GetHTTPPort() int {
	return c.HTTP.Port
}
