// Package config loads campreg settings from CAMPREG_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"campreg/internal/blob"
	"campreg/internal/core"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "CAMPREG_"

// Config is the full runtime configuration.
type Config struct {
	Addr          string             `env:"ADDR" envDefault:":8080"`
	Storage       core.StorageConfig `envPrefix:"STORAGE_"`
	Blob          blob.Config        `envPrefix:"BLOB_"`
	SyncTimeout   time.Duration      `env:"SYNC_TIMEOUT" envDefault:"15s"`
	SyncKeyPrefix string             `env:"SYNC_KEY_PREFIX" envDefault:"registrations/"`
	ResyncOnStart bool               `env:"RESYNC_ON_START" envDefault:"false"`
	CatalogPath   string             `env:"CATALOG_PATH"`
	LogLevel      string             `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string             `env:"LOG_FORMAT" envDefault:"text"`
	OTelEndpoint  string             `env:"OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the tags cannot express.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return fmt.Errorf("%sSTORAGE_POSTGRES_DSN is required for the postgres driver", Prefix)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if strings.TrimSpace(c.Blob.S3.Bucket) == "" {
			return fmt.Errorf("%sBLOB_S3_BUCKET is required for the s3 driver", Prefix)
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.SyncTimeout < 0 {
		return fmt.Errorf("sync timeout must not be negative")
	}
	return nil
}
