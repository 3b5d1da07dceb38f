package core

import (
	"context"
	"fmt"

	"campreg/internal/infra/persistence/memory"
	"campreg/internal/infra/persistence/postgres"
	"campreg/internal/infra/persistence/sqlite"
	"campreg/pkg/domain"
)

// StorageDriver identifies a concrete staging store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the staging backend. Parsed from
// CAMPREG_STORAGE_* variables by the platform config.
type StorageConfig struct {
	Driver      StorageDriver `env:"DRIVER" envDefault:"sqlite"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"./campreg.db"`
	PostgresDSN string        `env:"POSTGRES_DSN"`
}

// OpenStagingStore constructs the configured backend and opens it.
func OpenStagingStore(ctx context.Context, cfg StorageConfig) (domain.StagingStore, error) {
	var (
		store domain.StagingStore
		err   error
	)
	switch cfg.Driver {
	case StorageMemory:
		store = memory.NewStore()
	case StorageSQLite, "":
		store, err = sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		store, err = postgres.NewStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Open(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
