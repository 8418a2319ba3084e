// Package persistence selects the participatory space store. Callers depend on
// core.SpaceStore; only this package imports the infra drivers.
package persistence

import (
	"context"
	"fmt"

	"agora/internal/config"
	"agora/internal/core"
	"agora/internal/infra/persistence/memory"
	"agora/internal/infra/persistence/postgres"
	"agora/internal/infra/persistence/sqlite"
	"agora/internal/infra/persistence/sqlstore"
)

// Driver names a store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// NewMemory returns an in-process store.
func NewMemory() core.SpaceStore { return memory.NewStore() }

// Open builds the store selected by cfg.Driver. An empty driver selects memory.
func Open(ctx context.Context, cfg config.StoreConfig) (core.SpaceStore, error) {
	var (
		store *sqlstore.Store
		err   error
	)
	switch Driver(cfg.Driver) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		store, err = sqlite.Open(ctx, cfg.DSN)
	case DriverPostgres:
		store, err = postgres.Open(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %s", cfg.Driver)
	}
	if err != nil {
		// Keep the interface nil rather than holding a nil *sqlstore.Store.
		return nil, err
	}
	return store, nil
}
