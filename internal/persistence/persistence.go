// Package persistence opens the run history store selected by configuration.
package persistence

import (
	"context"
	"fmt"

	"fermentlab/internal/infra/persistence/memory"
	"fermentlab/internal/infra/persistence/postgres"
	"fermentlab/internal/infra/persistence/sqlite"
	"fermentlab/internal/persistence/core"
)

type (
	Driver      = core.Driver
	Run         = core.Run
	Issue       = core.Issue
	Store       = core.Store
	ErrNotFound = core.ErrNotFound
)

const (
	DriverNone     = core.DriverNone
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

// NewRun re-exports core.NewRun.
var NewRun = core.NewRun

// Config selects the history backend.
type Config struct {
	Driver      string `yaml:"driver"` // none|memory|sqlite|postgres, default sqlite
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Open returns the configured store. DriverNone yields a nil Store and no
// error; callers skip history in that case.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverNone:
		return nil, nil
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
