package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/migrations"
)

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "mods-server" }

type database struct {
	client *persistence.Client
	cache  repositorycache.CacheService
}

func (d *database) Close() {
	if d != nil && d.client != nil {
		_ = d.client.Close()
	}
}

// openPersistence returns nil for the memory driver. Otherwise it opens the
// database, applies the dialect's migrations and prepares a read cache.
func openPersistence(ctx context.Context, cfg core.StoreConfig) (*database, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		dialect       schema.Dialect
		migrationKind string
	)
	switch driver {
	case "", core.StoreDriverMemory:
		return nil, nil
	case core.StoreDriverSQLite:
		dialect, migrationKind = sqlitedialect.New(), migrations.DialectSQLite
	case core.StoreDriverPostgres:
		dialect, migrationKind = pgdialect.New(), migrations.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == core.StoreDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: cfg.DSN}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	set, err := migrations.Apply(ctx, migrationKind, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate to %s: %w", set.Latest(), err)
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache service: %w", err)
	}
	return &database{client: client, cache: cacheService}, nil
}
