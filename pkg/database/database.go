package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"mcwatch/pkg/config"
	"mcwatch/pkg/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type DB struct {
	*bun.DB
}

// NewDB opens the store described by cfg and verifies the connection.
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return Open(config.DriverPostgres, cfg.PostgresDSN())
	case config.DriverSQLite:
		return Open(config.DriverSQLite, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// Open connects to dsn with the given driver name ("sqlite" or "postgres").
func Open(driver, dsn string) (*DB, error) {
	var db *bun.DB

	switch driver {
	case config.DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db = bun.NewDB(sqldb, pgdialect.New())
	case config.DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// sqlite serializes writers anyway; one connection also keeps
		// ":memory:" databases alive for the lifetime of the handle.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Debug("Database connected", "driver", driver)

	return &DB{db}, nil
}

// InitSchema creates the users table if it doesn't exist
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.NewCreateTable().
		Model((*models.UserConfig)(nil)).
		IfNotExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// ResetSchema drops the users table with all stored settings and recreates it.
func (db *DB) ResetSchema(ctx context.Context) error {
	_, err := db.NewDropTable().
		Model((*models.UserConfig)(nil)).
		IfExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	return db.InitSchema(ctx)
}
