// Package db opens the relational content store and creates its tables.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"
)

// Supported drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Config holds database configuration.
type Config struct {
	// Driver is DriverDuckDB (default) or DriverPostgres.
	Driver string
	// DSN is the Postgres connection string. Ignored for DuckDB.
	DSN string
	// DataDir and DBName locate the DuckDB file at DataDir/duckdb/DBName.duckdb.
	DataDir string
	DBName  string
}

// Validate checks that the config names a usable store.
func (c Config) Validate() error {
	switch c.Driver {
	case "", DriverDuckDB:
		if c.DataDir == "" {
			return fmt.Errorf("db: data dir is required for %s", DriverDuckDB)
		}
	case DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("db: dsn is required for %s", DriverPostgres)
		}
	default:
		return fmt.Errorf("db: unknown driver %q", c.Driver)
	}
	return nil
}

// Open connects to the store and runs Migrate.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		conn *sql.DB
		err  error
	)
	if cfg.Driver == DriverPostgres {
		conn, err = sql.Open(DriverPostgres, cfg.DSN)
	} else {
		conn, err = openDuckDB(cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName(cfg.Driver), err)
	}
	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

func openDuckDB(cfg Config) (*sql.DB, error) {
	duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
	if err := os.MkdirAll(duckdbDir, 0755); err != nil {
		return nil, fmt.Errorf("create duckdb directory: %w", err)
	}
	name := cfg.DBName
	if name == "" {
		name = "content"
	}
	conn, err := sql.Open(DriverDuckDB, filepath.Join(duckdbDir, name+".duckdb"))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// DuckDB allows a single writer per file.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func driverName(d string) string {
	if d == "" {
		return DriverDuckDB
	}
	return d
}
