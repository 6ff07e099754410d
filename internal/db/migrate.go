package db

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations use SQL understood by both DuckDB and Postgres.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL,
		language TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (slug, language)
	)`,
	// blocks has no primary key: SaveBlocks deletes and reinserts ids inside
	// one transaction.
	`CREATE TABLE IF NOT EXISTS blocks (
		id TEXT NOT NULL,
		story_id TEXT NOT NULL,
		language TEXT NOT NULL,
		type TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL DEFAULT '{}',
		refs TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS references_ (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		authors TEXT NOT NULL DEFAULT '[]',
		year INTEGER NOT NULL DEFAULT 0,
		type TEXT NOT NULL,
		journal TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0
	)`,
}

// Migrate creates the content tables if they do not exist.
func Migrate(ctx context.Context, conn *sql.DB) error {
	for _, m := range migrations {
		if _, err := conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %.40s: %w", m, err)
		}
	}
	return nil
}
