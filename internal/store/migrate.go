// Package store persists imported records and import bookkeeping in PostgreSQL.
package store

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// migrations are applied in order. Every statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{"import_history", `
		CREATE TABLE IF NOT EXISTS import_history (
			id            UUID PRIMARY KEY,
			schema_key    TEXT NOT NULL,
			session_id    TEXT NOT NULL,
			file_name     TEXT NOT NULL DEFAULT '',
			submitted     INTEGER NOT NULL DEFAULT 0,
			imported      INTEGER NOT NULL DEFAULT 0,
			skipped       INTEGER NOT NULL DEFAULT 0,
			failed        INTEGER NOT NULL DEFAULT 0,
			invalid       INTEGER NOT NULL DEFAULT 0,
			duplicate     INTEGER NOT NULL DEFAULT 0,
			empty         INTEGER NOT NULL DEFAULT 0,
			server_errors JSONB NOT NULL DEFAULT '[]',
			duration_ms   BIGINT NOT NULL DEFAULT 0,
			ip_address    TEXT NOT NULL DEFAULT '',
			user_agent    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`},
	{"import_history_schema_idx", `
		CREATE INDEX IF NOT EXISTS import_history_schema_created_idx
			ON import_history (schema_key, created_at DESC)`},
	{"mapping_templates", `
		CREATE TABLE IF NOT EXISTS mapping_templates (
			id             UUID PRIMARY KEY,
			schema_key     TEXT NOT NULL,
			name           TEXT NOT NULL,
			column_mapping JSONB NOT NULL,
			headers        JSONB NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (schema_key, name)
		)`},
	{"contacts", `
		CREATE TABLE IF NOT EXISTS contacts (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name        TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			company     TEXT NOT NULL DEFAULT '',
			job_title   TEXT NOT NULL DEFAULT '',
			street      TEXT NOT NULL DEFAULT '',
			postal_code TEXT NOT NULL DEFAULT '',
			city        TEXT NOT NULL DEFAULT '',
			country     TEXT NOT NULL DEFAULT '',
			website     TEXT NOT NULL DEFAULT '',
			newsletter  BOOLEAN NOT NULL DEFAULT false,
			birthday    DATE,
			notes       TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`},
	{"contacts_email_key", `
		CREATE UNIQUE INDEX IF NOT EXISTS contacts_email_key
			ON contacts (lower(email)) WHERE email <> ''`},
	{"articles", `
		CREATE TABLE IF NOT EXISTS articles (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sku         TEXT NOT NULL,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			unit        TEXT NOT NULL DEFAULT '',
			price       NUMERIC(12, 2),
			cost        NUMERIC(12, 2),
			stock       NUMERIC(12, 3),
			min_stock   NUMERIC(12, 3),
			max_stock   NUMERIC(12, 3),
			active      BOOLEAN NOT NULL DEFAULT true,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`},
	{"articles_sku_key", `
		CREATE UNIQUE INDEX IF NOT EXISTS articles_sku_key
			ON articles (lower(sku))`},
}

// Migrate creates the tables used by the service.
func Migrate(ctx context.Context, db core.DBTX) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", m.name, err)
		}
	}
	return nil
}
