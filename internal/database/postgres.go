package database

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"portal-data/internal/config"
	"portal-data/internal/domain"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// NewPostgresDB opens the pool and checks the connection.
func NewPostgresDB(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// UpsertTenant creates or refreshes a tenant row (tenants is not row level secured).
func UpsertTenant(ctx context.Context, db *sqlx.DB, t domain.Tenant) error {
	flags := t.FeatureFlags
	if flags == nil {
		flags = map[string]bool{}
	}
	raw, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to encode feature_flags: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO tenants (id, subdomain, name, consciousness_level, feature_flags)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id)
		 DO UPDATE SET subdomain = EXCLUDED.subdomain,
		               name = EXCLUDED.name,
		               consciousness_level = EXCLUDED.consciousness_level,
		               feature_flags = EXCLUDED.feature_flags`,
		t.ID, t.Subdomain, t.Name, t.ConsciousnessLevel, string(raw))
	if err != nil {
		return fmt.Errorf("failed to upsert tenant %s: %w", t.Subdomain, err)
	}
	return nil
}
