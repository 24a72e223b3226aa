package database

import (
	"context"
	"errors"
	"testing"

	"portal-data/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestMigrate_AppliesSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS tenants`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied for schema public"))

	err := Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply schema")
}

func TestSchema_EveryTableIsRowLevelSecured(t *testing.T) {
	for _, table := range []string{"products", "distributors", "orders", "order_items",
		"inventory_batches", "territories", "performance_metrics", "shipments"} {
		assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS "+table+" (")
		assert.Contains(t, schemaSQL, "'"+table+"'")
	}
	assert.Contains(t, schemaSQL, "FORCE ROW LEVEL SECURITY")
	assert.Contains(t, schemaSQL, "UNIQUE (tenant_id, order_number)")
	assert.Contains(t, schemaSQL, "UNIQUE (tenant_id, batch_number)")
}

func TestUpsertTenant(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectExec(`INSERT INTO tenants`).
		WithArgs("t-1", "acme", "Acme", 0.5, `{"crm":true}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := UpsertTenant(context.Background(), db, domain.Tenant{
		ID: "t-1", Subdomain: "acme", Name: "Acme", ConsciousnessLevel: 0.5,
		FeatureFlags: map[string]bool{"crm": true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
