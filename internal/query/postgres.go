package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// setTenantSQL scopes the transaction for the row level security policies in schema.sql.
const setTenantSQL = `SELECT set_config('app.current_tenant_id', $1, true)`

// PostgresStore runs every operation in a transaction that first sets
// app.current_tenant_id, so RLS applies on top of the explicit tenant predicate.
type PostgresStore struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	logger  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}
}

func (p *PostgresStore) inTenant(ctx context.Context, tenantID string, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, setTenantSQL, tenantID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to set tenant context: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (p *PostgresStore) Select(ctx context.Context, tenantID string, spec SelectSpec) ([]Record, error) {
	cols := spec.Columns
	if len(cols) == 0 {
		cols = spec.Schema.ColumnNames()
	}
	q := p.builder.Select(cols...).From(spec.Schema.Table)
	for _, f := range spec.Filters {
		q = q.Where(f.toSql())
	}
	for _, o := range spec.OrderBy {
		if o.Desc {
			q = q.OrderBy(o.Column + " DESC")
		} else {
			q = q.OrderBy(o.Column + " ASC")
		}
	}
	if spec.Limit > 0 {
		q = q.Limit(spec.Limit)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	var out []Record
	err = p.inTenant(ctx, tenantID, func(tx *sqlx.Tx) error {
		rows, err := tx.QueryxContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			raw := map[string]any{}
			if err := rows.MapScan(raw); err != nil {
				return err
			}
			rec, err := spec.Schema.Normalize(raw)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, pgError(spec.Schema.Table, OpSelect, err)
	}
	return out, nil
}

func (p *PostgresStore) Insert(ctx context.Context, tenantID string, schema *Schema, rec Record) (Record, error) {
	values, err := driverValues(schema, rec)
	if err != nil {
		return nil, err
	}
	query, args, err := p.builder.Insert(schema.Table).
		SetMap(values).
		Suffix("RETURNING " + strings.Join(schema.ColumnNames(), ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	var out Record
	err = p.inTenant(ctx, tenantID, func(tx *sqlx.Tx) error {
		raw := map[string]any{}
		if err := tx.QueryRowxContext(ctx, query, args...).MapScan(raw); err != nil {
			return err
		}
		rec, nerr := schema.Normalize(raw)
		if nerr != nil {
			return nerr
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, pgError(schema.Table, OpInsert, err)
	}
	return out, nil
}

func (p *PostgresStore) Update(ctx context.Context, tenantID string, schema *Schema, patch Record, filters []Filter) (int64, error) {
	if len(patch) == 0 {
		return 0, nil
	}
	values, err := driverValues(schema, patch)
	if err != nil {
		return 0, err
	}
	q := p.builder.Update(schema.Table).SetMap(values)
	for _, f := range filters {
		q = q.Where(f.toSql())
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update: %w", err)
	}
	return p.exec(ctx, tenantID, schema, OpUpdate, query, args)
}

func (p *PostgresStore) Delete(ctx context.Context, tenantID string, schema *Schema, filters []Filter) (int64, error) {
	q := p.builder.Delete(schema.Table)
	for _, f := range filters {
		q = q.Where(f.toSql())
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}
	return p.exec(ctx, tenantID, schema, OpDelete, query, args)
}

func (p *PostgresStore) exec(ctx context.Context, tenantID string, schema *Schema, op Op, query string, args []any) (int64, error) {
	var n int64
	err := p.inTenant(ctx, tenantID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, pgError(schema.Table, op, err)
	}
	return n, nil
}

func (p *PostgresStore) ForeignRows(ctx context.Context, tenantID string, schema *Schema) (int64, error) {
	query, args, err := p.builder.Select("COUNT(*)").
		From(schema.Table).
		Where(sq.NotEq{ColumnTenantID: tenantID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build probe: %w", err)
	}
	var n int64
	err = p.inTenant(ctx, tenantID, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, pgError(schema.Table, OpProbe, err)
	}
	return n, nil
}

// driverValues converts JSON columns to their encoded text for jsonb.
func driverValues(schema *Schema, rec Record) (map[string]any, error) {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		col, ok := schema.Column(k)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, schema.Table, k)
		}
		if col.Kind == KindJSON && v != nil {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("column %s.%s: %w", schema.Table, k, err)
			}
			out[k] = string(b)
			continue
		}
		out[k] = v
	}
	return out, nil
}

func pgError(entity string, op Op, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &StoreError{
			Entity:  entity,
			Op:      op,
			Code:    pqErr.Code.Name(),
			Message: pqErr.Message,
			Err:     err,
		}
	}
	return storeError(entity, op, err)
}
