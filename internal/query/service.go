package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is bound to one tenant for its whole lifetime. Every select, insert,
// update and delete it issues is constrained to that tenant before it reaches
// the store; switching tenants means obtaining a new Service.
type Service struct {
	store    Store
	tenantID string
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService binds store to tenantID. An empty tenant id is rejected.
func NewService(store Store, tenantID string, logger *zap.Logger) (*Service, error) {
	if tenantID == "" {
		return nil, ErrTenantNotResolved
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		tenantID: tenantID,
		logger:   logger.With(zap.String("tenant_id", tenantID)),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

func (s *Service) TenantID() string { return s.tenantID }

// Select starts a tenant-filtered query. With no columns every column is returned.
func (s *Service) Select(schema *Schema, columns ...string) *SelectQuery {
	q := &SelectQuery{svc: s, schema: schema}
	for _, c := range columns {
		if !schema.Has(c) {
			q.err = fmt.Errorf("%w: %s.%s", ErrUnknownColumn, schema.Table, c)
			return q
		}
	}
	q.columns = columns
	return q
}

// SelectQuery is a chainable select. The tenant predicate is not part of its
// public state and cannot be removed.
type SelectQuery struct {
	svc     *Service
	schema  *Schema
	columns []string
	filters []Filter
	order   []Ordering
	limit   uint64
	err     error
}

// Where adds filters, validating each against the schema. The first invalid
// filter poisons the query; Rows returns its error.
func (q *SelectQuery) Where(filters ...Filter) *SelectQuery {
	if q.err != nil {
		return q
	}
	for _, f := range filters {
		bound, err := f.bind(q.schema)
		if err != nil {
			q.err = err
			return q
		}
		q.filters = append(q.filters, bound)
	}
	return q
}

func (q *SelectQuery) OrderBy(column string, desc bool) *SelectQuery {
	if q.err != nil {
		return q
	}
	col, ok := q.schema.Column(column)
	if !ok {
		q.err = fmt.Errorf("%w: %s.%s", ErrUnknownColumn, q.schema.Table, column)
		return q
	}
	if col.Kind == KindJSON {
		q.err = fmt.Errorf("%w: cannot order by json column %s", ErrInvalidFilter, column)
		return q
	}
	q.order = append(q.order, Ordering{Column: column, Desc: desc})
	return q
}

func (q *SelectQuery) Limit(n uint64) *SelectQuery {
	q.limit = n
	return q
}

// Spec returns the bound select as the store will receive it.
func (q *SelectQuery) Spec() (SelectSpec, error) {
	if q.err != nil {
		return SelectSpec{}, q.err
	}
	filters := make([]Filter, 0, len(q.filters)+1)
	filters = append(filters, tenantFilter(q.svc.tenantID))
	filters = append(filters, q.filters...)
	return SelectSpec{
		Schema:  q.schema,
		Columns: q.columns,
		Filters: filters,
		OrderBy: q.order,
		Limit:   q.limit,
	}, nil
}

// Rows executes the query.
func (q *SelectQuery) Rows(ctx context.Context) ([]Record, error) {
	spec, err := q.Spec()
	if err != nil {
		return nil, err
	}
	rows, err := q.svc.store.Select(ctx, q.svc.tenantID, spec)
	if err != nil {
		q.svc.logger.Warn("scoped select failed", zap.String("entity", q.schema.Table), zap.Error(err))
		return nil, storeError(q.schema.Table, OpSelect, err)
	}
	return rows, nil
}

// First returns the first row, or ok=false when nothing matches.
func (q *SelectQuery) First(ctx context.Context) (Record, bool, error) {
	rows, err := q.Limit(1).Rows(ctx)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return rows[0], true, nil
}

// Insert stamps tenant_id, id and timestamps onto rec and writes it. A record
// that already names a different tenant is rejected.
func (s *Service) Insert(ctx context.Context, schema *Schema, rec Record) (Record, error) {
	norm, err := schema.Normalize(rec)
	if err != nil {
		return nil, err
	}
	if tid, ok := norm[ColumnTenantID]; ok && tid != nil && tid != "" && tid != s.tenantID {
		return nil, ErrTenantColumn
	}
	norm[ColumnTenantID] = s.tenantID
	if id, _ := norm[ColumnID].(string); id == "" {
		norm[ColumnID] = s.newID()
	}
	now := s.now()
	for _, col := range []string{ColumnCreatedAt, ColumnUpdatedAt} {
		if !schema.Has(col) {
			continue
		}
		if t, ok := norm[col].(time.Time); !ok || t.IsZero() {
			norm[col] = now
		}
	}

	out, err := s.store.Insert(ctx, s.tenantID, schema, norm)
	if err != nil {
		s.logger.Warn("scoped insert failed", zap.String("entity", schema.Table), zap.Error(err))
		return nil, storeError(schema.Table, OpInsert, err)
	}
	return out, nil
}

// Update starts a tenant-scoped update applying patch.
func (s *Service) Update(schema *Schema, patch Record) *Mutation {
	m := &Mutation{svc: s, schema: schema, op: OpUpdate}
	for _, col := range []string{ColumnID, ColumnTenantID, ColumnCreatedAt} {
		if _, ok := patch[col]; ok {
			if col == ColumnTenantID {
				m.err = ErrTenantColumn
			} else {
				m.err = fmt.Errorf("%w: %s cannot be patched", ErrInvalidFilter, col)
			}
			return m
		}
	}
	norm, err := schema.Normalize(patch)
	if err != nil {
		m.err = err
		return m
	}
	if schema.Has(ColumnUpdatedAt) {
		if _, ok := norm[ColumnUpdatedAt]; !ok {
			norm[ColumnUpdatedAt] = s.now()
		}
	}
	m.patch = norm
	return m
}

// Delete starts a tenant-scoped delete.
func (s *Service) Delete(schema *Schema) *Mutation {
	return &Mutation{svc: s, schema: schema, op: OpDelete}
}

// Mutation is a pending update or delete. Rows outside the service tenant are
// never matched, so a foreign id affects zero rows.
type Mutation struct {
	svc     *Service
	schema  *Schema
	op      Op
	patch   Record
	filters []Filter
	err     error
}

func (m *Mutation) Where(filters ...Filter) *Mutation {
	if m.err != nil {
		return m
	}
	for _, f := range filters {
		bound, err := f.bind(m.schema)
		if err != nil {
			m.err = err
			return m
		}
		m.filters = append(m.filters, bound)
	}
	return m
}

// Exec runs the mutation and returns the affected row count.
func (m *Mutation) Exec(ctx context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	filters := append([]Filter{tenantFilter(m.svc.tenantID)}, m.filters...)

	var (
		n   int64
		err error
	)
	switch m.op {
	case OpUpdate:
		n, err = m.svc.store.Update(ctx, m.svc.tenantID, m.schema, m.patch, filters)
	case OpDelete:
		n, err = m.svc.store.Delete(ctx, m.svc.tenantID, m.schema, filters)
	default:
		return 0, fmt.Errorf("unsupported mutation %s", m.op)
	}
	if err != nil {
		m.svc.logger.Warn("scoped write failed",
			zap.String("entity", m.schema.Table), zap.String("op", string(m.op)), zap.Error(err))
		return 0, storeError(m.schema.Table, m.op, err)
	}
	return n, nil
}

// Decode converts a record into an entity struct whose json tags name columns.
func Decode[T any](rec Record) (T, error) {
	var out T
	b, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("failed to encode record: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("failed to decode record: %w", err)
	}
	return out, nil
}

// DecodeAll decodes every record.
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := Decode[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode turns an entity struct into a normalized record for schema.
func Encode(schema *Schema, v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", schema.Table, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw Record
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", schema.Table, err)
	}
	return schema.Normalize(raw)
}

// All runs q and decodes the rows.
func All[T any](ctx context.Context, q *SelectQuery) ([]T, error) {
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](rows)
}
