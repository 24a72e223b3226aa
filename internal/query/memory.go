package query

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store partitioned by tenant: a session scoped
// to one tenant only ever reads that tenant's partition. It enforces the
// schema's per-tenant unique keys. Used for tests and as the mock data provider.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string][]Record // tenantID -> table -> rows
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: map[string]map[string][]Record{}}
}

func (m *MemoryStore) table(tenantID, table string) []Record {
	return m.partitions[tenantID][table]
}

func (m *MemoryStore) setTable(tenantID, table string, rows []Record) {
	p, ok := m.partitions[tenantID]
	if !ok {
		p = map[string][]Record{}
		m.partitions[tenantID] = p
	}
	p[table] = rows
}

func (m *MemoryStore) Select(ctx context.Context, tenantID string, spec SelectSpec) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, row := range m.table(tenantID, spec.Schema.Table) {
		if matchAll(spec.Schema, row, spec.Filters) {
			out = append(out, cloneRecord(row))
		}
	}
	if err := sortRecords(spec.Schema, out, spec.OrderBy); err != nil {
		return nil, err
	}
	if spec.Limit > 0 && uint64(len(out)) > spec.Limit {
		out = out[:spec.Limit]
	}
	if len(spec.Columns) > 0 {
		for i, row := range out {
			projected := make(Record, len(spec.Columns))
			for _, c := range spec.Columns {
				projected[c] = row[c]
			}
			out[i] = projected
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(ctx context.Context, tenantID string, schema *Schema, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.table(tenantID, schema.Table)
	row := cloneRecord(rec)
	for _, existing := range rows {
		if existing.String(ColumnID) == row.String(ColumnID) {
			return nil, &StoreError{Entity: schema.Table, Op: OpInsert, Code: CodeUniqueViolation,
				Message: fmt.Sprintf("duplicate id %q", row.String(ColumnID))}
		}
	}
	if err := checkUnique(schema, rows, row, -1, OpInsert); err != nil {
		return nil, err
	}
	m.setTable(tenantID, schema.Table, append(rows, row))
	return cloneRecord(row), nil
}

func (m *MemoryStore) Update(ctx context.Context, tenantID string, schema *Schema, patch Record, filters []Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.table(tenantID, schema.Table)
	next := make([]Record, len(rows))
	var n int64
	for i, row := range rows {
		next[i] = row
		if !matchAll(schema, row, filters) {
			continue
		}
		updated := cloneRecord(row)
		for k, v := range patch {
			updated[k] = cloneValue(v)
		}
		next[i] = updated
		n++
	}
	for i, row := range next {
		if err := checkUnique(schema, next, row, i, OpUpdate); err != nil {
			return 0, err
		}
	}
	m.setTable(tenantID, schema.Table, next)
	return n, nil
}

func (m *MemoryStore) Delete(ctx context.Context, tenantID string, schema *Schema, filters []Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.table(tenantID, schema.Table)
	kept := rows[:0:0]
	var n int64
	for _, row := range rows {
		if matchAll(schema, row, filters) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.setTable(tenantID, schema.Table, kept)
	return n, nil
}

func (m *MemoryStore) ForeignRows(ctx context.Context, tenantID string, schema *Schema) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, row := range m.table(tenantID, schema.Table) {
		if row.String(ColumnTenantID) != tenantID {
			n++
		}
	}
	return n, nil
}

// Seed writes normalized rows straight into a tenant partition, stamping
// tenant_id. Used to load fixtures and demo data.
func (m *MemoryStore) Seed(tenantID string, schema *Schema, recs ...Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.table(tenantID, schema.Table)
	for _, rec := range recs {
		norm, err := schema.Normalize(rec)
		if err != nil {
			return err
		}
		norm[ColumnTenantID] = tenantID
		if err := checkUnique(schema, rows, norm, -1, OpInsert); err != nil {
			return err
		}
		rows = append(rows, norm)
	}
	m.setTable(tenantID, schema.Table, rows)
	return nil
}

func matchAll(schema *Schema, row Record, filters []Filter) bool {
	for _, f := range filters {
		col, ok := schema.Column(f.Column())
		if !ok || !f.matches(col.Kind, row[f.Column()]) {
			return false
		}
	}
	return true
}

// checkUnique verifies row against every unique key; skip is the index of row
// itself in rows, or -1.
func checkUnique(schema *Schema, rows []Record, row Record, skip int, op Op) error {
	for _, key := range schema.Unique {
		for i, other := range rows {
			if i == skip {
				continue
			}
			same := true
			for _, c := range key {
				col, _ := schema.Column(c)
				if row[c] == nil || !equalValues(col.Kind, row[c], other[c]) {
					same = false
					break
				}
			}
			if same {
				return &StoreError{Entity: schema.Table, Op: op, Code: CodeUniqueViolation,
					Message: fmt.Sprintf("duplicate key %v", key)}
			}
		}
	}
	return nil
}

func sortRecords(schema *Schema, rows []Record, order []Ordering) error {
	if len(order) == 0 {
		return nil
	}
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			col, _ := schema.Column(o.Column)
			a, b := rows[i][o.Column], rows[j][o.Column]
			// NULLs sort last.
			if a == nil || b == nil {
				if a == nil && b == nil {
					continue
				}
				return b == nil
			}
			c, err := compareValues(col.Kind, a, b)
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, vv := range x {
			s[i] = cloneValue(vv)
		}
		return s
	}
	return v
}
