package query

import "context"

// SelectSpec is a fully bound select. Filters already include the tenant predicate.
type SelectSpec struct {
	Schema  *Schema
	Columns []string
	Filters []Filter
	OrderBy []Ordering
	Limit   uint64
}

// Store is the underlying multi-tenant data source. Implementations receive the
// tenant explicitly and enforce it at their own level (row level security for
// Postgres, partitioning for memory); only Service calls them.
type Store interface {
	Select(ctx context.Context, tenantID string, spec SelectSpec) ([]Record, error)
	Insert(ctx context.Context, tenantID string, schema *Schema, rec Record) (Record, error)
	Update(ctx context.Context, tenantID string, schema *Schema, patch Record, filters []Filter) (int64, error)
	Delete(ctx context.Context, tenantID string, schema *Schema, filters []Filter) (int64, error)

	// ForeignRows counts rows of the collection that a session scoped to
	// tenantID can see but that belong to another tenant, reading without the
	// tenant predicate. Anything above zero means store isolation is broken.
	ForeignRows(ctx context.Context, tenantID string, schema *Schema) (int64, error)
}
