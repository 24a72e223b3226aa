package dataset

import (
	"context"
	"fmt"

	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

type validator[T any] interface {
	*T
	Validate() error
}

// insertEntity validates v, writes it and returns the stored row.
func insertEntity[T any, PT validator[T]](ctx context.Context, l *tenant.Lease, schema *query.Schema, v T) (T, error) {
	var zero T
	if err := PT(&v).Validate(); err != nil {
		return zero, err
	}
	rec, err := query.Encode(schema, v)
	if err != nil {
		return zero, err
	}
	out, err := l.Insert(ctx, schema, rec)
	if err != nil {
		return zero, err
	}
	return query.Decode[T](out)
}

// mergePatch overlays patch on the stored row cur and decodes the result.
func mergePatch[T any](schema *query.Schema, cur, patch query.Record) (T, error) {
	var zero T
	norm, err := schema.Normalize(patch)
	if err != nil {
		return zero, err
	}
	for k, v := range norm {
		cur[k] = v
	}
	return query.Decode[T](cur)
}

// updateEntity applies patch to row id after validating the merged entity.
func updateEntity[T any, PT validator[T]](ctx context.Context, l *tenant.Lease, schema *query.Schema, id string, patch query.Record) (T, error) {
	var zero T
	cur, err := first(ctx, l, schema, id)
	if err != nil {
		return zero, err
	}
	merged, err := mergePatch[T](schema, cur, patch)
	if err != nil {
		return zero, err
	}
	if err := PT(&merged).Validate(); err != nil {
		return zero, err
	}
	n, err := l.Update(schema, patch).Where(query.Eq{Col: query.ColumnID, Value: id}).Exec(ctx)
	if err != nil {
		return zero, err
	}
	if n == 0 {
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, schema.Table, id)
	}
	return merged, nil
}

// deleteByID removes row id; a row outside the tenant is reported as not found.
func deleteByID(ctx context.Context, l *tenant.Lease, schema *query.Schema, id string) error {
	n, err := l.Delete(schema).Where(query.Eq{Col: query.ColumnID, Value: id}).Exec(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, schema.Table, id)
	}
	return nil
}
