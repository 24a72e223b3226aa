package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Filter is a predicate on one column: Eq, Range or In.
type Filter interface {
	Column() string
	bind(s *Schema) (Filter, error)
	toSql() sq.Sqlizer
	matches(kind Kind, v any) bool
}

// Eq matches rows whose column equals Value; a nil Value matches NULL.
type Eq struct {
	Col   string
	Value any
}

// Range matches Min <= column <= Max. A nil bound is open.
type Range struct {
	Col string
	Min any
	Max any
}

// In matches rows whose column is one of Values. An empty set matches nothing.
type In struct {
	Col    string
	Values []any
}

func (f Eq) Column() string    { return f.Col }
func (f Range) Column() string { return f.Col }
func (f In) Column() string    { return f.Col }

func filterColumn(s *Schema, name string) (Column, error) {
	if name == ColumnTenantID {
		return Column{}, ErrTenantColumn
	}
	col, ok := s.Column(name)
	if !ok {
		return Column{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Table, name)
	}
	if col.Kind == KindJSON {
		return Column{}, fmt.Errorf("%w: json column %s.%s cannot be filtered", ErrInvalidFilter, s.Table, name)
	}
	return col, nil
}

func (f Eq) bind(s *Schema) (Filter, error) {
	col, err := filterColumn(s, f.Col)
	if err != nil {
		return nil, err
	}
	v, err := normalizeValue(col.Kind, f.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.Col, err)
	}
	return Eq{Col: f.Col, Value: v}, nil
}

func (f Range) bind(s *Schema) (Filter, error) {
	col, err := filterColumn(s, f.Col)
	if err != nil {
		return nil, err
	}
	if f.Min == nil && f.Max == nil {
		return nil, fmt.Errorf("%w: range on %s needs at least one bound", ErrInvalidFilter, f.Col)
	}
	if col.Kind == KindBool {
		return nil, fmt.Errorf("%w: range on bool column %s", ErrInvalidFilter, f.Col)
	}
	lo, err := normalizeValue(col.Kind, f.Min)
	if err != nil {
		return nil, fmt.Errorf("%w: %s min: %v", ErrInvalidFilter, f.Col, err)
	}
	hi, err := normalizeValue(col.Kind, f.Max)
	if err != nil {
		return nil, fmt.Errorf("%w: %s max: %v", ErrInvalidFilter, f.Col, err)
	}
	return Range{Col: f.Col, Min: lo, Max: hi}, nil
}

func (f In) bind(s *Schema) (Filter, error) {
	col, err := filterColumn(s, f.Col)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, len(f.Values))
	for _, raw := range f.Values {
		v, err := normalizeValue(col.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.Col, err)
		}
		values = append(values, v)
	}
	return In{Col: f.Col, Values: values}, nil
}

func (f Eq) toSql() sq.Sqlizer { return sq.Eq{f.Col: f.Value} }

func (f Range) toSql() sq.Sqlizer {
	and := sq.And{}
	if f.Min != nil {
		and = append(and, sq.GtOrEq{f.Col: f.Min})
	}
	if f.Max != nil {
		and = append(and, sq.LtOrEq{f.Col: f.Max})
	}
	return and
}

func (f In) toSql() sq.Sqlizer { return sq.Eq{f.Col: f.Values} }

func (f Eq) matches(kind Kind, v any) bool {
	return equalValues(kind, v, f.Value)
}

func (f Range) matches(kind Kind, v any) bool {
	if v == nil {
		return false
	}
	if f.Min != nil {
		if c, err := compareValues(kind, v, f.Min); err != nil || c < 0 {
			return false
		}
	}
	if f.Max != nil {
		if c, err := compareValues(kind, v, f.Max); err != nil || c > 0 {
			return false
		}
	}
	return true
}

func (f In) matches(kind Kind, v any) bool {
	for _, want := range f.Values {
		if equalValues(kind, v, want) {
			return true
		}
	}
	return false
}

// tenantFilter is the predicate the service prepends to every operation; it
// bypasses bind so callers can never construct it themselves.
func tenantFilter(tenantID string) Filter {
	return Eq{Col: ColumnTenantID, Value: tenantID}
}

// Ordering sorts select results by a column.
type Ordering struct {
	Column string
	Desc   bool
}
