package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the value type of a column. Records always hold the normalized Go
// type for the kind: string, int64, float64, decimal.Decimal, bool, time.Time,
// or a decoded JSON value (map[string]any / []any).
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindDecimal
	KindBool
	KindTime
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindJSON:
		return "json"
	}
	return "unknown"
}

// Column describes one column of an entity collection.
type Column struct {
	Name string
	Kind Kind
}

// Schema describes an entity collection. Unique lists natural keys that are
// unique within a tenant.
type Schema struct {
	Table   string
	Columns []Column
	Unique  [][]string

	index map[string]Column
}

// Record is one row keyed by column name.
type Record map[string]any

const (
	ColumnID        = "id"
	ColumnTenantID  = "tenant_id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

func NewSchema(table string, columns []Column, unique ...[]string) *Schema {
	s := &Schema{Table: table, Columns: columns, Unique: unique, index: make(map[string]Column, len(columns))}
	for _, c := range columns {
		s.index[c.Name] = c
	}
	return s
}

func (s *Schema) Column(name string) (Column, bool) {
	c, ok := s.index[name]
	return c, ok
}

func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Normalize checks every key against the schema and converts values to the
// column kind. Unknown columns are rejected.
func (s *Schema) Normalize(rec Record) (Record, error) {
	out := make(Record, len(rec))
	for k, v := range rec {
		col, ok := s.index[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Table, k)
		}
		nv, err := normalizeValue(col.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", s.Table, k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// String returns a string column value or "".
func (r Record) String(col string) string {
	if v, ok := r[col].(string); ok {
		return v
	}
	return ""
}

// Int returns an int column value or 0.
func (r Record) Int(col string) int64 {
	if v, ok := r[col].(int64); ok {
		return v
	}
	return 0
}

func normalizeValue(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		return toString(v)
	case KindInt:
		return toInt(v)
	case KindFloat:
		return toFloat(v)
	case KindDecimal:
		return toDecimal(v)
	case KindBool:
		return toBool(v)
	case KindTime:
		return toTime(v)
	case KindJSON:
		return toJSON(v)
	}
	return nil, fmt.Errorf("unsupported kind %d", kind)
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return nil, fmt.Errorf("expected string, got %T", v)
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("expected integer, got %v", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case decimal.Decimal:
		return x.InexactFloat64(), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	}
	return nil, fmt.Errorf("expected number, got %T", v)
}

func toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(x)))
	case json.Number:
		return decimal.NewFromString(x.String())
	case float64:
		return decimal.NewFromFloat(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	}
	return nil, fmt.Errorf("expected decimal, got %T", v)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	case []byte:
		return strconv.ParseBool(string(x))
	}
	return nil, fmt.Errorf("expected bool, got %T", v)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func toTime(v any) (any, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return x.UTC(), nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return nil, fmt.Errorf("expected time, got %T", v)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("unparseable time %q", s)
}

// toJSON canonicalizes to the shape encoding/json decodes into.
func toJSON(v any) (any, error) {
	var raw []byte
	switch x := v.(type) {
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	case json.RawMessage:
		raw = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return out, nil
}

// compareValues orders two normalized values of the same kind.
func compareValues(kind Kind, a, b any) (int, error) {
	switch kind {
	case KindString:
		return strings.Compare(a.(string), b.(string)), nil
	case KindInt:
		x, y := a.(int64), b.(int64)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case KindFloat:
		x, y := a.(float64), b.(float64)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case KindDecimal:
		return a.(decimal.Decimal).Cmp(b.(decimal.Decimal)), nil
	case KindBool:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		}
		return 1, nil
	case KindTime:
		return a.(time.Time).Compare(b.(time.Time)), nil
	}
	return 0, fmt.Errorf("%s values are not comparable", kind)
}

func equalValues(kind Kind, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, err := compareValues(kind, a, b)
	return err == nil && c == 0
}
