package domain

import "fmt"

// ValidationError reports an entity field that violates a domain rule.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s.%s: %s", e.Entity, e.Field, e.Reason)
}

func invalid(entity, field, format string, args ...any) error {
	return &ValidationError{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}
