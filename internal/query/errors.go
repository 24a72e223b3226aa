package query

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotResolved is returned when no tenant is active for a data operation.
	ErrTenantNotResolved = errors.New("tenant not resolved")
	// ErrIsolationCheckFailed blocks all access for a session whose isolation probe failed.
	ErrIsolationCheckFailed = errors.New("tenant isolation check failed")
	ErrUnknownColumn        = errors.New("unknown column")
	// ErrTenantColumn is returned when a caller tries to filter or patch tenant_id directly.
	ErrTenantColumn = errors.New("tenant_id is managed by the scoped query service")
	ErrInvalidFilter = errors.New("invalid filter")
)

type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpProbe  Op = "probe"
)

// Codes carried by StoreError.Code; Postgres errors report the SQLSTATE condition name.
const (
	CodeUniqueViolation = "unique_violation"
	CodeCheckViolation  = "check_violation"
)

// StoreError is a failure reported by the underlying store for one entity operation.
type StoreError struct {
	Entity  string
	Op      Op
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s failed (%s): %s", e.Op, e.Entity, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Op, e.Entity, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsWrite reports whether the failure was a rejected scoped write.
func (e *StoreError) IsWrite() bool {
	return e.Op == OpInsert || e.Op == OpUpdate || e.Op == OpDelete
}

// IsUniqueViolation reports whether err is a store unique-key rejection.
func IsUniqueViolation(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == CodeUniqueViolation
}

func storeError(entity string, op Op, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Entity: entity, Op: op, Message: err.Error(), Err: err}
}
