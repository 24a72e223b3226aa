package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// PartialWriteError reports an order whose header was stored while some of
// its items were not. The order can be retried item by item or removed with
// DeleteOrder.
type PartialWriteError struct {
	OrderID      string
	OrderNumber  string
	ItemsWritten int
	ItemsTotal   int
	Err          error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("order %s created but only %d of %d items were written: %v",
		e.OrderNumber, e.ItemsWritten, e.ItemsTotal, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// RefetchError reports a write that was stored while the reload that
// follows it failed. Repeating the write would apply it twice.
type RefetchError struct {
	Family Family
	Err    error
}

func (e *RefetchError) Error() string {
	return fmt.Sprintf("%s saved but reload failed: %v", e.Family, e.Err)
}

func (e *RefetchError) Unwrap() error { return e.Err }

// AggregateError lists the families that failed during an aggregate load.
// The other families loaded normally.
type AggregateError struct {
	Failures map[Family]error
}

func (e *AggregateError) Error() string {
	families := make([]string, 0, len(e.Failures))
	for f := range e.Failures {
		families = append(families, string(f))
	}
	sort.Strings(families)
	parts := make([]string, len(families))
	for i, f := range families {
		parts[i] = fmt.Sprintf("%s: %v", f, e.Failures[Family(f)])
	}
	return "partial load failure: " + strings.Join(parts, "; ")
}
