package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"portal-data/internal/query"
	"portal-data/internal/tenant"

	"go.uber.org/zap"
)

// Family names one entity collection on the surface.
type Family string

const (
	FamilyProducts           Family = "products"
	FamilyDistributors       Family = "distributors"
	FamilyOrders             Family = "orders"
	FamilyInventoryBatches   Family = "inventory_batches"
	FamilyTerritories        Family = "territories"
	FamilyPerformanceMetrics Family = "performance_metrics"
	FamilyShipments          Family = "shipments"
)

// Families lists every family in load order.
func Families() []Family {
	return []Family{
		FamilyProducts, FamilyDistributors, FamilyOrders, FamilyInventoryBatches,
		FamilyTerritories, FamilyPerformanceMetrics, FamilyShipments,
	}
}

var (
	// ErrStale is returned for a response that arrived after the tenant changed; its data was dropped.
	ErrStale         = errors.New("tenant changed while request was in flight")
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record changed concurrently")
	ErrUnknownFamily = errors.New("unknown data family")
)

// collection is the in-memory state of one family. It is only mutated by its
// own fetch and write paths, and every result is tagged with the tenant
// generation it was fetched under.
type collection[T any] struct {
	family Family
	tc     *tenant.Context
	logger *zap.Logger
	query  func(ctx context.Context, l *tenant.Lease) ([]T, error)

	mu      sync.RWMutex
	gen     uint64
	items   []T
	seq     uint64
	applied uint64
	loading bool
	err     string
}

func newCollection[T any](family Family, tc *tenant.Context, logger *zap.Logger,
	q func(ctx context.Context, l *tenant.Lease) ([]T, error)) *collection[T] {
	return &collection[T]{
		family: family,
		tc:     tc,
		logger: logger.With(zap.String("family", string(family))),
		query:  q,
	}
}

// fetch reloads the collection for the active tenant.
func (c *collection[T]) fetch(ctx context.Context) ([]T, error) {
	lease, err := c.tc.Scope(ctx)
	if err != nil {
		return nil, err
	}
	return c.refetch(ctx, lease)
}

// refetch reloads under an existing lease. The newest request of the current
// generation wins; anything issued under an older generation is discarded.
func (c *collection[T]) refetch(ctx context.Context, lease *tenant.Lease) ([]T, error) {
	c.mu.Lock()
	if c.gen != lease.Generation {
		if lease.Generation < c.gen {
			c.mu.Unlock()
			return nil, ErrStale
		}
		c.resetLocked(lease.Generation)
	}
	c.seq++
	seq := c.seq
	c.loading = true
	c.mu.Unlock()

	items, err := c.query(ctx, lease)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != lease.Generation || !c.tc.IsCurrent(lease.Generation) {
		c.logger.Debug("discarding stale response", zap.String("tenant_id", lease.TenantID()))
		return nil, ErrStale
	}
	if seq == c.seq {
		c.loading = false
	}
	if seq < c.applied {
		return items, err
	}
	if err != nil {
		c.err = fmt.Sprintf("failed to load %s: %v", c.family, err)
		c.logger.Warn("fetch failed", zap.String("tenant_id", lease.TenantID()), zap.Error(err))
		return nil, err
	}
	c.applied = seq
	c.items = items
	c.err = ""
	return items, nil
}

// write runs a scoped write and then refetches under the same lease, so a
// successful return always leaves the collection current. A partial write is
// refetched too, since part of it is stored. A stored write whose refetch
// fails returns a RefetchError; the failure is kept as a load error.
func (c *collection[T]) write(ctx context.Context, fn func(l *tenant.Lease) error) error {
	lease, err := c.tc.Scope(ctx)
	if err != nil {
		return err
	}
	werr := fn(lease)
	var partial *PartialWriteError
	if werr != nil && !errors.As(werr, &partial) {
		c.fail(lease, werr)
		return werr
	}
	if _, err := c.refetch(ctx, lease); err != nil {
		if werr != nil {
			c.fail(lease, werr)
			return werr
		}
		return &RefetchError{Family: c.family, Err: err}
	}
	if werr != nil {
		c.fail(lease, werr)
	}
	return werr
}

func (c *collection[T]) fail(lease *tenant.Lease, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lease.Generation < c.gen {
		return
	}
	if lease.Generation > c.gen {
		c.resetLocked(lease.Generation)
	}
	c.err = fmt.Sprintf("failed to write %s: %v", c.family, err)
	c.logger.Warn("write failed", zap.String("tenant_id", lease.TenantID()), zap.Error(err))
}

func (c *collection[T]) reset(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(gen)
}

func (c *collection[T]) resetLocked(gen uint64) {
	c.gen = gen
	c.items = nil
	c.seq = 0
	c.applied = 0
	c.loading = false
	c.err = ""
}

// snapshot returns a copy of the state if it belongs to generation gen.
func (c *collection[T]) snapshot(gen uint64) (items []T, loading bool, errMsg string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.gen != gen {
		return []T{}, false, ""
	}
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out, c.loading, c.err
}

// first loads one row by id within the lease's tenant.
func first(ctx context.Context, l *tenant.Lease, schema *query.Schema, id string) (query.Record, error) {
	rec, ok, err := l.Select(schema).Where(query.Eq{Col: query.ColumnID, Value: id}).First(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, schema.Table, id)
	}
	return rec, nil
}
