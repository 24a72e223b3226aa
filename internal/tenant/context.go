package tenant

import (
	"context"
	"fmt"
	"sync"

	"portal-data/internal/domain"
	"portal-data/internal/query"

	"go.uber.org/zap"
)

// IsolationChecker verifies that the store actually enforces tenant scoping.
type IsolationChecker interface {
	CheckIsolation(ctx context.Context, tenantID string) (bool, error)
}

type isolationState int

const (
	isolationUnchecked isolationState = iota
	isolationPassed
	isolationFailed
)

// Context holds the tenant of one session. Every change of tenant bumps the
// generation; work started under an older generation must drop its results.
type Context struct {
	store   query.Store
	checker IsolationChecker
	logger  *zap.Logger

	mu         sync.RWMutex
	current    *domain.Tenant
	loading    bool
	generation uint64
	isolation  isolationState
}

// Lease is a tenant-bound query service tagged with the generation it was
// issued under.
type Lease struct {
	*query.Service
	Tenant     domain.Tenant
	Generation uint64
}

// NewContext starts with no tenant. A nil checker makes every Scope fail closed.
func NewContext(store query.Store, checker IsolationChecker, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{store: store, checker: checker, logger: logger}
}

// Resolve looks up subdomain and makes it the current tenant. On failure the
// current tenant is cleared so dependents skip fetching.
func (c *Context) Resolve(ctx context.Context, resolver Resolver, subdomain string) (*domain.Tenant, error) {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	t, err := resolver.ResolveSubdomain(ctx, subdomain)
	if err != nil {
		c.logger.Warn("tenant resolution failed", zap.String("subdomain", subdomain), zap.Error(err))
		c.SetCurrentTenant(nil)
		return nil, err
	}
	c.SetCurrentTenant(t)
	return t, nil
}

// SetCurrentTenant replaces the active tenant and returns the new generation.
// A tenant without an id is treated as none. Isolation must be verified again.
func (c *Context) SetCurrentTenant(t *domain.Tenant) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Valid() {
		cp := *t
		c.current = &cp
	} else {
		c.current = nil
	}
	c.generation++
	c.isolation = isolationUnchecked
	return c.generation
}

// CurrentTenant returns a copy of the active tenant, or nil.
func (c *Context) CurrentTenant() *domain.Tenant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

func (c *Context) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Context) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// IsCurrent reports whether gen is still the active generation.
func (c *Context) IsCurrent(gen uint64) bool {
	return c.Generation() == gen
}

// Blocked reports whether the active tenant failed its isolation check.
func (c *Context) Blocked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current != nil && c.isolation == isolationFailed
}

// Verify runs the isolation check once per generation. A negative result is
// sticky until the tenant is set again; a probe error is not recorded, so the
// next call retries.
func (c *Context) Verify(ctx context.Context) error {
	c.mu.RLock()
	t, gen, state := c.current, c.generation, c.isolation
	c.mu.RUnlock()

	if t == nil {
		return query.ErrTenantNotResolved
	}
	switch state {
	case isolationPassed:
		return nil
	case isolationFailed:
		return query.ErrIsolationCheckFailed
	}
	if c.checker == nil {
		c.record(gen, isolationFailed)
		return query.ErrIsolationCheckFailed
	}

	ok, err := c.checker.CheckIsolation(ctx, t.ID)
	if err != nil {
		c.logger.Error("isolation check errored", zap.String("tenant_id", t.ID), zap.Error(err))
		return fmt.Errorf("%w: %v", query.ErrIsolationCheckFailed, err)
	}
	if !ok {
		c.logger.Error("isolation check failed, blocking tenant session", zap.String("tenant_id", t.ID))
		c.record(gen, isolationFailed)
		return query.ErrIsolationCheckFailed
	}
	c.record(gen, isolationPassed)
	return nil
}

// record stores a check result unless the tenant changed meanwhile.
func (c *Context) record(gen uint64, state isolationState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.isolation = state
	}
}

// Scope verifies isolation and returns a lease on the active tenant.
func (c *Context) Scope(ctx context.Context) (*Lease, error) {
	if err := c.Verify(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil, query.ErrTenantNotResolved
	}
	if c.isolation != isolationPassed {
		// tenant switched while the check ran
		return nil, query.ErrIsolationCheckFailed
	}
	svc, err := query.NewService(c.store, c.current.ID, c.logger)
	if err != nil {
		return nil, err
	}
	return &Lease{Service: svc, Tenant: *c.current, Generation: c.generation}, nil
}
