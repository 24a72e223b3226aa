package tenant

import (
	"context"
	"errors"
	"testing"

	"portal-data/internal/domain"
	"portal-data/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeChecker) CheckIsolation(_ context.Context, _ string) (bool, error) {
	f.calls++
	return f.ok, f.err
}

func TestContext_ScopeWithoutTenant(t *testing.T) {
	c := NewContext(query.NewMemoryStore(), &fakeChecker{ok: true}, nil)

	_, err := c.Scope(context.Background())
	require.ErrorIs(t, err, query.ErrTenantNotResolved)

	c.SetCurrentTenant(&domain.Tenant{Subdomain: "noid"})
	assert.Nil(t, c.CurrentTenant())
	_, err = c.Scope(context.Background())
	require.ErrorIs(t, err, query.ErrTenantNotResolved)
}

func TestContext_ResolveUnknownClearsTenant(t *testing.T) {
	ctx := context.Background()
	c := NewContext(query.NewMemoryStore(), &fakeChecker{ok: true}, nil)
	r := NewMemoryResolver(domain.Tenant{ID: "t-acme", Subdomain: "acme"})

	_, err := c.Resolve(ctx, r, "acme")
	require.NoError(t, err)
	require.NotNil(t, c.CurrentTenant())
	assert.False(t, c.Loading())

	_, err = c.Resolve(ctx, r, "ghost")
	require.ErrorIs(t, err, ErrUnknownTenant)
	assert.Nil(t, c.CurrentTenant())
	_, err = c.Scope(ctx)
	require.ErrorIs(t, err, query.ErrTenantNotResolved)
}

func TestContext_LeaseCarriesGeneration(t *testing.T) {
	ctx := context.Background()
	checker := &fakeChecker{ok: true}
	c := NewContext(query.NewMemoryStore(), checker, nil)

	gen := c.SetCurrentTenant(&domain.Tenant{ID: "t-acme", Subdomain: "acme"})
	lease, err := c.Scope(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen, lease.Generation)
	assert.Equal(t, "t-acme", lease.TenantID())
	assert.True(t, c.IsCurrent(lease.Generation))

	_, err = c.Scope(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, checker.calls, "isolation is checked once per generation")

	c.SetCurrentTenant(&domain.Tenant{ID: "t-beta", Subdomain: "beta"})
	assert.False(t, c.IsCurrent(lease.Generation))
	assert.Equal(t, "t-acme", lease.TenantID(), "an issued lease is never rescoped")

	next, err := c.Scope(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-beta", next.TenantID())
	assert.Equal(t, 2, checker.calls)
}

func TestContext_FailedIsolationIsSticky(t *testing.T) {
	ctx := context.Background()
	checker := &fakeChecker{ok: false}
	c := NewContext(query.NewMemoryStore(), checker, nil)
	c.SetCurrentTenant(&domain.Tenant{ID: "t-acme"})

	for i := 0; i < 3; i++ {
		_, err := c.Scope(ctx)
		require.ErrorIs(t, err, query.ErrIsolationCheckFailed)
	}
	assert.Equal(t, 1, checker.calls)
	assert.True(t, c.Blocked())

	checker.ok = true
	c.SetCurrentTenant(&domain.Tenant{ID: "t-acme"})
	assert.False(t, c.Blocked())
	_, err := c.Scope(ctx)
	require.NoError(t, err)
}

func TestContext_ProbeErrorRetries(t *testing.T) {
	ctx := context.Background()
	checker := &fakeChecker{err: errors.New("connection refused")}
	c := NewContext(query.NewMemoryStore(), checker, nil)
	c.SetCurrentTenant(&domain.Tenant{ID: "t-acme"})

	_, err := c.Scope(ctx)
	require.ErrorIs(t, err, query.ErrIsolationCheckFailed)
	assert.False(t, c.Blocked())

	checker.err, checker.ok = nil, true
	_, err = c.Scope(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, checker.calls)
}

func TestContext_NilCheckerFailsClosed(t *testing.T) {
	c := NewContext(query.NewMemoryStore(), nil, nil)
	c.SetCurrentTenant(&domain.Tenant{ID: "t-acme"})
	_, err := c.Scope(context.Background())
	require.ErrorIs(t, err, query.ErrIsolationCheckFailed)
}
