package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"portal-data/internal/dataset"
	"portal-data/internal/demo"
	"portal-data/internal/domain"
	"portal-data/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// switchableStore misbehaves while its flags are set: leak serves acme rows to
// every tenant, failProducts breaks full product reads.
type switchableStore struct {
	*query.MemoryStore
	leak         atomic.Bool
	failProducts atomic.Bool
}

func (s *switchableStore) Select(ctx context.Context, tenantID string, spec query.SelectSpec) ([]query.Record, error) {
	if s.failProducts.Load() && spec.Schema == query.Products && spec.Limit == 0 {
		return nil, errors.New("connection reset by peer")
	}
	if s.leak.Load() {
		spec.Filters = nil
		return s.MemoryStore.Select(ctx, demo.AcmeTenantID, spec)
	}
	return s.MemoryStore.Select(ctx, tenantID, spec)
}

func TestSessions_BlockedTenantIsResolvedAgain(t *testing.T) {
	mem, resolver, err := demo.NewMockDataProvider(context.Background(), zap.NewNop())
	require.NoError(t, err)
	store := &switchableStore{MemoryStore: mem}
	store.leak.Store(true)
	h, _ := newPortalWith(store, resolver, nil, 0)

	w := call(t, h, http.MethodGet, "/portal/api/v1/surface", "beta", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, decodeResult[dataset.View](t, w).Result.Blocked)

	store.leak.Store(false)
	w = call(t, h, http.MethodGet, "/portal/api/v1/surface", "beta", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeResult[dataset.View](t, w)
	assert.False(t, res.Result.Blocked)
	require.Len(t, res.Result.Products, 2)
	for _, p := range res.Result.Products {
		assert.Equal(t, demo.BetaTenantID, p.TenantID)
	}
}

func TestSessions_ExpiredSessionSeesNewFeatureFlags(t *testing.T) {
	mem, resolver, err := demo.NewMockDataProvider(context.Background(), zap.NewNop())
	require.NoError(t, err)
	market := &fakeMarketplace{}
	h, sessions := newPortalWith(mem, resolver, market, time.Minute)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }

	w := call(t, h, http.MethodPost, "/portal/api/v1/deployments", "beta", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	beta := demo.Tenants()[1]
	beta.FeatureFlags["template_deploy"] = true
	resolver.Put(beta)

	clock = clock.Add(30 * time.Second)
	w = call(t, h, http.MethodPost, "/portal/api/v1/deployments", "beta", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "a live session keeps its descriptor")

	clock = clock.Add(time.Minute)
	w = call(t, h, http.MethodPost, "/portal/api/v1/deployments", "beta", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.Len(t, market.bundles, 1)
	assert.Equal(t, "beta", market.bundles[0].SourceSubdomain)
}

func TestProducts_CreateReportsReloadFailureAsWarning(t *testing.T) {
	mem, resolver, err := demo.NewMockDataProvider(context.Background(), zap.NewNop())
	require.NoError(t, err)
	store := &switchableStore{MemoryStore: mem}
	h, _ := newPortalWith(store, resolver, nil, 0)

	w := call(t, h, http.MethodGet, "/portal/api/v1/surface", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)

	store.failProducts.Store(true)
	w = call(t, h, http.MethodPost, "/portal/api/v1/products", "acme", map[string]any{"name": "Winter Porter"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decodeResult[domain.Product](t, w)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "warning", res.Type)
	assert.NotEmpty(t, res.Result.ID)

	store.failProducts.Store(false)
	w = call(t, h, http.MethodGet, "/portal/api/v1/products", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResult[[]domain.Product](t, w).Result, 4, "the product was stored once")
}

func TestStatusFor_ReloadFailureIsNotRetryable(t *testing.T) {
	err := &dataset.RefetchError{Family: dataset.FamilyProducts, Err: dataset.ErrStale}
	assert.Equal(t, http.StatusAccepted, statusFor(err))
}
