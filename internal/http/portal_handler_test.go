package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portal-data/internal/dataset"
	"portal-data/internal/demo"
	"portal-data/internal/deploy"
	"portal-data/internal/domain"
	"portal-data/internal/guard"
	"portal-data/internal/query"
	"portal-data/internal/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const baseDomain = "portal.example"

type fakeMarketplace struct {
	bundles []deploy.Bundle
}

func (f *fakeMarketplace) Publish(_ context.Context, b deploy.Bundle) (*deploy.Listing, error) {
	f.bundles = append(f.bundles, b)
	return &deploy.Listing{ListingID: "lst-1", Status: "pending_review"}, nil
}

// leakyStore ignores the tenant on reads and always serves one partition.
type leakyStore struct {
	*query.MemoryStore
	serve string
}

func (l *leakyStore) Select(ctx context.Context, _ string, spec query.SelectSpec) ([]query.Record, error) {
	spec.Filters = nil
	return l.MemoryStore.Select(ctx, l.serve, spec)
}

func newPortal(t *testing.T, store query.Store, publisher BundlePublisher) http.Handler {
	t.Helper()
	_, resolver, err := demo.NewMockDataProvider(context.Background(), zap.NewNop())
	require.NoError(t, err)
	h, _ := newPortalWith(store, resolver, publisher, 0)
	return h
}

func newPortalWith(store query.Store, resolver tenant.Resolver, publisher BundlePublisher, ttl time.Duration) (http.Handler, *Sessions) {
	sessions := NewSessions(store, guard.New(store, nil), resolver, nil, baseDomain, ttl, zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterPortalRoutes(NewPortalHandler(sessions, publisher, zap.NewNop()))
	return router, sessions
}

func newDemoPortal(t *testing.T, publisher BundlePublisher) http.Handler {
	t.Helper()
	store, _, err := demo.NewMockDataProvider(context.Background(), zap.NewNop())
	require.NoError(t, err)
	return newPortal(t, store, publisher)
}

func call(t *testing.T, h http.Handler, method, path, sub string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sub != "" {
		req.Host = sub + "." + baseDomain
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeResult[T any](t *testing.T, w *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var res Result[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return res
}

func TestGetSurface_ScopedToHostTenant(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodGet, "/portal/api/v1/surface", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeResult[dataset.View](t, w)
	assert.Equal(t, ResultSuccess, res.Code)
	require.NotNil(t, res.Result.Tenant)
	assert.Equal(t, "acme", res.Result.Tenant.Subdomain)
	assert.Len(t, res.Result.Products, 3)
	for _, p := range res.Result.Products {
		assert.Equal(t, demo.AcmeTenantID, p.TenantID)
	}

	w = call(t, h, http.MethodGet, "/portal/api/v1/surface?refresh=true", "beta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res = decodeResult[dataset.View](t, w)
	assert.Len(t, res.Result.Products, 2)
	for _, p := range res.Result.Products {
		assert.Equal(t, demo.BetaTenantID, p.TenantID)
	}
}

func TestGetSurface_HeaderOverridesHost(t *testing.T) {
	h := newDemoPortal(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/portal/api/v1/surface", nil)
	req.Host = "localhost:8080"
	req.Header.Set(HeaderTenantSubdomain, "Beta")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	res := decodeResult[dataset.View](t, w)
	assert.Equal(t, "beta", res.Result.Tenant.Subdomain)
}

func TestGetSurface_TenantErrors(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodGet, "/portal/api/v1/surface", "gamma", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ResultError, decodeResult[any](t, w).Code)

	w = call(t, h, http.MethodGet, "/portal/api/v1/surface", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, h, http.MethodDelete, "/portal/api/v1/surface", "acme", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestProducts_CreateListAndForeignUpdate(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodPost, "/portal/api/v1/products", "acme", map[string]any{
		"name": "Saison Du Soleil", "category": "beer", "wholesale_price": "2.20", "retail_price": "4.75",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeResult[domain.Product](t, w).Result
	assert.Equal(t, demo.AcmeTenantID, created.TenantID)
	assert.True(t, created.IsActive)

	w = call(t, h, http.MethodGet, "/portal/api/v1/products", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResult[[]domain.Product](t, w).Result, 4)

	w = call(t, h, http.MethodPut, "/portal/api/v1/products/"+created.ID, "beta", map[string]any{"name": "Hijacked"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, h, http.MethodPatch, "/portal/api/v1/products/"+created.ID, "acme", map[string]any{"retail_price": "4.95"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "4.95", decodeResult[domain.Product](t, w).Result.RetailPrice.StringFixed(2))

	w = call(t, h, http.MethodPut, "/portal/api/v1/products/"+created.ID, "acme", map[string]any{"tenant_id": demo.BetaTenantID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, h, http.MethodDelete, "/portal/api/v1/products/"+created.ID, "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = call(t, h, http.MethodGet, "/portal/api/v1/products", "acme", nil)
	assert.Len(t, decodeResult[[]domain.Product](t, w).Result, 3)
}

func TestPerformanceMetrics_HaveNoItemRoutes(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodGet, "/portal/api/v1/performance-metrics", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	metrics := decodeResult[[]domain.PerformanceMetric](t, w).Result
	require.Len(t, metrics, 1)

	w = call(t, h, http.MethodDelete, "/portal/api/v1/performance-metrics/"+metrics[0].ID, "acme", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestOrders_CreateAndStatus(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodGet, "/portal/api/v1/orders", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decodeResult[[]dataset.OrderWithItems](t, w).Result
	require.Len(t, orders, 1)
	seeded := orders[0]
	require.Equal(t, domain.OrderShipped, seeded.Status)

	w = call(t, h, http.MethodPut, "/portal/api/v1/orders/"+seeded.ID+"/status", "acme", map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, h, http.MethodPut, "/portal/api/v1/orders/"+seeded.ID+"/status", "acme", map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.OrderDelivered, decodeResult[domain.Order](t, w).Result.Status)

	w = call(t, h, http.MethodPost, "/portal/api/v1/orders/"+seeded.ID+"/status", "acme", map[string]string{"status": "delivered"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = call(t, h, http.MethodPost, "/portal/api/v1/orders", "acme", map[string]any{
		"distributor_id": seeded.DistributorID,
		"items":          []map[string]any{{"product_id": seeded.Items[0].ProductID, "quantity": 3, "unit_price": "4.50"}},
		"tax_amount":     "1.08",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeResult[dataset.OrderWithItems](t, w).Result
	assert.Equal(t, "14.58", created.TotalAmount.StringFixed(2))
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{6}$`, created.OrderNumber)

	w = call(t, h, http.MethodDelete, "/portal/api/v1/orders/"+created.ID, "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = call(t, h, http.MethodDelete, "/portal/api/v1/orders/"+created.ID, "acme", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInventory_Adjust(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodGet, "/portal/api/v1/inventory-batches", "beta", nil)
	require.Equal(t, http.StatusOK, w.Code)
	batches := decodeResult[[]domain.InventoryBatch](t, w).Result
	require.NotEmpty(t, batches)
	b := batches[0]

	w = call(t, h, http.MethodPost, "/portal/api/v1/inventory-batches/"+b.ID+"/adjust", "beta",
		map[string]int64{"delta": -(b.QuantityAvailable + 1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, h, http.MethodPost, "/portal/api/v1/inventory-batches/"+b.ID+"/adjust", "beta",
		map[string]int64{"delta": -b.QuantityAvailable})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	adjusted := decodeResult[domain.InventoryBatch](t, w).Result
	assert.Equal(t, int64(0), adjusted.QuantityAvailable)
	assert.Equal(t, domain.BatchDepleted, adjusted.Status)

	w = call(t, h, http.MethodPost, "/portal/api/v1/inventory-batches/"+b.ID+"/adjust", "acme",
		map[string]int64{"delta": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefetch(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodPost, "/portal/api/v1/refetch/territories", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResult[dataset.View](t, w).Result.Territories, 1)

	w = call(t, h, http.MethodPost, "/portal/api/v1/refetch/leads", "acme", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport_OrdersWorkbook(t *testing.T) {
	h := newDemoPortal(t, nil)

	w := call(t, h, http.MethodGet, "/portal/api/v1/export/orders", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "acme_orders_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ORD-20260301-A0C3E1", rows[1][0])
	assert.Equal(t, "Hazy Horizon IPA", rows[1][4])

	w = call(t, h, http.MethodGet, "/portal/api/v1/export/leads", "acme", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeploy_GatedByFeatureFlag(t *testing.T) {
	market := &fakeMarketplace{}
	h := newDemoPortal(t, market)

	w := call(t, h, http.MethodPost, "/portal/api/v1/deployments", "beta", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, market.bundles)

	w = call(t, h, http.MethodPost, "/portal/api/v1/deployments", "acme", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "lst-1", decodeResult[deploy.Listing](t, w).Result.ListingID)
	require.Len(t, market.bundles, 1)
	assert.Equal(t, "acme", market.bundles[0].SourceSubdomain)
	assert.Len(t, market.bundles[0].Catalog, 3)
}

func TestDeploy_WithoutMarketplace(t *testing.T) {
	h := newDemoPortal(t, nil)
	w := call(t, h, http.MethodPost, "/portal/api/v1/deployments", "acme", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIsolationFailure_Returns403(t *testing.T) {
	mem, _, err := demo.NewMockDataProvider(context.Background(), zap.NewNop())
	require.NoError(t, err)
	h := newPortal(t, &leakyStore{MemoryStore: mem, serve: demo.AcmeTenantID}, nil)

	w := call(t, h, http.MethodGet, "/portal/api/v1/surface", "beta", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	res := decodeResult[dataset.View](t, w)
	assert.True(t, res.Result.Blocked)
	assert.Empty(t, res.Result.Products)

	w = call(t, h, http.MethodGet, "/portal/api/v1/products", "beta", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "Hazy Horizon IPA")
}
