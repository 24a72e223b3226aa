package demo

import (
	"context"
	"testing"

	"portal-data/internal/dataset"
	"portal-data/internal/guard"
	"portal-data/internal/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMockDataProvider_SeedsIsolatedTenants(t *testing.T) {
	ctx := context.Background()
	store, resolver, err := NewMockDataProvider(ctx, zap.NewNop())
	require.NoError(t, err)

	tc := tenant.NewContext(store, guard.New(store, nil), nil)
	s := dataset.New(tc, nil, nil)

	require.NoError(t, s.ResolveAndLoad(ctx, resolver, "acme"))
	v := s.View()
	assert.Len(t, v.Products, 3)
	assert.Len(t, v.InventoryBatches, 3)
	require.Len(t, v.Orders, 1)
	assert.Len(t, v.Orders[0].Items, 1)
	assert.Equal(t, "109.20", v.Orders[0].TotalAmount.StringFixed(2))
	for _, p := range v.Products {
		assert.Equal(t, AcmeTenantID, p.TenantID)
	}

	require.NoError(t, s.ResolveAndLoad(ctx, resolver, "beta"))
	v = s.View()
	assert.Len(t, v.Products, 2)
	for _, p := range v.Products {
		assert.Equal(t, BetaTenantID, p.TenantID)
	}
	assert.Empty(t, v.Error)
}
