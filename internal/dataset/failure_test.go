package dataset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portal-data/internal/domain"
	"portal-data/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedStore holds full product reads of one tenant until release is closed.
type gatedStore struct {
	*query.MemoryStore
	tenant  string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Select(ctx context.Context, tenantID string, spec query.SelectSpec) ([]query.Record, error) {
	if tenantID == g.tenant && spec.Schema == query.Products && spec.Limit == 0 {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.MemoryStore.Select(ctx, tenantID, spec)
}

// pausingStore holds the first inventory update touching quantity_produced
// until release is closed.
type pausingStore struct {
	*query.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *pausingStore) Update(ctx context.Context, tenantID string, schema *query.Schema, patch query.Record, filters []query.Filter) (int64, error) {
	if _, ok := patch["quantity_produced"]; ok && schema == query.InventoryBatches {
		p.once.Do(func() {
			close(p.entered)
			<-p.release
		})
	}
	return p.MemoryStore.Update(ctx, tenantID, schema, patch, filters)
}

// leakyStore ignores the tenant on reads.
type leakyStore struct {
	*query.MemoryStore
	serve string
}

func (l *leakyStore) Select(ctx context.Context, _ string, spec query.SelectSpec) ([]query.Record, error) {
	spec.Filters = nil
	return l.MemoryStore.Select(ctx, l.serve, spec)
}

// faultyStore fails full reads or inserts of selected tables.
type faultyStore struct {
	*query.MemoryStore
	failSelect   map[string]bool
	failInsert   map[string]bool
	orderClashes int32
}

func (f *faultyStore) Select(ctx context.Context, tenantID string, spec query.SelectSpec) ([]query.Record, error) {
	if f.failSelect[spec.Schema.Table] && spec.Limit == 0 {
		return nil, errors.New("connection reset by peer")
	}
	return f.MemoryStore.Select(ctx, tenantID, spec)
}

func (f *faultyStore) Insert(ctx context.Context, tenantID string, schema *query.Schema, rec query.Record) (query.Record, error) {
	if f.failInsert[schema.Table] {
		return nil, &query.StoreError{Entity: schema.Table, Op: query.OpInsert, Code: "foreign_key_violation", Message: "product does not exist"}
	}
	if schema == query.Orders && atomic.AddInt32(&f.orderClashes, -1) >= 0 {
		return nil, &query.StoreError{Entity: schema.Table, Op: query.OpInsert, Code: query.CodeUniqueViolation, Message: "duplicate order_number"}
	}
	return f.MemoryStore.Insert(ctx, tenantID, schema, rec)
}

func TestSwitchTenant_DiscardsStaleResponse(t *testing.T) {
	ctx := context.Background()
	mem := query.NewMemoryStore()
	require.NoError(t, mem.Seed("acme", query.Products, query.Record{"id": "pa", "name": "Acme Ale", "is_active": true}))
	require.NoError(t, mem.Seed("beta", query.Products, query.Record{"id": "pb", "name": "Beta Bock", "is_active": true}))
	store := &gatedStore{MemoryStore: mem, tenant: "acme", entered: make(chan struct{}, 8), release: make(chan struct{})}
	s := newSurface(t, store, nil)

	s.Tenant().SetCurrentTenant(&domain.Tenant{ID: "acme"})
	done := make(chan error, 1)
	go func() {
		_, err := s.FetchProducts(ctx)
		done <- err
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("acme fetch never reached the store")
	}
	assert.True(t, s.View().Loading)

	activate(t, s, "beta")
	close(store.release)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("acme fetch did not return")
	}

	v := s.View()
	require.Len(t, v.Products, 1)
	assert.Equal(t, "pb", v.Products[0].ID)
	assert.Equal(t, "beta", v.Tenant.ID)
}

func TestSetCurrentTenant_HidesPreviousData(t *testing.T) {
	mem := query.NewMemoryStore()
	require.NoError(t, mem.Seed("acme", query.Products, query.Record{"id": "pa", "name": "Acme Ale", "is_active": true}))
	s := newSurface(t, mem, nil)
	activate(t, s, "acme")
	require.Len(t, s.View().Products, 1)

	s.Tenant().SetCurrentTenant(&domain.Tenant{ID: "beta"})
	assert.Empty(t, s.View().Products, "data of a previous generation is never shown")
}

func TestIsolationFailure_BlocksEveryOperation(t *testing.T) {
	ctx := context.Background()
	mem := query.NewMemoryStore()
	require.NoError(t, mem.Seed("beta", query.Products, query.Record{"id": "pb", "name": "Beta Bock", "is_active": true}))
	s := newSurface(t, &leakyStore{MemoryStore: mem, serve: "beta"}, nil)

	err := s.SwitchTenant(ctx, &domain.Tenant{ID: "acme"})
	require.ErrorIs(t, err, query.ErrIsolationCheckFailed)

	blocked := func(err error) bool {
		return errors.Is(err, query.ErrIsolationCheckFailed) || errors.Is(err, query.ErrTenantNotResolved)
	}
	products, err := s.FetchProducts(ctx)
	assert.True(t, blocked(err))
	assert.Nil(t, products)
	_, err = s.FetchOrders(ctx)
	assert.True(t, blocked(err))
	_, err = s.CreateProduct(ctx, domain.Product{Name: "x"})
	assert.True(t, blocked(err))
	_, err = s.UpdateProduct(ctx, "pb", query.Record{"name": "y"})
	assert.True(t, blocked(err))
	assert.True(t, blocked(s.DeleteProduct(ctx, "pb")))
	_, err = s.AdjustInventory(ctx, "b1", -1)
	assert.True(t, blocked(err))
	assert.True(t, blocked(s.Load(ctx)))

	v := s.View()
	assert.True(t, v.Blocked)
	assert.Empty(t, v.Products)
	assert.Equal(t, query.ErrIsolationCheckFailed.Error(), v.Error)

	rows, err := mem.Select(ctx, "beta", query.SelectSpec{Schema: query.Products})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Beta Bock", rows[0].String("name"), "blocked session never wrote")
}

func TestLoad_PartialFailureKeepsOtherFamilies(t *testing.T) {
	ctx := context.Background()
	mem := query.NewMemoryStore()
	require.NoError(t, mem.Seed("acme", query.Products, query.Record{"id": "p1", "name": "Stout", "is_active": true}))
	require.NoError(t, mem.Seed("acme", query.Territories, query.Record{"id": "t1", "name": "North", "code": "N"}))
	s := newSurface(t, &faultyStore{MemoryStore: mem, failSelect: map[string]bool{"shipments": true}}, nil)

	err := s.SwitchTenant(ctx, &domain.Tenant{ID: "acme"})
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 1)
	assert.Contains(t, agg.Failures, FamilyShipments)

	v := s.View()
	assert.False(t, v.Loading)
	assert.Len(t, v.Products, 1)
	assert.Len(t, v.Territories, 1)
	assert.Empty(t, v.Shipments)
	assert.Contains(t, v.Errors[FamilyShipments], "connection reset")
	assert.Contains(t, v.Error, "failed to load shipments")
}

func TestCreateOrder_ItemFailureIsPartial(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{MemoryStore: query.NewMemoryStore(), failInsert: map[string]bool{"order_items": true}}
	s := newSurface(t, store, nil)
	activate(t, s, "acme")

	_, err := s.CreateOrder(ctx, OrderInput{DistributorID: "D", Items: []OrderItemInput{{ProductID: "P", Quantity: 1, UnitPrice: dec("3")}}})
	var pw *PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, 0, pw.ItemsWritten)
	assert.Equal(t, 1, pw.ItemsTotal)

	v := s.View()
	require.Len(t, v.Orders, 1, "the stored header is visible so it can be cleaned up")
	assert.Equal(t, pw.OrderID, v.Orders[0].ID)
	assert.NotEmpty(t, v.Errors[FamilyOrders])

	require.NoError(t, s.DeleteOrder(ctx, pw.OrderID))
	assert.Empty(t, s.View().Orders)
}

func TestCreateOrder_RetriesOrderNumberClash(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{MemoryStore: query.NewMemoryStore(), orderClashes: 2}
	s := newSurface(t, store, nil)
	activate(t, s, "acme")

	o, err := s.CreateOrder(ctx, OrderInput{DistributorID: "D", Items: []OrderItemInput{{ProductID: "P", Quantity: 1, UnitPrice: dec("3")}}})
	require.NoError(t, err)
	assert.NotEmpty(t, o.OrderNumber)

	atomic.StoreInt32(&store.orderClashes, orderNumberAttempts)
	_, err = s.CreateOrder(ctx, OrderInput{DistributorID: "D", Items: []OrderItemInput{{ProductID: "P", Quantity: 1, UnitPrice: dec("3")}}})
	require.Error(t, err)
	assert.True(t, query.IsUniqueViolation(err))
	assert.Len(t, s.View().Orders, 1)
}

func TestOrderNumber_Format(t *testing.T) {
	now := time.Date(2026, 7, 4, 23, 59, 0, 0, time.FixedZone("PDT", -7*3600))
	assert.Equal(t, "ORD-20260705-ABC123", OrderNumber(now, "abc123"))
}

func TestUpdateInventoryBatch_ConcurrentAdjustKeepsBounds(t *testing.T) {
	ctx := context.Background()
	store := &pausingStore{MemoryStore: query.NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	s := newSurface(t, store, nil)
	activate(t, s, "acme")

	b, err := s.CreateInventoryBatch(ctx, domain.InventoryBatch{ProductID: "P", BatchNumber: "B-1", QuantityProduced: 100, QuantityAvailable: 50})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.UpdateInventoryBatch(ctx, b.ID, query.Record{"quantity_produced": 60})
		done <- err
	}()
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("batch update never reached the store")
	}

	adjusted, err := s.AdjustInventory(ctx, b.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(90), adjusted.QuantityAvailable)
	close(store.release)

	select {
	case err := <-done:
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve, "the update is checked again against the adjusted row")
	case <-time.After(2 * time.Second):
		t.Fatal("batch update did not return")
	}

	got, err := s.FetchInventoryBatches(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].QuantityProduced)
	assert.Equal(t, int64(90), got[0].QuantityAvailable)
	assert.LessOrEqual(t, got[0].QuantityAvailable, got[0].QuantityProduced)
}

func TestCreateProduct_ReloadFailureKeepsTheWrite(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{MemoryStore: query.NewMemoryStore(), failSelect: map[string]bool{}}
	s := newSurface(t, store, nil)
	activate(t, s, "acme")

	store.failSelect["products"] = true
	p, err := s.CreateProduct(ctx, domain.Product{Name: "Porter"})
	var re *RefetchError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, FamilyProducts, re.Family)
	assert.NotEmpty(t, p.ID, "the stored row is returned with the error")
	assert.Contains(t, s.View().Errors[FamilyProducts], "failed to load")
	assert.NotContains(t, s.View().Errors[FamilyProducts], "failed to write")

	store.failSelect["products"] = false
	got, err := s.FetchProducts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "the write happened exactly once")
	assert.Equal(t, p.ID, got[0].ID)
	assert.Empty(t, s.View().Errors[FamilyProducts])
}
