package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"portal-data/internal/domain"
	"portal-data/internal/events"
	"portal-data/internal/query"
	"portal-data/internal/tenant"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Surface is everything presentation code gets: per-family data, loading and
// error state, refetch functions and the write operations. It reaches the
// store only through leases from its tenant context.
type Surface struct {
	tc        *tenant.Context
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	products     *collection[domain.Product]
	distributors *collection[domain.Distributor]
	orders       *collection[OrderWithItems]
	inventory    *collection[domain.InventoryBatch]
	territories  *collection[domain.Territory]
	metrics      *collection[domain.PerformanceMetric]
	shipments    *collection[domain.Shipment]

	mu      sync.Mutex
	loading int
}

// View is a consistent snapshot of the surface for the active tenant.
type View struct {
	Tenant             *domain.Tenant             `json:"tenant"`
	Products           []domain.Product           `json:"products"`
	Distributors       []domain.Distributor       `json:"distributors"`
	Orders             []OrderWithItems           `json:"orders"`
	InventoryBatches   []domain.InventoryBatch    `json:"inventory_batches"`
	Territories        []domain.Territory         `json:"territories"`
	PerformanceMetrics []domain.PerformanceMetric `json:"performance_metrics"`
	Shipments          []domain.Shipment          `json:"shipments"`
	Loading            bool                       `json:"loading"`
	Blocked            bool                       `json:"blocked"`
	Error              string                     `json:"error,omitempty"`
	Errors             map[Family]string          `json:"errors,omitempty"`
}

func New(tc *tenant.Context, publisher events.Publisher, logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &Surface{
		tc:        tc,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.products = newCollection(FamilyProducts, tc, logger, queryProducts)
	s.distributors = newCollection(FamilyDistributors, tc, logger, queryDistributors)
	s.orders = newCollection(FamilyOrders, tc, logger, queryOrders)
	s.inventory = newCollection(FamilyInventoryBatches, tc, logger, queryInventory)
	s.territories = newCollection(FamilyTerritories, tc, logger, queryTerritories)
	s.metrics = newCollection(FamilyPerformanceMetrics, tc, logger, queryMetrics)
	s.shipments = newCollection(FamilyShipments, tc, logger, queryShipments)
	return s
}

func (s *Surface) Tenant() *tenant.Context { return s.tc }

// Refetch returns the reload function of every family.
func (s *Surface) Refetch() map[Family]func(context.Context) error {
	return map[Family]func(context.Context) error{
		FamilyProducts:           func(ctx context.Context) error { _, err := s.FetchProducts(ctx); return err },
		FamilyDistributors:       func(ctx context.Context) error { _, err := s.FetchDistributors(ctx); return err },
		FamilyOrders:             func(ctx context.Context) error { _, err := s.FetchOrders(ctx); return err },
		FamilyInventoryBatches:   func(ctx context.Context) error { _, err := s.FetchInventoryBatches(ctx); return err },
		FamilyTerritories:        func(ctx context.Context) error { _, err := s.FetchTerritories(ctx); return err },
		FamilyPerformanceMetrics: func(ctx context.Context) error { _, err := s.FetchPerformanceMetrics(ctx); return err },
		FamilyShipments:          func(ctx context.Context) error { _, err := s.FetchShipments(ctx); return err },
	}
}

// RefetchFamily reloads one family by name.
func (s *Surface) RefetchFamily(ctx context.Context, family Family) error {
	fn, ok := s.Refetch()[family]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
	return fn(ctx)
}

// Load fetches every family in parallel. It returns once all fetches have
// settled; failed families are reported in an AggregateError while the others
// stay usable. Without a tenant it does nothing.
func (s *Surface) Load(ctx context.Context) error {
	if err := s.tc.Verify(ctx); err != nil {
		if errors.Is(err, query.ErrTenantNotResolved) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = map[Family]error{}
	)
	for family, fn := range s.Refetch() {
		family, fn := family, fn
		g.Go(func() error {
			err := fn(ctx)
			if err == nil || errors.Is(err, ErrStale) || errors.Is(err, query.ErrTenantNotResolved) {
				return nil
			}
			mu.Lock()
			failures[family] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}
	for _, err := range failures {
		if errors.Is(err, query.ErrIsolationCheckFailed) {
			return query.ErrIsolationCheckFailed
		}
	}
	s.logger.Warn("aggregate load finished with failures", zap.Int("failed_families", len(failures)))
	return &AggregateError{Failures: failures}
}

// SwitchTenant makes t active, drops every collection's data and loads the
// new tenant. Responses still in flight for the previous tenant are discarded.
func (s *Surface) SwitchTenant(ctx context.Context, t *domain.Tenant) error {
	gen := s.tc.SetCurrentTenant(t)
	s.resetAll(gen)
	return s.Load(ctx)
}

// ResolveAndLoad resolves subdomain through r and loads its data.
func (s *Surface) ResolveAndLoad(ctx context.Context, r tenant.Resolver, subdomain string) error {
	if _, err := s.tc.Resolve(ctx, r, subdomain); err != nil {
		s.resetAll(s.tc.Generation())
		return err
	}
	s.resetAll(s.tc.Generation())
	return s.Load(ctx)
}

func (s *Surface) resetAll(gen uint64) {
	s.products.reset(gen)
	s.distributors.reset(gen)
	s.orders.reset(gen)
	s.inventory.reset(gen)
	s.territories.reset(gen)
	s.metrics.reset(gen)
	s.shipments.reset(gen)
}

// Loading is true while the tenant resolves, an aggregate load runs, or any
// family of the current tenant is fetching.
func (s *Surface) Loading() bool {
	return s.View().Loading
}

// View snapshots the surface. Only data fetched under the current tenant
// generation is included; a blocked session shows no data at all.
func (s *Surface) View() View {
	gen := s.tc.Generation()
	v := View{Tenant: s.tc.CurrentTenant()}

	if s.tc.Blocked() {
		v.Blocked = true
		v.Error = query.ErrIsolationCheckFailed.Error()
		v.Products = []domain.Product{}
		v.Distributors = []domain.Distributor{}
		v.Orders = []OrderWithItems{}
		v.InventoryBatches = []domain.InventoryBatch{}
		v.Territories = []domain.Territory{}
		v.PerformanceMetrics = []domain.PerformanceMetric{}
		v.Shipments = []domain.Shipment{}
		return v
	}

	errs := map[Family]string{}
	loading := s.tc.Loading()
	note := func(f Family, l bool, e string) {
		loading = loading || l
		if e != "" {
			errs[f] = e
		}
	}
	var (
		l bool
		e string
	)
	v.Products, l, e = s.products.snapshot(gen)
	note(FamilyProducts, l, e)
	v.Distributors, l, e = s.distributors.snapshot(gen)
	note(FamilyDistributors, l, e)
	v.Orders, l, e = s.orders.snapshot(gen)
	note(FamilyOrders, l, e)
	v.InventoryBatches, l, e = s.inventory.snapshot(gen)
	note(FamilyInventoryBatches, l, e)
	v.Territories, l, e = s.territories.snapshot(gen)
	note(FamilyTerritories, l, e)
	v.PerformanceMetrics, l, e = s.metrics.snapshot(gen)
	note(FamilyPerformanceMetrics, l, e)
	v.Shipments, l, e = s.shipments.snapshot(gen)
	note(FamilyShipments, l, e)

	s.mu.Lock()
	v.Loading = loading || s.loading > 0
	s.mu.Unlock()

	if len(errs) > 0 {
		v.Errors = errs
		msgs := make([]string, 0, len(errs))
		for _, m := range errs {
			msgs = append(msgs, m)
		}
		sort.Strings(msgs)
		v.Error = strings.Join(msgs, "; ")
	}
	return v
}

// publish emits a change event. Publishing failures never fail the write.
func (s *Surface) publish(ctx context.Context, l *tenant.Lease, entity *query.Schema, op query.Op, id string) {
	c := events.Change{TenantID: l.TenantID(), Entity: entity.Table, Op: string(op), ID: id, At: s.now()}
	if err := s.publisher.Publish(ctx, c); err != nil {
		s.logger.Warn("change event not published",
			zap.String("tenant_id", c.TenantID), zap.String("entity", c.Entity), zap.Error(err))
	}
}
