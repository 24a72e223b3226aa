package demo

import (
	"context"
	"fmt"
	"time"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"

	"go.uber.org/zap"
)

// Demo tenant ids are fixed so links into the mock portal stay stable.
const (
	AcmeTenantID = "6f1c2a9e-4b7d-4c1e-9a51-0c3d2e8f7a10"
	BetaTenantID = "b2e47d01-93a8-4f6c-8d2e-5a7f1c0b9e42"
)

func Tenants() []domain.Tenant {
	created := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	return []domain.Tenant{
		{
			ID: AcmeTenantID, Subdomain: "acme", Name: "Acme Craft Brewing",
			ConsciousnessLevel: 0.72,
			FeatureFlags:       map[string]bool{"crm": true, "template_deploy": true, "export": true},
			CreatedAt:          created,
		},
		{
			ID: BetaTenantID, Subdomain: "beta", Name: "Beta Botanicals",
			ConsciousnessLevel: 0.4,
			FeatureFlags:       map[string]bool{"crm": false, "template_deploy": false, "export": true},
			CreatedAt:          created,
		},
	}
}

type productSeed struct {
	name, category      string
	wholesale, retail   string
	abv                 float64
	volume              int64
	tags                []string
	produced, available int64
}

var catalog = map[string][]productSeed{
	"acme": {
		{"Hazy Horizon IPA", "beer", "2.10", "4.50", 6.8, 473, []string{"ipa", "hazy"}, 2400, 1820},
		{"Midnight Oat Stout", "beer", "2.40", "5.25", 7.2, 473, []string{"stout", "nitro"}, 1200, 0},
		{"Orchard Dry Cider", "cider", "1.90", "4.00", 5.5, 355, []string{"cider", "gluten-free"}, 1800, 640},
	},
	"beta": {
		{"Juniper Field Gin", "spirits", "18.00", "39.00", 42.0, 750, []string{"gin"}, 600, 410},
		{"Hibiscus Tonic", "mixer", "0.90", "2.25", 0, 200, []string{"non-alcoholic"}, 5000, 5000},
	},
}

// NewMockDataProvider returns an in-memory store seeded with the demo tenants
// and a resolver for their subdomains.
func NewMockDataProvider(ctx context.Context, logger *zap.Logger) (*query.MemoryStore, *tenant.MemoryResolver, error) {
	store := query.NewMemoryStore()
	tenants := Tenants()
	for _, t := range tenants {
		if err := SeedTenant(ctx, store, t, logger); err != nil {
			return nil, nil, err
		}
	}
	return store, tenant.NewMemoryResolver(tenants...), nil
}

// SeedTenant writes the demo data set for t through a service scoped to it,
// so it works against any store.
func SeedTenant(ctx context.Context, store query.Store, t domain.Tenant, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := query.NewService(store, t.ID, logger)
	if err != nil {
		return err
	}
	insert := func(schema *query.Schema, rec query.Record) (string, error) {
		out, err := svc.Insert(ctx, schema, rec)
		if err != nil {
			return "", fmt.Errorf("failed to seed %s for %s: %w", schema.Table, t.Subdomain, err)
		}
		return out.String(query.ColumnID), nil
	}

	code := map[string]string{"acme": "PNW", "beta": "NE"}[t.Subdomain]
	if code == "" {
		code = "HQ"
	}
	territoryID, err := insert(query.Territories, query.Record{
		"name": t.Name + " Home Territory", "code": code,
		"bounds":               map[string]any{"type": "region", "states": []string{"WA", "OR"}},
		"assigned_rep_id":      "rep-" + t.Subdomain,
		"target_revenue":       "250000.00",
		"commission_structure": map[string]any{"base_rate": 0.05, "bonus_threshold": 200000},
		"is_active":            true,
	})
	if err != nil {
		return err
	}
	distributorID, err := insert(query.Distributors, query.Record{
		"company_name": "Cascade Beverage Supply", "contact_name": "Jordan Lee",
		"email": "orders@cascade.example", "phone": "+1-206-555-0142",
		"territory_id": territoryID, "tier": "gold", "status": domain.DistributorActive,
		"address": map[string]any{"city": "Seattle", "country": "US"},
	})
	if err != nil {
		return err
	}

	production := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	var productIDs []string
	for i, p := range catalog[t.Subdomain] {
		id, err := insert(query.Products, query.Record{
			"name": p.name, "description": p.name + " from the " + t.Name + " range",
			"wholesale_price": p.wholesale, "retail_price": p.retail, "category": p.category,
			"tags": p.tags, "abv": p.abv, "volume_ml": p.volume,
			"attributes": map[string]any{"seasonal": i%2 == 1}, "is_active": true,
		})
		if err != nil {
			return err
		}
		productIDs = append(productIDs, id)
		status := domain.BatchActive
		if p.available == 0 {
			status = domain.BatchDepleted
		}
		if _, err := insert(query.InventoryBatches, query.Record{
			"product_id": id, "batch_number": fmt.Sprintf("%s-%s-%03d", code, production.Format("0601"), i+1),
			"production_date": production, "expiry_date": production.AddDate(1, 0, 0),
			"quantity_produced": p.produced, "quantity_available": p.available,
			"status": status, "storage_location": "Warehouse A",
		}); err != nil {
			return err
		}
	}
	if len(productIDs) == 0 {
		return nil
	}

	orderID, err := insert(query.Orders, query.Record{
		"order_number": "ORD-20260301-" + map[string]string{"acme": "A0C3E1", "beta": "B7D2F0"}[t.Subdomain],
		"distributor_id": distributorID, "status": domain.OrderShipped,
		"subtotal": "90.00", "discount_amount": "0", "tax_amount": "7.20", "shipping_amount": "12.00",
		"total_amount": "109.20",
	})
	if err != nil {
		return err
	}
	if _, err := insert(query.OrderItems, query.Record{
		"order_id": orderID, "product_id": productIDs[0], "quantity": 20, "unit_price": "4.50", "line_total": "90.00",
	}); err != nil {
		return err
	}
	shipped := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	if _, err := insert(query.Shipments, query.Record{
		"order_id": orderID, "carrier": "UPS", "tracking_number": "1Z999AA10123456784",
		"status": domain.ShipmentInTransit, "destination": map[string]any{"city": "Seattle"},
		"shipped_at": shipped,
	}); err != nil {
		return err
	}
	if _, err := insert(query.PerformanceMetrics, query.Record{
		"metric_type": "sales", "subject_type": "distributor", "subject_id": distributorID,
		"metric_name": "monthly_revenue", "metric_value": 109.20,
		"period_start": time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		"period_end":   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		"rating":       "on_track",
	}); err != nil {
		return err
	}
	logger.Info("demo data seeded", zap.String("tenant", t.Subdomain))
	return nil
}
