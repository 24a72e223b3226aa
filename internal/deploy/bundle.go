package deploy

import (
	"time"

	"portal-data/internal/dataset"
	"portal-data/internal/domain"

	"github.com/shopspring/decimal"
)

// BundleVersion is bumped whenever the bundle layout changes.
const BundleVersion = "2026-01"

// FeatureFlag must be enabled on a tenant before its bundle may be published.
const FeatureFlag = "template_deploy"

// Bundle is the portable configuration of one tenant, listed on the
// marketplace so another merchant can start from it. It carries no orders,
// distributors or metrics.
type Bundle struct {
	Version            string              `json:"version"`
	SourceSubdomain    string              `json:"source_subdomain"`
	Name               string              `json:"name"`
	ConsciousnessLevel float64             `json:"consciousness_level"`
	FeatureFlags       map[string]bool     `json:"feature_flags"`
	Catalog            []ProductTemplate   `json:"catalog"`
	Territories        []TerritoryTemplate `json:"territories"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

type ProductTemplate struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	Tags           []string        `json:"tags"`
	ABV            float64         `json:"abv"`
	VolumeML       int64           `json:"volume_ml"`
}

type TerritoryTemplate struct {
	Name                string          `json:"name"`
	Code                string          `json:"code"`
	Bounds              map[string]any  `json:"bounds"`
	TargetRevenue       decimal.Decimal `json:"target_revenue"`
	CommissionStructure map[string]any  `json:"commission_structure"`
}

// BuildBundle packages the tenant settings with its active catalog and territories.
func BuildBundle(t domain.Tenant, v dataset.View, now time.Time) Bundle {
	flags := make(map[string]bool, len(t.FeatureFlags))
	for k, val := range t.FeatureFlags {
		flags[k] = val
	}
	b := Bundle{
		Version:            BundleVersion,
		SourceSubdomain:    t.Subdomain,
		Name:               t.Name,
		ConsciousnessLevel: t.ConsciousnessLevel,
		FeatureFlags:       flags,
		Catalog:            make([]ProductTemplate, 0, len(v.Products)),
		Territories:        make([]TerritoryTemplate, 0, len(v.Territories)),
		GeneratedAt:        now.UTC(),
	}
	for _, p := range v.Products {
		if !p.IsActive {
			continue
		}
		b.Catalog = append(b.Catalog, ProductTemplate{
			Name: p.Name, Description: p.Description, Category: p.Category,
			WholesalePrice: p.WholesalePrice, RetailPrice: p.RetailPrice,
			Tags: p.Tags, ABV: p.ABV, VolumeML: p.VolumeML,
		})
	}
	for _, tr := range v.Territories {
		if !tr.IsActive {
			continue
		}
		b.Territories = append(b.Territories, TerritoryTemplate{
			Name: tr.Name, Code: tr.Code, Bounds: tr.Bounds,
			TargetRevenue: tr.TargetRevenue, CommissionStructure: tr.CommissionStructure,
		})
	}
	return b
}
