package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Deleting a product only clears IsActive.
type Product struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	Category       string          `json:"category"`
	Tags           []string        `json:"tags"`
	ABV            float64         `json:"abv"`
	VolumeML       int64           `json:"volume_ml"`
	Attributes     map[string]any  `json:"attributes"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("product", "name", "required")
	}
	if p.WholesalePrice.IsNegative() {
		return invalid("product", "wholesale_price", "must not be negative")
	}
	if p.RetailPrice.IsNegative() {
		return invalid("product", "retail_price", "must not be negative")
	}
	if p.ABV < 0 || p.ABV > 100 {
		return invalid("product", "abv", "must be between 0 and 100, got %v", p.ABV)
	}
	if p.VolumeML < 0 {
		return invalid("product", "volume_ml", "must not be negative")
	}
	return nil
}
