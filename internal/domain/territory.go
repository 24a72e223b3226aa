package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Territory groups distributors under a sales rep.
type Territory struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"tenant_id"`
	Name                string          `json:"name"`
	Code                string          `json:"code"`
	Bounds              map[string]any  `json:"bounds"`
	AssignedRepID       string          `json:"assigned_rep_id"`
	TargetRevenue       decimal.Decimal `json:"target_revenue"`
	CommissionStructure map[string]any  `json:"commission_structure"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (t *Territory) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid("territory", "name", "required")
	}
	if strings.TrimSpace(t.Code) == "" {
		return invalid("territory", "code", "required")
	}
	if t.TargetRevenue.IsNegative() {
		return invalid("territory", "target_revenue", "must not be negative")
	}
	return nil
}
