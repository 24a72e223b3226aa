package domain

import (
	"strings"
	"time"
)

const (
	DistributorActive    = "active"
	DistributorPending   = "pending"
	DistributorSuspended = "suspended"
)

// Distributor is a wholesale partner assigned to a territory.
type Distributor struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	CompanyName string         `json:"company_name"`
	ContactName string         `json:"contact_name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	TerritoryID string         `json:"territory_id"`
	Tier        string         `json:"tier"`
	Status      string         `json:"status"`
	Address     map[string]any `json:"address"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func ValidDistributorStatus(s string) bool {
	switch s {
	case DistributorActive, DistributorPending, DistributorSuspended:
		return true
	}
	return false
}

func (d *Distributor) Validate() error {
	if strings.TrimSpace(d.CompanyName) == "" {
		return invalid("distributor", "company_name", "required")
	}
	if !ValidDistributorStatus(d.Status) {
		return invalid("distributor", "status", "unknown status %q", d.Status)
	}
	return nil
}
