package domain

import (
	"strings"
	"time"
)

const (
	BatchActive   = "active"
	BatchDepleted = "depleted"
	BatchExpired  = "expired"
)

// InventoryBatch is one logged production run of a product.
type InventoryBatch struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	ProductID         string     `json:"product_id"`
	BatchNumber       string     `json:"batch_number"`
	ProductionDate    time.Time  `json:"production_date"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	QuantityProduced  int64      `json:"quantity_produced"`
	QuantityAvailable int64      `json:"quantity_available"`
	Status            string     `json:"status"`
	StorageLocation   string     `json:"storage_location"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (b *InventoryBatch) Validate() error {
	if b.ProductID == "" {
		return invalid("inventory_batch", "product_id", "required")
	}
	if strings.TrimSpace(b.BatchNumber) == "" {
		return invalid("inventory_batch", "batch_number", "required")
	}
	if b.QuantityProduced < 0 {
		return invalid("inventory_batch", "quantity_produced", "must not be negative")
	}
	if b.QuantityAvailable < 0 || b.QuantityAvailable > b.QuantityProduced {
		return invalid("inventory_batch", "quantity_available", "must be within [0, %d], got %d",
			b.QuantityProduced, b.QuantityAvailable)
	}
	if b.ExpiryDate != nil && !b.ExpiryDate.After(b.ProductionDate) {
		return invalid("inventory_batch", "expiry_date", "must be after production_date")
	}
	switch b.Status {
	case BatchActive, BatchDepleted, BatchExpired:
	default:
		return invalid("inventory_batch", "status", "unknown status %q", b.Status)
	}
	return nil
}
