package domain

import (
	"time"
)

const (
	ShipmentPending   = "pending"
	ShipmentInTransit = "in_transit"
	ShipmentDelivered = "delivered"
	ShipmentException = "exception"
)

// Shipment tracks delivery of an order.
type Shipment struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	OrderID        string         `json:"order_id"`
	Carrier        string         `json:"carrier"`
	TrackingNumber string         `json:"tracking_number"`
	Status         string         `json:"status"`
	Destination    map[string]any `json:"destination"`
	ShippedAt      *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (s *Shipment) Validate() error {
	if s.OrderID == "" {
		return invalid("shipment", "order_id", "required")
	}
	switch s.Status {
	case ShipmentPending, ShipmentInTransit, ShipmentDelivered, ShipmentException:
	default:
		return invalid("shipment", "status", "unknown status %q", s.Status)
	}
	return nil
}
