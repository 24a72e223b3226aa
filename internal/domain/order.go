package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// Order header. Items live in order_items.
type Order struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	OrderNumber    string          `json:"order_number"`
	DistributorID  string          `json:"distributor_id"`
	Status         string          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	CreatedAt time.Time       `json:"created_at"`
}

// Cents rounds an amount to two decimal places.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func (i *OrderItem) Validate() error {
	if i.ProductID == "" {
		return invalid("order_item", "product_id", "required")
	}
	if i.Quantity < 1 {
		return invalid("order_item", "quantity", "must be at least 1, got %d", i.Quantity)
	}
	if i.UnitPrice.IsNegative() {
		return invalid("order_item", "unit_price", "must not be negative")
	}
	if !i.LineTotal.Equal(Cents(i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity)))) {
		return invalid("order_item", "line_total", "must equal quantity x unit_price")
	}
	return nil
}

// PriceItems fills LineTotal on every item and returns the subtotal.
func PriceItems(items []OrderItem) decimal.Decimal {
	subtotal := decimal.Zero
	for i := range items {
		items[i].LineTotal = Cents(items[i].UnitPrice.Mul(decimal.NewFromInt(items[i].Quantity)))
		subtotal = subtotal.Add(items[i].LineTotal)
	}
	return Cents(subtotal)
}

// ComputeTotal derives TotalAmount from the components.
func (o *Order) ComputeTotal() {
	o.Subtotal = Cents(o.Subtotal)
	o.DiscountAmount = Cents(o.DiscountAmount)
	o.TaxAmount = Cents(o.TaxAmount)
	o.ShippingAmount = Cents(o.ShippingAmount)
	o.TotalAmount = o.Subtotal.Sub(o.DiscountAmount).Add(o.TaxAmount).Add(o.ShippingAmount)
}

func (o *Order) Validate() error {
	if o.DistributorID == "" {
		return invalid("order", "distributor_id", "required")
	}
	if !ValidOrderStatus(o.Status) {
		return invalid("order", "status", "unknown status %q", o.Status)
	}
	for name, v := range map[string]decimal.Decimal{
		"subtotal":        o.Subtotal,
		"discount_amount": o.DiscountAmount,
		"tax_amount":      o.TaxAmount,
		"shipping_amount": o.ShippingAmount,
	} {
		if v.IsNegative() {
			return invalid("order", name, "must not be negative")
		}
	}
	want := o.Subtotal.Sub(o.DiscountAmount).Add(o.TaxAmount).Add(o.ShippingAmount)
	if !o.TotalAmount.Equal(Cents(want)) {
		return invalid("order", "total_amount", "%s does not equal subtotal - discount + tax + shipping (%s)",
			o.TotalAmount.StringFixed(2), want.StringFixed(2))
	}
	return nil
}

func ValidOrderStatus(s string) bool {
	_, ok := orderTransitions[s]
	return ok
}

var orderTransitions = map[string][]string{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
	OrderDelivered:  nil,
	OrderCancelled:  nil,
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
