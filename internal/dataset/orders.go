package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// orderNumberAttempts bounds retries when a generated order number collides.
const orderNumberAttempts = 3

// OrderWithItems is an order header with its lines.
type OrderWithItems struct {
	domain.Order
	Items []domain.OrderItem `json:"items"`
}

// OrderInput is what a caller supplies to create an order. Line totals,
// subtotal and total are computed.
type OrderInput struct {
	DistributorID  string           `json:"distributor_id"`
	Items          []OrderItemInput `json:"items"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	TaxAmount      decimal.Decimal  `json:"tax_amount"`
	ShippingAmount decimal.Decimal  `json:"shipping_amount"`
	Notes          string           `json:"notes"`
}

type OrderItemInput struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderNumber formats ORD-YYYYMMDD-XXXXXX from the UTC date and six
// uppercase hex characters.
func OrderNumber(now time.Time, suffix string) string {
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(suffix))
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

func queryOrders(ctx context.Context, l *tenant.Lease) ([]OrderWithItems, error) {
	orders, err := query.All[domain.Order](ctx, l.Select(query.Orders).OrderBy(query.ColumnCreatedAt, true))
	if err != nil {
		return nil, err
	}
	out := make([]OrderWithItems, len(orders))
	if len(orders) == 0 {
		return out, nil
	}
	ids := make([]any, len(orders))
	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
		out[i] = OrderWithItems{Order: o, Items: []domain.OrderItem{}}
	}
	items, err := query.All[domain.OrderItem](ctx, l.Select(query.OrderItems).
		Where(query.In{Col: "order_id", Values: ids}).
		OrderBy(query.ColumnCreatedAt, false))
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if i, ok := byID[it.OrderID]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out, nil
}

// FetchOrders reloads orders with their items, newest first.
func (s *Surface) FetchOrders(ctx context.Context) ([]OrderWithItems, error) {
	return s.orders.fetch(ctx)
}

// CreateOrder prices the items, writes the header under a fresh order number
// and then each item. Header and items are separate writes: if an item fails
// the order stays and a PartialWriteError is returned.
func (s *Surface) CreateOrder(ctx context.Context, in OrderInput) (OrderWithItems, error) {
	if len(in.Items) == 0 {
		return OrderWithItems{}, &domain.ValidationError{Entity: "order", Field: "items", Reason: "at least one item is required"}
	}
	items := make([]domain.OrderItem, len(in.Items))
	for i, it := range in.Items {
		items[i] = domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	order := domain.Order{
		DistributorID:  in.DistributorID,
		Status:         domain.OrderPending,
		Subtotal:       domain.PriceItems(items),
		DiscountAmount: in.DiscountAmount,
		TaxAmount:      in.TaxAmount,
		ShippingAmount: in.ShippingAmount,
		Notes:          in.Notes,
	}
	order.ComputeTotal()
	if err := order.Validate(); err != nil {
		return OrderWithItems{}, err
	}
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return OrderWithItems{}, err
		}
	}

	var out OrderWithItems
	err := s.orders.write(ctx, func(l *tenant.Lease) error {
		created, err := s.insertOrder(ctx, l, order)
		if err != nil {
			return err
		}
		s.publish(ctx, l, query.Orders, query.OpInsert, created.ID)
		out = OrderWithItems{Order: created, Items: make([]domain.OrderItem, 0, len(items))}

		for _, it := range items {
			it.OrderID = created.ID
			stored, err := insertEntity(ctx, l, query.OrderItems, it)
			if err != nil {
				return &PartialWriteError{
					OrderID:      created.ID,
					OrderNumber:  created.OrderNumber,
					ItemsWritten: len(out.Items),
					ItemsTotal:   len(items),
					Err:          err,
				}
			}
			out.Items = append(out.Items, stored)
		}
		return nil
	})
	return out, err
}

func (s *Surface) insertOrder(ctx context.Context, l *tenant.Lease, order domain.Order) (domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = OrderNumber(s.now(), randomSuffix())
		created, err := insertEntity(ctx, l, query.Orders, order)
		if err == nil {
			return created, nil
		}
		if !query.IsUniqueViolation(err) {
			return domain.Order{}, err
		}
		lastErr = err
	}
	return domain.Order{}, fmt.Errorf("failed to allocate order number after %d attempts: %w", orderNumberAttempts, lastErr)
}

// UpdateOrderStatus moves an order along its lifecycle. The write only applies
// if the status is still the one the transition was checked against.
func (s *Surface) UpdateOrderStatus(ctx context.Context, id, status string) (domain.Order, error) {
	var out domain.Order
	err := s.orders.write(ctx, func(l *tenant.Lease) error {
		rec, err := first(ctx, l, query.Orders, id)
		if err != nil {
			return err
		}
		cur, err := query.Decode[domain.Order](rec)
		if err != nil {
			return err
		}
		if !domain.CanTransition(cur.Status, status) {
			return &domain.ValidationError{Entity: "order", Field: "status",
				Reason: fmt.Sprintf("cannot move from %s to %s", cur.Status, status)}
		}
		n, err := l.Update(query.Orders, query.Record{"status": status}).
			Where(query.Eq{Col: query.ColumnID, Value: id}, query.Eq{Col: "status", Value: cur.Status}).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: order %s", ErrConflict, id)
		}
		cur.Status = status
		out = cur
		s.publish(ctx, l, query.Orders, query.OpUpdate, id)
		return nil
	})
	return out, err
}

// DeleteOrder removes the items of an order and then the order itself. It is
// also the cleanup path after a PartialWriteError.
func (s *Surface) DeleteOrder(ctx context.Context, id string) error {
	return s.orders.write(ctx, func(l *tenant.Lease) error {
		if _, err := first(ctx, l, query.Orders, id); err != nil {
			return err
		}
		if _, err := l.Delete(query.OrderItems).Where(query.Eq{Col: "order_id", Value: id}).Exec(ctx); err != nil {
			return err
		}
		if err := deleteByID(ctx, l, query.Orders, id); err != nil {
			return err
		}
		s.publish(ctx, l, query.Orders, query.OpDelete, id)
		return nil
	})
}
