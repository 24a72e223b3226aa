package dataset

import (
	"context"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

func queryShipments(ctx context.Context, l *tenant.Lease) ([]domain.Shipment, error) {
	return query.All[domain.Shipment](ctx, l.Select(query.Shipments).OrderBy(query.ColumnCreatedAt, true))
}

func (s *Surface) FetchShipments(ctx context.Context) ([]domain.Shipment, error) {
	return s.shipments.fetch(ctx)
}

// CreateShipment records a shipment for an order of the same tenant.
func (s *Surface) CreateShipment(ctx context.Context, sh domain.Shipment) (domain.Shipment, error) {
	if sh.Status == "" {
		sh.Status = domain.ShipmentPending
	}
	var out domain.Shipment
	err := s.shipments.write(ctx, func(l *tenant.Lease) error {
		if _, err := first(ctx, l, query.Orders, sh.OrderID); err != nil {
			return err
		}
		created, err := insertEntity(ctx, l, query.Shipments, sh)
		if err != nil {
			return err
		}
		out = created
		s.publish(ctx, l, query.Shipments, query.OpInsert, created.ID)
		return nil
	})
	return out, err
}

func (s *Surface) UpdateShipment(ctx context.Context, id string, patch query.Record) (domain.Shipment, error) {
	var out domain.Shipment
	err := s.shipments.write(ctx, func(l *tenant.Lease) error {
		updated, err := updateEntity[domain.Shipment](ctx, l, query.Shipments, id, patch)
		if err != nil {
			return err
		}
		out = updated
		s.publish(ctx, l, query.Shipments, query.OpUpdate, id)
		return nil
	})
	return out, err
}

func (s *Surface) DeleteShipment(ctx context.Context, id string) error {
	return s.shipments.write(ctx, func(l *tenant.Lease) error {
		if err := deleteByID(ctx, l, query.Shipments, id); err != nil {
			return err
		}
		s.publish(ctx, l, query.Shipments, query.OpDelete, id)
		return nil
	})
}
