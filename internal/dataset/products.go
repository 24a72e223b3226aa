package dataset

import (
	"context"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

func queryProducts(ctx context.Context, l *tenant.Lease) ([]domain.Product, error) {
	return query.All[domain.Product](ctx, l.Select(query.Products).
		Where(query.Eq{Col: "is_active", Value: true}).
		OrderBy("name", false))
}

// FetchProducts reloads the active catalog, ordered by name.
func (s *Surface) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products.fetch(ctx)
}

// CreateProduct adds an active product.
func (s *Surface) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	var out domain.Product
	err := s.products.write(ctx, func(l *tenant.Lease) error {
		p.IsActive = true
		created, err := insertEntity(ctx, l, query.Products, p)
		if err != nil {
			return err
		}
		out = created
		s.publish(ctx, l, query.Products, query.OpInsert, created.ID)
		return nil
	})
	return out, err
}

func (s *Surface) UpdateProduct(ctx context.Context, id string, patch query.Record) (domain.Product, error) {
	var out domain.Product
	err := s.products.write(ctx, func(l *tenant.Lease) error {
		updated, err := updateEntity[domain.Product](ctx, l, query.Products, id, patch)
		if err != nil {
			return err
		}
		out = updated
		s.publish(ctx, l, query.Products, query.OpUpdate, id)
		return nil
	})
	return out, err
}

// DeleteProduct deactivates the product; inventory and order lines keep referencing it.
func (s *Surface) DeleteProduct(ctx context.Context, id string) error {
	return s.products.write(ctx, func(l *tenant.Lease) error {
		if _, err := updateEntity[domain.Product](ctx, l, query.Products, id, query.Record{"is_active": false}); err != nil {
			return err
		}
		s.publish(ctx, l, query.Products, query.OpDelete, id)
		return nil
	})
}
