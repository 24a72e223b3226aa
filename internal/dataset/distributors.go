package dataset

import (
	"context"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

func queryDistributors(ctx context.Context, l *tenant.Lease) ([]domain.Distributor, error) {
	return query.All[domain.Distributor](ctx, l.Select(query.Distributors).OrderBy(query.ColumnCreatedAt, true))
}

// FetchDistributors reloads distributors, newest first.
func (s *Surface) FetchDistributors(ctx context.Context) ([]domain.Distributor, error) {
	return s.distributors.fetch(ctx)
}

// CreateDistributor onboards a distributor; without a status it starts pending.
func (s *Surface) CreateDistributor(ctx context.Context, d domain.Distributor) (domain.Distributor, error) {
	if d.Status == "" {
		d.Status = domain.DistributorPending
	}
	var out domain.Distributor
	err := s.distributors.write(ctx, func(l *tenant.Lease) error {
		created, err := insertEntity(ctx, l, query.Distributors, d)
		if err != nil {
			return err
		}
		out = created
		s.publish(ctx, l, query.Distributors, query.OpInsert, created.ID)
		return nil
	})
	return out, err
}

func (s *Surface) UpdateDistributor(ctx context.Context, id string, patch query.Record) (domain.Distributor, error) {
	var out domain.Distributor
	err := s.distributors.write(ctx, func(l *tenant.Lease) error {
		updated, err := updateEntity[domain.Distributor](ctx, l, query.Distributors, id, patch)
		if err != nil {
			return err
		}
		out = updated
		s.publish(ctx, l, query.Distributors, query.OpUpdate, id)
		return nil
	})
	return out, err
}

func (s *Surface) DeleteDistributor(ctx context.Context, id string) error {
	return s.distributors.write(ctx, func(l *tenant.Lease) error {
		if err := deleteByID(ctx, l, query.Distributors, id); err != nil {
			return err
		}
		s.publish(ctx, l, query.Distributors, query.OpDelete, id)
		return nil
	})
}
