package dataset

import (
	"context"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

func queryTerritories(ctx context.Context, l *tenant.Lease) ([]domain.Territory, error) {
	return query.All[domain.Territory](ctx, l.Select(query.Territories).OrderBy("name", false))
}

func (s *Surface) FetchTerritories(ctx context.Context) ([]domain.Territory, error) {
	return s.territories.fetch(ctx)
}

func (s *Surface) CreateTerritory(ctx context.Context, t domain.Territory) (domain.Territory, error) {
	var out domain.Territory
	err := s.territories.write(ctx, func(l *tenant.Lease) error {
		created, err := insertEntity(ctx, l, query.Territories, t)
		if err != nil {
			return err
		}
		out = created
		s.publish(ctx, l, query.Territories, query.OpInsert, created.ID)
		return nil
	})
	return out, err
}

func (s *Surface) UpdateTerritory(ctx context.Context, id string, patch query.Record) (domain.Territory, error) {
	var out domain.Territory
	err := s.territories.write(ctx, func(l *tenant.Lease) error {
		updated, err := updateEntity[domain.Territory](ctx, l, query.Territories, id, patch)
		if err != nil {
			return err
		}
		out = updated
		s.publish(ctx, l, query.Territories, query.OpUpdate, id)
		return nil
	})
	return out, err
}

func (s *Surface) DeleteTerritory(ctx context.Context, id string) error {
	return s.territories.write(ctx, func(l *tenant.Lease) error {
		if err := deleteByID(ctx, l, query.Territories, id); err != nil {
			return err
		}
		s.publish(ctx, l, query.Territories, query.OpDelete, id)
		return nil
	})
}
