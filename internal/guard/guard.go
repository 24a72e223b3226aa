package guard

import (
	"context"
	"fmt"

	"portal-data/internal/query"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sampleSize bounds how many rows of each table are read back for tenant tags.
const sampleSize = 50

// Guard probes a store for working tenant isolation before a session is
// allowed to touch it.
type Guard struct {
	store  query.Store
	tables []*query.Schema
	logger *zap.Logger
	newID  func() string
}

func New(store query.Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		store:  store,
		tables: query.Tables(),
		logger: logger.With(zap.String("component", "isolation_guard")),
		newID:  uuid.NewString,
	}
}

// CheckIsolation returns false when any probe sees data outside tenantID:
//   - the store shows rows of another tenant to a session scoped to tenantID
//   - a scoped read under a fresh canary tenant returns anything
//   - a scoped read for tenantID returns a row tagged with another tenant
//
// An error means the probe itself could not run.
func (g *Guard) CheckIsolation(ctx context.Context, tenantID string) (bool, error) {
	if tenantID == "" {
		return false, nil
	}
	// a fresh uuid no tenant owns
	canaryID := g.newID()
	canary, err := query.NewService(g.store, canaryID, nil)
	if err != nil {
		return false, err
	}
	scoped, err := query.NewService(g.store, tenantID, nil)
	if err != nil {
		return false, err
	}

	for _, t := range g.tables {
		log := g.logger.With(zap.String("tenant_id", tenantID), zap.String("entity", t.Table))

		n, err := g.store.ForeignRows(ctx, tenantID, t)
		if err != nil {
			return false, fmt.Errorf("failed to probe %s: %w", t.Table, err)
		}
		if n > 0 {
			log.Error("store exposes foreign rows", zap.Int64("rows", n))
			return false, nil
		}

		rows, err := canary.Select(t, query.ColumnID).Limit(1).Rows(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to run canary read on %s: %w", t.Table, err)
		}
		if len(rows) > 0 {
			log.Error("canary tenant read returned rows", zap.String("canary_id", canaryID))
			return false, nil
		}

		rows, err = scoped.Select(t, query.ColumnID, query.ColumnTenantID).Limit(sampleSize).Rows(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to sample %s: %w", t.Table, err)
		}
		for _, r := range rows {
			if r.String(query.ColumnTenantID) != tenantID {
				log.Error("scoped read returned a row tagged with another tenant",
					zap.String("row_id", r.String(query.ColumnID)))
				return false, nil
			}
		}
	}
	g.logger.Debug("isolation verified", zap.String("tenant_id", tenantID))
	return true, nil
}
