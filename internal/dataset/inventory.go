package dataset

import (
	"context"
	"fmt"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

// adjustAttempts bounds compare-and-set retries of inventory quantity writes.
const adjustAttempts = 3

func queryInventory(ctx context.Context, l *tenant.Lease) ([]domain.InventoryBatch, error) {
	return query.All[domain.InventoryBatch](ctx, l.Select(query.InventoryBatches).
		OrderBy("production_date", true).
		OrderBy("batch_number", false))
}

// FetchInventoryBatches reloads batches, latest production first.
func (s *Surface) FetchInventoryBatches(ctx context.Context) ([]domain.InventoryBatch, error) {
	return s.inventory.fetch(ctx)
}

// CreateInventoryBatch logs a production run. Without a status the batch is
// active, or depleted when nothing is available.
func (s *Surface) CreateInventoryBatch(ctx context.Context, b domain.InventoryBatch) (domain.InventoryBatch, error) {
	if b.Status == "" {
		b.Status = batchStatus(b.QuantityAvailable)
	}
	var out domain.InventoryBatch
	err := s.inventory.write(ctx, func(l *tenant.Lease) error {
		created, err := insertEntity(ctx, l, query.InventoryBatches, b)
		if err != nil {
			return err
		}
		out = created
		s.publish(ctx, l, query.InventoryBatches, query.OpInsert, created.ID)
		return nil
	})
	return out, err
}

// UpdateInventoryBatch applies patch if the merged batch still satisfies
// 0 <= quantity_available <= quantity_produced. The write only lands while both
// quantities are unchanged since the read; otherwise it is re-validated against
// the fresh row. Status follows availability unless the batch is expired.
func (s *Surface) UpdateInventoryBatch(ctx context.Context, id string, patch query.Record) (domain.InventoryBatch, error) {
	var out domain.InventoryBatch
	err := s.inventory.write(ctx, func(l *tenant.Lease) error {
		for attempt := 0; attempt < adjustAttempts; attempt++ {
			rec, err := first(ctx, l, query.InventoryBatches, id)
			if err != nil {
				return err
			}
			cur, err := query.Decode[domain.InventoryBatch](rec)
			if err != nil {
				return err
			}
			b, err := mergePatch[domain.InventoryBatch](query.InventoryBatches, rec, patch)
			if err != nil {
				return err
			}
			if b.Status != domain.BatchExpired {
				b.Status = batchStatus(b.QuantityAvailable)
			}
			if err := b.Validate(); err != nil {
				return err
			}
			set := make(query.Record, len(patch)+1)
			for k, v := range patch {
				set[k] = v
			}
			set["status"] = b.Status
			n, err := l.Update(query.InventoryBatches, set).Where(
				query.Eq{Col: query.ColumnID, Value: id},
				query.Eq{Col: "quantity_available", Value: cur.QuantityAvailable},
				query.Eq{Col: "quantity_produced", Value: cur.QuantityProduced},
			).Exec(ctx)
			if err != nil {
				return err
			}
			if n == 1 {
				out = b
				s.publish(ctx, l, query.InventoryBatches, query.OpUpdate, id)
				return nil
			}
		}
		return fmt.Errorf("%w: inventory batch %s", ErrConflict, id)
	})
	return out, err
}

// AdjustInventory adds delta (negative to consume) to quantity_available. The
// result must stay within the batch bounds; a batch reaching zero is depleted.
func (s *Surface) AdjustInventory(ctx context.Context, id string, delta int64) (domain.InventoryBatch, error) {
	var out domain.InventoryBatch
	err := s.inventory.write(ctx, func(l *tenant.Lease) error {
		for attempt := 0; attempt < adjustAttempts; attempt++ {
			rec, err := first(ctx, l, query.InventoryBatches, id)
			if err != nil {
				return err
			}
			b, err := query.Decode[domain.InventoryBatch](rec)
			if err != nil {
				return err
			}
			prev := b.QuantityAvailable
			b.QuantityAvailable += delta
			if b.Status != domain.BatchExpired {
				b.Status = batchStatus(b.QuantityAvailable)
			}
			if err := b.Validate(); err != nil {
				return err
			}
			n, err := l.Update(query.InventoryBatches, query.Record{
				"quantity_available": b.QuantityAvailable,
				"status":             b.Status,
			}).Where(
				query.Eq{Col: query.ColumnID, Value: id},
				query.Eq{Col: "quantity_available", Value: prev},
			).Exec(ctx)
			if err != nil {
				return err
			}
			if n == 1 {
				out = b
				s.publish(ctx, l, query.InventoryBatches, query.OpUpdate, id)
				return nil
			}
		}
		return fmt.Errorf("%w: inventory batch %s", ErrConflict, id)
	})
	return out, err
}

func (s *Surface) DeleteInventoryBatch(ctx context.Context, id string) error {
	return s.inventory.write(ctx, func(l *tenant.Lease) error {
		if err := deleteByID(ctx, l, query.InventoryBatches, id); err != nil {
			return err
		}
		s.publish(ctx, l, query.InventoryBatches, query.OpDelete, id)
		return nil
	})
}

func batchStatus(available int64) string {
	if available == 0 {
		return domain.BatchDepleted
	}
	return domain.BatchActive
}
