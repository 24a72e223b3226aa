package dataset

import (
	"context"

	"portal-data/internal/domain"
	"portal-data/internal/query"
	"portal-data/internal/tenant"
)

func queryMetrics(ctx context.Context, l *tenant.Lease) ([]domain.PerformanceMetric, error) {
	return query.All[domain.PerformanceMetric](ctx, l.Select(query.PerformanceMetrics).
		OrderBy("period_start", true).
		OrderBy("metric_name", false))
}

// FetchPerformanceMetrics reloads metrics, latest period first.
func (s *Surface) FetchPerformanceMetrics(ctx context.Context) ([]domain.PerformanceMetric, error) {
	return s.metrics.fetch(ctx)
}

// CreateMetric records a metric. Metrics are write-once: a second value for the
// same type, subject, name and period start is rejected by the store.
func (s *Surface) CreateMetric(ctx context.Context, m domain.PerformanceMetric) (domain.PerformanceMetric, error) {
	var out domain.PerformanceMetric
	err := s.metrics.write(ctx, func(l *tenant.Lease) error {
		created, err := insertEntity(ctx, l, query.PerformanceMetrics, m)
		if err != nil {
			return err
		}
		out = created
		s.publish(ctx, l, query.PerformanceMetrics, query.OpInsert, created.ID)
		return nil
	})
	return out, err
}
