package domain

import (
	"strings"
	"time"
)

// PerformanceMetric is written once per period and only read afterwards.
type PerformanceMetric struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	MetricType  string    `json:"metric_type"`
	SubjectType string    `json:"subject_type"`
	SubjectID   string    `json:"subject_id"`
	MetricName  string    `json:"metric_name"`
	MetricValue float64   `json:"metric_value"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Rating      string    `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *PerformanceMetric) Validate() error {
	if strings.TrimSpace(m.MetricType) == "" {
		return invalid("performance_metric", "metric_type", "required")
	}
	if strings.TrimSpace(m.MetricName) == "" {
		return invalid("performance_metric", "metric_name", "required")
	}
	if m.PeriodStart.IsZero() || m.PeriodEnd.Before(m.PeriodStart) {
		return invalid("performance_metric", "period_end", "must not precede period_start")
	}
	return nil
}
