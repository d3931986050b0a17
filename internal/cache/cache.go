package cache

import (
	"context"
	"time"

	"retailpos/backend/internal/domain"
)

// ReportCache holds computed profit reports for a short TTL so repeated
// dashboard refreshes do not re-run the aggregation queries.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.ProfitReport, bool, error)
	Set(ctx context.Context, key string, value *domain.ProfitReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.ProfitReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.ProfitReport, _ time.Duration) error {
	return nil
}
