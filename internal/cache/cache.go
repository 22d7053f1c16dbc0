package cache

import (
	"context"
	"time"

	"storedash/backend/internal/domain"
)

// ReportCache stores aggregated product performance rows keyed by the
// resolved date range and row limit.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]domain.ProductPerformanceRow, bool, error)
	Set(ctx context.Context, key string, rows []domain.ProductPerformanceRow, ttl time.Duration) error
	Purge(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) ([]domain.ProductPerformanceRow, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ []domain.ProductPerformanceRow, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Purge(_ context.Context) error {
	return nil
}
