package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"storedash/backend/internal/cache"
	"storedash/backend/internal/domain"
)

// DateLayout is the wire format for report range bounds.
const DateLayout = "2006-01-02"

// Source is the read-only slice of the data store the aggregator needs.
type Source interface {
	OrderDateBounds(ctx context.Context) (domain.DateRange, bool, error)
	PopularProducts(ctx context.Context, dateRange domain.DateRange, limit int) ([]domain.ProductPerformanceRow, error)
}

type Aggregator struct {
	source   Source
	cache    cache.ReportCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewAggregator(source Source, cacheStore cache.ReportCache, cacheTTL time.Duration, logger *zap.Logger) *Aggregator {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger.Named("report"),
	}
}

// ResolveRange fills missing bounds from the earliest and latest order dates.
// ok is false when a bound is missing and there are no orders to default from.
func (a *Aggregator) ResolveRange(ctx context.Context, from *time.Time, to *time.Time) (domain.DateRange, bool, error) {
	if from != nil && to != nil {
		return domain.DateRange{Start: dateUTC(*from), End: dateUTC(*to)}, true, nil
	}

	bounds, ok, err := a.source.OrderDateBounds(ctx)
	if err != nil {
		return domain.DateRange{}, false, err
	}
	if !ok {
		return domain.DateRange{}, false, nil
	}
	if from != nil {
		bounds.Start = dateUTC(*from)
	}
	if to != nil {
		bounds.End = dateUTC(*to)
	}
	return domain.DateRange{Start: dateUTC(bounds.Start), End: dateUTC(bounds.End), Live: true}, true, nil
}

// PopularProducts returns at most limit rows ranked by quantity. Explicit
// ranges are served from the cache when present; live ranges are always
// recomputed. Cache failures only cost a recompute.
func (a *Aggregator) PopularProducts(ctx context.Context, dateRange domain.DateRange, limit int) ([]domain.ProductPerformanceRow, error) {
	if limit <= 0 || dateRange.Empty() {
		return []domain.ProductPerformanceRow{}, nil
	}
	if dateRange.Live {
		return a.aggregate(ctx, dateRange, limit)
	}

	key := cacheKey(dateRange, limit)
	rows, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	}
	if err == nil && ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return rows, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	rows, err = a.aggregate(ctx, dateRange, limit)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Set(ctx, key, rows, a.cacheTTL); err != nil {
		a.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rows, nil
}

func (a *Aggregator) aggregate(ctx context.Context, dateRange domain.DateRange, limit int) ([]domain.ProductPerformanceRow, error) {
	startedAt := time.Now()
	rows, err := a.source.PopularProducts(ctx, dateRange, limit)
	aggregationDuration.Observe(time.Since(startedAt).Seconds())
	if err != nil {
		return nil, fmt.Errorf("aggregate popular products: %w", err)
	}
	if rows == nil {
		rows = []domain.ProductPerformanceRow{}
	}
	return rows, nil
}

// Invalidate drops cached results after catalog changes.
func (a *Aggregator) Invalidate(ctx context.Context) {
	if err := a.cache.Purge(ctx); err != nil {
		a.logger.Warn("report cache purge failed", zap.Error(err))
	}
}

func BuildChart(rows []domain.ProductPerformanceRow) domain.ReportChart {
	chart := domain.ReportChart{
		Labels: make([]string, 0, len(rows)),
		Values: make([]int, 0, len(rows)),
	}
	for _, row := range rows {
		chart.Labels = append(chart.Labels, row.Product)
		chart.Values = append(chart.Values, row.Quantity)
	}
	return chart
}

// ExportCSV renders rows with a header line. Revenue keeps two decimals.
func ExportCSV(rows []domain.ProductPerformanceRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"product", "brand", "category", "quantity", "revenue"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.Product,
			row.Brand,
			row.Category,
			strconv.Itoa(row.Quantity),
			row.Revenue.StringFixed(2),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseDate parses an optional YYYY-MM-DD bound. Blank input means no bound.
func ParseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func cacheKey(dateRange domain.DateRange, limit int) string {
	return fmt.Sprintf("%s:%s:%d", dateRange.Start.Format(DateLayout), dateRange.End.Format(DateLayout), limit)
}

func dateUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
