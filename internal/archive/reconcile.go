package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"storedash/backend/internal/domain"
)

type keyEntries struct {
	metadata *Object
	payloads []Object
}

// Reconcile removes orphaned entries older than grace: metadata whose payload
// is gone, payloads that never got metadata, and abandoned temp files. Younger
// entries are left alone since a save may still be in flight. Concurrent
// calls return a summary with Skipped set.
func (s *Store) Reconcile(ctx context.Context, grace time.Duration) (domain.ReconcileSummary, error) {
	startedAt := s.now().UTC()
	summary := domain.ReconcileSummary{StartedAt: startedAt}
	if !s.reconciling.CompareAndSwap(false, true) {
		summary.Skipped = true
		summary.CompletedAt = startedAt
		return summary, nil
	}
	defer s.reconciling.Store(false)

	objects, err := s.backend.List(ctx, "")
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	cutoff := startedAt.Add(-grace)
	byKey := make(map[string]*keyEntries)
	var stale []string
	for i := range objects {
		obj := objects[i]
		if strings.HasSuffix(obj.Name, TempSuffix) {
			if obj.ModTime.Before(cutoff) {
				stale = append(stale, obj.Name)
			}
			continue
		}
		key, isMeta, ok := splitName(obj.Name)
		if !ok {
			continue
		}
		entries := byKey[key]
		if entries == nil {
			entries = &keyEntries{}
			byKey[key] = entries
		}
		if isMeta {
			entries.metadata = &obj
		} else {
			entries.payloads = append(entries.payloads, obj)
		}
	}

	var toRemove []string
	for key, entries := range byKey {
		switch {
		case entries.metadata != nil && len(entries.payloads) == 0:
			summary.OrphanedMetadata++
			reconcileIssues.WithLabelValues("orphaned_metadata").Inc()
			if entries.metadata.ModTime.Before(cutoff) {
				toRemove = append(toRemove, entries.metadata.Name)
				s.meta.Remove(key)
			}
		case entries.metadata == nil:
			for _, payload := range entries.payloads {
				summary.OrphanedPayloads++
				reconcileIssues.WithLabelValues("orphaned_payload").Inc()
				if payload.ModTime.Before(cutoff) {
					toRemove = append(toRemove, payload.Name)
				}
			}
		}
	}
	toRemove = append(toRemove, stale...)

	for _, name := range toRemove {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := s.backend.Remove(ctx, name); err != nil {
			s.logger.Warn("reconcile remove failed", zap.String("name", name), zap.Error(err))
			continue
		}
		summary.Removed++
	}

	summary.CompletedAt = s.now().UTC()
	reconcileRuns.Inc()
	reconcileDuration.Observe(summary.CompletedAt.Sub(startedAt).Seconds())
	s.logger.Info("archive reconciled",
		zap.Int("orphaned_metadata", summary.OrphanedMetadata),
		zap.Int("orphaned_payloads", summary.OrphanedPayloads),
		zap.Int("removed", summary.Removed),
	)
	return summary, nil
}

// splitName maps an entry name to its storage key. ok is false for names
// that are not archive entries.
func splitName(name string) (key string, isMeta bool, ok bool) {
	if k, found := strings.CutSuffix(name, MetadataSuffix); found {
		return k, true, validKey(k)
	}
	for _, kind := range payloadKinds {
		if k, found := strings.CutSuffix(name, kind.Extension()); found {
			return k, false, validKey(k)
		}
	}
	return "", false, false
}

// Scheduler runs Reconcile on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	store  *Store
	grace  time.Duration
	logger *zap.Logger
}

func NewScheduler(store *Store, schedule string, grace time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sch := &Scheduler{
		cron:   cron.New(),
		store:  store,
		grace:  grace,
		logger: logger.Named("reconcile"),
	}
	if _, err := sch.cron.AddFunc(schedule, sch.run); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return sch, nil
}

// Start runs the schedule until ctx is done.
func (sch *Scheduler) Start(ctx context.Context) {
	sch.cron.Start()
	sch.logger.Info("archive reconcile scheduled", zap.Duration("grace", sch.grace))

	go func() {
		<-ctx.Done()
		<-sch.cron.Stop().Done()
	}()
}

func (sch *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := sch.store.Reconcile(ctx, sch.grace)
	if err != nil {
		sch.logger.Error("archive reconcile failed", zap.Error(err))
		return
	}
	if summary.Skipped {
		sch.logger.Debug("archive reconcile already running")
	}
}
