package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"storedash/backend/internal/archive"
	"storedash/backend/internal/domain"
	"storedash/backend/internal/report"
	"storedash/backend/internal/store"
)

var ErrForbidden = errors.New("insufficient role")

// ConflictError explains why a record could not be removed. It matches
// store.ErrConflict with errors.Is.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Unwrap() error {
	return store.ErrConflict
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultTop  int
	MaxTop      int
	PageSize    int
	OrphanGrace time.Duration
}

type Service struct {
	repo    store.Repository
	reports *report.Aggregator
	archive *archive.Store
	opts    Options
	logger  *zap.Logger
}

func New(repo store.Repository, reports *report.Aggregator, archiveStore *archive.Store, opts Options, logger *zap.Logger) *Service {
	if opts.MaxTop < 1 {
		opts.MaxTop = 100
	}
	if opts.DefaultTop < 1 {
		opts.DefaultTop = 10
	}
	if opts.DefaultTop > opts.MaxTop {
		opts.DefaultTop = opts.MaxTop
	}
	if opts.PageSize < 1 {
		opts.PageSize = 6
	}
	if opts.OrphanGrace <= 0 {
		opts.OrphanGrace = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:    repo,
		reports: reports,
		archive: archiveStore,
		opts:    opts,
		logger:  logger.Named("service"),
	}
}

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return ""
}
