package archive

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"storedash/backend/internal/domain"
)

const (
	// MetadataSuffix is the extension of the sidecar record for every key.
	MetadataSuffix = ".json"

	keyTimeLayout  = "20060102_150405"
	maxKeyAttempts = 100
)

var payloadKinds = []domain.ArtifactKind{domain.KindImage, domain.KindTabular}

// Store persists report artifacts as a payload entry plus a JSON metadata
// entry per storage key. The metadata entry drives listing; an entry is only
// listed while its payload exists.
type Store struct {
	backend Backend
	meta    *expirable.LRU[string, domain.ArtifactRecord]
	now     func() time.Time
	logger  *zap.Logger

	// serializes key allocation so two saves in the same second get
	// distinct keys
	allocMu     sync.Mutex
	reconciling atomic.Bool
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMetadataCache keeps up to size parsed metadata records for ttl.
func WithMetadataCache(size int, ttl time.Duration) Option {
	return func(s *Store) {
		if size > 0 {
			s.meta = expirable.NewLRU[string, domain.ArtifactRecord](size, nil, ttl)
		}
	}
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meta == nil {
		s.meta = expirable.NewLRU[string, domain.ArtifactRecord](256, nil, 5*time.Minute)
	}
	s.logger = s.logger.Named("archive")
	return s
}

// Put stores payload under a new key derived from displayName and returns the
// persisted record. The payload is written before the metadata.
func (s *Store) Put(ctx context.Context, displayName string, kind domain.ArtifactKind, payload []byte, descriptionHTML string) (domain.ArtifactRecord, error) {
	if strings.TrimSpace(displayName) == "" {
		return domain.ArtifactRecord{}, invalid("Please enter a filename.")
	}
	if !kind.Valid() {
		return domain.ArtifactRecord{}, invalid("Unsupported file type.")
	}
	base := truncateBase(Sanitize(displayName))
	if base == "" {
		return domain.ArtifactRecord{}, invalid("The filename has no usable characters.")
	}

	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	createdAt := s.now().UTC()
	key, err := s.allocateKey(ctx, base+"_"+createdAt.Format(keyTimeLayout))
	if err != nil {
		operations.WithLabelValues("put", "error").Inc()
		return domain.ArtifactRecord{}, err
	}

	record := domain.ArtifactRecord{
		StorageKey:      key,
		DisplayName:     displayName,
		Kind:            kind,
		CreatedAt:       createdAt,
		DescriptionHTML: descriptionHTML,
	}
	metadata, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return domain.ArtifactRecord{}, fmt.Errorf("%w: encode metadata: %v", ErrStorage, err)
	}

	payloadName := key + kind.Extension()
	if err := s.backend.Write(ctx, payloadName, payload); err != nil {
		operations.WithLabelValues("put", "error").Inc()
		s.logger.Error("payload write failed", zap.String("key", key), zap.Error(err))
		return domain.ArtifactRecord{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := s.backend.Write(ctx, key+MetadataSuffix, metadata); err != nil {
		operations.WithLabelValues("put", "error").Inc()
		s.logger.Error("metadata write failed", zap.String("key", key), zap.Error(err))
		if rmErr := s.backend.Remove(ctx, payloadName); rmErr != nil {
			// left for the reconciler
			s.logger.Warn("orphaned payload cleanup failed", zap.String("key", key), zap.Error(rmErr))
		}
		return domain.ArtifactRecord{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.meta.Add(key, record)
	operations.WithLabelValues("put", "ok").Inc()
	s.logger.Info("report archived",
		zap.String("key", key),
		zap.String("kind", string(kind)),
		zap.Int("bytes", len(payload)),
	)
	return record, nil
}

// allocateKey returns candidate, or candidate-N for the first N >= 2 whose
// entries are all free.
func (s *Store) allocateKey(ctx context.Context, candidate string) (string, error) {
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key := candidate
		if attempt > 1 {
			key = candidate + "-" + strconv.Itoa(attempt)
		}
		taken, err := s.keyTaken(ctx, key)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrStorage, err)
		}
		if !taken {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: no free storage key for %q", ErrStorage, candidate)
}

func (s *Store) keyTaken(ctx context.Context, key string) (bool, error) {
	names := []string{key + MetadataSuffix}
	for _, kind := range payloadKinds {
		names = append(names, key+kind.Extension())
	}
	for _, name := range names {
		exists, err := s.backend.Exists(ctx, name)
		if err != nil || exists {
			return exists, err
		}
	}
	return false, nil
}

// List returns every record whose metadata parses and whose payload exists,
// newest first. Unreadable entries are skipped.
func (s *Store) List(ctx context.Context) ([]domain.ArtifactRecord, error) {
	objects, err := s.backend.List(ctx, MetadataSuffix)
	if err != nil {
		operations.WithLabelValues("list", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	records := make([]domain.ArtifactRecord, 0, len(objects))
	for _, obj := range objects {
		key := strings.TrimSuffix(obj.Name, MetadataSuffix)
		if !validKey(key) {
			continue
		}
		record, err := s.loadMetadata(ctx, key)
		if err != nil {
			if errors.Is(err, ErrCorruptMetadata) {
				skippedEntries.WithLabelValues("corrupt_metadata").Inc()
				s.logger.Warn("skipping corrupt metadata", zap.String("key", key), zap.Error(err))
			} else if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("skipping unreadable metadata", zap.String("key", key), zap.Error(err))
			}
			continue
		}

		exists, err := s.backend.Exists(ctx, key+record.Kind.Extension())
		if err != nil {
			s.logger.Warn("payload check failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if !exists {
			skippedEntries.WithLabelValues("missing_payload").Inc()
			continue
		}
		records = append(records, record)
	}

	slices.SortFunc(records, func(a, b domain.ArtifactRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.StorageKey, a.StorageKey)
	})
	operations.WithLabelValues("list", "ok").Inc()
	return records, nil
}

// GetPayload returns the stored bytes for key and kind or ErrNotFound.
func (s *Store) GetPayload(ctx context.Context, key string, kind domain.ArtifactKind) ([]byte, error) {
	if !validKey(key) || !kind.Valid() {
		return nil, ErrNotFound
	}
	data, err := s.backend.Read(ctx, key+kind.Extension())
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		operations.WithLabelValues("read", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	operations.WithLabelValues("read", "ok").Inc()
	return data, nil
}

// GetMetadata returns the record for key. ok is false when the metadata is
// missing or unreadable; callers fall back to the raw key.
func (s *Store) GetMetadata(ctx context.Context, key string) (domain.ArtifactRecord, bool, error) {
	if !validKey(key) {
		return domain.ArtifactRecord{}, false, nil
	}
	record, err := s.loadMetadata(ctx, key)
	switch {
	case err == nil:
		return record, true, nil
	case errors.Is(err, ErrNotFound):
		return domain.ArtifactRecord{}, false, nil
	case errors.Is(err, ErrCorruptMetadata):
		s.logger.Warn("ignoring corrupt metadata", zap.String("key", key), zap.Error(err))
		return domain.ArtifactRecord{}, false, nil
	default:
		return domain.ArtifactRecord{}, false, err
	}
}

// Delete removes the metadata and both payload kinds for key. Each removal is
// attempted even if another fails. Deleting an unknown key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return nil
	}
	s.meta.Remove(key)

	var errs []error
	for _, name := range []string{key + MetadataSuffix, key + domain.KindImage.Extension(), key + domain.KindTabular.Extension()} {
		if err := s.backend.Remove(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		operations.WithLabelValues("delete", "error").Inc()
		s.logger.Error("report delete incomplete", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	operations.WithLabelValues("delete", "ok").Inc()
	s.logger.Info("report deleted", zap.String("key", key))
	return nil
}

func (s *Store) loadMetadata(ctx context.Context, key string) (domain.ArtifactRecord, error) {
	if record, ok := s.meta.Get(key); ok {
		metadataCacheLookups.WithLabelValues("hit").Inc()
		return record, nil
	}
	metadataCacheLookups.WithLabelValues("miss").Inc()

	data, err := s.backend.Read(ctx, key+MetadataSuffix)
	if errors.Is(err, ErrNotFound) {
		return domain.ArtifactRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.ArtifactRecord{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	record, err := decodeMetadata(data)
	if err != nil {
		return domain.ArtifactRecord{}, err
	}
	// the entry name is authoritative for addressing
	record.StorageKey = key
	s.meta.Add(key, record)
	return record, nil
}

func decodeMetadata(data []byte) (domain.ArtifactRecord, error) {
	var record domain.ArtifactRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.ArtifactRecord{}, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	if !record.Kind.Valid() {
		return domain.ArtifactRecord{}, fmt.Errorf("%w: unknown file type %q", ErrCorruptMetadata, record.Kind)
	}
	return record, nil
}
