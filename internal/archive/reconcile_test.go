package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storedash/backend/internal/domain"
)

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestReconcileRemovesAgedOrphans(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(dir)
	require.NoError(t, err)
	s := New(backend)
	ctx := context.Background()

	kept, err := s.Put(ctx, "kept", domain.KindTabular, []byte("a"), "")
	require.NoError(t, err)
	age(t, filepath.Join(dir, kept.StorageKey+".csv"), time.Hour)
	age(t, filepath.Join(dir, kept.StorageKey+".json"), time.Hour)

	orphanPayload := filepath.Join(dir, "crashed_20240101_000000.png")
	require.NoError(t, os.WriteFile(orphanPayload, []byte("png"), 0o640))
	age(t, orphanPayload, time.Hour)

	orphanMeta := filepath.Join(dir, "halfdeleted_20240101_000000.json")
	require.NoError(t, os.WriteFile(orphanMeta, []byte(`{"fileType":"csv"}`), 0o640))
	age(t, orphanMeta, time.Hour)

	inFlight := filepath.Join(dir, "saving_20240101_000000.csv")
	require.NoError(t, os.WriteFile(inFlight, []byte("a"), 0o640))

	staleTemp := filepath.Join(dir, ".abandoned.tmp")
	require.NoError(t, os.WriteFile(staleTemp, []byte("a"), 0o640))
	age(t, staleTemp, time.Hour)

	summary, err := s.Reconcile(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	assert.Equal(t, 2, summary.OrphanedPayloads)
	assert.Equal(t, 1, summary.OrphanedMetadata)
	assert.Equal(t, 3, summary.Removed)

	assert.NoFileExists(t, orphanPayload)
	assert.NoFileExists(t, orphanMeta)
	assert.NoFileExists(t, staleTemp)
	assert.FileExists(t, inFlight, "entries younger than grace are kept")

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, kept.StorageKey, records[0].StorageKey)
}

func TestReconcileSkipsWhenAlreadyRunning(t *testing.T) {
	backend, err := NewFSBackend(t.TempDir())
	require.NoError(t, err)
	s := New(backend)
	s.reconciling.Store(true)

	summary, err := s.Reconcile(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
}

func TestSplitName(t *testing.T) {
	key, isMeta, ok := splitName("Q1_20240101_000000.json")
	assert.True(t, ok)
	assert.True(t, isMeta)
	assert.Equal(t, "Q1_20240101_000000", key)

	key, isMeta, ok = splitName("Q1_20240101_000000.png")
	assert.True(t, ok)
	assert.False(t, isMeta)
	assert.Equal(t, "Q1_20240101_000000", key)

	_, _, ok = splitName("notes.txt")
	assert.False(t, ok)
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	backend, err := NewFSBackend(t.TempDir())
	require.NoError(t, err)

	_, err = NewScheduler(New(backend), "not a schedule", time.Minute, zap.NewNop())
	assert.Error(t, err)

	sch, err := NewScheduler(New(backend), "@every 1h", time.Minute, zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	sch.Start(ctx)
	cancel()
}
