package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/report"
)

func newTestSweeper(t *testing.T) (*Sweeper, *Registry, *gorm.DB, string) {
	t.Helper()
	db := testDB(t)
	registry := testRegistry(db)
	return NewSweeper(registry, report.NewReporter(db)), registry, db, t.TempDir()
}

// seedSuccess creates a successful artifact with a real file, backdated by age.
// recordedSize is what the registry believes; the file itself stays small.
func seedSuccess(t *testing.T, registry *Registry, db *gorm.DB, dir string, age time.Duration, recordedSize int64) *models.BackupArtifact {
	t.Helper()
	a := newTestArtifact("admin")
	a.Filepath = filepath.Join(dir, a.Filename)
	require.NoError(t, registry.Create(a))
	require.NoError(t, os.WriteFile(a.Filepath, []byte("PGDMP dump"), 0644))
	require.NoError(t, registry.MarkSuccess(a.ID, recordedSize, "sum-"+a.ID[:8], 1))
	backdate(t, db, a.ID, time.Now().Add(-age))
	return a
}

func TestCleanupEvictsByAge(t *testing.T) {
	s, registry, db, dir := newTestSweeper(t)

	settings, err := registry.Settings()
	require.NoError(t, err)
	settings.RetentionDays = 7
	require.NoError(t, registry.UpdateSettings(settings))

	old := seedSuccess(t, registry, db, dir, 10*24*time.Hour, 100)
	recent := seedSuccess(t, registry, db, dir, 24*time.Hour, 100)

	// An old in_progress run is never the sweeper's to touch.
	running := newTestArtifact("admin")
	running.Filepath = filepath.Join(dir, running.Filename)
	require.NoError(t, registry.Create(running))
	backdate(t, db, running.ID, time.Now().Add(-10*24*time.Hour))

	result, err := s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Empty(t, result.Errors)

	_, err = registry.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(old.Filepath)
	assert.True(t, os.IsNotExist(statErr))

	_, err = registry.Get(recent.ID)
	assert.NoError(t, err)
	_, err = registry.Get(running.ID)
	assert.NoError(t, err)
}

func TestCleanupEnforcesCountBudget(t *testing.T) {
	s, registry, db, dir := newTestSweeper(t)

	settings, err := registry.Settings()
	require.NoError(t, err)
	settings.MaxBackups = 2
	settings.RetentionDays = 365
	require.NoError(t, registry.UpdateSettings(settings))

	oldest := seedSuccess(t, registry, db, dir, 4*time.Hour, 100)
	older := seedSuccess(t, registry, db, dir, 3*time.Hour, 100)
	newer := seedSuccess(t, registry, db, dir, 2*time.Hour, 100)
	newest := seedSuccess(t, registry, db, dir, time.Hour, 100)

	result, err := s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Removed)

	_, err = registry.Get(oldest.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = registry.Get(older.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = registry.Get(newer.ID)
	assert.NoError(t, err)
	_, err = registry.Get(newest.ID)
	assert.NoError(t, err)
}

func TestCleanupEnforcesStorageBudget(t *testing.T) {
	s, registry, db, dir := newTestSweeper(t)

	settings, err := registry.Settings()
	require.NoError(t, err)
	settings.MaxStorageSizeGB = 1
	settings.RetentionDays = 365
	settings.MaxBackups = 100
	require.NoError(t, registry.UpdateSettings(settings))

	// Two 600MiB artifacts exceed the 1GiB budget; evicting the oldest
	// brings the total back under.
	const size600MiB = 600 << 20
	old := seedSuccess(t, registry, db, dir, 2*time.Hour, size600MiB)
	recent := seedSuccess(t, registry, db, dir, time.Hour, size600MiB)

	result, err := s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	_, err = registry.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = registry.Get(recent.ID)
	assert.NoError(t, err)
}

func TestCleanupKeepsRecordWhenFileDeleteFails(t *testing.T) {
	s, registry, db, dir := newTestSweeper(t)

	settings, err := registry.Settings()
	require.NoError(t, err)
	settings.RetentionDays = 7
	require.NoError(t, registry.UpdateSettings(settings))

	a := newTestArtifact("admin")
	// A non-empty directory at the artifact path makes os.Remove fail.
	a.Filepath = filepath.Join(dir, a.Filename)
	require.NoError(t, os.MkdirAll(filepath.Join(a.Filepath, "child"), 0755))
	require.NoError(t, registry.Create(a))
	require.NoError(t, registry.MarkSuccess(a.ID, 100, "sum", 1))
	backdate(t, db, a.ID, time.Now().Add(-10*24*time.Hour))

	result, err := s.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, result.Removed)
	assert.NotEmpty(t, result.Errors)

	// The registry entry survives for the next sweep to retry.
	_, err = registry.Get(a.ID)
	assert.NoError(t, err)
}

func TestCleanupMissingFileStillRemovesRecord(t *testing.T) {
	s, registry, db, dir := newTestSweeper(t)

	settings, err := registry.Settings()
	require.NoError(t, err)
	settings.RetentionDays = 7
	require.NoError(t, registry.UpdateSettings(settings))

	a := seedSuccess(t, registry, db, dir, 10*24*time.Hour, 100)
	require.NoError(t, os.Remove(a.Filepath))

	result, err := s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	_, err = registry.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupStampsLastCleanup(t *testing.T) {
	s, registry, _, _ := newTestSweeper(t)

	before, err := registry.Settings()
	require.NoError(t, err)
	require.Nil(t, before.LastCleanup)

	_, err = s.Cleanup()
	require.NoError(t, err)

	after, err := registry.Settings()
	require.NoError(t, err)
	require.NotNil(t, after.LastCleanup)
	assert.WithinDuration(t, time.Now(), *after.LastCleanup, 5*time.Second)
}

func TestCleanupMutualExclusion(t *testing.T) {
	s, _, _, _ := newTestSweeper(t)

	s.mu.Lock()
	_, err := s.Cleanup()
	assert.ErrorIs(t, err, ErrSweepInProgress)
	s.mu.Unlock()

	_, err = s.Cleanup()
	assert.NoError(t, err)
}

func TestRemoveArtifact(t *testing.T) {
	s, registry, db, dir := newTestSweeper(t)

	a := seedSuccess(t, registry, db, dir, time.Hour, 100)
	require.NoError(t, s.RemoveArtifact(a.ID))

	_, err := registry.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, statErr := os.Stat(a.Filepath)
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorIs(t, s.RemoveArtifact("no-such-id"), ErrNotFound)

	running := newTestArtifact("admin")
	require.NoError(t, registry.Create(running))
	assert.ErrorIs(t, s.RemoveArtifact(running.ID), ErrInvalidArgument)
}

func TestRemoveArtifactWaitsForRunningSweep(t *testing.T) {
	s, registry, db, dir := newTestSweeper(t)

	a := seedSuccess(t, registry, db, dir, time.Hour, 100)

	s.mu.Lock()
	done := make(chan error, 1)
	go func() {
		done <- s.RemoveArtifact(a.ID)
	}()

	select {
	case <-done:
		t.Fatal("RemoveArtifact ran while a sweep held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	s.mu.Unlock()
	require.NoError(t, <-done)

	_, err := registry.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
