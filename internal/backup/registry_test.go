package backup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalboard/backend/internal/models"
)

func newTestArtifact(createdBy string) *models.BackupArtifact {
	id := uuid.NewString()
	return &models.BackupArtifact{
		ID:        id,
		Filename:  "evalboard_" + id[:8] + ".dump",
		Filepath:  "/tmp/evalboard_" + id[:8] + ".dump",
		Status:    models.BackupStatusInProgress,
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
	}
}

func TestRegistryCreateRejectsNonInProgress(t *testing.T) {
	r := testRegistry(testDB(t))

	a := newTestArtifact("admin")
	a.Status = models.BackupStatusSuccess
	err := r.Create(a)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	b := newTestArtifact("admin")
	b.Checksum = "deadbeef"
	err = r.Create(b)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegistryGetNotFound(t *testing.T) {
	r := testRegistry(testDB(t))
	_, err := r.Get(uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryTerminalStateGuard(t *testing.T) {
	r := testRegistry(testDB(t))

	a := newTestArtifact("admin")
	require.NoError(t, r.Create(a))
	require.NoError(t, r.MarkSuccess(a.ID, 1024, "abc123", 5))

	// A terminal row never transitions again, in either direction.
	err := r.MarkFailed(a.ID, "late failure", 6)
	assert.ErrorIs(t, err, ErrTerminalState)
	err = r.MarkSuccess(a.ID, 2048, "def456", 7)
	assert.ErrorIs(t, err, ErrTerminalState)

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupStatusSuccess, got.Status)
	assert.Equal(t, int64(1024), got.Size)
	assert.Equal(t, "abc123", got.Checksum)
}

func TestRegistryMarkFailedClearsSuccessFields(t *testing.T) {
	r := testRegistry(testDB(t))

	a := newTestArtifact("admin")
	require.NoError(t, r.Create(a))
	require.NoError(t, r.MarkFailed(a.ID, "pg_dump exited 1", 3))

	got, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupStatusFailed, got.Status)
	assert.Equal(t, "pg_dump exited 1", got.FailureReason)
	assert.Empty(t, got.Checksum)
	assert.Zero(t, got.Size)
}

func TestRegistryStats(t *testing.T) {
	r := testRegistry(testDB(t))

	ok := newTestArtifact("admin")
	require.NoError(t, r.Create(ok))
	require.NoError(t, r.MarkSuccess(ok.ID, 100, "c1", 1))

	ok2 := newTestArtifact("admin")
	require.NoError(t, r.Create(ok2))
	require.NoError(t, r.MarkSuccess(ok2.ID, 250, "c2", 1))

	bad := newTestArtifact("admin")
	require.NoError(t, r.Create(bad))
	require.NoError(t, r.MarkFailed(bad.ID, "boom", 1))

	running := newTestArtifact("admin")
	require.NoError(t, r.Create(running))

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Successful)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.InProgress)
	assert.Equal(t, int64(350), stats.TotalSize)
	assert.NotNil(t, stats.OldestBackup)
	assert.NotNil(t, stats.NewestBackup)
}

func TestRegistryStatsEmpty(t *testing.T) {
	r := testRegistry(testDB(t))

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.TotalSize)
	assert.Nil(t, stats.OldestBackup)
	assert.Nil(t, stats.NewestBackup)
}

func TestRegistryCountByUser(t *testing.T) {
	r := testRegistry(testDB(t))

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Create(newTestArtifact("alice")))
	}
	require.NoError(t, r.Create(newTestArtifact("bob")))

	n, err := r.CountByUser("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = r.CountByUser("nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistryCountByUserExcludesFailed(t *testing.T) {
	r := testRegistry(testDB(t))

	failed := newTestArtifact("alice")
	require.NoError(t, r.Create(failed))
	require.NoError(t, r.MarkFailed(failed.ID, "boom", 1))

	ok := newTestArtifact("alice")
	require.NoError(t, r.Create(ok))
	require.NoError(t, r.MarkSuccess(ok.ID, 1, "c", 1))

	running := newTestArtifact("alice")
	require.NoError(t, r.Create(running))

	n, err := r.CountByUser("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRegistryDelete(t *testing.T) {
	r := testRegistry(testDB(t))

	a := newTestArtifact("admin")
	require.NoError(t, r.Create(a))
	require.NoError(t, r.MarkSuccess(a.ID, 1, "c", 1))

	require.NoError(t, r.Delete(a.ID))
	_, err := r.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, r.Delete(a.ID), ErrNotFound)
}

func TestRegistrySettingsDefaultsAndReset(t *testing.T) {
	r := testRegistry(testDB(t))

	s, err := r.Settings()
	require.NoError(t, err)
	assert.Equal(t, 30, s.MaxBackups)
	assert.Equal(t, 30, s.RetentionDays)
	assert.Nil(t, s.LastCleanup)

	s.MaxBackups = 5
	s.RetentionDays = 7
	require.NoError(t, r.UpdateSettings(s))

	now := time.Now()
	require.NoError(t, r.TouchLastCleanup(now))

	fresh, err := r.ResetSettings()
	require.NoError(t, err)
	assert.Equal(t, 30, fresh.MaxBackups)
	assert.Equal(t, 30, fresh.RetentionDays)
	// Reset restores defaults but keeps operational history.
	require.NotNil(t, fresh.LastCleanup)
	assert.WithinDuration(t, now, *fresh.LastCleanup, time.Second)
}

func TestRegistryStaleInProgress(t *testing.T) {
	db := testDB(t)
	r := testRegistry(db)

	old := newTestArtifact("admin")
	require.NoError(t, r.Create(old))
	backdate(t, db, old.ID, time.Now().Add(-2*time.Hour))

	recent := newTestArtifact("admin")
	require.NoError(t, r.Create(recent))

	done := newTestArtifact("admin")
	require.NoError(t, r.Create(done))
	require.NoError(t, r.MarkSuccess(done.ID, 1, "c", 1))
	backdate(t, db, done.ID, time.Now().Add(-2*time.Hour))

	stale, err := r.StaleInProgress(time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}
