package backup

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/report"
)

func newTestValidator(t *testing.T) (*Validator, *Manager, *Registry, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	registry := testRegistry(db)
	reporter := report.NewReporter(db)
	m := NewManager(testConfig(t), registry, NewCancellationTracker(), &fakeRunner{}, reporter)
	return NewValidator(registry, reporter), m, registry, db
}

func TestValidateIntactBackup(t *testing.T) {
	v, m, _, _ := newTestValidator(t)

	a, err := m.Create(CreateOptions{}, "admin")
	require.NoError(t, err)
	require.Equal(t, models.BackupStatusSuccess, a.Status)

	result, err := v.Validate(a.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.ChecksumMatch)
	assert.True(t, result.HasValidStructure)
	assert.Equal(t, a.Checksum, result.Checksum)
	assert.Equal(t, a.Size, result.Size)
	assert.Empty(t, result.Errors)
}

func TestValidateDetectsCorruption(t *testing.T) {
	v, m, registry, _ := newTestValidator(t)

	a, err := m.Create(CreateOptions{}, "admin")
	require.NoError(t, err)

	// Corrupt the artifact after the checksum was recorded.
	require.NoError(t, os.WriteFile(a.Filepath, []byte("garbage, not a dump"), 0644))

	result, err := v.Validate(a.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.False(t, result.ChecksumMatch)
	assert.False(t, result.HasValidStructure)
	assert.NotEmpty(t, result.Errors)

	// Validation is advisory: the registry row is untouched.
	got, err := registry.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BackupStatusSuccess, got.Status)
	assert.Equal(t, a.Checksum, got.Checksum)
}

func TestValidateTruncatedDumpKeepsStructureCheckHonest(t *testing.T) {
	v, m, _, _ := newTestValidator(t)

	a, err := m.Create(CreateOptions{}, "admin")
	require.NoError(t, err)

	// Truncation that preserves the magic header still fails on checksum.
	require.NoError(t, os.WriteFile(a.Filepath, []byte("PGDMP"), 0644))

	result, err := v.Validate(a.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.False(t, result.ChecksumMatch)
	assert.True(t, result.HasValidStructure)
}

func TestValidateMissingFile(t *testing.T) {
	v, m, _, _ := newTestValidator(t)

	a, err := m.Create(CreateOptions{}, "admin")
	require.NoError(t, err)
	require.NoError(t, os.Remove(a.Filepath))

	result, err := v.Validate(a.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateRejectsNonSuccessArtifacts(t *testing.T) {
	v, _, registry, _ := newTestValidator(t)

	running := newTestArtifact("admin")
	require.NoError(t, registry.Create(running))
	_, err := v.Validate(running.ID)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	failed := newTestArtifact("admin")
	require.NoError(t, registry.Create(failed))
	require.NoError(t, registry.MarkFailed(failed.ID, "boom", 1))
	_, err = v.Validate(failed.ID)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValidateUnknownBackup(t *testing.T) {
	v, _, _, _ := newTestValidator(t)
	_, err := v.Validate("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateRecordsIntegrityError(t *testing.T) {
	v, m, _, db := newTestValidator(t)

	a, err := m.Create(CreateOptions{}, "admin")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a.Filepath, []byte("garbage"), 0644))

	_, err = v.Validate(a.ID)
	require.NoError(t, err)

	var n int64
	db.Model(&models.ErrorRecord{}).
		Where("class = ? AND backup_id = ?", models.ErrorClassIntegrity, a.ID).
		Count(&n)
	assert.Equal(t, int64(1), n)
}
