package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evalboard/backend/internal/config"
	"github.com/evalboard/backend/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DBPassword:           "test-password",
		BackupDir:            dir,
		AllowedBackupDirs:    []string{dir},
		MaxConcurrentBackups: 2,
		MaxBackupSizeGB:      10,
		MaxBackupsPerUser:    10,
		PgDumpTimeout:        30 * time.Second,
	}
}

func testRegistry(db *gorm.DB) *Registry {
	return NewRegistry(db, models.BackupSettings{
		MaxBackups:       30,
		RetentionDays:    30,
		MaxStorageSizeGB: 50,
	})
}

// fakeRunner writes a well-formed dump after an optional delay, or fails.
type fakeRunner struct {
	delay time.Duration
	err   error
	data  []byte
}

func (f *fakeRunner) Run(ctx context.Context, destPath string) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return f.err
	}
	data := f.data
	if data == nil {
		data = []byte("PGDMP fake dump contents")
	}
	return os.WriteFile(destPath, data, 0644)
}

// blockingRunner blocks until released or the context ends.
type blockingRunner struct {
	release chan struct{}
	started chan string
}

func (r *blockingRunner) Run(ctx context.Context, destPath string) error {
	if r.started != nil {
		r.started <- destPath
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return os.WriteFile(destPath, []byte("PGDMP released"), 0644)
}

// waitForTerminal polls until the artifact leaves in_progress.
func waitForTerminal(t *testing.T, registry *Registry, id string) *models.BackupArtifact {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a, err := registry.Get(id)
		require.NoError(t, err)
		if a.Status.Terminal() {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("backup %s never reached a terminal state", id)
	return nil
}

// backdate rewrites an artifact's creation time for retention tests.
func backdate(t *testing.T, db *gorm.DB, id string, to time.Time) {
	t.Helper()
	err := db.Model(&models.BackupArtifact{}).Where("id = ?", id).
		Update("created_at", to).Error
	require.NoError(t, err)
}
