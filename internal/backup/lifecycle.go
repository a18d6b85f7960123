package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/evalboard/backend/internal/config"
	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/report"
)

const gib = int64(1) << 30

// CreateOptions are the caller-supplied knobs for a backup run.
type CreateOptions struct {
	// Directory overrides the default artifact directory. Must lie within
	// an allow-listed root.
	Directory string
}

// Manager orchestrates a backup run end to end: admission against the
// concurrency budget, supervision of the external dump process, checksum
// computation, and registry updates. It is the only component that
// transitions artifact status.
type Manager struct {
	cfg      *config.Config
	registry *Registry
	tracker  *CancellationTracker
	runner   DumpRunner
	reporter *report.Reporter

	running      atomic.Int32
	pollInterval time.Duration
}

func NewManager(cfg *config.Config, registry *Registry, tracker *CancellationTracker, runner DumpRunner, reporter *report.Reporter) *Manager {
	return &Manager{
		cfg:          cfg,
		registry:     registry,
		tracker:      tracker,
		runner:       runner,
		reporter:     reporter,
		pollInterval: time.Second,
	}
}

// Running returns the number of currently admitted runs.
func (m *Manager) Running() int {
	return int(m.running.Load())
}

// Start admits a backup run and launches it in the background, returning the
// in_progress artifact immediately. Completion is observed via list/get.
func (m *Manager) Start(opts CreateOptions, actor string) (*models.BackupArtifact, error) {
	artifact, err := m.admit(opts, actor)
	if err != nil {
		return nil, err
	}
	go m.run(artifact)
	return artifact, nil
}

// Create admits a backup run and blocks until it reaches a terminal state,
// returning the final artifact row.
func (m *Manager) Create(opts CreateOptions, actor string) (*models.BackupArtifact, error) {
	artifact, err := m.admit(opts, actor)
	if err != nil {
		return nil, err
	}
	m.run(artifact)
	return m.registry.Get(artifact.ID)
}

// Cancel marks a backup run for cooperative cancellation and returns
// immediately. Idempotent: unknown or already-terminal ids are a no-op.
func (m *Manager) Cancel(id string) {
	m.tracker.MarkCancelled(id)
}

// admit validates the request, reserves a concurrency slot and writes the
// in_progress registry row. Every error path releases the slot.
func (m *Manager) admit(opts CreateOptions, actor string) (*models.BackupArtifact, error) {
	settings, err := m.registry.Settings()
	if err != nil {
		return nil, err
	}

	dir := opts.Directory
	if dir == "" {
		dir = settings.DefaultDirectory
	}
	if dir == "" {
		dir = m.cfg.BackupDir
	}

	absDir, err := m.resolveAllowedDir(dir)
	if err != nil {
		return nil, err
	}

	if m.cfg.MaxBackupsPerUser > 0 {
		n, err := m.registry.CountByUser(actor)
		if err != nil {
			return nil, err
		}
		if n >= int64(m.cfg.MaxBackupsPerUser) {
			return nil, fmt.Errorf("%w: %s already has %d backups", ErrUserQuotaExceeded, actor, n)
		}
	}

	// First-come-first-served admission: compare-and-increment on the
	// running count, no queueing. Losers of the last slot must retry.
	for {
		n := m.running.Load()
		if n >= int32(m.cfg.MaxConcurrentBackups) {
			return nil, fmt.Errorf("%w: %d already running", ErrTooManyConcurrentBackups, n)
		}
		if m.running.CompareAndSwap(n, n+1) {
			break
		}
	}

	if err := os.MkdirAll(absDir, 0755); err != nil {
		m.running.Add(-1)
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("evalboard_%s_%s.dump", time.Now().Format("20060102_150405"), id[:8])
	if m.cfg.EncryptionEnabled {
		filename += ".enc"
	}

	artifact := &models.BackupArtifact{
		ID:              id,
		Filename:        filename,
		Filepath:        filepath.Join(absDir, filename),
		Status:          models.BackupStatusInProgress,
		Encrypted:       m.cfg.EncryptionEnabled,
		CreatedAt:       time.Now(),
		CreatedBy:       actor,
		DatabaseVersion: m.registry.DatabaseVersion(),
		SchemaVersion:   models.SchemaVersion,
	}

	if err := m.registry.Create(artifact); err != nil {
		m.running.Add(-1)
		return nil, err
	}
	return artifact, nil
}

// resolveAllowedDir cleans dir and checks it lies within an allow-listed root.
func (m *Manager) resolveAllowedDir(dir string) (string, error) {
	absDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("%w: bad directory %q", ErrInvalidArgument, dir)
	}
	for _, root := range m.cfg.AllowedBackupDirs {
		absRoot, err := filepath.Abs(filepath.Clean(root))
		if err != nil {
			continue
		}
		if absDir == absRoot || strings.HasPrefix(absDir, absRoot+string(filepath.Separator)) {
			return absDir, nil
		}
	}
	return "", fmt.Errorf("%w: directory %q is not allow-listed", ErrInvalidArgument, dir)
}

// run drives an admitted backup to a terminal state. The dump process races
// cancellation and the configured timeout; whichever resolves first decides
// the outcome.
func (m *Manager) run(a *models.BackupArtifact) {
	start := time.Now()
	defer m.running.Add(-1)
	defer m.tracker.Clear(a.ID)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PgDumpTimeout)
	defer cancel()

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.tracker.IsCancelled(a.ID) {
					cancel()
					return
				}
			}
		}
	}()

	dumpPath := a.Filepath
	if a.Encrypted {
		dumpPath = a.Filepath + ".tmp"
	}

	err := m.runner.Run(ctx, dumpPath)
	close(stop)

	if err != nil {
		switch {
		case m.tracker.IsCancelled(a.ID):
			m.fail(a, start, "Cancelled", models.ErrorClassCancelled, dumpPath)
		case errors.Is(err, context.DeadlineExceeded):
			m.fail(a, start, fmt.Sprintf("dump timed out after %s", m.cfg.PgDumpTimeout), models.ErrorClassTimeout, dumpPath)
		default:
			m.fail(a, start, err.Error(), models.ErrorClassDumpProcess, dumpPath)
		}
		return
	}

	if a.Encrypted {
		if err := encryptFile(dumpPath, a.Filepath, m.cfg.DBPassword); err != nil {
			m.fail(a, start, err.Error(), models.ErrorClassStorage, dumpPath, a.Filepath)
			return
		}
		os.Remove(dumpPath)
	}

	info, err := os.Stat(a.Filepath)
	if err != nil {
		m.fail(a, start, fmt.Sprintf("stat after dump: %v", err), models.ErrorClassStorage, a.Filepath)
		return
	}

	if max := int64(m.cfg.MaxBackupSizeGB) * gib; max > 0 && info.Size() > max {
		m.fail(a, start, fmt.Sprintf("artifact size %d exceeds %dGB limit", info.Size(), m.cfg.MaxBackupSizeGB), models.ErrorClassSizeExceeded, a.Filepath)
		return
	}

	checksum, err := FileChecksum(a.Filepath)
	if err != nil {
		m.fail(a, start, err.Error(), models.ErrorClassStorage, a.Filepath)
		return
	}

	duration := int64(time.Since(start).Seconds())
	if err := m.registry.MarkSuccess(a.ID, info.Size(), checksum, duration); err != nil {
		log.Printf("LifecycleManager: failed to record success for %s: %v", a.ID, err)
		return
	}

	log.Printf("LifecycleManager: backup %s completed (%s, %d bytes, %ds)", a.ID, a.Filename, info.Size(), duration)

	m.replicate(a)
}

// fail records a terminal failure and removes any partial files. One
// artifact's failure never leaves the registry stuck in_progress.
func (m *Manager) fail(a *models.BackupArtifact, start time.Time, reason string, class models.ErrorClass, partials ...string) {
	for _, p := range partials {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("LifecycleManager: failed to remove partial file %s: %v", p, err)
		}
	}

	duration := int64(time.Since(start).Seconds())
	if err := m.registry.MarkFailed(a.ID, reason, duration); err != nil && !errors.Is(err, ErrTerminalState) {
		log.Printf("LifecycleManager: failed to record failure for %s: %v", a.ID, err)
	}
	m.reporter.Record(class, a.ID, reason)
	log.Printf("LifecycleManager: backup %s failed: %s", a.ID, reason)
}

// replicate pushes a completed artifact offsite when FTP replication is
// enabled. Replication failure is recorded but never fails the local backup.
func (m *Manager) replicate(a *models.BackupArtifact) {
	settings, err := m.registry.Settings()
	if err != nil || !settings.FTPEnabled {
		return
	}
	if err := uploadToFTP(settings, a.Filepath, a.Filename); err != nil {
		m.reporter.Record(models.ErrorClassReplication, a.ID, err.Error())
		log.Printf("LifecycleManager: FTP replication failed for %s: %v", a.ID, err)
		return
	}
	log.Printf("LifecycleManager: replicated %s to ftp://%s%s", a.Filename, settings.FTPHost, settings.FTPPath)
}

// ReconcileStale marks in_progress artifacts older than the dump timeout
// (plus grace) as failed. Covers the accepted gap where the orchestrator
// crashed between launching a process and recording its exit.
func (m *Manager) ReconcileStale() int {
	stale, err := m.registry.StaleInProgress(m.cfg.PgDumpTimeout + 10*time.Minute)
	if err != nil {
		log.Printf("LifecycleManager: stale scan failed: %v", err)
		return 0
	}

	reconciled := 0
	for _, a := range stale {
		if err := m.registry.MarkFailed(a.ID, "stale in_progress run reconciled as failed", 0); err != nil {
			continue
		}
		if err := os.Remove(a.Filepath); err != nil && !os.IsNotExist(err) {
			log.Printf("LifecycleManager: failed to remove stale file %s: %v", a.Filepath, err)
		}
		m.reporter.Record(models.ErrorClassTimeout, a.ID, "stale in_progress run reconciled as failed")
		reconciled++
	}
	if reconciled > 0 {
		log.Printf("LifecycleManager: reconciled %d stale run(s)", reconciled)
	}
	return reconciled
}
