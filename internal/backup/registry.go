package backup

import (
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/evalboard/backend/internal/models"
)

// Registry is the sole source of truth for which backups exist. Rows are
// appended for new artifacts and updated in place by id; the filesystem is a
// derived view reconciled by the sweeper.
//
// Status transitions for a single artifact are serialized through a striped
// lock so two writers can never race the same row, and a terminal row is
// never transitioned again.
type Registry struct {
	db       *gorm.DB
	defaults models.BackupSettings
	locks    [32]sync.Mutex
}

func NewRegistry(db *gorm.DB, defaults models.BackupSettings) *Registry {
	return &Registry{db: db, defaults: defaults}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%uint32(len(r.locks))]
}

// Create appends a new artifact row. Status must be in_progress; checksum
// and size must be unset.
func (r *Registry) Create(a *models.BackupArtifact) error {
	if a.Status != models.BackupStatusInProgress {
		return fmt.Errorf("%w: new artifacts must start in_progress", ErrInvalidArgument)
	}
	if a.Checksum != "" || a.Size != 0 {
		return fmt.Errorf("%w: checksum and size are set on success only", ErrInvalidArgument)
	}
	if err := r.db.Create(a).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return nil
}

// Get returns the artifact with the given id.
func (r *Registry) Get(id string) (*models.BackupArtifact, error) {
	var a models.BackupArtifact
	if err := r.db.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return &a, nil
}

// List returns all artifacts, newest first. Order matters only for display.
func (r *Registry) List() ([]models.BackupArtifact, error) {
	var artifacts []models.BackupArtifact
	if err := r.db.Order("created_at DESC").Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return artifacts, nil
}

// CountByUser returns the number of a user's artifacts that count against
// the per-user quota. Failed runs are excluded; a streak of failures must
// not lock a user out until the next sweep.
func (r *Registry) CountByUser(username string) (int64, error) {
	var n int64
	err := r.db.Model(&models.BackupArtifact{}).
		Where("created_by = ? AND status <> ?", username, models.BackupStatusFailed).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return n, nil
}

// MarkSuccess transitions an in_progress artifact to success and records the
// fields that only exist for completed artifacts.
func (r *Registry) MarkSuccess(id string, size int64, checksum string, duration int64) error {
	return r.transition(id, func(a *models.BackupArtifact) {
		a.Status = models.BackupStatusSuccess
		a.Size = size
		a.Checksum = checksum
		a.Duration = duration
		a.FailureReason = ""
	})
}

// MarkFailed transitions an in_progress artifact to failed. Checksum and
// size stay empty for failed artifacts.
func (r *Registry) MarkFailed(id string, reason string, duration int64) error {
	return r.transition(id, func(a *models.BackupArtifact) {
		a.Status = models.BackupStatusFailed
		a.FailureReason = reason
		a.Duration = duration
		a.Size = 0
		a.Checksum = ""
	})
}

func (r *Registry) transition(id string, mutate func(*models.BackupArtifact)) error {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if a.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, id, a.Status)
	}
	mutate(a)
	if err := r.db.Save(a).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return nil
}

// Delete removes an artifact row. Callers must have deleted the file first;
// the sweeper is the only component that evicts artifacts.
func (r *Registry) Delete(id string) error {
	res := r.db.Delete(&models.BackupArtifact{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates the registry inside one transaction so the numbers
// reflect a single instant with no torn reads.
func (r *Registry) Stats() (*models.BackupStats, error) {
	stats := &models.BackupStats{}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.BackupArtifact{}).Count(&stats.Total).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.BackupArtifact{}).Where("status = ?", models.BackupStatusSuccess).Count(&stats.Successful).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.BackupArtifact{}).Where("status = ?", models.BackupStatusFailed).Count(&stats.Failed).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.BackupArtifact{}).Where("status = ?", models.BackupStatusInProgress).Count(&stats.InProgress).Error; err != nil {
			return err
		}
		var totalSize sql.NullInt64
		if err := tx.Model(&models.BackupArtifact{}).Select("SUM(size)").Scan(&totalSize).Error; err != nil {
			return err
		}
		if totalSize.Valid {
			stats.TotalSize = totalSize.Int64
		}
		if stats.Total > 0 {
			var oldest, newest models.BackupArtifact
			if err := tx.Order("created_at ASC").First(&oldest).Error; err != nil {
				return err
			}
			if err := tx.Order("created_at DESC").First(&newest).Error; err != nil {
				return err
			}
			stats.OldestBackup = &oldest.CreatedAt
			stats.NewestBackup = &newest.CreatedAt
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return stats, nil
}

// StaleInProgress returns in_progress artifacts older than the cutoff, for
// crash reconciliation.
func (r *Registry) StaleInProgress(olderThan time.Duration) ([]models.BackupArtifact, error) {
	cutoff := time.Now().Add(-olderThan)
	var artifacts []models.BackupArtifact
	err := r.db.Where("status = ? AND created_at < ?", models.BackupStatusInProgress, cutoff).
		Find(&artifacts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return artifacts, nil
}

// Settings returns the mutable settings row, creating it from the configured
// defaults on first use.
func (r *Registry) Settings() (*models.BackupSettings, error) {
	var s models.BackupSettings
	err := r.db.First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = r.defaults
		s.ID = 0
		if err := r.db.Create(&s).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
		}
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return &s, nil
}

// UpdateSettings persists changed settings fields.
func (r *Registry) UpdateSettings(s *models.BackupSettings) error {
	if err := r.db.Save(s).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return nil
}

// ResetSettings restores the configured defaults, preserving lastCleanup.
func (r *Registry) ResetSettings() (*models.BackupSettings, error) {
	current, err := r.Settings()
	if err != nil {
		return nil, err
	}
	fresh := r.defaults
	fresh.ID = current.ID
	fresh.LastCleanup = current.LastCleanup
	if err := r.db.Save(&fresh).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return &fresh, nil
}

// TouchLastCleanup stamps the settings row after a sweep, successful or not.
func (r *Registry) TouchLastCleanup(at time.Time) error {
	s, err := r.Settings()
	if err != nil {
		return err
	}
	s.LastCleanup = &at
	return r.UpdateSettings(s)
}

// DatabaseVersion reports the server version for provenance metadata.
// Best effort: an error just leaves the field empty.
func (r *Registry) DatabaseVersion() string {
	var v string
	r.db.Raw("SELECT version()").Scan(&v)
	return v
}
