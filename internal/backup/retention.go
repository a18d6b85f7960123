package backup

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/report"
)

// CleanupResult summarizes one retention sweep.
type CleanupResult struct {
	Removed    int      `json:"removed"`
	FreedSpace int64    `json:"freed_space"`
	Errors     []string `json:"errors"`
}

// Sweeper evicts artifacts violating the age, count and storage budgets.
// It is the only component that deletes an artifact's file/record pair:
// file first, record only after the file deletion succeeded, so an artifact
// is never half-deleted. in_progress artifacts are never evicted.
type Sweeper struct {
	registry *Registry
	reporter *report.Reporter

	// Guards against overlapping sweeps; two concurrent sweeps racing the
	// same eviction candidate would double-count freed space.
	mu sync.Mutex
}

func NewSweeper(registry *Registry, reporter *report.Reporter) *Sweeper {
	return &Sweeper{registry: registry, reporter: reporter}
}

// Cleanup applies eviction in priority order until all budgets hold:
// (1) artifacts past retentionDays, (2) oldest beyond the count budget,
// (3) oldest until total size fits the storage budget. Per-artifact errors
// are collected, never aborting the sweep; lastCleanup is stamped
// regardless.
func (s *Sweeper) Cleanup() (*CleanupResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	settings, err := s.registry.Settings()
	if err != nil {
		return nil, err
	}

	artifacts, err := s.registry.List()
	if err != nil {
		return nil, err
	}

	// Oldest first; only terminal artifacts are eviction candidates.
	candidates := make([]models.BackupArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Status != models.BackupStatusInProgress {
			candidates = append(candidates, a)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	result := &CleanupResult{}
	evicted := make(map[string]bool)

	// Phase 1: age.
	if settings.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -settings.RetentionDays)
		for _, a := range candidates {
			if a.CreatedAt.Before(cutoff) {
				s.evict(a, result, evicted)
			}
		}
	}

	// Phase 2: count.
	if settings.MaxBackups > 0 {
		remaining := remainingOldestFirst(candidates, evicted)
		if excess := len(remaining) - settings.MaxBackups; excess > 0 {
			for _, a := range remaining[:excess] {
				s.evict(a, result, evicted)
			}
		}
	}

	// Phase 3: total size.
	if settings.MaxStorageSizeGB > 0 {
		budget := int64(settings.MaxStorageSizeGB) * gib
		remaining := remainingOldestFirst(candidates, evicted)
		var total int64
		for _, a := range remaining {
			total += a.Size
		}
		for _, a := range remaining {
			if total <= budget {
				break
			}
			size := a.Size
			if s.evict(a, result, evicted) {
				total -= size
			}
		}
	}

	if err := s.registry.TouchLastCleanup(time.Now()); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to update last cleanup time: %v", err))
	}

	log.Printf("RetentionSweeper: removed %d artifact(s), freed %d bytes, %d error(s)",
		result.Removed, result.FreedSpace, len(result.Errors))
	return result, nil
}

func remainingOldestFirst(candidates []models.BackupArtifact, evicted map[string]bool) []models.BackupArtifact {
	out := make([]models.BackupArtifact, 0, len(candidates))
	for _, a := range candidates {
		if !evicted[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// evict deletes the file, then the record. A file deletion failure leaves
// the registry entry intact for retry on the next sweep.
func (s *Sweeper) evict(a models.BackupArtifact, result *CleanupResult, evicted map[string]bool) bool {
	freed := a.Size
	if info, err := os.Stat(a.Filepath); err == nil {
		freed = info.Size()
	}

	if err := os.Remove(a.Filepath); err != nil && !os.IsNotExist(err) {
		msg := fmt.Sprintf("failed to delete file for %s: %v", a.ID, err)
		result.Errors = append(result.Errors, msg)
		s.reporter.Record(models.ErrorClassStorage, a.ID, msg)
		return false
	}

	if err := s.registry.Delete(a.ID); err != nil {
		msg := fmt.Sprintf("failed to delete registry entry for %s: %v", a.ID, err)
		result.Errors = append(result.Errors, msg)
		s.reporter.Record(models.ErrorClassStorage, a.ID, msg)
		return false
	}

	evicted[a.ID] = true
	result.Removed++
	result.FreedSpace += freed
	return true
}

// RemoveArtifact evicts a single terminal artifact on behalf of an admin
// delete. Routing it through the sweeper keeps the file-then-record ordering
// in one place, and taking the sweep lock keeps it from interleaving with a
// running Cleanup on the same artifact.
func (s *Sweeper) RemoveArtifact(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if a.Status == models.BackupStatusInProgress {
		return fmt.Errorf("%w: backup %s is still in progress", ErrInvalidArgument, id)
	}

	if err := os.Remove(a.Filepath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return s.registry.Delete(id)
}
