// Package services hosts the background jobs that run alongside the API.
package services

import (
	"log"

	"github.com/robfig/cron/v3"

	"github.com/evalboard/backend/internal/backup"
	"github.com/evalboard/backend/internal/config"
	"github.com/evalboard/backend/internal/report"
)

// CleanupScheduler runs the nightly maintenance pass: stale run
// reconciliation, retention sweep and audit pruning.
type CleanupScheduler struct {
	cfg      *config.Config
	manager  *backup.Manager
	sweeper  *backup.Sweeper
	reporter *report.Reporter
	cron     *cron.Cron
}

func NewCleanupScheduler(cfg *config.Config, manager *backup.Manager, sweeper *backup.Sweeper, reporter *report.Reporter) *CleanupScheduler {
	return &CleanupScheduler{
		cfg:      cfg,
		manager:  manager,
		sweeper:  sweeper,
		reporter: reporter,
		cron:     cron.New(),
	}
}

// Start registers the maintenance job and starts the cron loop. An invalid
// schedule expression is a configuration error and is returned, not logged
// away.
func (s *CleanupScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.CleanupSchedule, s.runMaintenance)
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("CleanupScheduler: started with schedule %q", s.cfg.CleanupSchedule)
	return nil
}

// Stop halts the cron loop. Already-running jobs finish.
func (s *CleanupScheduler) Stop() {
	s.cron.Stop()
	log.Println("CleanupScheduler: stopped")
}

func (s *CleanupScheduler) runMaintenance() {
	log.Println("CleanupScheduler: maintenance pass starting")

	if n := s.manager.ReconcileStale(); n > 0 {
		log.Printf("CleanupScheduler: reconciled %d stale backup(s)", n)
	}

	result, err := s.sweeper.Cleanup()
	if err != nil {
		// ErrSweepInProgress here means an admin triggered a manual sweep
		// at the same moment; the budgets will be enforced by that sweep.
		log.Printf("CleanupScheduler: retention sweep skipped: %v", err)
	} else if result.Removed > 0 || len(result.Errors) > 0 {
		log.Printf("CleanupScheduler: retention sweep removed %d backup(s), %d error(s)", result.Removed, len(result.Errors))
	}

	if removed := s.reporter.PruneAudit(s.cfg.AuditRetentionDays); removed > 0 {
		log.Printf("CleanupScheduler: pruned %d audit/error row(s)", removed)
	}
}
