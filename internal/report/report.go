// Package report classifies backup failures, aggregates them over a time
// window, and records admin actions with before/after snapshots.
package report

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/evalboard/backend/internal/models"
)

const (
	minReportDays = 1
	maxReportDays = 365
)

// ErrInvalidDayRange is returned for day windows outside 1-365. Out of range
// is a caller error, never silently clamped to a default.
var ErrInvalidDayRange = fmt.Errorf("days must be between %d and %d", minReportDays, maxReportDays)

type Reporter struct {
	db *gorm.DB
}

func NewReporter(db *gorm.DB) *Reporter {
	return &Reporter{db: db}
}

// Record stores a classified failure. Failures here are advisory telemetry;
// a write error is logged, never propagated into the failing operation.
func (r *Reporter) Record(class models.ErrorClass, backupID, message string) {
	rec := models.ErrorRecord{
		Class:    class,
		BackupID: backupID,
		Message:  message,
	}
	if err := r.db.Create(&rec).Error; err != nil {
		log.Printf("Reporter: failed to record error (%s): %v", class, err)
	}
}

// ErrorStats aggregates recorded failures over the trailing day window.
type ErrorStats struct {
	Days    int                         `json:"days"`
	From    time.Time                   `json:"from"`
	To      time.Time                   `json:"to"`
	Total   int64                       `json:"total"`
	ByClass map[models.ErrorClass]int64 `json:"by_class"`
}

// GetErrorStats aggregates error counts by classification for the last
// `days` days.
func (r *Reporter) GetErrorStats(days int) (*ErrorStats, error) {
	if days < minReportDays || days > maxReportDays {
		return nil, ErrInvalidDayRange
	}

	now := time.Now()
	from := now.AddDate(0, 0, -days)

	stats := &ErrorStats{
		Days:    days,
		From:    from,
		To:      now,
		ByClass: make(map[models.ErrorClass]int64),
	}

	type row struct {
		Class models.ErrorClass
		N     int64
	}
	var rows []row
	err := r.db.Model(&models.ErrorRecord{}).
		Select("class, COUNT(*) as n").
		Where("created_at >= ?", from).
		Group("class").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate error records: %w", err)
	}

	for _, rw := range rows {
		stats.ByClass[rw.Class] = rw.N
		stats.Total += rw.N
	}
	return stats, nil
}

// ErrorReport is the structured report; Text renders it for humans.
type ErrorReport struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Stats       *ErrorStats          `json:"stats"`
	Recent      []models.ErrorRecord `json:"recent"`
}

// GenerateErrorReport builds a report over the last `days` days, including
// the most recent individual records.
func (r *Reporter) GenerateErrorReport(days int) (*ErrorReport, error) {
	stats, err := r.GetErrorStats(days)
	if err != nil {
		return nil, err
	}

	var recent []models.ErrorRecord
	err = r.db.Where("created_at >= ?", stats.From).
		Order("created_at DESC").
		Limit(50).
		Find(&recent).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load error records: %w", err)
	}

	return &ErrorReport{
		GeneratedAt: time.Now(),
		Stats:       stats,
		Recent:      recent,
	}, nil
}

// Text renders the report as plain text.
func (rep *ErrorReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backup error report - last %d day(s)\n", rep.Stats.Days)
	fmt.Fprintf(&b, "Generated: %s\n", rep.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Window:    %s .. %s\n", rep.Stats.From.Format("2006-01-02"), rep.Stats.To.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total errors: %d\n\n", rep.Stats.Total)

	classes := make([]string, 0, len(rep.Stats.ByClass))
	for class := range rep.Stats.ByClass {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)
	for _, class := range classes {
		fmt.Fprintf(&b, "  %-15s %d\n", class, rep.Stats.ByClass[models.ErrorClass(class)])
	}

	if len(rep.Recent) > 0 {
		b.WriteString("\nMost recent:\n")
		for _, rec := range rep.Recent {
			fmt.Fprintf(&b, "  [%s] %s backup=%s %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Class, rec.BackupID, rec.Message)
		}
	}
	return b.String()
}

// LogAdminAction appends an audit entry. Entries are append-only; OldValue
// carries the pre-action snapshot so changes can be reconstructed later.
func (r *Reporter) LogAdminAction(actor *models.User, action models.AuditAction, entityType, entityID string, oldValue, newValue interface{}, description, ip, userAgent string) {
	if actor == nil {
		return
	}

	entry := models.AuditLog{
		UserID:      actor.ID,
		Username:    actor.Username,
		Role:        actor.Role,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		OldValue:    marshalSnapshot(oldValue),
		NewValue:    marshalSnapshot(newValue),
		Description: description,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}
	if err := r.db.Create(&entry).Error; err != nil {
		log.Printf("Reporter: failed to write audit log: %v", err)
	}
}

func marshalSnapshot(v interface{}) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// PruneAudit drops audit entries and error records older than the retention
// window. Returns the number of rows removed.
func (r *Reporter) PruneAudit(retentionDays int) int64 {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var removed int64
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if res.Error != nil {
		log.Printf("Reporter: audit prune failed: %v", res.Error)
	} else {
		removed += res.RowsAffected
	}

	res = r.db.Where("created_at < ?", cutoff).Delete(&models.ErrorRecord{})
	if res.Error != nil {
		log.Printf("Reporter: error record prune failed: %v", res.Error)
	} else {
		removed += res.RowsAffected
	}
	return removed
}
