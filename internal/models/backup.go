package models

import (
	"time"
)

// BackupStatus represents the lifecycle state of a backup artifact
type BackupStatus string

const (
	BackupStatusInProgress BackupStatus = "in_progress"
	BackupStatusSuccess    BackupStatus = "success"
	BackupStatusFailed     BackupStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s BackupStatus) Terminal() bool {
	return s == BackupStatusSuccess || s == BackupStatusFailed
}

// BackupArtifact is one row per attempted backup. Checksum and Size are set
// only when Status is success; a row never leaves a terminal status.
type BackupArtifact struct {
	ID              string       `gorm:"column:id;primaryKey;size:36" json:"id"`
	Filename        string       `gorm:"column:filename;uniqueIndex;size:255;not null" json:"filename"`
	Filepath        string       `gorm:"column:filepath;uniqueIndex;size:500;not null" json:"filepath"`
	Size            int64        `gorm:"column:size;default:0" json:"size"`
	Checksum        string       `gorm:"column:checksum;size:64" json:"checksum"`
	Status          BackupStatus `gorm:"column:status;size:20;not null;index" json:"status"`
	FailureReason   string       `gorm:"column:failure_reason;size:500" json:"failure_reason,omitempty"`
	Encrypted       bool         `gorm:"column:encrypted;default:false" json:"encrypted"`
	CreatedAt       time.Time    `gorm:"column:created_at;index" json:"created_at"`
	CreatedBy       string       `gorm:"column:created_by;size:100" json:"created_by"`
	Duration        int64        `gorm:"column:duration;default:0" json:"duration"` // seconds
	DatabaseVersion string       `gorm:"column:database_version;size:100" json:"database_version"`
	SchemaVersion   string       `gorm:"column:schema_version;size:20" json:"schema_version"`
}

func (BackupArtifact) TableName() string {
	return "backup_artifacts"
}

// BackupSettings is the single mutable settings row the registry owns.
// Defaults come from the environment config; Update and Reset go through
// the settings handler and are audited.
type BackupSettings struct {
	ID               uint       `gorm:"column:id;primaryKey" json:"id"`
	MaxBackups       int        `gorm:"column:max_backups;default:30" json:"max_backups"`
	RetentionDays    int        `gorm:"column:retention_days;default:30" json:"retention_days"`
	DefaultDirectory string     `gorm:"column:default_directory;size:500" json:"default_directory"`
	MaxStorageSizeGB int        `gorm:"column:max_storage_size_gb;default:50" json:"max_storage_size_gb"`
	LastCleanup      *time.Time `gorm:"column:last_cleanup" json:"last_cleanup"`

	// Offsite replication
	FTPEnabled  bool   `gorm:"column:ftp_enabled;default:false" json:"ftp_enabled"`
	FTPHost     string `gorm:"column:ftp_host;size:255" json:"ftp_host"`
	FTPPort     int    `gorm:"column:ftp_port;default:21" json:"ftp_port"`
	FTPUsername string `gorm:"column:ftp_username;size:100" json:"ftp_username"`
	FTPPassword string `gorm:"column:ftp_password;size:255" json:"-"`
	FTPPath     string `gorm:"column:ftp_path;size:255;default:/backups" json:"ftp_path"`

	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (BackupSettings) TableName() string {
	return "backup_settings"
}

// BackupStats is the aggregate view over the registry at a single instant.
type BackupStats struct {
	Total        int64      `json:"total"`
	Successful   int64      `json:"successful"`
	Failed       int64      `json:"failed"`
	InProgress   int64      `json:"in_progress"`
	TotalSize    int64      `json:"total_size"`
	OldestBackup *time.Time `json:"oldest_backup"`
	NewestBackup *time.Time `json:"newest_backup"`
}
