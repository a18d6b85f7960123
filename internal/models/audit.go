package models

import (
	"time"
)

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionUpdate   AuditAction = "update"
	AuditActionDelete   AuditAction = "delete"
	AuditActionCancel   AuditAction = "cancel"
	AuditActionValidate AuditAction = "validate"
	AuditActionLogin    AuditAction = "login"
	AuditActionLogout   AuditAction = "logout"
	AuditActionReset    AuditAction = "reset"
)

// AuditLog is an append-only record of an admin action. OldValue captures
// the pre-action state so a change can be reconstructed without replaying it.
type AuditLog struct {
	ID          uint        `gorm:"column:id;primaryKey" json:"id"`
	UserID      uint        `gorm:"column:user_id;index" json:"user_id"`
	Username    string      `gorm:"column:username;size:100" json:"username"`
	Role        Role        `gorm:"column:role;size:20" json:"role"`
	Action      AuditAction `gorm:"column:action;size:50;not null;index" json:"action"`
	EntityType  string      `gorm:"column:entity_type;size:50;index" json:"entity_type"`
	EntityID    string      `gorm:"column:entity_id;size:100;index" json:"entity_id"`
	OldValue    string      `gorm:"column:old_value;type:text" json:"old_value"`
	NewValue    string      `gorm:"column:new_value;type:text" json:"new_value"`
	Description string      `gorm:"column:description;size:500" json:"description"`
	IPAddress   string      `gorm:"column:ip_address;size:50" json:"ip_address"`
	UserAgent   string      `gorm:"column:user_agent;size:255" json:"user_agent"`
	CreatedAt   time.Time   `gorm:"column:created_at;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// ErrorClass tags a recorded failure for aggregation
type ErrorClass string

const (
	ErrorClassDumpProcess  ErrorClass = "dump_process"
	ErrorClassTimeout      ErrorClass = "timeout"
	ErrorClassCancelled    ErrorClass = "cancelled"
	ErrorClassStorage      ErrorClass = "storage"
	ErrorClassIntegrity    ErrorClass = "integrity"
	ErrorClassSizeExceeded ErrorClass = "size_exceeded"
	ErrorClassReplication  ErrorClass = "replication"
)

// ErrorRecord is a classified failure used only in aggregate by the reporter.
type ErrorRecord struct {
	ID        uint       `gorm:"column:id;primaryKey" json:"id"`
	Class     ErrorClass `gorm:"column:class;size:30;not null;index" json:"class"`
	BackupID  string     `gorm:"column:backup_id;size:36;index" json:"backup_id"`
	Message   string     `gorm:"column:message;size:1000" json:"message"`
	CreatedAt time.Time  `gorm:"column:created_at;index" json:"created_at"`
}

func (ErrorRecord) TableName() string {
	return "error_records"
}
