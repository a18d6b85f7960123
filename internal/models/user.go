package models

import (
	"time"

	"gorm.io/gorm"
)

// Role represents a panel user's role
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleEmployee   Role = "employee"
)

// Roles lists every known role. The rbac matrix is validated against this
// set at startup so a new role cannot silently fall through.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleSupervisor, RoleEmployee}
}

// Valid reports whether r belongs to the closed set of roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleSupervisor, RoleEmployee:
		return true
	}
	return false
}

// User represents a panel user (admin, supervisor, employee)
type User struct {
	ID        uint           `gorm:"column:id;primaryKey" json:"id"`
	Username  string         `gorm:"column:username;uniqueIndex;size:100;not null" json:"username"`
	Password  string         `gorm:"column:password;size:255;not null" json:"-"`
	Email     string         `gorm:"column:email;size:255" json:"email"`
	FullName  string         `gorm:"column:full_name;size:255" json:"full_name"`
	Role      Role           `gorm:"column:role;size:20;default:employee;index" json:"role"`
	IsActive  bool           `gorm:"column:is_active;default:true" json:"is_active"`
	LastLogin *time.Time     `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
