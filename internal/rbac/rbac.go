// Package rbac decides whether an authenticated user may perform a backup
// operation. The matrix is a closed mapping over closed enums: every
// role/operation pair is listed explicitly and the table is validated at
// startup, so a typo cannot fall through to "no permission" or "all
// permission" silently.
package rbac

import (
	"errors"
	"fmt"

	"github.com/evalboard/backend/internal/models"
)

// Operation is a backup operation subject to the permission matrix
type Operation string

const (
	OpCreate   Operation = "create"
	OpList     Operation = "list"
	OpDownload Operation = "download"
	OpDelete   Operation = "delete"
	OpValidate Operation = "validate"
)

// Operations lists every known operation.
func Operations() []Operation {
	return []Operation{OpCreate, OpList, OpDownload, OpDelete, OpValidate}
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// matrix is the process-wide permission table, read-only after startup.
// Administrative roles get full access, supervisors may inspect and fetch
// artifacts, employees have no backup access at all.
var matrix = map[models.Role]map[Operation]bool{
	models.RoleSuperAdmin: {
		OpCreate:   true,
		OpList:     true,
		OpDownload: true,
		OpDelete:   true,
		OpValidate: true,
	},
	models.RoleAdmin: {
		OpCreate:   true,
		OpList:     true,
		OpDownload: true,
		OpDelete:   true,
		OpValidate: true,
	},
	models.RoleSupervisor: {
		OpCreate:   false,
		OpList:     true,
		OpDownload: true,
		OpDelete:   false,
		OpValidate: false,
	},
	models.RoleEmployee: {
		OpCreate:   false,
		OpList:     false,
		OpDownload: false,
		OpDelete:   false,
		OpValidate: false,
	},
}

// Validate checks the matrix is exhaustive over roles and operations.
// Called once from main; a gap is a programming error, not a runtime policy.
func Validate() error {
	for _, role := range models.Roles() {
		perms, ok := matrix[role]
		if !ok {
			return fmt.Errorf("rbac: role %q missing from permission matrix", role)
		}
		for _, op := range Operations() {
			if _, ok := perms[op]; !ok {
				return fmt.Errorf("rbac: role %q missing entry for operation %q", role, op)
			}
		}
	}
	return nil
}

// Authorize is a pure decision over already-authenticated input. A nil user
// is unauthenticated; a known user with no grant for op is forbidden.
func Authorize(user *models.User, op Operation) error {
	if user == nil {
		return ErrUnauthenticated
	}
	perms, ok := matrix[user.Role]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, user.Role)
	}
	if !perms[op] {
		return fmt.Errorf("%w: role %q may not %s backups", ErrForbidden, user.Role, op)
	}
	return nil
}

// Allowed returns the set of operations granted to a role, for display.
func Allowed(role models.Role) []Operation {
	var ops []Operation
	for _, op := range Operations() {
		if matrix[role][op] {
			ops = append(ops, op)
		}
	}
	return ops
}
