package backup

import "errors"

// Error taxonomy for the backup core. Handlers map these onto HTTP status
// codes; everything else wraps one of these so errors.Is works end to end.
var (
	ErrNotFound                 = errors.New("backup not found")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrTooManyConcurrentBackups = errors.New("too many concurrent backups")
	ErrUserQuotaExceeded        = errors.New("backup quota for user exceeded")
	ErrDumpProcessFailed        = errors.New("dump process failed")
	ErrIntegrityMismatch        = errors.New("integrity mismatch")
	ErrStorageError             = errors.New("storage error")
	ErrTerminalState            = errors.New("artifact already in terminal state")
	ErrSweepInProgress          = errors.New("retention sweep already running")
)
