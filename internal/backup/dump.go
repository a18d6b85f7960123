package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/evalboard/backend/internal/config"
)

// DumpRunner produces a database dump at destPath. The context bounds the
// process: cancellation or deadline expiry kills it.
type DumpRunner interface {
	Run(ctx context.Context, destPath string) error
}

// PgDumpRunner invokes pg_dump in custom format against the configured
// database. Success is signaled by exit code zero.
type PgDumpRunner struct {
	cfg *config.Config
}

func NewPgDumpRunner(cfg *config.Config) *PgDumpRunner {
	return &PgDumpRunner{cfg: cfg}
}

func (r *PgDumpRunner) Run(ctx context.Context, destPath string) error {
	args := []string{
		"-h", r.cfg.DBHost,
		"-p", strconv.Itoa(r.cfg.DBPort),
		"-U", r.cfg.DBUser,
		"-d", r.cfg.DBName,
		"-Fc",
		"-f", destPath,
		"--no-owner",
		"--no-acl",
	}
	if r.cfg.CompressionEnabled {
		args = append(args, "-Z", strconv.Itoa(r.cfg.CompressionLevel))
	}

	cmd := exec.CommandContext(ctx, r.cfg.PgDumpPath, args...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+r.cfg.DBPassword)

	output, err := cmd.CombinedOutput()
	if err != nil {
		// Context errors win over the generic exit error so the caller can
		// tell a kill from a genuine dump failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %s", ErrDumpProcessFailed, err, bytes.TrimSpace(output))
	}
	return nil
}
