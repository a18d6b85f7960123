package backup

import (
	"fmt"
	"os"
	"strings"

	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/report"
)

// pgDumpMagic is the leading bytes of a pg_dump custom-format archive.
const pgDumpMagic = "PGDMP"

// ValidationResult reports both integrity checks for an artifact. IsValid is
// true only when the checksum matches and the structure looks sane.
type ValidationResult struct {
	BackupID          string   `json:"backup_id"`
	IsValid           bool     `json:"is_valid"`
	Checksum          string   `json:"checksum"`
	Size              int64    `json:"size"`
	ChecksumMatch     bool     `json:"checksum_match"`
	HasValidStructure bool     `json:"has_valid_structure"`
	Errors            []string `json:"errors"`
}

// Validator independently verifies stored artifacts. It never mutates the
// registry: validation is advisory, not authoritative over lifecycle state.
type Validator struct {
	registry *Registry
	reporter *report.Reporter
}

func NewValidator(registry *Registry, reporter *report.Reporter) *Validator {
	return &Validator{registry: registry, reporter: reporter}
}

// Validate recomputes the artifact's checksum from disk and checks the file
// parses as a well-formed dump. Mismatches are recorded, never corrected.
func (v *Validator) Validate(id string) (*ValidationResult, error) {
	artifact, err := v.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if artifact.Status != models.BackupStatusSuccess {
		return nil, fmt.Errorf("%w: backup %s has status %s, only successful backups can be validated", ErrInvalidArgument, id, artifact.Status)
	}

	result := &ValidationResult{BackupID: id}

	info, err := os.Stat(artifact.Filepath)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("artifact file missing or unreadable: %v", err))
		v.report(result)
		return result, nil
	}
	result.Size = info.Size()

	checksum, err := FileChecksum(artifact.Filepath)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("checksum computation failed: %v", err))
	} else {
		result.Checksum = checksum
		result.ChecksumMatch = checksum == artifact.Checksum
		if !result.ChecksumMatch {
			result.Errors = append(result.Errors, fmt.Sprintf("checksum mismatch: stored %s, computed %s", artifact.Checksum, checksum))
		}
	}

	structureErr := checkStructure(artifact.Filepath)
	result.HasValidStructure = structureErr == nil
	if structureErr != nil {
		result.Errors = append(result.Errors, structureErr.Error())
	}

	result.IsValid = result.ChecksumMatch && result.HasValidStructure
	if !result.IsValid {
		v.report(result)
	}
	return result, nil
}

func (v *Validator) report(result *ValidationResult) {
	v.reporter.Record(models.ErrorClassIntegrity, result.BackupID, strings.Join(result.Errors, "; "))
}

// checkStructure verifies the file carries a known dump header: either the
// pg_dump custom-format magic or the encrypted artifact magic.
func checkStructure(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open artifact: %v", err)
	}
	defer f.Close()

	header := make([]byte, len(encryptedMagic))
	n, _ := f.Read(header)
	head := string(header[:n])

	if strings.HasPrefix(head, pgDumpMagic) || strings.HasPrefix(head, encryptedMagic) {
		return nil
	}
	return fmt.Errorf("unrecognized dump header, artifact is not a well-formed backup")
}
