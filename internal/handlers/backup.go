package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/evalboard/backend/internal/backup"
	"github.com/evalboard/backend/internal/middleware"
	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/report"
)

type BackupHandler struct {
	manager   *backup.Manager
	registry  *backup.Registry
	validator *backup.Validator
	sweeper   *backup.Sweeper
	reporter  *report.Reporter
}

func NewBackupHandler(manager *backup.Manager, registry *backup.Registry, validator *backup.Validator, sweeper *backup.Sweeper, reporter *report.Reporter) *BackupHandler {
	return &BackupHandler{
		manager:   manager,
		registry:  registry,
		validator: validator,
		sweeper:   sweeper,
		reporter:  reporter,
	}
}

// CreateBackupRequest represents create backup request
type CreateBackupRequest struct {
	Directory string `json:"directory"`
}

// Create starts a new backup run. The run continues in the background; the
// response carries the in_progress artifact.
func (h *BackupHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req CreateBackupRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	artifact, err := h.manager.Start(backup.CreateOptions{Directory: req.Directory}, user.Username)
	if err != nil {
		return backupError(c, err)
	}

	h.reporter.LogAdminAction(user, models.AuditActionCreate, "backup", artifact.ID, nil, artifact,
		"Backup started", c.IP(), c.Get("User-Agent"))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Backup started",
		"data":    artifact,
	})
}

// List returns all registered backups, newest first.
func (h *BackupHandler) List(c *fiber.Ctx) error {
	artifacts, err := h.registry.List()
	if err != nil {
		return backupError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    artifacts,
	})
}

// Get returns a single backup.
func (h *BackupHandler) Get(c *fiber.Ctx) error {
	artifact, err := h.registry.Get(c.Params("id"))
	if err != nil {
		return backupError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    artifact,
	})
}

// Stats returns the aggregate registry view.
func (h *BackupHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.registry.Stats()
	if err != nil {
		return backupError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// Cancel requests cooperative cancellation of a running backup. Always
// accepted: cancelling an unknown or already-finished backup is a no-op.
func (h *BackupHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")
	user := middleware.GetCurrentUser(c)

	h.manager.Cancel(id)

	h.reporter.LogAdminAction(user, models.AuditActionCancel, "backup", id, nil, nil,
		"Backup cancellation requested", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cancellation requested",
	})
}

// Validate re-verifies a stored backup's checksum and structure.
func (h *BackupHandler) Validate(c *fiber.Ctx) error {
	id := c.Params("id")
	user := middleware.GetCurrentUser(c)

	result, err := h.validator.Validate(id)
	if err != nil {
		return backupError(c, err)
	}

	h.reporter.LogAdminAction(user, models.AuditActionValidate, "backup", id, nil, result,
		"Backup validated", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// Download streams a successful backup artifact to the caller.
func (h *BackupHandler) Download(c *fiber.Ctx) error {
	artifact, err := h.registry.Get(c.Params("id"))
	if err != nil {
		return backupError(c, err)
	}
	if artifact.Status != models.BackupStatusSuccess {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Only successful backups can be downloaded",
		})
	}
	return c.Download(artifact.Filepath, artifact.Filename)
}

// Delete removes a terminal backup, file first then record.
func (h *BackupHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	user := middleware.GetCurrentUser(c)

	artifact, err := h.registry.Get(id)
	if err != nil {
		return backupError(c, err)
	}

	if err := h.sweeper.RemoveArtifact(id); err != nil {
		return backupError(c, err)
	}

	h.reporter.LogAdminAction(user, models.AuditActionDelete, "backup", id, artifact, nil,
		"Backup deleted", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Backup deleted",
	})
}

// Cleanup triggers a retention sweep immediately.
func (h *BackupHandler) Cleanup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	result, err := h.sweeper.Cleanup()
	if err != nil {
		return backupError(c, err)
	}

	h.reporter.LogAdminAction(user, models.AuditActionDelete, "backup_cleanup", "", nil, result,
		"Manual retention sweep", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// backupError maps domain errors onto HTTP statuses in one place so handlers
// stay uniform.
func backupError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, backup.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, backup.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case errors.Is(err, backup.ErrTooManyConcurrentBackups):
		status = fiber.StatusTooManyRequests
	case errors.Is(err, backup.ErrUserQuotaExceeded):
		status = fiber.StatusTooManyRequests
	case errors.Is(err, backup.ErrSweepInProgress):
		status = fiber.StatusConflict
	case errors.Is(err, backup.ErrTerminalState):
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
	})
}
