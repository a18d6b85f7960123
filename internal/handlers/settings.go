package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/evalboard/backend/internal/backup"
	"github.com/evalboard/backend/internal/middleware"
	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/report"
)

type SettingsHandler struct {
	registry *backup.Registry
	reporter *report.Reporter
}

func NewSettingsHandler(registry *backup.Registry, reporter *report.Reporter) *SettingsHandler {
	return &SettingsHandler{registry: registry, reporter: reporter}
}

// Get returns the current backup settings
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	settings, err := h.registry.Settings()
	if err != nil {
		return backupError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    settings,
	})
}

// UpdateSettingsRequest carries the mutable settings fields.
type UpdateSettingsRequest struct {
	MaxBackups       *int    `json:"max_backups"`
	RetentionDays    *int    `json:"retention_days"`
	DefaultDirectory *string `json:"default_directory"`
	MaxStorageSizeGB *int    `json:"max_storage_size_gb"`

	FTPEnabled  *bool   `json:"ftp_enabled"`
	FTPHost     *string `json:"ftp_host"`
	FTPPort     *int    `json:"ftp_port"`
	FTPUsername *string `json:"ftp_username"`
	FTPPassword *string `json:"ftp_password"`
	FTPPath     *string `json:"ftp_path"`
}

// Update applies a partial settings change. The audit entry carries the
// before and after snapshots.
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	settings, err := h.registry.Settings()
	if err != nil {
		return backupError(c, err)
	}
	before := *settings

	if req.MaxBackups != nil {
		if *req.MaxBackups < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "max_backups must be at least 1",
			})
		}
		settings.MaxBackups = *req.MaxBackups
	}
	if req.RetentionDays != nil {
		if *req.RetentionDays < 1 || *req.RetentionDays > 365 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "retention_days must be between 1 and 365",
			})
		}
		settings.RetentionDays = *req.RetentionDays
	}
	if req.DefaultDirectory != nil {
		settings.DefaultDirectory = *req.DefaultDirectory
	}
	if req.MaxStorageSizeGB != nil {
		if *req.MaxStorageSizeGB < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "max_storage_size_gb must be at least 1",
			})
		}
		settings.MaxStorageSizeGB = *req.MaxStorageSizeGB
	}
	if req.FTPEnabled != nil {
		settings.FTPEnabled = *req.FTPEnabled
	}
	if req.FTPHost != nil {
		settings.FTPHost = *req.FTPHost
	}
	if req.FTPPort != nil {
		settings.FTPPort = *req.FTPPort
	}
	if req.FTPUsername != nil {
		settings.FTPUsername = *req.FTPUsername
	}
	if req.FTPPassword != nil {
		settings.FTPPassword = *req.FTPPassword
	}
	if req.FTPPath != nil {
		settings.FTPPath = *req.FTPPath
	}

	if err := h.registry.UpdateSettings(settings); err != nil {
		return backupError(c, err)
	}

	h.reporter.LogAdminAction(user, models.AuditActionUpdate, "backup_settings", "", before, settings,
		"Backup settings updated", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Settings updated",
		"data":    settings,
	})
}

// Reset restores the environment defaults, keeping the last cleanup stamp.
func (h *SettingsHandler) Reset(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	before, err := h.registry.Settings()
	if err != nil {
		return backupError(c, err)
	}

	settings, err := h.registry.ResetSettings()
	if err != nil {
		return backupError(c, err)
	}

	h.reporter.LogAdminAction(user, models.AuditActionReset, "backup_settings", "", before, settings,
		"Backup settings reset to defaults", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Settings reset to defaults",
		"data":    settings,
	})
}

// TestFTPRequest carries FTP connection parameters to verify.
type TestFTPRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Path     string `json:"path"`
}

// TestFTP verifies the given FTP credentials without saving them.
func (h *SettingsHandler) TestFTP(c *fiber.Ctx) error {
	var req TestFTPRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if req.Port == 0 {
		req.Port = 21
	}

	if err := backup.TestFTPConnection(req.Host, req.Port, req.Username, req.Password, req.Path); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "FTP connection successful",
	})
}
