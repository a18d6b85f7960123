package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/crypto/bcrypt"

	"github.com/evalboard/backend/internal/backup"
	"github.com/evalboard/backend/internal/config"
	"github.com/evalboard/backend/internal/database"
	"github.com/evalboard/backend/internal/handlers"
	"github.com/evalboard/backend/internal/middleware"
	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/rbac"
	"github.com/evalboard/backend/internal/report"
	"github.com/evalboard/backend/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// The permission matrix is validated before anything else touches it.
	if err := rbac.Validate(); err != nil {
		log.Fatalf("Permission matrix is incomplete: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed admin user if not exists
	seedAdminUser()

	// Wire the backup subsystem
	registry := backup.NewRegistry(database.DB, models.BackupSettings{
		MaxBackups:       cfg.MaxBackupsToKeep,
		RetentionDays:    cfg.RetentionDays,
		DefaultDirectory: cfg.BackupDir,
		MaxStorageSizeGB: cfg.MaxStorageSizeGB,
	})
	tracker := backup.NewCancellationTracker()
	runner := backup.NewPgDumpRunner(cfg)
	reporter := report.NewReporter(database.DB)
	manager := backup.NewManager(cfg, registry, tracker, runner, reporter)
	validator := backup.NewValidator(registry, reporter)
	sweeper := backup.NewSweeper(registry, reporter)

	// Runs that were in_progress when the previous process died are
	// reconciled before new ones are admitted.
	manager.ReconcileStale()

	scheduler := services.NewCleanupScheduler(cfg, manager, sweeper, reporter)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start cleanup scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "EvalBoard API v1.0",
		ServerHeader: "EvalBoard",
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "evalboard-api",
		})
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg, reporter)
	backupHandler := handlers.NewBackupHandler(manager, registry, validator, sweeper, reporter)
	settingsHandler := handlers.NewSettingsHandler(registry, reporter)
	reportHandler := handlers.NewReportHandler(reporter)
	auditHandler := handlers.NewAuditHandler()

	// Per-class rate limits: mutations are budgeted tighter than reads,
	// login tighter still.
	generalLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	mutationLimiter := middleware.NewRateLimiter(30, 1*time.Minute)
	loginLimiter := middleware.NewRateLimiter(10, 1*time.Minute)

	// API routes
	api := app.Group("/api", generalLimiter.Handler("api"))

	// Public routes
	api.Post("/auth/login", loginLimiter.Handler("login"), authHandler.Login)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(cfg))
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)

	backups := protected.Group("/backups")
	backups.Get("/", middleware.RequireOperation(rbac.OpList), backupHandler.List)
	backups.Get("/stats", middleware.RequireOperation(rbac.OpList), backupHandler.Stats)
	backups.Post("/", mutationLimiter.Handler("backup-create"), middleware.RequireOperation(rbac.OpCreate), backupHandler.Create)
	backups.Post("/cleanup", mutationLimiter.Handler("backup-cleanup"), middleware.RequireOperation(rbac.OpDelete), backupHandler.Cleanup)
	backups.Get("/:id", middleware.RequireOperation(rbac.OpList), backupHandler.Get)
	backups.Post("/:id/cancel", middleware.RequireOperation(rbac.OpCreate), backupHandler.Cancel)
	backups.Post("/:id/validate", mutationLimiter.Handler("backup-validate"), middleware.RequireOperation(rbac.OpValidate), backupHandler.Validate)
	backups.Get("/:id/download", middleware.RequireOperation(rbac.OpDownload), backupHandler.Download)
	backups.Delete("/:id", mutationLimiter.Handler("backup-delete"), middleware.RequireOperation(rbac.OpDelete), backupHandler.Delete)

	settings := protected.Group("/backup-settings", middleware.AdminOnly())
	settings.Get("/", settingsHandler.Get)
	settings.Put("/", settingsHandler.Update)
	settings.Post("/reset", settingsHandler.Reset)
	settings.Post("/test-ftp", settingsHandler.TestFTP)

	reports := protected.Group("/reports", middleware.AdminOnly())
	reports.Get("/errors", reportHandler.ErrorStats)
	reports.Get("/errors/full", reportHandler.ErrorReport)

	audit := protected.Group("/audit", middleware.AdminOnly())
	audit.Get("/", auditHandler.List)
	audit.Get("/actions", auditHandler.GetActions)
	audit.Get("/:id", auditHandler.Get)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down...")
		app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("EvalBoard API listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// seedAdminUser creates the initial superadmin account when the users table
// is empty.
func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("WARNING: ADMIN_PASSWORD not set - using default password, change it immediately!")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	admin := models.User{
		Username: "admin",
		Password: string(hashed),
		FullName: "Administrator",
		Role:     models.RoleSuperAdmin,
		IsActive: true,
	}
	if err := database.DB.Create(&admin).Error; err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}
	log.Println("Seeded initial admin user")
}
