package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/evalboard/backend/internal/config"
	"github.com/evalboard/backend/internal/database"
	"github.com/evalboard/backend/internal/middleware"
	"github.com/evalboard/backend/internal/models"
	"github.com/evalboard/backend/internal/rbac"
	"github.com/evalboard/backend/internal/report"
)

type AuthHandler struct {
	cfg      *config.Config
	reporter *report.Reporter
}

func NewAuthHandler(cfg *config.Config, reporter *report.Reporter) *AuthHandler {
	return &AuthHandler{cfg: cfg, reporter: reporter}
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user and returns a JWT token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	var user models.User
	if err := database.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid username or password",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid username or password",
		})
	}

	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "User account is disabled",
		})
	}

	token, err := middleware.GenerateToken(&user, h.cfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to generate token",
		})
	}

	h.reporter.LogAdminAction(&user, models.AuditActionLogin, "user", user.Username, nil, nil,
		"User logged in", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token": token,
			"user":  user,
		},
	})
}

// Logout blacklists the current token until its natural expiry.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	token, _ := c.Locals("token").(string)

	if token != "" {
		ttl := time.Duration(h.cfg.JWTExpireHours) * time.Hour
		if err := database.BlacklistToken(token, ttl); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to revoke token",
			})
		}
	}

	h.reporter.LogAdminAction(user, models.AuditActionLogout, "user", user.Username, nil, nil,
		"User logged out", c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

// Me returns the current user and the backup operations their role grants.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":        user,
			"permissions": rbac.Allowed(user.Role),
		},
	})
}
