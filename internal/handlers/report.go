package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/evalboard/backend/internal/report"
)

type ReportHandler struct {
	reporter *report.Reporter
}

func NewReportHandler(reporter *report.Reporter) *ReportHandler {
	return &ReportHandler{reporter: reporter}
}

// ErrorStats returns aggregate error counts for the last `days` days.
func (h *ReportHandler) ErrorStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	stats, err := h.reporter.GetErrorStats(days)
	if err != nil {
		if errors.Is(err, report.ErrInvalidDayRange) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// ErrorReport returns the full error report, structured by default or plain
// text with ?format=text.
func (h *ReportHandler) ErrorReport(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	format := c.Query("format", "structured")

	rep, err := h.reporter.GenerateErrorReport(days)
	if err != nil {
		if errors.Is(err, report.ErrInvalidDayRange) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	if format == "text" {
		c.Set("Content-Type", "text/plain; charset=utf-8")
		return c.SendString(rep.Text())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rep,
	})
}
