package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/dto"
	"github.com/fleetcare/fleet-backend/internal/services"
	"github.com/fleetcare/fleet-backend/internal/session"
)

type ModerationHandler struct {
	moderationService *services.ModerationService
}

func NewModerationHandler(moderationService *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

func (h *ModerationHandler) CreateReport(c *fiber.Ctx) error {
	reporterID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	report, err := h.moderationService.CreateReport(reporterID, &req)
	if err != nil {
		if errors.Is(err, services.ErrReportTargetAbsent) {
			return respondError(c, fiber.StatusNotFound, err.Error())
		}
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *ModerationHandler) ListReports(c *fiber.Ctx) error {
	limit, offset := listWindow(c, 20, 100)

	reports, total, err := h.moderationService.ListReports(c.Query("status"), limit, offset)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "Failed to fetch reports")
	}

	return c.JSON(dto.ReportListResponse{
		Reports: reports,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (h *ModerationHandler) ActionReport(c *fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}

	var req dto.ActionReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.moderationService.ActionReport(reportID, &req); err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			return respondError(c, fiber.StatusNotFound, err.Error())
		}
		return badRequest(c, err.Error())
	}

	return c.JSON(fiber.Map{"message": "Report updated successfully"})
}

// listWindow reads limit/offset for admin-style lists. Limits outside
// [1, maxLimit] fall back to def.
func listWindow(c *fiber.Ctx, def, maxLimit int) (limit, offset int) {
	limit = c.QueryInt("limit", def)
	if limit < 1 || limit > maxLimit {
		limit = def
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
