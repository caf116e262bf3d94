package export

import (
	"errors"
	"time"

	"go-comply/internal/features/connection"
	"go-comply/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportController struct {
	Service ExportService
}

func NewExportController(service ExportService) *ExportController {
	return &ExportController{
		Service: service,
	}
}

type exportRequest struct {
	SyncType string `json:"sync_type"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Elements []int  `json:"elements,omitempty"`
}

type exportItemRequest struct {
	ItemType string `json:"item_type"`
	ItemID   string `json:"item_id"`
}

func parseDay(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func exportErrorStatus(err error) int {
	switch {
	case errors.Is(err, connection.ErrNotConfigured):
		return fiber.StatusNotFound
	case errors.Is(err, connection.ErrInactive), errors.Is(err, connection.ErrNoUsableKey):
		return fiber.StatusConflict
	case errors.Is(err, ErrNoAuditConfigured):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, ErrExportInProgress):
		return fiber.StatusConflict
	case errors.Is(err, ErrUnknownItemType):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// ExportAll godoc
func (ctrl *ExportController) ExportAll(c *fiber.Ctx) error {
	var req exportRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	from, err := parseDay(req.From)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from must be formatted as YYYY-MM-DD",
		})
	}
	to, err := parseDay(req.To)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "to must be formatted as YYYY-MM-DD",
		})
	}

	opts := Options{
		SyncType:    req.SyncType,
		TriggeredBy: middleware.UserID(c),
		From:        from,
		To:          to,
		Elements:    req.Elements,
	}

	result, err := ctrl.Service.ExportAllEvidence(c.Context(), middleware.TenantID(c), opts)
	if err != nil {
		return c.Status(exportErrorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"data": result})
}

// ExportItem godoc
func (ctrl *ExportController) ExportItem(c *fiber.Ctx) error {
	var req exportItemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ItemType == "" || req.ItemID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "item_type and item_id are required",
		})
	}

	result, err := ctrl.Service.ExportSingleItem(c.Context(), middleware.TenantID(c), req.ItemType, req.ItemID, middleware.UserID(c))
	if err != nil {
		return c.Status(exportErrorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"data": result})
}

// GetHistory godoc
func (ctrl *ExportController) GetHistory(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", 20))

	logs, err := ctrl.Service.GetSyncHistory(c.Context(), middleware.TenantID(c), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"data": logs})
}

// DownloadHistoryReport godoc
func (ctrl *ExportController) DownloadHistoryReport(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", 100))

	data, filename, err := ctrl.Service.ExportHistoryReport(c.Context(), middleware.TenantID(c), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(data)
}
