package connection

import (
	"errors"

	"go-comply/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ConnectionController struct {
	Service ConnectionService
}

func NewConnectionController(service ConnectionService) *ConnectionController {
	return &ConnectionController{
		Service: service,
	}
}

type saveConnectionRequest struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint,omitempty"`
}

type syncSettingsRequest struct {
	Enabled   bool   `json:"enabled"`
	Frequency string `json:"frequency"`
}

// SaveConnection godoc
func (ctrl *ConnectionController) SaveConnection(c *fiber.Ctx) error {
	var req saveConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "api_key is required",
		})
	}

	conn, err := ctrl.Service.SaveConnection(c.Context(), middleware.TenantID(c), req.APIKey, middleware.UserID(c), req.Endpoint)
	if err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(err, ErrValidationFailed) {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	safe, err := ctrl.Service.GetSafeConnectionInfo(c.Context(), conn.TenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Connection saved successfully",
		"data":    safe,
	})
}

// GetConnection godoc
func (ctrl *ConnectionController) GetConnection(c *fiber.Ctx) error {
	safe, err := ctrl.Service.GetSafeConnectionInfo(c.Context(), middleware.TenantID(c))
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"data": safe})
}

// ValidateConnection godoc
func (ctrl *ConnectionController) ValidateConnection(c *fiber.Ctx) error {
	result, err := ctrl.Service.ValidateConnection(c.Context(), middleware.TenantID(c))
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"data": result})
}

// Disconnect godoc
func (ctrl *ConnectionController) Disconnect(c *fiber.Ctx) error {
	if err := ctrl.Service.Disconnect(c.Context(), middleware.TenantID(c)); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Connection removed successfully",
	})
}

// UpdateSyncSettings godoc
func (ctrl *ConnectionController) UpdateSyncSettings(c *fiber.Ctx) error {
	var req syncSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.Service.UpdateSyncSettings(c.Context(), middleware.TenantID(c), req.Enabled, req.Frequency); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrInvalidFrequency) {
			status = fiber.StatusBadRequest
		} else if errors.Is(err, ErrNotConfigured) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sync settings updated successfully",
	})
}

// GetStats godoc
func (ctrl *ConnectionController) GetStats(c *fiber.Ctx) error {
	stats, err := ctrl.Service.GetStats(c.Context(), middleware.TenantID(c))
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"data": stats})
}
