package connection

import (
	"go-comply/internal/common/api"
	"go-comply/internal/config"
	"go-comply/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ConnectionApi struct {
	controller *ConnectionController
	config     *config.Config
}

func NewConnectionApi(controller *ConnectionController, config *config.Config) api.Route {
	return &ConnectionApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all connection routes
func (h *ConnectionApi) Setup(app *fiber.App) {
	group := app.Group("/api/integrations/audit/connection", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/", h.controller.SaveConnection)
	group.Get("/", h.controller.GetConnection)
	group.Post("/validate", h.controller.ValidateConnection)
	group.Delete("/", h.controller.Disconnect)
	group.Put("/sync-settings", h.controller.UpdateSyncSettings)
	group.Get("/stats", h.controller.GetStats)
}
