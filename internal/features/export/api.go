package export

import (
	"go-comply/internal/common/api"
	"go-comply/internal/config"
	"go-comply/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportApi struct {
	controller *ExportController
	config     *config.Config
}

func NewExportApi(controller *ExportController, config *config.Config) api.Route {
	return &ExportApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers all export routes
func (h *ExportApi) Setup(app *fiber.App) {
	group := app.Group("/api/integrations/audit", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/export", h.controller.ExportAll)
	group.Post("/export/item", h.controller.ExportItem)
	group.Get("/history", h.controller.GetHistory)
	group.Get("/history/report", h.controller.DownloadHistoryReport)
}
