package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "go-comply/internal/common/api"
	"go-comply/internal/config"
	"go-comply/internal/crypto"
	"go-comply/internal/database"
	"go-comply/internal/features/blob"
	"go-comply/internal/features/connection"
	"go-comply/internal/features/evidence"
	"go-comply/internal/features/export"
	"go-comply/internal/features/schedule"
	"go-comply/internal/logger"
	"go-comply/internal/middleware"
	"go-comply/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// NewCipher builds the credential cipher from the configured key.
func NewCipher(cfg *config.Config) (*crypto.Cipher, error) {
	return crypto.NewCipher(cfg.CredentialKey)
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	log.Printf("Registered %d routes\n", len(routes))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	connectionRepo connection.ConnectionRepository,
	logRepo export.SyncLogRepository,
	mappingRepo export.ItemMappingRepository,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := connectionRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure connection indexes: %v", err)
				}
				if err := logRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure sync log indexes: %v", err)
				}
				if err := mappingRepo.EnsureIndexes(ctx); err != nil {
					log.Printf("Failed to ensure item mapping indexes: %v", err)
				}
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			NewCipher,
			blob.NewDiskStore,

			// Initialize Repository
			connection.NewConnectionRepository,
			evidence.NewEvidenceRepository,
			export.NewSyncLogRepository,
			export.NewItemMappingRepository,

			// Initialize Service
			connection.NewClientFactory,
			connection.NewConnectionService,
			export.NewExportService,
			schedule.NewScheduleService,

			// Initialize Controller
			connection.NewConnectionController,
			export.NewExportController,

			// Routes
			AsRoute(connection.NewConnectionApi),
			AsRoute(export.NewExportApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, scheduleService schedule.ScheduleService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return scheduleService.InitializeScheduler(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return scheduleService.StopScheduler()
					},
				})
			},
			InitializeIndexes,
		),
	)

	app.Run()
}
