package routes

import (
	"log"
	"os"

	controller "mailpulse/controllers"
	"mailpulse/middleware"
	"mailpulse/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

func SetupAPIRoutes(app *fiber.App, db *gorm.DB, supervisor *worker.Supervisor, registry *worker.Registry, dialer worker.Dialer) {
	// Initialize controllers with their respective loggers
	accountController := controller.NewAccountController(db, registry, dialer, log.New(os.Stdout, "ACCOUNT: ", log.LstdFlags))
	monitorController := controller.NewMonitorController(supervisor, registry, log.New(os.Stdout, "MONITOR: ", log.LstdFlags))
	prospectController := controller.NewProspectController(db, worker.NewProspectStore(db), worker.NewThreadStore(db), log.New(os.Stdout, "PROSPECT: ", log.LstdFlags))

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Account routes
	account := api.Group("/accounts")
	account.Post("/", accountController.CreateAccount)
	account.Get("/", accountController.GetAccounts)
	account.Get("/:id", accountController.GetAccount)
	account.Delete("/:id", accountController.DeleteAccount)
	account.Post("/:id/test", accountController.TestAccount)

	// Monitor control routes with rate limiting
	monitor := api.Group("/monitor", middleware.ControlRateLimiter())
	monitor.Post("/start", monitorController.StartMonitoring)
	monitor.Post("/stop", monitorController.StopMonitoring)
	monitor.Get("/status", monitorController.GetStatus)

	// WebSocket route for live monitoring status
	app.Get("/api/v1/monitor/status/ws", websocket.New(func(c *websocket.Conn) {
		monitorController.HandleStatusWS(c)
	}))

	// Prospect routes
	prospect := api.Group("/prospects")
	prospect.Get("/", prospectController.GetProspects)
	prospect.Get("/:id/thread", prospectController.GetProspectThread)
	prospect.Post("/:id/restart-follow-ups", middleware.ControlRateLimiter(), prospectController.RestartFollowUps)

	// Scan audit log
	api.Get("/scans", prospectController.GetScans)

	// Log initialization
	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, supervisor *worker.Supervisor, registry *worker.Registry, dialer worker.Dialer) {
	// Root and health endpoints, registered ahead of the 404 handler
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup API routes
	SetupAPIRoutes(app, db, supervisor, registry, dialer)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
