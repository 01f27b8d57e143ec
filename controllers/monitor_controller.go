package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"mailpulse/utils"
	"mailpulse/worker"
)

// MonitorController exposes the poll supervisor over HTTP
type MonitorController struct {
	supervisor *worker.Supervisor
	registry   *worker.Registry
	logger     *log.Logger
}

func NewMonitorController(supervisor *worker.Supervisor, registry *worker.Registry, logger *log.Logger) *MonitorController {
	return &MonitorController{
		supervisor: supervisor,
		registry:   registry,
		logger:     logger,
	}
}

func (mc *MonitorController) StartMonitoring(c *fiber.Ctx) error {
	if mc.supervisor.Running() {
		return c.JSON(fiber.Map{
			"message": "Monitoring already running",
			"running": true,
		})
	}

	// Reload so accounts added while stopped are picked up
	if err := mc.registry.Load(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load accounts",
		})
	}

	mc.supervisor.StartAll()
	utils.LogEvent("monitoring_started", map[string]interface{}{
		"accounts": len(mc.registry.List()),
	})
	return c.JSON(fiber.Map{
		"message":  "Monitoring started",
		"running":  true,
		"accounts": len(mc.registry.List()),
	})
}

func (mc *MonitorController) StopMonitoring(c *fiber.Ctx) error {
	if !mc.supervisor.Running() {
		return c.JSON(fiber.Map{
			"message": "Monitoring not running",
			"running": false,
		})
	}

	mc.supervisor.StopAll()
	utils.LogEvent("monitoring_stopped", nil)
	return c.JSON(fiber.Map{
		"message": "Monitoring stopped",
		"running": false,
	})
}

func (mc *MonitorController) GetStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"running":  mc.supervisor.Running(),
		"accounts": mc.supervisor.Status(),
	})
}

// HandleStatusWS streams supervisor status snapshots until the client goes
// away
func (mc *MonitorController) HandleStatusWS(c *websocket.Conn) {
	defer c.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		snapshot := struct {
			Running  bool                `json:"running"`
			Accounts []worker.UnitStatus `json:"accounts"`
			At       time.Time           `json:"at"`
		}{
			Running:  mc.supervisor.Running(),
			Accounts: mc.supervisor.Status(),
			At:       time.Now(),
		}

		if err := c.WriteJSON(snapshot); err != nil {
			mc.logger.Printf("Status stream closed: %v", err)
			return
		}
	}
}
