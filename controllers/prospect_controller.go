package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailpulse/models"
	"mailpulse/utils"
	"mailpulse/worker"
)

// ProspectController exposes the engine's view of prospects: conversation
// threads, follow-up state and the scan audit log
type ProspectController struct {
	db        *gorm.DB
	prospects worker.ProspectStore
	threads   worker.ThreadStore
	logger    *log.Logger
}

func NewProspectController(db *gorm.DB, prospects worker.ProspectStore, threads worker.ThreadStore, logger *log.Logger) *ProspectController {
	return &ProspectController{
		db:        db,
		prospects: prospects,
		threads:   threads,
		logger:    logger,
	}
}

func (pc *ProspectController) GetProspects(c *fiber.Ctx) error {
	query := pc.db.Model(&models.Prospect{})
	if status := c.Query("follow_up_status"); status != "" {
		query = query.Where("follow_up_status = ?", status)
	}

	var prospects []models.Prospect
	if err := query.Order("id ASC").Find(&prospects).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch prospects",
		})
	}
	return c.JSON(prospects)
}

// GetProspectThread returns the prospect's conversation in chronological
// order
func (pc *ProspectController) GetProspectThread(c *fiber.Ctx) error {
	prospectID, err := parseID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	prospect, err := pc.prospects.Get(prospectID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Prospect not found",
		})
	}

	var thread models.Thread
	if err := pc.db.Where("prospect_id = ?", prospectID).First(&thread).Error; err != nil {
		// No conversation yet
		return c.JSON(fiber.Map{
			"prospect": prospect,
			"messages": []models.ThreadMessage{},
		})
	}

	messages, err := pc.threads.Messages(thread.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch thread messages",
		})
	}

	return c.JSON(fiber.Map{
		"prospect": prospect,
		"thread":   thread,
		"messages": messages,
	})
}

// RestartFollowUps is the explicit manual action that re-activates a stopped
// prospect
func (pc *ProspectController) RestartFollowUps(c *fiber.Ctx) error {
	prospectID, err := parseID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	prospect, err := pc.prospects.Get(prospectID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Prospect not found",
		})
	}

	if err := pc.prospects.RestartFollowUps(prospectID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to restart follow-ups",
		})
	}

	utils.LogEvent("follow_ups_restarted", map[string]interface{}{
		"prospect_id": prospectID,
		"email":       prospect.Email,
	})
	pc.logger.Printf("Follow-ups restarted for prospect %d (%s)", prospectID, prospect.Email)

	return c.JSON(fiber.Map{
		"message":          "Follow-ups restarted",
		"prospect_id":      prospectID,
		"follow_up_status": models.FollowUpActive,
	})
}

// GetScans lists scan audit records, newest first
func (pc *ProspectController) GetScans(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	query := pc.db.Model(&models.ScanResult{}).Order("started_at DESC").Limit(limit)
	if accountID := c.Query("account_id"); accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}

	var scans []models.ScanResult
	if err := query.Find(&scans).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch scan results",
		})
	}
	return c.JSON(scans)
}

func parseID(raw string) (uint, error) {
	if raw == "" || raw == "undefined" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "ID must be numeric")
	}
	return uint(id), nil
}
