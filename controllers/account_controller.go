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

type CreateAccountRequest struct {
	Name           string `json:"name" validate:"required"`
	FromEmail      string `json:"from_email" validate:"required,email"`
	FromName       string `json:"from_name"`
	IMAPHost       string `json:"imap_host" validate:"required,hostname"`
	IMAPPort       int    `json:"imap_port" validate:"required,min=1,max=65535"`
	IMAPUsername   string `json:"imap_username" validate:"required"`
	IMAPPassword   string `json:"imap_password" validate:"required"`
	IMAPEncryption string `json:"imap_encryption" validate:"omitempty,oneof=SSL TLS STARTTLS NONE"`
	IMAPMailbox    string `json:"imap_mailbox"`
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"smtp_password"`
	Encryption     string `json:"encryption" validate:"omitempty,oneof=SSL TLS STARTTLS NONE"`
	IsDefault      bool   `json:"is_default"`
}

// AccountController manages the monitored mailbox accounts and keeps the
// in-memory registry in sync with the database
type AccountController struct {
	db       *gorm.DB
	registry *worker.Registry
	dialer   worker.Dialer
	logger   *log.Logger
}

func NewAccountController(db *gorm.DB, registry *worker.Registry, dialer worker.Dialer, logger *log.Logger) *AccountController {
	return &AccountController{
		db:       db,
		registry: registry,
		dialer:   dialer,
		logger:   logger,
	}
}

func (ac *AccountController) CreateAccount(c *fiber.Ctx) error {
	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Encrypt sensitive data
	encryptedIMAPPassword, err := utils.Encrypt(req.IMAPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt IMAP password",
		})
	}
	encryptedSMTPPassword, err := utils.Encrypt(req.SMTPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt SMTP password",
		})
	}

	account := models.MailboxAccount{
		Name:           req.Name,
		FromEmail:      req.FromEmail,
		FromName:       req.FromName,
		IMAPHost:       req.IMAPHost,
		IMAPPort:       req.IMAPPort,
		IMAPUsername:   req.IMAPUsername,
		IMAPPassword:   encryptedIMAPPassword,
		IMAPEncryption: req.IMAPEncryption,
		IMAPMailbox:    req.IMAPMailbox,
		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		SMTPUsername:   req.SMTPUsername,
		SMTPPassword:   encryptedSMTPPassword,
		Encryption:     req.Encryption,
		Enabled:        true,
		IsDefault:      req.IsDefault,
	}
	if account.IMAPMailbox == "" {
		account.IMAPMailbox = "INBOX"
	}

	if err := ac.db.Create(&account).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create account",
		})
	}

	// Picked up by the supervisor on its next reconcile tick
	if err := ac.registry.Add(&account); err != nil {
		ac.logger.Printf("Account %d created but not registered: %v", account.ID, err)
	}

	utils.LogEvent("account_created", map[string]interface{}{
		"account_id": account.ID,
		"email":      account.FromEmail,
	})

	account.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (ac *AccountController) GetAccounts(c *fiber.Ctx) error {
	var accounts []models.MailboxAccount
	if err := ac.db.Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch accounts",
		})
	}

	for i := range accounts {
		accounts[i].Sanitize()
	}
	return c.JSON(accounts)
}

func (ac *AccountController) GetAccount(c *fiber.Ctx) error {
	accountID := c.Params("id")
	if err := validateNumericID(accountID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var account models.MailboxAccount
	if err := ac.db.First(&account, accountID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	account.Sanitize()
	return c.JSON(account)
}

func (ac *AccountController) DeleteAccount(c *fiber.Ctx) error {
	accountID := c.Params("id")
	if err := validateNumericID(accountID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var account models.MailboxAccount
	if err := ac.db.First(&account, accountID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	if err := ac.db.Delete(&account).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete account",
		})
	}

	ac.registry.Remove(account.ID)
	utils.LogEvent("account_deleted", map[string]interface{}{
		"account_id": account.ID,
		"email":      account.FromEmail,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

// TestAccount opens and immediately closes an IMAP session with the stored
// credentials
func (ac *AccountController) TestAccount(c *fiber.Ctx) error {
	accountID := c.Params("id")
	if err := validateNumericID(accountID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var account models.MailboxAccount
	if err := ac.db.First(&account, accountID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Account not found",
		})
	}

	session, err := ac.dialer.Open(&account)
	if err != nil {
		utils.LogError("account_test_failed", err, map[string]interface{}{
			"account_id": account.ID,
			"host":       account.IMAPHost,
		})
		return c.JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	defer session.Close()

	utils.LogEvent("account_test_success", map[string]interface{}{
		"account_id": account.ID,
	})
	return c.JSON(fiber.Map{"success": true})
}

func validateNumericID(id string) error {
	if id == "" || id == "undefined" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	if _, err := strconv.Atoi(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "ID must be numeric")
	}
	return nil
}
