package utils

import (
	"crypto/tls"
	"errors"
	"fmt"

	"mailpulse/models"

	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// OutboundEmail is one message handed to the send path
type OutboundEmail struct {
	To        string
	ToName    string
	Subject   string
	Body      string
	AutoReply bool // Sets Auto-Submitted so receivers don't loop on us
}

// Mailer sends mail through a mailbox account's SMTP credentials and picks
// which account a reply should be sent from
type Mailer struct {
	db *gorm.DB
}

func NewMailer(db *gorm.DB) *Mailer {
	return &Mailer{db: db}
}

// ProviderForProspect returns the account that most recently sent mail to
// this prospect, falling back to the default provider.
func (m *Mailer) ProviderForProspect(prospectID uint) (*models.MailboxAccount, error) {
	var msg models.ThreadMessage
	err := m.db.
		Joins("JOIN threads ON threads.id = thread_messages.thread_id").
		Where("threads.prospect_id = ? AND thread_messages.direction = ? AND thread_messages.account_id IS NOT NULL",
			prospectID, models.DirectionSent).
		Order("thread_messages.sent_at DESC").
		First(&msg).Error
	if err == nil && msg.AccountID != nil {
		var account models.MailboxAccount
		if err := m.db.Where("id = ? AND enabled = ?", *msg.AccountID, true).First(&account).Error; err == nil {
			return &account, nil
		}
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return m.DefaultProvider()
}

// DefaultProvider returns the system default send provider
func (m *Mailer) DefaultProvider() (*models.MailboxAccount, error) {
	var account models.MailboxAccount
	err := m.db.Where("is_default = ? AND enabled = ?", true, true).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No explicit default configured, take any enabled account
		err = m.db.Where("enabled = ?", true).Order("id").First(&account).Error
	}
	if err != nil {
		return nil, fmt.Errorf("no send provider available: %w", err)
	}
	return &account, nil
}

// Send dispatches one email through the given account. Delivery to the relay
// is at-least-once; deduplication happens at the thread record level.
func (m *Mailer) Send(account *models.MailboxAccount, email OutboundEmail) error {
	password, err := Decrypt(account.SMTPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	dialer := gomail.NewDialer(
		account.SMTPHost,
		account.SMTPPort,
		account.SMTPUsername,
		password,
	)
	dialer.TLSConfig = &tls.Config{ServerName: account.SMTPHost}

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", account.FromName, account.FromEmail))
	if email.ToName != "" {
		msg.SetHeader("To", fmt.Sprintf("%s <%s>", email.ToName, email.To))
	} else {
		msg.SetHeader("To", email.To)
	}
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Body)
	msg.SetHeader("X-Mailer", "Mailpulse/1.0")
	if email.AutoReply {
		msg.SetHeader("Auto-Submitted", "auto-replied")
	}

	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
