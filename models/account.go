package models

import (
	"time"

	"gorm.io/gorm"
)

// MailboxAccount represents one monitored inbox plus the credentials used
// to send replies from it
type MailboxAccount struct {
	gorm.Model

	// Basic identification
	Name      string `gorm:"not null" json:"name"`
	FromEmail string `gorm:"not null;index" json:"from_email"`
	FromName  string `json:"from_name"`

	// ========= IMAP Configuration =========
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port" gorm:"default:993"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"-"` // Encrypted in application layer
	IMAPEncryption string `json:"imap_encryption" gorm:"default:'SSL'"` // SSL, STARTTLS, NONE
	IMAPMailbox    string `json:"imap_mailbox" gorm:"default:'INBOX'"`

	// ========= SMTP Configuration (reply path) =========
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port" gorm:"default:587"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // Encrypted in application layer
	Encryption   string `json:"encryption" gorm:"default:'STARTTLS'"`

	// ========= Monitoring Status =========
	Enabled    bool       `gorm:"default:true" json:"enabled"`
	IsDefault  bool       `gorm:"default:false" json:"is_default"` // Default send provider
	LastScanAt *time.Time `json:"last_scan_at"`
	LastError  *string    `json:"last_error"`

	// Relations
	ScanResults []ScanResult `gorm:"foreignKey:AccountID" json:"scan_results,omitempty"`
}

// Sanitize blanks credentials before the account is serialized to JSON
func (a *MailboxAccount) Sanitize() {
	a.IMAPPassword = ""
	a.SMTPPassword = ""
}
