package models

import (
	"time"

	"gorm.io/gorm"
)

// ScanResult is the audit record for one poll cycle of one account.
// Written once when the cycle finishes and never mutated.
type ScanResult struct {
	gorm.Model

	AccountID uint   `gorm:"not null;index" json:"account_id"`
	ScanID    string `gorm:"index" json:"scan_id"`

	NewMessages int `gorm:"default:0" json:"new_messages"`
	Processed   int `gorm:"default:0" json:"processed"`
	Errored     int `gorm:"default:0" json:"errored"`

	StartedAt  time.Time `gorm:"not null" json:"started_at"`
	DurationMS int64     `gorm:"default:0" json:"duration_ms"`

	// Per-message error strings, stored as JSON
	Errors []string `json:"errors" gorm:"type:jsonb;serializer:json"`
}
