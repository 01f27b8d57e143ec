package models

import (
	"time"

	"gorm.io/gorm"
)

// Follow-up status values for a prospect
const (
	FollowUpActive  = "active"
	FollowUpStopped = "stopped"
)

// Stop reasons recorded on the prospect when follow-ups are cancelled
const (
	ResponseManual    = "manual_response"
	ResponseAutoReply = "auto_reply_detected"
)

// Prospect represents a single contact the platform has mailed or may mail
type Prospect struct {
	gorm.Model

	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`

	// Follow-up state. Once stopped, no follow-up may be scheduled or sent
	// until an explicit restart sets the status back to active.
	FollowUpStatus string     `gorm:"default:'active';index" json:"follow_up_status"` // active, stopped
	ResponseType   string     `json:"response_type"`
	LastContactAt  *time.Time `json:"last_contact_at"`

	// Consecutive inbound auto-replies; reset by a human reply
	AutoReplyStreak int `gorm:"default:0" json:"auto_reply_streak"`

	// Counters
	ReplyCount int `gorm:"default:0" json:"reply_count"`

	// Relations
	Memberships []ListMembership `gorm:"foreignKey:ProspectID" json:"lists,omitempty"`
	Campaigns   []CampaignProspect `gorm:"foreignKey:ProspectID" json:"campaigns,omitempty"`
	FollowUps   []FollowUpJob    `gorm:"foreignKey:ProspectID" json:"follow_ups,omitempty"`
}

// Campaign is the minimal campaign record the engine needs: membership in an
// active campaign counts as prior outbound contact during classification
type Campaign struct {
	gorm.Model

	Name   string `gorm:"not null" json:"name"`
	Status string `gorm:"default:'draft';index" json:"status"` // draft, active, paused, completed
}

// CampaignProspect joins prospects to campaigns
type CampaignProspect struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ProspectID uint `gorm:"not null;index" json:"prospect_id"`

	// Relations
	Campaign Campaign `json:"-"`
}

// ProspectList represents a list of prospects
type ProspectList struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Memberships []ListMembership `gorm:"foreignKey:ListID" json:"memberships,omitempty"`
}

// ListMembership joins prospects to lists
type ListMembership struct {
	gorm.Model
	ListID     uint `gorm:"not null;index" json:"list_id"`
	ProspectID uint `gorm:"not null;index" json:"prospect_id"`

	// Relations
	List ProspectList `json:"-"`
}

// Follow-up job status values
const (
	FollowUpJobPending  = "pending"
	FollowUpJobSent     = "sent"
	FollowUpJobCanceled = "canceled"
)

// FollowUpJob is one scheduled follow-up send. The sending scheduler owns the
// schedule; this engine only flips pending jobs to canceled.
type FollowUpJob struct {
	gorm.Model

	ProspectID uint       `gorm:"not null;index" json:"prospect_id"`
	CampaignID *uint      `json:"campaign_id,omitempty"`
	SendAt     time.Time  `gorm:"not null" json:"send_at"`
	Status     string     `gorm:"default:'pending';index" json:"status"` // pending, sent, canceled
	CanceledAt *time.Time `json:"canceled_at"`
	Reason     string     `json:"reason"`
}
