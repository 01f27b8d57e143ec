package models

import (
	"time"

	"gorm.io/gorm"
)

// Message directions inside a thread
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Thread is the ordered conversation history between the system and one
// prospect. At most one thread exists per prospect; it is created lazily on
// the first inbound or outbound message.
type Thread struct {
	gorm.Model

	ProspectID     uint      `gorm:"not null;uniqueIndex" json:"prospect_id"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// Relations
	Messages []ThreadMessage `gorm:"foreignKey:ThreadID" json:"messages,omitempty"`
}

// ThreadMessage is one entry in a thread. Immutable once appended.
type ThreadMessage struct {
	gorm.Model

	ThreadID  uint   `gorm:"not null;index" json:"thread_id"`
	AccountID *uint  `json:"account_id,omitempty"` // Mailbox that sent or received it
	MessageID string `gorm:"index" json:"message_id"`

	Direction string    `gorm:"not null" json:"direction"` // sent, received
	Sender    string    `gorm:"not null" json:"sender"`
	Recipient string    `gorm:"not null" json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `gorm:"type:text" json:"body"`
	BodyHTML  string    `gorm:"type:text" json:"body_html"`
	SentAt    time.Time `gorm:"not null" json:"sent_at"`

	// Classification results, set at ingestion time and never revised
	IsReplyToOurEmail bool `gorm:"default:false" json:"is_reply_to_our_email"`
	IsAutoResponse    bool `gorm:"default:false" json:"is_auto_response"`
}
