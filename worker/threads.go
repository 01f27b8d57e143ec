package worker

import (
	"errors"
	"time"

	"mailpulse/models"

	"gorm.io/gorm"
)

// ThreadStore is the durable per-prospect conversation log. Messages are
// append-only; nothing is ever edited or removed.
type ThreadStore interface {
	GetOrCreate(prospectID uint) (*models.Thread, error)

	// Append records a message in the thread. Messages carrying a
	// Message-ID already present in the thread are dropped, so a
	// redelivered mail never produces a duplicate entry.
	Append(threadID uint, msg *models.ThreadMessage) error
	Touch(threadID uint, at time.Time) error

	// Messages returns the thread entries in chronological order
	Messages(threadID uint) ([]models.ThreadMessage, error)
	// HasOutboundSince reports whether any sent message to the prospect
	// exists at or after the given time (the recency rule input)
	HasOutboundSince(prospectID uint, since time.Time) (bool, error)
}

type gormThreadStore struct {
	db *gorm.DB
}

func NewThreadStore(db *gorm.DB) ThreadStore {
	return &gormThreadStore{db: db}
}

func (ts *gormThreadStore) GetOrCreate(prospectID uint) (*models.Thread, error) {
	var thread models.Thread
	err := ts.db.Where("prospect_id = ?", prospectID).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		thread = models.Thread{
			ProspectID:     prospectID,
			LastActivityAt: time.Now(),
		}
		if err := ts.db.Create(&thread).Error; err != nil {
			return nil, err
		}
		return &thread, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (ts *gormThreadStore) Append(threadID uint, msg *models.ThreadMessage) error {
	msg.ThreadID = threadID
	// IMAP delivery is at-least-once; a message we crashed on after
	// appending comes around again with the same Message-ID. Outbound
	// entries have no Message-ID and are always appended.
	if msg.MessageID != "" {
		var count int64
		err := ts.db.Model(&models.ThreadMessage{}).
			Where("thread_id = ? AND message_id = ?", threadID, msg.MessageID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
	}
	return ts.db.Create(msg).Error
}

func (ts *gormThreadStore) Touch(threadID uint, at time.Time) error {
	return ts.db.Model(&models.Thread{}).
		Where("id = ?", threadID).
		Update("last_activity_at", at).Error
}

func (ts *gormThreadStore) Messages(threadID uint) ([]models.ThreadMessage, error) {
	var messages []models.ThreadMessage
	err := ts.db.Where("thread_id = ?", threadID).
		Order("sent_at ASC").
		Find(&messages).Error
	return messages, err
}

func (ts *gormThreadStore) HasOutboundSince(prospectID uint, since time.Time) (bool, error) {
	var count int64
	err := ts.db.Model(&models.ThreadMessage{}).
		Joins("JOIN threads ON threads.id = thread_messages.thread_id").
		Where("threads.prospect_id = ? AND thread_messages.direction = ? AND thread_messages.sent_at >= ?",
			prospectID, models.DirectionSent, since).
		Count(&count).Error
	return count > 0, err
}
