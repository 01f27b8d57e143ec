package worker

import (
	"log"
	"time"

	"mailpulse/models"
	"mailpulse/utils"
)

// ProspectStore is the engine's view of the prospect records owned by the
// CRUD/campaign layer. The engine only transitions follow-up state and the
// fields around it.
type ProspectStore interface {
	// FindByEmail returns (nil, nil) when no prospect has this address
	FindByEmail(email string) (*models.Prospect, error)
	Get(id uint) (*models.Prospect, error)

	// StopFollowUps atomically moves the prospect from active to stopped and
	// records the reason. Returns false when the prospect was already
	// stopped (the call is then a no-op).
	StopFollowUps(id uint, reason string) (bool, error)
	// RestartFollowUps is the explicit action that re-activates follow-ups
	RestartFollowUps(id uint) error

	IncrementAutoReplyStreak(id uint) (int, error)
	ResetAutoReplyStreak(id uint) error
	Touch(id uint, at time.Time) error

	// InActiveCampaignOrList feeds the membership classification rule
	InActiveCampaignOrList(id uint) (bool, error)
}

// Scheduler is the collaborator that owns the follow-up send schedule. The
// engine only signals cancellation.
type Scheduler interface {
	CancelPendingFollowUps(prospectID uint, reason string) (int64, error)
}

// Consecutive auto-replies before follow-ups are stopped anyway
const autoReplyStopThreshold = 2

// FollowUpCanceller performs the idempotent stop transition and applies the
// auto-reply streak rule
type FollowUpCanceller struct {
	prospects ProspectStore
	scheduler Scheduler
	logger    *log.Logger
}

func NewFollowUpCanceller(prospects ProspectStore, scheduler Scheduler, logger *log.Logger) *FollowUpCanceller {
	return &FollowUpCanceller{
		prospects: prospects,
		scheduler: scheduler,
		logger:    logger,
	}
}

// StopFollowUps stops all pending follow-ups for the prospect. Calling it
// twice with the same prospect is a no-op on the second call and never
// errors; the same reply may be observed more than once across retries or
// overlapping scan cycles.
func (fc *FollowUpCanceller) StopFollowUps(prospectID uint, reason string) (bool, error) {
	stopped, err := fc.prospects.StopFollowUps(prospectID, reason)
	if err != nil {
		return false, err
	}
	if !stopped {
		return false, nil
	}

	canceled, err := fc.scheduler.CancelPendingFollowUps(prospectID, reason)
	if err != nil {
		// The status transition already landed, so the invariant holds:
		// no new follow-up executes against a stopped prospect
		utils.LogError("followup_cancel_failed", err, map[string]interface{}{
			"prospect_id": prospectID,
		})
	}

	utils.LogEvent("follow_ups_stopped", map[string]interface{}{
		"prospect_id":   prospectID,
		"reason":        reason,
		"jobs_canceled": canceled,
	})
	fc.logger.Printf("Stopped follow-ups for prospect %d (%s), %d pending jobs canceled", prospectID, reason, canceled)
	return true, nil
}

// RecordHumanReply resets the auto-reply streak and stops follow-ups with the
// manual-response reason
func (fc *FollowUpCanceller) RecordHumanReply(prospectID uint) (bool, error) {
	if err := fc.prospects.ResetAutoReplyStreak(prospectID); err != nil {
		return false, err
	}
	return fc.StopFollowUps(prospectID, models.ResponseManual)
}

// RecordAutoReply increments the prospect's consecutive auto-reply count.
// A single auto-reply never stops follow-ups; two in a row mean the mailbox
// is a dead end and follow-ups stop anyway.
func (fc *FollowUpCanceller) RecordAutoReply(prospectID uint) (bool, error) {
	streak, err := fc.prospects.IncrementAutoReplyStreak(prospectID)
	if err != nil {
		return false, err
	}
	if streak < autoReplyStopThreshold {
		return false, nil
	}
	return fc.StopFollowUps(prospectID, models.ResponseAutoReply)
}
