package worker

import (
	"errors"
	"time"

	"mailpulse/models"

	"gorm.io/gorm"
)

// Gorm-backed implementations of the collaborator interfaces. All mutations
// go through the database's own atomic update primitives; the engine holds no
// in-process locks across scan cycles.

type gormProspectStore struct {
	db *gorm.DB
}

func NewProspectStore(db *gorm.DB) ProspectStore {
	return &gormProspectStore{db: db}
}

func (ps *gormProspectStore) FindByEmail(email string) (*models.Prospect, error) {
	var prospect models.Prospect
	err := ps.db.Where("email = ?", email).First(&prospect).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prospect, nil
}

func (ps *gormProspectStore) Get(id uint) (*models.Prospect, error) {
	var prospect models.Prospect
	if err := ps.db.First(&prospect, id).Error; err != nil {
		return nil, err
	}
	return &prospect, nil
}

func (ps *gormProspectStore) StopFollowUps(id uint, reason string) (bool, error) {
	// The status guard in the WHERE clause makes the transition atomic and
	// idempotent: a second call matches zero rows
	res := ps.db.Model(&models.Prospect{}).
		Where("id = ? AND follow_up_status = ?", id, models.FollowUpActive).
		Updates(map[string]interface{}{
			"follow_up_status": models.FollowUpStopped,
			"response_type":    reason,
			"reply_count":      gorm.Expr("reply_count + ?", 1),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (ps *gormProspectStore) RestartFollowUps(id uint) error {
	return ps.db.Model(&models.Prospect{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"follow_up_status":  models.FollowUpActive,
			"response_type":     "",
			"auto_reply_streak": 0,
		}).Error
}

func (ps *gormProspectStore) IncrementAutoReplyStreak(id uint) (int, error) {
	err := ps.db.Model(&models.Prospect{}).
		Where("id = ?", id).
		Update("auto_reply_streak", gorm.Expr("auto_reply_streak + ?", 1)).Error
	if err != nil {
		return 0, err
	}
	var prospect models.Prospect
	if err := ps.db.Select("auto_reply_streak").First(&prospect, id).Error; err != nil {
		return 0, err
	}
	return prospect.AutoReplyStreak, nil
}

func (ps *gormProspectStore) ResetAutoReplyStreak(id uint) error {
	return ps.db.Model(&models.Prospect{}).
		Where("id = ? AND auto_reply_streak <> 0", id).
		Update("auto_reply_streak", 0).Error
}

func (ps *gormProspectStore) Touch(id uint, at time.Time) error {
	return ps.db.Model(&models.Prospect{}).
		Where("id = ?", id).
		Update("last_contact_at", at).Error
}

func (ps *gormProspectStore) InActiveCampaignOrList(id uint) (bool, error) {
	var count int64
	err := ps.db.Model(&models.CampaignProspect{}).
		Joins("JOIN campaigns ON campaigns.id = campaign_prospects.campaign_id").
		Where("campaign_prospects.prospect_id = ? AND campaigns.status = ?", id, "active").
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	err = ps.db.Model(&models.ListMembership{}).
		Joins("JOIN prospect_lists ON prospect_lists.id = list_memberships.list_id").
		Where("list_memberships.prospect_id = ? AND prospect_lists.is_active = ?", id, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type gormScheduler struct {
	db *gorm.DB
}

func NewScheduler(db *gorm.DB) Scheduler {
	return &gormScheduler{db: db}
}

func (s *gormScheduler) CancelPendingFollowUps(prospectID uint, reason string) (int64, error) {
	now := time.Now()
	res := s.db.Model(&models.FollowUpJob{}).
		Where("prospect_id = ? AND status = ?", prospectID, models.FollowUpJobPending).
		Updates(map[string]interface{}{
			"status":      models.FollowUpJobCanceled,
			"canceled_at": now,
			"reason":      reason,
		})
	return res.RowsAffected, res.Error
}

type gormTemplateStore struct {
	db *gorm.DB
}

func NewTemplateStore(db *gorm.DB) TemplateStore {
	return &gormTemplateStore{db: db}
}

func (ts *gormTemplateStore) FindByIntent(intent string) (*models.ReplyTemplate, error) {
	var tmpl models.ReplyTemplate
	err := ts.db.Where("intent = ? AND is_active = ?", intent, true).First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// ScanStore persists per-cycle audit records
type ScanStore interface {
	Record(result *models.ScanResult) error
}

type gormScanStore struct {
	db *gorm.DB
}

func NewScanStore(db *gorm.DB) ScanStore {
	return &gormScanStore{db: db}
}

func (ss *gormScanStore) Record(result *models.ScanResult) error {
	return ss.db.Create(result).Error
}

// AccountStore updates the transient monitoring fields on mailbox accounts
type AccountStore interface {
	TouchScan(accountID uint, at time.Time, lastErr *string) error
}

type gormAccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) AccountStore {
	return &gormAccountStore{db: db}
}

func (as *gormAccountStore) TouchScan(accountID uint, at time.Time, lastErr *string) error {
	return as.db.Model(&models.MailboxAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"last_scan_at": at,
			"last_error":   lastErr,
		}).Error
}
