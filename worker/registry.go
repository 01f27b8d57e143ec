package worker

import (
	"fmt"
	"sync"

	"mailpulse/models"
	"mailpulse/utils"

	"github.com/badoux/checkmail"
	"gorm.io/gorm"
)

// AccountSource is the provider-configuration store the registry loads from
type AccountSource interface {
	ListEnabled() ([]models.MailboxAccount, error)
}

type gormAccountSource struct {
	db *gorm.DB
}

func (s *gormAccountSource) ListEnabled() ([]models.MailboxAccount, error) {
	var accounts []models.MailboxAccount
	err := s.db.Where("enabled = ?", true).Find(&accounts).Error
	return accounts, err
}

// Registry is the in-memory set of accounts currently eligible for
// monitoring. It is loaded from the provider-configuration store at startup
// and re-loaded on every supervisor reconcile tick, so accounts enabled or
// disabled outside this process are picked up while running.
type Registry struct {
	mu       sync.RWMutex
	source   AccountSource
	accounts map[uint]*models.MailboxAccount
}

func NewRegistry(db *gorm.DB) *Registry {
	return NewRegistryFromSource(&gormAccountSource{db: db})
}

func NewRegistryFromSource(source AccountSource) *Registry {
	return &Registry{
		source:   source,
		accounts: make(map[uint]*models.MailboxAccount),
	}
}

// Load replaces the registry contents with all enabled accounts from the
// source. Accounts with incomplete or malformed configuration are excluded
// and logged rather than failing the whole load. On error the previous
// contents stay in place.
func (r *Registry) Load() error {
	accounts, err := r.source.ListEnabled()
	if err != nil {
		return err
	}

	loaded := make(map[uint]*models.MailboxAccount, len(accounts))
	for i := range accounts {
		account := &accounts[i]
		if err := ValidateAccount(account); err != nil {
			utils.LogEvent("account_excluded", map[string]interface{}{
				"account_id": account.ID,
				"email":      account.FromEmail,
				"reason":     err.Error(),
			})
			continue
		}
		loaded[account.ID] = account
	}

	r.mu.Lock()
	r.accounts = loaded
	r.mu.Unlock()
	return nil
}

// ValidateAccount checks that an account carries everything a scan cycle
// needs. The send-side fields are not required here; an account can be
// monitor-only.
func ValidateAccount(account *models.MailboxAccount) error {
	if err := checkmail.ValidateFormat(account.FromEmail); err != nil {
		return fmt.Errorf("invalid from_email %q: %w", account.FromEmail, err)
	}
	if account.IMAPHost == "" {
		return fmt.Errorf("missing IMAP host")
	}
	if account.IMAPPort <= 0 || account.IMAPPort > 65535 {
		return fmt.Errorf("invalid IMAP port %d", account.IMAPPort)
	}
	if account.IMAPUsername == "" || account.IMAPPassword == "" {
		return fmt.Errorf("missing IMAP credentials")
	}
	return nil
}

// Add inserts or replaces an account in the registry
func (r *Registry) Add(account *models.MailboxAccount) error {
	if err := ValidateAccount(account); err != nil {
		return err
	}
	r.mu.Lock()
	r.accounts[account.ID] = account
	r.mu.Unlock()
	return nil
}

func (r *Registry) Remove(id uint) {
	r.mu.Lock()
	delete(r.accounts, id)
	r.mu.Unlock()
}

func (r *Registry) Get(id uint) (*models.MailboxAccount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	return account, ok
}

// List returns a snapshot of the registered accounts
func (r *Registry) List() []*models.MailboxAccount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.MailboxAccount, 0, len(r.accounts))
	for _, account := range r.accounts {
		out = append(out, account)
	}
	return out
}
