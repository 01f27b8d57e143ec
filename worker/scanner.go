package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"mailpulse/models"
	"mailpulse/utils"

	"github.com/google/uuid"
)

// Scanner runs one full mailbox cycle for one account: connect, list unseen,
// fetch, process, mark seen. Each cycle is recorded as a ScanResult.
type Scanner struct {
	dialer    Dialer
	processor *Processor
	scans     ScanStore
	accounts  AccountStore
	logger    *log.Logger
}

func NewScanner(dialer Dialer, processor *Processor, scans ScanStore, accounts AccountStore, logger *log.Logger) *Scanner {
	return &Scanner{
		dialer:    dialer,
		processor: processor,
		scans:     scans,
		accounts:  accounts,
		logger:    logger,
	}
}

// Scan performs one cycle and returns the audit record. The returned error is
// non-nil only for connection-level failures; per-message failures are counted
// in the result and the affected messages stay unseen for the next cycle.
func (s *Scanner) Scan(ctx context.Context, account *models.MailboxAccount) (*models.ScanResult, error) {
	started := time.Now()
	result := &models.ScanResult{
		AccountID: account.ID,
		ScanID:    uuid.NewString(),
		StartedAt: started,
	}

	session, err := s.dialer.Open(account)
	if err != nil {
		connErr := &ConnectionError{Account: account.FromEmail, Err: err}
		utils.LogError("imap_connect_failed", connErr, map[string]interface{}{
			"account_id": account.ID,
			"host":       account.IMAPHost,
		})
		result.Errored = 1
		result.Errors = append(result.Errors, connErr.Error())
		s.finish(result, started, connErr)
		return result, connErr
	}
	defer session.Close()

	refs, err := session.ListUnseen()
	if err != nil {
		connErr := &ConnectionError{Account: account.FromEmail, Err: err}
		result.Errored = 1
		result.Errors = append(result.Errors, connErr.Error())
		s.finish(result, started, connErr)
		return result, connErr
	}
	result.NewMessages = len(refs)
	if len(refs) > 0 {
		s.logger.Printf("Account %s: %d unseen messages", account.FromEmail, len(refs))
	}

	for _, ref := range refs {
		select {
		case <-ctx.Done():
			s.finish(result, started, nil)
			return result, ctx.Err()
		default:
		}

		msg, err := session.Fetch(ref)
		if err != nil {
			fetchErr := &FetchError{Ref: ref, Err: err}
			s.logger.Printf("Account %s: %v", account.FromEmail, fetchErr)
			result.Errored++
			result.Errors = append(result.Errors, fetchErr.Error())
			continue
		}

		if err := s.processor.Process(account, msg); err != nil {
			// Leave the message unseen so the next cycle retries it
			utils.LogError("message_processing_failed", err, map[string]interface{}{
				"account_id": account.ID,
				"message_id": msg.MessageID,
			})
			result.Errored++
			result.Errors = append(result.Errors, fmt.Sprintf("process %s: %v", msg.MessageID, err))
			continue
		}

		// Only after every downstream effect has landed
		if err := session.MarkSeen(ref); err != nil {
			s.logger.Printf("Account %s: failed to mark %d seen: %v", account.FromEmail, ref, err)
			result.Errored++
			result.Errors = append(result.Errors, fmt.Sprintf("mark seen %d: %v", ref, err))
			continue
		}
		result.Processed++
	}

	s.finish(result, started, nil)
	return result, nil
}

func (s *Scanner) finish(result *models.ScanResult, started time.Time, scanErr error) {
	result.DurationMS = time.Since(started).Milliseconds()

	var lastErr *string
	if scanErr != nil {
		lastErr = utils.Pointer(scanErr.Error())
	}
	if err := s.accounts.TouchScan(result.AccountID, time.Now(), lastErr); err != nil {
		s.logger.Printf("Failed to update account %d scan state: %v", result.AccountID, err)
	}
	if err := s.scans.Record(result); err != nil {
		s.logger.Printf("Failed to record scan %s: %v", result.ScanID, err)
	}
}
