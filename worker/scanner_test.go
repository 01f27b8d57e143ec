package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/models"
)

// fakeSession serves a fixed set of unseen messages
type fakeSession struct {
	mu        sync.Mutex
	unseen    []uint32
	msgs      map[uint32]*InboundMessage
	seen      []uint32
	fetchErrs map[uint32]error
	closed    bool
}

func (s *fakeSession) ListUnseen() ([]uint32, error) {
	return s.unseen, nil
}

func (s *fakeSession) Fetch(ref uint32) (*InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fetchErrs[ref]; err != nil {
		return nil, err
	}
	msg, ok := s.msgs[ref]
	if !ok {
		return nil, errors.New("no such message")
	}
	return msg, nil
}

func (s *fakeSession) MarkSeen(ref uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, ref)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeDialer struct {
	session *fakeSession
	err     error
}

func (d *fakeDialer) Open(account *models.MailboxAccount) (Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

type fakeScanStore struct {
	mu      sync.Mutex
	results []*models.ScanResult
}

func (ss *fakeScanStore) Record(result *models.ScanResult) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.results = append(ss.results, result)
	return nil
}

type fakeAccountStore struct {
	mu       sync.Mutex
	lastErrs []*string
}

func (as *fakeAccountStore) TouchScan(accountID uint, at time.Time, lastErr *string) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.lastErrs = append(as.lastErrs, lastErr)
	return nil
}

func inboundFrom(email, subject string) *InboundMessage {
	return &InboundMessage{
		MessageID: "<" + subject + "@example.com>",
		From:      email,
		Subject:   subject,
		Date:      time.Now(),
	}
}

func newTestScanner(dialer Dialer, prospects *fakeProspectStore, threads *fakeThreadStore) (*Scanner, *fakeScanStore, *fakeAccountStore) {
	processor := newTestProcessor(prospects, threads, NewHeuristicClassifier())
	scans := &fakeScanStore{}
	accounts := &fakeAccountStore{}
	return NewScanner(dialer, processor, scans, accounts, testLogger()), scans, accounts
}

func TestScanProcessesAndMarksSeen(t *testing.T) {
	session := &fakeSession{
		unseen: []uint32{11, 12},
		msgs: map[uint32]*InboundMessage{
			11: inboundFrom("ada@example.com", "Re: Summer Sale"),
			12: inboundFrom("stranger@elsewhere.com", "Newsletter"),
		},
	}
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	scanner, scans, _ := newTestScanner(&fakeDialer{session: session}, prospects, newFakeThreadStore())

	result, err := scanner.Scan(context.Background(), testAccount())
	require.NoError(t, err)

	assert.Equal(t, 2, result.NewMessages)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Errored)
	// Both messages were fully handled, so both get the seen flag
	assert.ElementsMatch(t, []uint32{11, 12}, session.seen)
	assert.True(t, session.closed)
	require.Len(t, scans.results, 1)
	assert.Equal(t, result.ScanID, scans.results[0].ScanID)
}

func TestScanLeavesFailedMessagesUnseen(t *testing.T) {
	session := &fakeSession{
		unseen: []uint32{11, 12},
		msgs: map[uint32]*InboundMessage{
			11: inboundFrom("ada@example.com", "Re: Summer Sale"),
			12: inboundFrom("ada@example.com", "Re: Pricing"),
		},
	}
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	threads := newFakeThreadStore()
	threads.appendErr = errors.New("db down")
	scanner, _, _ := newTestScanner(&fakeDialer{session: session}, prospects, threads)

	result, err := scanner.Scan(context.Background(), testAccount())
	require.NoError(t, err)

	// Failed messages stay unseen and come back next cycle
	assert.Empty(t, session.seen)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 2, result.Errored)
	assert.Len(t, result.Errors, 2)
}

func TestScanSkipsUnfetchableMessages(t *testing.T) {
	session := &fakeSession{
		unseen: []uint32{11, 12},
		msgs: map[uint32]*InboundMessage{
			12: inboundFrom("ada@example.com", "Re: Summer Sale"),
		},
		fetchErrs: map[uint32]error{11: errors.New("malformed")},
	}
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	scanner, _, _ := newTestScanner(&fakeDialer{session: session}, prospects, newFakeThreadStore())

	result, err := scanner.Scan(context.Background(), testAccount())
	require.NoError(t, err)

	// The broken message is skipped, the rest of the batch still lands
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Errored)
	assert.Equal(t, []uint32{12}, session.seen)
}

func TestScanConnectionFailure(t *testing.T) {
	prospects := newFakeProspectStore()
	scanner, scans, accounts := newTestScanner(&fakeDialer{err: errors.New("connection refused")}, prospects, newFakeThreadStore())

	result, err := scanner.Scan(context.Background(), testAccount())
	require.Error(t, err)

	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, 1, result.Errored)

	// The failure is still recorded for the audit log and the account row
	require.Len(t, scans.results, 1)
	require.Len(t, accounts.lastErrs, 1)
	require.NotNil(t, accounts.lastErrs[0])
	assert.Contains(t, *accounts.lastErrs[0], "connection refused")
}

func TestScanStopsOnContextCancel(t *testing.T) {
	session := &fakeSession{
		unseen: []uint32{11, 12, 13},
		msgs: map[uint32]*InboundMessage{
			11: inboundFrom("ada@example.com", "Re: Summer Sale"),
			12: inboundFrom("ada@example.com", "Re: Pricing"),
			13: inboundFrom("ada@example.com", "Re: Contract"),
		},
	}
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	scanner, _, _ := newTestScanner(&fakeDialer{session: session}, prospects, newFakeThreadStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := scanner.Scan(ctx, testAccount())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, session.seen)
}
