package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/models"
)

// fakeThreadStore is an in-memory ThreadStore keyed by prospect
type fakeThreadStore struct {
	mu       sync.Mutex
	threads  map[uint]*models.Thread // by prospect ID
	messages map[uint][]models.ThreadMessage
	outbound map[uint]bool // HasOutboundSince answer per prospect
	nextID   uint

	appendErr error
}

func newFakeThreadStore() *fakeThreadStore {
	return &fakeThreadStore{
		threads:  make(map[uint]*models.Thread),
		messages: make(map[uint][]models.ThreadMessage),
		outbound: make(map[uint]bool),
	}
}

func (ts *fakeThreadStore) GetOrCreate(prospectID uint) (*models.Thread, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if thread, ok := ts.threads[prospectID]; ok {
		return thread, nil
	}
	ts.nextID++
	thread := &models.Thread{ProspectID: prospectID, LastActivityAt: time.Now()}
	thread.ID = ts.nextID
	ts.threads[prospectID] = thread
	return thread, nil
}

func (ts *fakeThreadStore) Append(threadID uint, msg *models.ThreadMessage) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.appendErr != nil {
		return ts.appendErr
	}
	msg.ThreadID = threadID
	// Same dedup contract as the durable store: a Message-ID already in
	// the thread is dropped
	if msg.MessageID != "" {
		for _, existing := range ts.messages[threadID] {
			if existing.MessageID == msg.MessageID {
				return nil
			}
		}
	}
	ts.messages[threadID] = append(ts.messages[threadID], *msg)
	return nil
}

func (ts *fakeThreadStore) Touch(threadID uint, at time.Time) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, thread := range ts.threads {
		if thread.ID == threadID {
			thread.LastActivityAt = at
		}
	}
	return nil
}

func (ts *fakeThreadStore) Messages(threadID uint) ([]models.ThreadMessage, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.messages[threadID], nil
}

func (ts *fakeThreadStore) HasOutboundSince(prospectID uint, since time.Time) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.outbound[prospectID], nil
}

// errClassifier always fails
type errClassifier struct{}

func (errClassifier) Classify(msg *InboundMessage, facts ClassifierFacts) (Classification, error) {
	return Classification{}, errors.New("model unavailable")
}

func testAccount() *models.MailboxAccount {
	account := &models.MailboxAccount{
		Name:         "Sales",
		FromEmail:    "sales@ourco.com",
		IMAPHost:     "imap.ourco.com",
		IMAPPort:     993,
		IMAPUsername: "sales@ourco.com",
		IMAPPassword: "encrypted",
		Enabled:      true,
	}
	account.ID = 7
	return account
}

func newTestProcessor(prospects *fakeProspectStore, threads *fakeThreadStore, cls ReplyClassifier) *Processor {
	canceller := NewFollowUpCanceller(prospects, &fakeScheduler{}, testLogger())
	return NewProcessor(prospects, threads, cls, canceller, nil, 60*24*time.Hour, testLogger())
}

func TestProcessUnknownSenderIsSkipped(t *testing.T) {
	prospects := newFakeProspectStore()
	threads := newFakeThreadStore()
	p := newTestProcessor(prospects, threads, NewHeuristicClassifier())

	err := p.Process(testAccount(), &InboundMessage{
		From:    "stranger@elsewhere.com",
		Subject: "Re: Summer Sale",
	})
	require.NoError(t, err)
	assert.Empty(t, threads.threads, "no thread may be created for unknown senders")
}

func TestProcessHumanReplyStopsFollowUps(t *testing.T) {
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	threads := newFakeThreadStore()
	p := newTestProcessor(prospects, threads, NewHeuristicClassifier())

	err := p.Process(testAccount(), &InboundMessage{
		MessageID: "<m1@example.com>",
		From:      "ada@example.com",
		Subject:   "Re: Summer Sale",
		BodyText:  "Sounds interesting, tell me more.",
		Date:      time.Now(),
	})
	require.NoError(t, err)

	prospect, _ := prospects.Get(1)
	assert.Equal(t, models.FollowUpStopped, prospect.FollowUpStatus)
	assert.Equal(t, models.ResponseManual, prospect.ResponseType)

	msgs := threads.messages[threads.threads[1].ID]
	require.Len(t, msgs, 1)
	assert.Equal(t, models.DirectionReceived, msgs[0].Direction)
	assert.True(t, msgs[0].IsReplyToOurEmail)
	assert.False(t, msgs[0].IsAutoResponse)
}

func TestProcessAutoReplyIncrementsStreakOnly(t *testing.T) {
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	threads := newFakeThreadStore()
	threads.outbound[1] = true
	p := newTestProcessor(prospects, threads, NewHeuristicClassifier())

	err := p.Process(testAccount(), &InboundMessage{
		MessageID: "<ooo1@example.com>",
		From:      "ada@example.com",
		Subject:   "Automatic reply: Summer Sale",
		BodyText:  "I am out of office until Monday.",
		Date:      time.Now(),
	})
	require.NoError(t, err)

	prospect, _ := prospects.Get(1)
	assert.Equal(t, models.FollowUpActive, prospect.FollowUpStatus)
	assert.Equal(t, 1, prospect.AutoReplyStreak)

	msgs := threads.messages[threads.threads[1].ID]
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsAutoResponse)
}

func TestProcessClassifierFailureFailsSafe(t *testing.T) {
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	threads := newFakeThreadStore()
	p := newTestProcessor(prospects, threads, errClassifier{})

	// A broken classifier must stop follow-ups rather than keep mailing a
	// prospect who may have replied
	err := p.Process(testAccount(), &InboundMessage{
		MessageID: "<m2@example.com>",
		From:      "ada@example.com",
		Subject:   "hello",
		Date:      time.Now(),
	})
	require.NoError(t, err)

	prospect, _ := prospects.Get(1)
	assert.Equal(t, models.FollowUpStopped, prospect.FollowUpStatus)
	assert.Equal(t, models.ResponseManual, prospect.ResponseType)
}

func TestProcessStoreFailurePropagates(t *testing.T) {
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	threads := newFakeThreadStore()
	threads.appendErr = errors.New("db down")
	p := newTestProcessor(prospects, threads, NewHeuristicClassifier())

	// The caller must keep the message unseen and retry next cycle
	err := p.Process(testAccount(), &InboundMessage{
		From:    "ada@example.com",
		Subject: "Re: Summer Sale",
		Date:    time.Now(),
	})
	assert.Error(t, err)
}

func TestProcessIsIdempotentAcrossRedelivery(t *testing.T) {
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	threads := newFakeThreadStore()
	p := newTestProcessor(prospects, threads, NewHeuristicClassifier())

	msg := &InboundMessage{
		MessageID: "<m1@example.com>",
		From:      "ada@example.com",
		Subject:   "Re: Summer Sale",
		Date:      time.Now(),
	}
	require.NoError(t, p.Process(testAccount(), msg))
	require.NoError(t, p.Process(testAccount(), msg))

	prospect, _ := prospects.Get(1)
	assert.Equal(t, models.FollowUpStopped, prospect.FollowUpStatus)
	// The first observation flips the status, the second matches zero rows
	assert.Equal(t, 1, prospect.ReplyCount)

	// The redelivered message must not double the conversation log either
	msgs := threads.messages[threads.threads[1].ID]
	require.Len(t, msgs, 1)
	assert.Equal(t, "<m1@example.com>", msgs[0].MessageID)
}

func TestProcessUnrelatedMessageBreaksAutoReplyRun(t *testing.T) {
	prospects := newFakeProspectStore(activeProspect(1, "ada@example.com"))
	threads := newFakeThreadStore()
	p := newTestProcessor(prospects, threads, NewHeuristicClassifier())

	account := testAccount()
	autoReply := func(id string) *InboundMessage {
		return &InboundMessage{
			MessageID: id,
			From:      "ada@example.com",
			Subject:   "Automatic reply: Summer Sale",
			BodyText:  "I am out of office until Monday.",
			Date:      time.Now(),
		}
	}

	require.NoError(t, p.Process(account, autoReply("<ooo1@example.com>")))

	// An unrelated message in between means the auto-replies are no longer
	// consecutive
	require.NoError(t, p.Process(account, &InboundMessage{
		MessageID: "<news@example.com>",
		From:      "ada@example.com",
		Subject:   "Quarterly newsletter",
		BodyText:  "Here is what we shipped this quarter.",
		Date:      time.Now(),
	}))

	require.NoError(t, p.Process(account, autoReply("<ooo2@example.com>")))

	prospect, _ := prospects.Get(1)
	assert.Equal(t, models.FollowUpActive, prospect.FollowUpStatus)
	assert.Equal(t, 1, prospect.AutoReplyStreak)

	// Two genuinely consecutive auto-replies still stop follow-ups
	require.NoError(t, p.Process(account, autoReply("<ooo3@example.com>")))
	prospect, _ = prospects.Get(1)
	assert.Equal(t, models.FollowUpStopped, prospect.FollowUpStatus)
	assert.Equal(t, models.ResponseAutoReply, prospect.ResponseType)
}
