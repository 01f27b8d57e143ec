package worker

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailpulse/models"
	"mailpulse/utils"
)

type fakeTemplateStore struct {
	templates map[string]*models.ReplyTemplate
}

func (ts *fakeTemplateStore) FindByIntent(intent string) (*models.ReplyTemplate, error) {
	return ts.templates[intent], nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []utils.OutboundEmail
	account *models.MailboxAccount
	sendErr error
}

func (s *fakeSender) ProviderForProspect(prospectID uint) (*models.MailboxAccount, error) {
	if s.account == nil {
		return nil, errors.New("no provider")
	}
	return s.account, nil
}

func (s *fakeSender) Send(account *models.MailboxAccount, email utils.OutboundEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, email)
	return nil
}

func pricingTemplate() *models.ReplyTemplate {
	return &models.ReplyTemplate{
		Intent:   "pricing",
		Name:     "Pricing follow-up",
		Subject:  "Re: {{.Subject}}",
		Body:     "Hi {{.FirstName}}, our pricing starts at $49/month.",
		IsActive: true,
	}
}

func generalTemplate() *models.ReplyTemplate {
	return &models.ReplyTemplate{
		Intent:   models.IntentGeneralInquiry,
		Name:     "General",
		Subject:  "Re: {{.Subject}}",
		Body:     "Hi {{.FirstName}}, thanks for getting back to us.",
		IsActive: true,
	}
}

func newTestResponder(templates *fakeTemplateStore, sender *fakeSender, threads *fakeThreadStore) *AutoResponder {
	return NewAutoResponder(NewKeywordIntentClassifier(), templates, sender, threads, testLogger())
}

func respondSetup() (*fakeThreadStore, *models.Thread, *models.Prospect) {
	threads := newFakeThreadStore()
	thread, _ := threads.GetOrCreate(1)
	prospect := activeProspect(1, "ada@example.com")
	return threads, thread, prospect
}

func TestRespondMatchesIntentAndSends(t *testing.T) {
	threads, thread, prospect := respondSetup()
	sender := &fakeSender{account: testAccount()}
	templates := &fakeTemplateStore{templates: map[string]*models.ReplyTemplate{
		"pricing": pricingTemplate(),
	}}
	ar := newTestResponder(templates, sender, threads)

	outcome, err := ar.Respond(&InboundMessage{
		From:     "ada@example.com",
		Subject:  "Summer Sale",
		BodyText: "How much does this cost?",
	}, thread, prospect)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.Equal(t, "Re: Summer Sale", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "Hi Ada")
	assert.True(t, sender.sent[0].AutoReply)

	// The outbound reply is recorded on the thread
	msgs := threads.messages[thread.ID]
	require.Len(t, msgs, 1)
	assert.Equal(t, models.DirectionSent, msgs[0].Direction)
	assert.True(t, msgs[0].IsAutoResponse)
}

func TestRespondFallsBackToGeneralTemplate(t *testing.T) {
	threads, thread, prospect := respondSetup()
	sender := &fakeSender{account: testAccount()}
	templates := &fakeTemplateStore{templates: map[string]*models.ReplyTemplate{
		models.IntentGeneralInquiry: generalTemplate(),
	}}
	ar := newTestResponder(templates, sender, threads)

	// No keyword group matches this message
	outcome, err := ar.Respond(&InboundMessage{
		From:     "ada@example.com",
		Subject:  "Summer Sale",
		BodyText: "Can you forward this to your CEO?",
	}, thread, prospect)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "thanks for getting back")
}

func TestRespondSkipsWithoutTemplate(t *testing.T) {
	threads, thread, prospect := respondSetup()
	sender := &fakeSender{account: testAccount()}
	ar := newTestResponder(&fakeTemplateStore{templates: map[string]*models.ReplyTemplate{}}, sender, threads)

	outcome, err := ar.Respond(&InboundMessage{
		From:     "ada@example.com",
		Subject:  "Summer Sale",
		BodyText: "How much does this cost?",
	}, thread, prospect)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, sender.sent)
	assert.Empty(t, threads.messages[thread.ID])
}

func TestRespondSendFailureIsReported(t *testing.T) {
	threads, thread, prospect := respondSetup()
	sender := &fakeSender{account: testAccount(), sendErr: errors.New("smtp 550")}
	templates := &fakeTemplateStore{templates: map[string]*models.ReplyTemplate{
		models.IntentGeneralInquiry: generalTemplate(),
	}}
	ar := newTestResponder(templates, sender, threads)

	outcome, err := ar.Respond(&InboundMessage{
		From:    "ada@example.com",
		Subject: "Summer Sale",
	}, thread, prospect)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	var sendErr *SendError
	assert.ErrorAs(t, err, &sendErr)
	// Nothing is recorded on the thread for a failed send
	assert.Empty(t, threads.messages[thread.ID])
}

func TestKeywordIntentClassifier(t *testing.T) {
	kc := NewKeywordIntentClassifier()

	tests := []struct {
		body   string
		intent string
	}{
		{"Please remove me from your list", "unsubscribe"},
		{"What is your pricing?", "pricing"},
		{"Can we schedule a call on Friday?", "meeting"},
		{"Not interested, thanks", "not_interested"},
		{"Sounds good, tell me more", "interested"},
		{"Who is this?", ""},
	}
	for _, tt := range tests {
		intent, err := kc.ClassifyIntent(&InboundMessage{BodyText: tt.body})
		require.NoError(t, err)
		assert.Equal(t, tt.intent, intent, tt.body)
	}
}
