package worker

import (
	"bytes"
	"log"
	"strings"
	"text/template"
	"time"

	"mailpulse/models"
	"mailpulse/utils"
)

// SendOutcome is the result of one auto-response attempt
type SendOutcome string

const (
	OutcomeSent    SendOutcome = "sent"
	OutcomeFailed  SendOutcome = "failed"
	OutcomeSkipped SendOutcome = "skipped"
)

// IntentClassifier decides what an inbound message is about. The production
// deployment plugs an external drafting service in here; the keyword matcher
// below is the in-repo default.
type IntentClassifier interface {
	ClassifyIntent(msg *InboundMessage) (string, error)
}

// TemplateStore looks up the response template for an intent.
// Returns (nil, nil) when no active template exists.
type TemplateStore interface {
	FindByIntent(intent string) (*models.ReplyTemplate, error)
}

// ReplySender is the outbound path (satisfied by utils.Mailer)
type ReplySender interface {
	ProviderForProspect(prospectID uint) (*models.MailboxAccount, error)
	Send(account *models.MailboxAccount, email utils.OutboundEmail) error
}

// AutoResponder drafts and dispatches an automatic reply to a detected
// human response
type AutoResponder struct {
	intents   IntentClassifier
	templates TemplateStore
	sender    ReplySender
	threads   ThreadStore
	logger    *log.Logger
}

func NewAutoResponder(intents IntentClassifier, templates TemplateStore, sender ReplySender, threads ThreadStore, logger *log.Logger) *AutoResponder {
	return &AutoResponder{
		intents:   intents,
		templates: templates,
		sender:    sender,
		threads:   threads,
		logger:    logger,
	}
}

// templateData are the prospect fields exposed to response templates
type templateData struct {
	FirstName string
	LastName  string
	Company   string
	Email     string
	Subject   string
}

// Respond classifies the inbound message's intent, renders the matching
// template against the prospect and hands the result to the outbound sender.
// A send failure is surfaced as OutcomeFailed and never rolls back the
// reply-detected state already recorded.
func (ar *AutoResponder) Respond(msg *InboundMessage, thread *models.Thread, prospect *models.Prospect) (SendOutcome, error) {
	intent, err := ar.intents.ClassifyIntent(msg)
	if err != nil || intent == "" {
		// Still attempt a response with the general template
		intent = models.IntentGeneralInquiry
	}

	tmpl, err := ar.templates.FindByIntent(intent)
	if err != nil {
		return OutcomeSkipped, err
	}
	if tmpl == nil && intent != models.IntentGeneralInquiry {
		tmpl, err = ar.templates.FindByIntent(models.IntentGeneralInquiry)
		if err != nil {
			return OutcomeSkipped, err
		}
	}
	if tmpl == nil {
		ar.logger.Printf("No template for intent %q, skipping auto-response to %s", intent, prospect.Email)
		return OutcomeSkipped, nil
	}

	data := templateData{
		FirstName: prospect.FirstName,
		LastName:  prospect.LastName,
		Company:   prospect.Company,
		Email:     prospect.Email,
		Subject:   msg.Subject,
	}
	subject, err := renderTemplate(tmpl.Subject, data)
	if err != nil {
		return OutcomeSkipped, err
	}
	body, err := renderTemplate(tmpl.Body, data)
	if err != nil {
		return OutcomeSkipped, err
	}

	account, err := ar.sender.ProviderForProspect(prospect.ID)
	if err != nil {
		return OutcomeFailed, &SendError{Recipient: prospect.Email, Err: err}
	}

	email := utils.OutboundEmail{
		To:        prospect.Email,
		ToName:    strings.TrimSpace(prospect.FirstName + " " + prospect.LastName),
		Subject:   subject,
		Body:      body,
		AutoReply: true,
	}
	if err := ar.sender.Send(account, email); err != nil {
		sendErr := &SendError{Recipient: prospect.Email, Err: err}
		utils.LogError("auto_response_failed", sendErr, map[string]interface{}{
			"prospect_id": prospect.ID,
			"intent":      intent,
			"account_id":  account.ID,
		})
		return OutcomeFailed, sendErr
	}

	now := time.Now()
	sent := &models.ThreadMessage{
		AccountID:      &account.ID,
		Direction:      models.DirectionSent,
		Sender:         account.FromEmail,
		Recipient:      prospect.Email,
		Subject:        subject,
		Body:           body,
		SentAt:         now,
		IsAutoResponse: true,
	}
	if err := ar.threads.Append(thread.ID, sent); err != nil {
		// The mail is already out; a failed audit append must not fail the cycle
		utils.LogError("thread_append_failed", err, map[string]interface{}{
			"prospect_id": prospect.ID,
			"thread_id":   thread.ID,
		})
	}
	if err := ar.threads.Touch(thread.ID, now); err != nil {
		ar.logger.Printf("Failed to touch thread %d: %v", thread.ID, err)
	}

	utils.LogEvent("auto_response_sent", map[string]interface{}{
		"prospect_id": prospect.ID,
		"intent":      intent,
		"account_id":  account.ID,
		"subject":     subject,
	})
	return OutcomeSent, nil
}

func renderTemplate(text string, data templateData) (string, error) {
	tmpl, err := template.New("reply").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// KeywordIntentClassifier is the default intent matcher: first keyword group
// that appears in the subject or body wins
type KeywordIntentClassifier struct{}

var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{"unsubscribe", []string{"unsubscribe", "remove me", "stop emailing", "take me off"}},
	{"pricing", []string{"pricing", "price", "cost", "how much", "quote"}},
	{"meeting", []string{"schedule a call", "book a meeting", "calendly", "set up a call", "availability"}},
	{"not_interested", []string{"not interested", "no thanks", "no thank you", "pass on this"}},
	{"interested", []string{"interested", "tell me more", "more information", "sounds good", "learn more"}},
}

func NewKeywordIntentClassifier() *KeywordIntentClassifier {
	return &KeywordIntentClassifier{}
}

func (kc *KeywordIntentClassifier) ClassifyIntent(msg *InboundMessage) (string, error) {
	combined := strings.ToLower(msg.Subject + "\n" + msg.BodyText)
	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(combined, kw) {
				return group.intent, nil
			}
		}
	}
	return "", nil
}
