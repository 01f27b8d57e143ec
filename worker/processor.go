package worker

import (
	"log"
	"time"

	"mailpulse/models"
	"mailpulse/utils"
)

// Processor runs the per-message pipeline: prospect lookup, classification,
// thread append, follow-up cancellation and the optional auto-response.
type Processor struct {
	prospects  ProspectStore
	threads    ThreadStore
	classifier ReplyClassifier
	canceller  *FollowUpCanceller
	responder  *AutoResponder // nil disables the auto-response step
	lookback   time.Duration
	logger     *log.Logger
}

func NewProcessor(prospects ProspectStore, threads ThreadStore, classifier ReplyClassifier, canceller *FollowUpCanceller, responder *AutoResponder, lookback time.Duration, logger *log.Logger) *Processor {
	return &Processor{
		prospects:  prospects,
		threads:    threads,
		classifier: classifier,
		canceller:  canceller,
		responder:  responder,
		lookback:   lookback,
		logger:     logger,
	}
}

// Process handles one fetched message. A nil return means the message may be
// marked seen; an error means it must stay unseen and be re-delivered on the
// next cycle. Re-processing the same message is safe because every downstream
// effect is idempotent.
func (p *Processor) Process(account *models.MailboxAccount, msg *InboundMessage) error {
	prospect, err := p.prospects.FindByEmail(msg.From)
	if err != nil {
		return err
	}
	if prospect == nil {
		// Not one of ours; leave it for the regular inbox
		p.logger.Printf("No prospect for sender %s, skipping message %q", msg.From, msg.Subject)
		return nil
	}

	thread, err := p.threads.GetOrCreate(prospect.ID)
	if err != nil {
		return err
	}

	facts, err := p.gatherFacts(prospect)
	cls := Classification{}
	if err == nil {
		cls, err = p.classifier.Classify(msg, facts)
	}
	if err != nil {
		// Fail safe: prefer to over-stop follow-ups rather than keep mailing
		// a prospect who already replied
		clsErr := &ClassificationError{MessageID: msg.MessageID, Err: err}
		utils.LogError("classification_error", clsErr, map[string]interface{}{
			"prospect_id": prospect.ID,
			"account_id":  account.ID,
		})
		cls = Classification{IsReply: true, Matched: "fail_safe"}
	}

	now := time.Now()
	inbound := &models.ThreadMessage{
		AccountID:         &account.ID,
		MessageID:         msg.MessageID,
		Direction:         models.DirectionReceived,
		Sender:            msg.From,
		Recipient:         account.FromEmail,
		Subject:           msg.Subject,
		Body:              msg.BodyText,
		BodyHTML:          msg.BodyHTML,
		SentAt:            msg.Date,
		IsReplyToOurEmail: cls.IsReply,
		IsAutoResponse:    cls.IsAutoReply,
	}
	if err := p.threads.Append(thread.ID, inbound); err != nil {
		return err
	}
	if err := p.threads.Touch(thread.ID, now); err != nil {
		return err
	}
	if err := p.prospects.Touch(prospect.ID, now); err != nil {
		return err
	}

	switch {
	case cls.IsAutoReply:
		// A lone auto-reply is not a conversation; two in a row stop
		// follow-ups anyway
		stopped, err := p.canceller.RecordAutoReply(prospect.ID)
		if err != nil {
			return err
		}
		if stopped {
			p.logger.Printf("Prospect %d stopped after repeated auto-replies", prospect.ID)
		}
	case cls.IsReply:
		if _, err := p.canceller.RecordHumanReply(prospect.ID); err != nil {
			return err
		}
		if p.responder != nil {
			// A failed send is logged, not propagated: the message is done
			if outcome, err := p.responder.Respond(msg, thread, prospect); err != nil {
				p.logger.Printf("Auto-response to %s: %s (%v)", prospect.Email, outcome, err)
			}
		}
	default:
		// An unrelated message breaks the run of consecutive auto-replies
		if err := p.prospects.ResetAutoReplyStreak(prospect.ID); err != nil {
			return err
		}
		p.logger.Printf("Message %q from %s classified unrelated", msg.Subject, msg.From)
	}

	return nil
}

func (p *Processor) gatherFacts(prospect *models.Prospect) (ClassifierFacts, error) {
	since := time.Now().Add(-p.lookback)
	recent, err := p.threads.HasOutboundSince(prospect.ID, since)
	if err != nil {
		return ClassifierFacts{}, err
	}
	member, err := p.prospects.InActiveCampaignOrList(prospect.ID)
	if err != nil {
		return ClassifierFacts{}, err
	}
	return ClassifierFacts{
		HasRecentOutbound: recent,
		InActiveCampaign:  member,
	}, nil
}
