package worker

import (
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"mailpulse/models"
	"mailpulse/utils"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// InboundMessage is one fetched mailbox message, parsed and ready for
// classification
type InboundMessage struct {
	Ref       uint32 // IMAP UID within the session's mailbox
	MessageID string
	From      string
	FromName  string
	To        string
	Subject   string
	BodyText  string
	BodyHTML  string
	Date      time.Time
}

// Session is one short-lived mailbox session, opened per poll cycle.
// MarkSeen must only be called after the message has been fully processed so
// that a crash mid-processing causes a safe re-delivery on the next cycle.
type Session interface {
	ListUnseen() ([]uint32, error)
	Fetch(ref uint32) (*InboundMessage, error)
	MarkSeen(ref uint32) error
	Close() error
}

// Dialer opens mailbox sessions. The IMAP implementation is swapped for a
// fake in tests.
type Dialer interface {
	Open(account *models.MailboxAccount) (Session, error)
}

type imapDialer struct {
	timeout time.Duration
	logger  *log.Logger
}

// NewIMAPDialer returns the production dialer. Every network operation on the
// resulting sessions is bounded by the given timeout.
func NewIMAPDialer(timeout time.Duration, logger *log.Logger) Dialer {
	return &imapDialer{timeout: timeout, logger: logger}
}

func (d *imapDialer) Open(account *models.MailboxAccount) (Session, error) {
	password, err := utils.Decrypt(account.IMAPPassword)
	if err != nil {
		return nil, &ConnectionError{Account: account.FromEmail, Err: fmt.Errorf("failed to decrypt IMAP password: %w", err)}
	}

	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)

	var imapClient *client.Client
	switch strings.ToUpper(account.IMAPEncryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(addr, &tls.Config{
			InsecureSkipVerify: false,
			ServerName:         account.IMAPHost,
		})
	case "STARTTLS":
		imapClient, err = client.Dial(addr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{
				InsecureSkipVerify: false,
				ServerName:         account.IMAPHost,
			})
		}
	default:
		imapClient, err = client.Dial(addr)
	}
	if err != nil {
		return nil, &ConnectionError{Account: account.FromEmail, Err: err}
	}
	imapClient.Timeout = d.timeout

	if err := imapClient.Login(account.IMAPUsername, password); err != nil {
		imapClient.Logout()
		return nil, &ConnectionError{Account: account.FromEmail, Err: fmt.Errorf("login failed: %w", err)}
	}

	mailbox := "INBOX"
	if account.IMAPMailbox != "" {
		mailbox = account.IMAPMailbox
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		imapClient.Logout()
		return nil, &ConnectionError{Account: account.FromEmail, Err: fmt.Errorf("failed to select %s: %w", mailbox, err)}
	}

	return &imapSession{client: imapClient, logger: d.logger}, nil
}

type imapSession struct {
	client *client.Client
	logger *log.Logger
}

func (s *imapSession) ListUnseen() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return uids, nil
}

func (s *imapSession) Fetch(ref uint32) (*InboundMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ref)

	// Peek so the fetch itself does not flag the message seen
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	var fetched *imap.Message
	for msg := range messages {
		fetched = msg
	}
	if err := <-done; err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	if fetched == nil {
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("message not returned by server")}
	}

	parsed, err := parseIMAPMessage(fetched, section)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	parsed.Ref = ref
	return parsed, nil
}

func parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (*InboundMessage, error) {
	parsed := &InboundMessage{}

	if msg.Envelope != nil {
		parsed.Subject = msg.Envelope.Subject
		parsed.Date = msg.Envelope.Date
		parsed.MessageID = msg.Envelope.MessageId
		if len(msg.Envelope.From) > 0 {
			parsed.From = msg.Envelope.From[0].Address()
			parsed.FromName = msg.Envelope.From[0].PersonalName
		}
		if len(msg.Envelope.To) > 0 {
			parsed.To = msg.Envelope.To[0].Address()
		}
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("message body not found")
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return nil, fmt.Errorf("failed to create message reader: %w", err)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			if strings.Contains(contentType, "text/html") {
				parsed.BodyHTML = string(b)
			} else if strings.Contains(contentType, "text/plain") {
				parsed.BodyText = string(b)
			}
		case *mail.AttachmentHeader:
			// Attachments are irrelevant to reply detection
			_ = h
		}
	}

	if parsed.Date.IsZero() {
		parsed.Date = time.Now()
	}
	return parsed, nil
}

func (s *imapSession) MarkSeen(ref uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ref)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := s.client.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message seen: %w", err)
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.client.Logout()
}
