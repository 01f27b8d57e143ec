package worker

import (
	"fmt"
	"regexp"
	"strings"
)

// Classification is the result of inspecting one inbound message
type Classification struct {
	IsReply     bool
	IsAutoReply bool
	Matched     string // Which rule decided IsReply, for audit logs
}

// ClassifierFacts is everything the classifier may consult besides the
// message itself. The processor gathers them so the classifier stays pure.
type ClassifierFacts struct {
	// A sent message to this prospect exists within the lookback window
	// (thread or durable sent log)
	HasRecentOutbound bool
	// The prospect is attached to an active campaign or list
	InActiveCampaign bool
}

// ReplyClassifier decides whether an inbound message is a reply to something
// we sent, and independently whether it looks auto-generated. Kept behind an
// interface so the detection rules can be swapped and tuned without touching
// the polling engine.
type ReplyClassifier interface {
	Classify(msg *InboundMessage, facts ClassifierFacts) (Classification, error)
}

// Reply/forward subject prefixes across the locales we see in practice:
// en (re, fw, fwd), de (aw, wg), fr (ré), nl (antw), pl (odp), it (rif),
// pt/es (res, rv), sv/da/no (sv, vs), fi (vs, vl), tr (ynt), id (bls),
// zh (回复, 答复, 转发, 回覆), plus the RFC default.
var replyPrefixes = []string{
	"re", "fw", "fwd", "aw", "wg", "ré", "antw", "odp", "rif",
	"res", "rv", "sv", "vs", "vl", "ynt", "bls",
	"回复", "答复", "转发", "回覆",
}

// Phrases that mark vacation/out-of-office responders
var autoReplyKeywords = []string{
	"out of office",
	"out-of-office",
	"automatic reply",
	"automated reply",
	"auto-reply",
	"autoreply",
	"auto response",
	"vacation response",
	"away from the office",
	"on annual leave",
	"on maternity leave",
	"on parental leave",
	"currently on vacation",
	"currently on holiday",
	"abwesenheitsnotiz",
	"réponse automatique",
	"respuesta automática",
	"automatisch antwoord",
	"do not reply to this email",
}

// Sentence structures common in auto-replies that the keyword list misses
var autoReplyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i\s+(?:am|will\s+be)\s+(?:currently\s+)?(?:out\s+of|away\s+from)\s+(?:the\s+)?office`),
	regexp.MustCompile(`(?i)i\s+will\s+(?:be\s+back|return(?:ing)?)\s+(?:on|by)\s+`),
	regexp.MustCompile(`(?i)(?:limited|no)\s+access\s+to\s+(?:my\s+)?e-?mail`),
	regexp.MustCompile(`(?i)thank\s+you\s+for\s+your\s+(?:e-?mail|message)[.,]?\s+i\s+am\s+(?:currently\s+)?(?:away|out|unavailable)`),
	regexp.MustCompile(`(?i)your\s+(?:e-?mail|message)\s+(?:has\s+been|will\s+be)\s+(?:received|forwarded)`),
}

// HeuristicClassifier is the default rule set described above
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Classify applies the reply rules in order, first match wins. IsAutoReply is
// computed independently from subject and body combined. The caller owns the
// fail-safe: on error it must treat the message as a reply.
func (hc *HeuristicClassifier) Classify(msg *InboundMessage, facts ClassifierFacts) (Classification, error) {
	if msg == nil {
		return Classification{}, fmt.Errorf("nil message")
	}

	cls := Classification{
		IsAutoReply: looksAutoGenerated(msg.Subject, msg.BodyText+"\n"+msg.BodyHTML),
	}

	switch {
	case hasReplyMarker(msg.Subject):
		cls.IsReply = true
		cls.Matched = "subject_marker"
	case facts.HasRecentOutbound:
		// Anyone we mailed recently is assumed to be replying to it
		cls.IsReply = true
		cls.Matched = "recent_outbound"
	case facts.InActiveCampaign:
		cls.IsReply = true
		cls.Matched = "campaign_membership"
	}

	return cls, nil
}

// hasReplyMarker reports whether the subject starts with a known
// reply/forward prefix followed by a colon (ASCII or full-width)
func hasReplyMarker(subject string) bool {
	s := strings.ToLower(strings.TrimSpace(subject))
	for _, prefix := range replyPrefixes {
		if strings.HasPrefix(s, prefix+":") || strings.HasPrefix(s, prefix+"：") {
			return true
		}
	}
	return false
}

func looksAutoGenerated(subject, body string) bool {
	combined := strings.ToLower(subject + "\n" + body)
	for _, kw := range autoReplyKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	for _, re := range autoReplyPatterns {
		if re.MatchString(combined) {
			return true
		}
	}
	return false
}
