package ingest

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/chat-metrics/internal/models"
	"go.uber.org/zap"
)

const (
	unknownTicket = "unknown"
	phoneSentinel = "****-0000"
	defaultStatus = "closed"

	// Digit-only timestamps inside this window are Unix seconds; anything
	// else is Unix milliseconds.
	minSecondsEpoch = 1_000_000_000
	maxSecondsEpoch = 4_000_000_000
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02",
}

// Normalizer turns raw export groups into conversations ready to persist.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger, now: time.Now}
}

type timedMessage struct {
	raw RawMessage
	at  time.Time
}

// Normalize groups every message of every item by ticket id, in the order
// tickets are first seen. Tickets without messages produce nothing.
func (n *Normalizer) Normalize(groups []RawGroup) []*models.Conversation {
	var order []string
	byTicket := make(map[string][]timedMessage)

	for _, group := range groups {
		for _, raw := range group.Messages {
			ticket := strings.TrimSpace(raw.TicketID.String())
			if ticket == "" {
				ticket = unknownTicket
			}
			if _, seen := byTicket[ticket]; !seen {
				order = append(order, ticket)
			}
			byTicket[ticket] = append(byTicket[ticket], timedMessage{raw: raw, at: n.messageTime(raw)})
		}
	}

	conversations := make([]*models.Conversation, 0, len(order))
	for _, ticket := range order {
		msgs := byTicket[ticket]
		if len(msgs) == 0 {
			continue
		}
		conversations = append(conversations, n.buildConversation(ticket, msgs))
	}
	return conversations
}

func (n *Normalizer) buildConversation(ticket string, msgs []timedMessage) *models.Conversation {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].at.Before(msgs[j].at)
	})

	first, last := msgs[0], msgs[len(msgs)-1]
	conv := &models.Conversation{
		TicketID:     "ticket_" + ticket,
		PhoneNumber:  anonymizePhone(msgs),
		StartedAt:    first.at,
		EndedAt:      last.at,
		Duration:     int64(last.at.Sub(first.at) / time.Second),
		MessageCount: len(msgs),
		Status:       defaultStatus,
		Messages:     make([]*models.Message, 0, len(msgs)),
	}
	if last.raw.Status != "" {
		conv.Status = last.raw.Status
	}

	for _, m := range msgs {
		conv.Messages = append(conv.Messages, toMessage(m))
	}
	return conv
}

func toMessage(m timedMessage) *models.Message {
	msg := &models.Message{
		ExternalID:        "msg_" + m.raw.ID.String(),
		ProviderMessageID: m.raw.MessageID.String(),
		Sender:            ClassifySender(m.raw),
		Content:           m.raw.Body,
		MediaType:         m.raw.MediaType,
		Timestamp:         m.at,
		FromMe:            m.raw.FromMe,
		SendType:          m.raw.SendType,
	}
	if msg.MediaType == "" {
		msg.MediaType = models.DefaultMediaType
	}
	if m.raw.UserID > 0 {
		op := int64(m.raw.UserID)
		msg.OperatorID = &op
	}
	return msg
}

func (n *Normalizer) messageTime(raw RawMessage) time.Time {
	value := raw.Timestamp.String()
	if strings.TrimSpace(value) == "" {
		value = raw.CreatedAt.String()
	}
	t, ok := ParseTimestamp(value)
	if !ok {
		now := n.now()
		n.logger.Warn("Unparseable message timestamp, using current time",
			zap.String("timestamp", value),
			zap.String("message_id", raw.ID.String()),
			zap.String("ticket_id", raw.TicketID.String()))
		return now
	}
	return t
}

// ParseTimestamp accepts Unix milliseconds, Unix seconds and ISO-8601 strings.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if digitsOnly.MatchString(value) {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		if v >= minSecondsEpoch && v < maxSecondsEpoch {
			return time.Unix(v, 0).UTC(), true
		}
		return time.UnixMilli(v).UTC(), true
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// anonymizePhone keeps only the last four digits of the first usable contact number.
func anonymizePhone(msgs []timedMessage) string {
	for _, m := range msgs {
		if m.raw.Contact == nil {
			continue
		}
		digits := keepDigits(m.raw.Contact.Number.String())
		if len(digits) >= 4 {
			return "****-" + digits[len(digits)-4:]
		}
	}
	return phoneSentinel
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
