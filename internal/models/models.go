package models

import "time"

type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderAgent Sender = "agent"
)

// IsCitizen reports whether the message was written by the person being served.
func (s Sender) IsCitizen() bool {
	return s == SenderUser
}

const DefaultMediaType = "chat"

// Message is a single imported chat line. Messages are never modified after import.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	ExternalID        string    `json:"external_id"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Sender            Sender    `json:"sender"`
	Content           string    `json:"content"`
	MediaType         string    `json:"media_type"`
	Timestamp         time.Time `json:"timestamp"`
	FromMe            bool      `json:"from_me"`
	SendType          string    `json:"send_type,omitempty"`
	OperatorID        *int64    `json:"operator_id,omitempty"`
}

// Conversation groups every message of one ticket in chronological order.
type Conversation struct {
	ID           string     `json:"id"`
	TicketID     string     `json:"ticket_id"`
	PhoneNumber  string     `json:"phone_number"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      time.Time  `json:"ended_at"`
	Duration     int64      `json:"duration"`
	MessageCount int        `json:"message_count"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	Messages     []*Message `json:"messages,omitempty"`
}
