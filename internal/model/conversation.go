package model

import "time"

// SourceType identifies which kind of helpdesk thread a conversation is
type SourceType string

const (
	SourceOrder  SourceType = "order"
	SourceTicket SourceType = "ticket"
)

// Valid reports whether t is a known source type
func (t SourceType) Valid() bool {
	return t == SourceOrder || t == SourceTicket
}

// SenderRole tells whether a message came from the client or from staff
type SenderRole string

const (
	SenderClient SenderRole = "client"
	SenderStaff  SenderRole = "staff"
)

// Conversation is an order or ticket summary fetched from the source system.
// It is never persisted.
type Conversation struct {
	SourceType    SourceType `json:"source_type"`
	SourceID      string     `json:"source_id"`
	Status        string     `json:"status"`
	Subject       string     `json:"subject"`
	ServiceName   string     `json:"service_name"`
	ClientName    string     `json:"client_name"`
	ClientEmail   string     `json:"client_email"`
	ClientUserID  string     `json:"client_user_id,omitempty"`
	ManagerUserID string     `json:"manager_user_id,omitempty"`
	Note          string     `json:"note,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Message is a single entry of a conversation, oldest first
type Message struct {
	ID         string     `json:"id"`
	SenderRole SenderRole `json:"sender"`
	Timestamp  time.Time  `json:"created_at"`
	Body       string     `json:"message"`
	// Internal marks staff-only notes that the client never sees
	Internal bool `json:"internal,omitempty"`
}

// LatestPublic returns the newest message visible to the client
func LatestPublic(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if !messages[i].Internal {
			return messages[i], true
		}
	}
	return Message{}, false
}
