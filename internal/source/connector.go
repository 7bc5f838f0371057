package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"helpdesk-autoreply/internal/model"
)

// Connector reads conversations from the helpdesk and posts replies back to it
type Connector interface {
	// ListRecentOrders returns orders with client activity since the cutoff
	ListRecentOrders(ctx context.Context, since time.Time) ([]model.Conversation, error)
	// ListRecentTickets returns tickets with client activity since the cutoff
	ListRecentTickets(ctx context.Context, since time.Time) ([]model.Conversation, error)
	// GetMessages returns the conversation's messages, oldest first
	GetMessages(ctx context.Context, conv model.Conversation) ([]model.Message, error)
	// PostMessage posts a client-visible reply as the given staff user
	PostMessage(ctx context.Context, sourceType model.SourceType, sourceID, staffUserID, body string) (*DeliveryResult, error)
}

// DeliveryResult is what the helpdesk returned for a posted reply
type DeliveryResult struct {
	MessageID string          `json:"message_id,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// ConnectorError wraps a failed helpdesk call
type ConnectorError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ConnectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("helpdesk %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("helpdesk %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}
