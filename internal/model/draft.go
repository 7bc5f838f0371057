package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Draft represents a generated reply awaiting review in the queue
type Draft struct {
	ID              string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	SourceType      SourceType `json:"source_type" gorm:"type:varchar(16);not null;index:idx_draft_source"`
	SourceID        string     `json:"source_id" gorm:"type:varchar(64);not null;index:idx_draft_source"`
	ClientMessageID string     `json:"client_message_id" gorm:"type:varchar(64);not null"`

	ConversationHistory datatypes.JSONSlice[Message] `json:"conversation_history"`
	ClientMessage       string                       `json:"client_message" gorm:"type:text"`
	DraftResponse       string                       `json:"draft_response" gorm:"type:text;not null"`
	EditedResponse      string                       `json:"edited_response,omitempty" gorm:"type:text"`

	ClientName     string     `json:"client_name" gorm:"type:varchar(255)"`
	ClientEmail    string     `json:"client_email" gorm:"type:varchar(255)"`
	ServiceName    string     `json:"service_name" gorm:"type:varchar(255)"`
	Subject        string     `json:"subject" gorm:"type:varchar(500)"`
	Confidence     Confidence `json:"confidence" gorm:"type:varchar(16);not null"`
	ConfidenceRank int        `json:"-" gorm:"not null;default:2;index"`
	AINotes        string     `json:"ai_notes" gorm:"type:text"`
	ModelUsed      string     `json:"model_used" gorm:"type:varchar(128)"`
	ManagerUserID  string     `json:"manager_user_id,omitempty" gorm:"type:varchar(64)"`

	Status      DraftStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	ReviewedBy  string      `json:"reviewed_by,omitempty" gorm:"type:varchar(255)"`
	ReviewedAt  *time.Time  `json:"reviewed_at,omitempty"`
	ReviewNotes string      `json:"review_notes,omitempty" gorm:"type:text"`

	SentAt         *time.Time     `json:"sent_at,omitempty"`
	SendError      string         `json:"send_error,omitempty" gorm:"type:text"`
	SourceResponse datatypes.JSON `json:"source_response,omitempty"`

	// PendingKey is set only while the draft is pending; its unique index keeps
	// a single pending draft per triggering client message.
	PendingKey    *string    `json:"-" gorm:"type:varchar(200);uniqueIndex:idx_draft_pending_key"`
	SendClaimedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Draft
func (Draft) TableName() string {
	return "draft_responses"
}

// FinalText is the text that will be posted to the source system
func (d *Draft) FinalText() string {
	if d.EditedResponse != "" {
		return d.EditedResponse
	}
	return d.DraftResponse
}

// MessageKey returns the identity of the triggering client message
func (d *Draft) MessageKey() string {
	return MessageKey(d.SourceType, d.SourceID, d.ClientMessageID)
}

// MessageKey builds the canonical "type:id:message" key
func MessageKey(sourceType SourceType, sourceID, messageID string) string {
	return fmt.Sprintf("%s:%s:%s", sourceType, sourceID, messageID)
}
