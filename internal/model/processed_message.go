package model

import "time"

// ProcessedMessage is the dedup ledger entry for a client message the poller evaluated
type ProcessedMessage struct {
	ID           uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceType   SourceType    `json:"source_type" gorm:"type:varchar(16);not null;uniqueIndex:idx_processed_message"`
	SourceID     string        `json:"source_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_processed_message"`
	MessageID    string        `json:"message_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_processed_message"`
	Action       ProcessAction `json:"action" gorm:"type:varchar(32);not null"`
	SkipReason   string        `json:"skip_reason,omitempty" gorm:"type:text"`
	ErrorMessage string        `json:"error_message,omitempty" gorm:"type:text"`
	DraftID      *string       `json:"draft_id,omitempty" gorm:"type:varchar(36);index"`
	MessageHash  string        `json:"message_hash,omitempty" gorm:"type:varchar(64)"`
	ProcessedAt  time.Time     `json:"processed_at"`
}

// TableName specifies the table name for ProcessedMessage
func (ProcessedMessage) TableName() string {
	return "processed_messages"
}
