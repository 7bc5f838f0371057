package model

import (
	"time"

	"gorm.io/datatypes"
)

// RunError is one entry of a poller run's error log
type RunError struct {
	SourceType SourceType `json:"source_type,omitempty"`
	SourceID   string     `json:"source_id,omitempty"`
	MessageID  string     `json:"message_id,omitempty"`
	Error      string     `json:"error"`
	Timestamp  time.Time  `json:"timestamp"`
}

// PollerRun records the counters and outcome of one polling run
type PollerRun struct {
	ID                string                        `json:"id" gorm:"type:varchar(26);primaryKey"`
	Status            RunStatus                     `json:"status" gorm:"type:varchar(16);not null;index"`
	OrdersChecked     int                           `json:"orders_checked"`
	TicketsChecked    int                           `json:"tickets_checked"`
	ItemsNeedingReply int                           `json:"items_needing_reply"`
	DraftsCreated     int                           `json:"drafts_created"`
	Errors            int                           `json:"errors"`
	ErrorLog          datatypes.JSONSlice[RunError] `json:"error_log"`
	StartedAt         time.Time                     `json:"started_at" gorm:"index"`
	CompletedAt       *time.Time                    `json:"completed_at,omitempty"`
}

// TableName specifies the table name for PollerRun
func (PollerRun) TableName() string {
	return "poller_runs"
}
