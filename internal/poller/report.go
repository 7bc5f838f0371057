package poller

import (
	"sync"
	"time"

	"helpdesk-autoreply/internal/model"
)

// Options parameterise a single run
type Options struct {
	// HoursLookback overrides the hours_lookback setting when positive
	HoursLookback int
	// DryRun evaluates candidates and composes drafts without writing anything
	DryRun bool
	// Force runs even when polling_enabled is false
	Force bool
}

// Report summarises a run
type Report struct {
	RunID             string           `json:"run_id,omitempty"`
	Status            model.RunStatus  `json:"status,omitempty"`
	Disabled          bool             `json:"disabled,omitempty"`
	DryRun            bool             `json:"dry_run,omitempty"`
	HoursLookback     int              `json:"hours_lookback"`
	OrdersChecked     int              `json:"orders_checked"`
	TicketsChecked    int              `json:"tickets_checked"`
	ItemsNeedingReply int              `json:"items_needing_reply"`
	DraftsCreated     int              `json:"drafts_created"`
	Errors            int              `json:"errors"`
	ErrorLog          []model.RunError `json:"error_log,omitempty"`
	Drafts            []*model.Draft   `json:"drafts,omitempty"`
	Duration          time.Duration    `json:"duration"`
}

// runState collects per-item outcomes from concurrent workers
type runState struct {
	mu       sync.Mutex
	run      *model.PollerRun
	settings model.Settings
	opts     Options
	drafts   []*model.Draft
}

func (s *runState) needsReply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.ItemsNeedingReply++
}

func (s *runState) draftCreated(draft *model.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.DraftsCreated++
	s.drafts = append(s.drafts, draft)
}

func (s *runState) addError(sourceType model.SourceType, sourceID, messageID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Errors++
	s.run.ErrorLog = append(s.run.ErrorLog, model.RunError{
		SourceType: sourceType,
		SourceID:   sourceID,
		MessageID:  messageID,
		Error:      err.Error(),
		Timestamp:  time.Now().UTC(),
	})
}

func (s *runState) report(hours int, started time.Time) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Report{
		RunID:             s.run.ID,
		Status:            s.run.Status,
		DryRun:            s.opts.DryRun,
		HoursLookback:     hours,
		OrdersChecked:     s.run.OrdersChecked,
		TicketsChecked:    s.run.TicketsChecked,
		ItemsNeedingReply: s.run.ItemsNeedingReply,
		DraftsCreated:     s.run.DraftsCreated,
		Errors:            s.run.Errors,
		ErrorLog:          append([]model.RunError(nil), s.run.ErrorLog...),
		Drafts:            append([]*model.Draft(nil), s.drafts...),
		Duration:          time.Since(started),
	}
}

func (s *runState) wouldCreate(draft *model.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, draft)
}
