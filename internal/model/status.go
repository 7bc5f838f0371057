package model

import "fmt"

// DraftStatus is the lifecycle state of a draft response
type DraftStatus string

const (
	DraftStatusPending  DraftStatus = "pending"
	DraftStatusApproved DraftStatus = "approved"
	DraftStatusRejected DraftStatus = "rejected"
	DraftStatusSent     DraftStatus = "sent"
	DraftStatusError    DraftStatus = "error"
)

// draftTransitions lists every legal status change. Anything not listed is rejected.
// error -> approved is the operator re-queue after a failed send.
var draftTransitions = map[DraftStatus][]DraftStatus{
	DraftStatusPending:  {DraftStatusApproved, DraftStatusRejected},
	DraftStatusApproved: {DraftStatusSent, DraftStatusError},
	DraftStatusError:    {DraftStatusApproved},
}

// Valid reports whether s is a known draft status
func (s DraftStatus) Valid() bool {
	switch s {
	case DraftStatusPending, DraftStatusApproved, DraftStatusRejected, DraftStatusSent, DraftStatusError:
		return true
	}
	return false
}

// CanTransition reports whether a draft may move from s to next
func (s DraftStatus) CanTransition(next DraftStatus) bool {
	for _, allowed := range draftTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseDraftStatus converts a raw string into a DraftStatus
func ParseDraftStatus(raw string) (DraftStatus, error) {
	s := DraftStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown draft status %q", raw)
	}
	return s, nil
}

// Confidence is the composer-assigned label for a draft
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidences for review: high first
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	default:
		return 2
	}
}

// Valid reports whether c is a known confidence label
func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// ProcessAction records what the poller did with a client message
type ProcessAction string

const (
	ActionDraftCreated ProcessAction = "draft_created"
	ActionSkipped      ProcessAction = "skipped"
	ActionError        ProcessAction = "error"
)

// RunStatus is the state of a poller run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)
