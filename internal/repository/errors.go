package repository

import (
	"errors"
	"fmt"

	"helpdesk-autoreply/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("a pending draft already exists for this message")
	ErrInvalidTransition = errors.New("invalid draft status transition")
	ErrSendInProgress    = errors.New("draft send already in progress")
	ErrUnknownSetting    = errors.New("unknown setting")

	// errAlreadyProcessed rolls back an enqueue whose ledger claim lost
	errAlreadyProcessed = errors.New("message already processed")
)

// ConflictError is returned when a second pending draft is created for the same client message
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pending draft already queued for %s", e.Key)
}

// Is lets errors.Is match ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// InvalidTransitionError is returned when a draft is not in a state that allows the requested change.
// To is empty for edits, which do not change the status.
type InvalidTransitionError struct {
	DraftID string
	From    model.DraftStatus
	To      model.DraftStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("draft %s is %s; only pending drafts can be edited", e.DraftID, e.From)
	}
	return fmt.Sprintf("draft %s cannot move from %s to %s", e.DraftID, e.From, e.To)
}

// Is lets errors.Is match ErrInvalidTransition
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
