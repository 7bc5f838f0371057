package composer

import (
	"context"
	"errors"
	"fmt"

	"helpdesk-autoreply/internal/model"
)

var ErrComposerUnavailable = errors.New("composer API key not configured")

// Metadata describes the conversation a draft is composed for
type Metadata struct {
	SourceType  model.SourceType
	SourceID    string
	Status      string
	Subject     string
	ServiceName string
	ClientName  string
	Note        string
	// Stage is the inferred service stage, empty when unknown
	Stage Stage
	// ReplyTo is the client message the draft answers
	ReplyTo model.Message
}

// Result is a generated draft
type Result struct {
	DraftResponse string
	Confidence    model.Confidence
	AINotes       string
	ModelUsed     string
}

// Composer generates reply drafts from conversation history
type Composer interface {
	Generate(ctx context.Context, history []model.Message, meta Metadata) (*Result, error)
}

// CompositionError reports a failed draft generation
type CompositionError struct {
	Reason string
	Err    error
}

func (e *CompositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("draft composition failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("draft composition failed: %s", e.Reason)
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}
