package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"helpdesk-autoreply/internal/metrics"
	"helpdesk-autoreply/internal/model"
	"helpdesk-autoreply/internal/repository"
	"helpdesk-autoreply/internal/source"
)

const defaultReviewer = "operator"

var (
	ErrNoSender  = errors.New("draft has no manager to send as and no default_manager_id is set")
	ErrEmptyText = errors.New("reply text must not be empty")
)

// SendFailure is returned when the helpdesk rejected or never acknowledged a reply.
// The draft has been moved to the error status.
type SendFailure struct {
	DraftID string
	Err     error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("failed to send draft %s: %v", e.DraftID, e.Err)
}

func (e *SendFailure) Unwrap() error {
	return e.Err
}

// Review carries a reviewer's decision details
type Review struct {
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
	// EditedResponse replaces the draft text when approving
	EditedResponse string `json:"edited_response"`
}

func (r Review) reviewer() string {
	if strings.TrimSpace(r.Reviewer) == "" {
		return defaultReviewer
	}
	return strings.TrimSpace(r.Reviewer)
}

// SendResult is the outcome of one send in a batch
type SendResult struct {
	DraftID string            `json:"draft_id"`
	Status  model.DraftStatus `json:"status"`
	Error   string            `json:"error,omitempty"`
}

// Store is the part of the queue store the workflow needs
type Store interface {
	GetDraft(ctx context.Context, id string) (*model.Draft, error)
	ListDrafts(ctx context.Context, status model.DraftStatus, limit int) ([]model.Draft, error)
	ListApprovedIDs(ctx context.Context) ([]string, error)
	TransitionDraft(ctx context.Context, id string, from, to model.DraftStatus, fields repository.TransitionFields) (*model.Draft, error)
	EditDraft(ctx context.Context, id, text string) (*model.Draft, error)
	ClaimSend(ctx context.Context, id string, staleAfter time.Duration) (*model.Draft, error)
	ReleaseSend(ctx context.Context, id string) error
	LoadSettings(ctx context.Context) (model.Settings, error)
	Stats(ctx context.Context) (*repository.Stats, error)
}

// Workflow applies review decisions and delivers approved replies.
// Delivery is at-least-once: a send whose outcome is ambiguous ends in the
// error status and a retry may post a duplicate reply.
type Workflow struct {
	store    Store
	source   source.Connector
	metrics  *metrics.Metrics
	claimTTL time.Duration
}

// NewWorkflow creates an approval workflow
func NewWorkflow(store Store, src source.Connector, m *metrics.Metrics, claimTTL time.Duration) *Workflow {
	if claimTTL <= 0 {
		claimTTL = 5 * time.Minute
	}
	return &Workflow{store: store, source: src, metrics: m, claimTTL: claimTTL}
}

// Get returns a draft
func (w *Workflow) Get(ctx context.Context, id string) (*model.Draft, error) {
	return w.store.GetDraft(ctx, id)
}

// List returns drafts in a status; pending drafts come highest confidence first
func (w *Workflow) List(ctx context.Context, status model.DraftStatus, limit int) ([]model.Draft, error) {
	return w.store.ListDrafts(ctx, status, limit)
}

// Stats returns queue counters and refreshes the pending gauge
func (w *Workflow) Stats(ctx context.Context) (*repository.Stats, error) {
	stats, err := w.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	w.metrics.PendingDrafts.Set(float64(stats.Pending))
	return stats, nil
}

// Approve moves a pending draft to approved, applying an optional edit
func (w *Workflow) Approve(ctx context.Context, id string, review Review) (*model.Draft, error) {
	draft, err := w.store.TransitionDraft(ctx, id, model.DraftStatusPending, model.DraftStatusApproved, repository.TransitionFields{
		ReviewedBy:     review.reviewer(),
		ReviewNotes:    review.Notes,
		EditedResponse: strings.TrimSpace(review.EditedResponse),
	})
	if err != nil {
		return nil, err
	}

	w.metrics.Reviews.WithLabelValues("approve").Inc()
	logrus.WithFields(logrus.Fields{
		"draft_id": id,
		"reviewer": draft.ReviewedBy,
	}).Info("Draft approved")
	return draft, nil
}

// Reject moves a pending draft to rejected
func (w *Workflow) Reject(ctx context.Context, id string, review Review) (*model.Draft, error) {
	draft, err := w.store.TransitionDraft(ctx, id, model.DraftStatusPending, model.DraftStatusRejected, repository.TransitionFields{
		ReviewedBy:  review.reviewer(),
		ReviewNotes: review.Notes,
	})
	if err != nil {
		return nil, err
	}

	w.metrics.Reviews.WithLabelValues("reject").Inc()
	logrus.WithFields(logrus.Fields{
		"draft_id": id,
		"reviewer": draft.ReviewedBy,
	}).Info("Draft rejected")
	return draft, nil
}

// Edit replaces the reply text of a pending draft
func (w *Workflow) Edit(ctx context.Context, id, text string) (*model.Draft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	draft, err := w.store.EditDraft(ctx, id, text)
	if err != nil {
		return nil, err
	}

	w.metrics.Reviews.WithLabelValues("edit").Inc()
	return draft, nil
}

// Requeue moves a draft whose send failed back to approved
func (w *Workflow) Requeue(ctx context.Context, id string, review Review) (*model.Draft, error) {
	draft, err := w.store.TransitionDraft(ctx, id, model.DraftStatusError, model.DraftStatusApproved, repository.TransitionFields{
		ReviewedBy:  review.reviewer(),
		ReviewNotes: review.Notes,
	})
	if err != nil {
		return nil, err
	}

	w.metrics.Reviews.WithLabelValues("requeue").Inc()
	logrus.WithField("draft_id", id).Info("Draft requeued after failed send")
	return draft, nil
}

// Retry requeues a failed draft and sends it again
func (w *Workflow) Retry(ctx context.Context, id string, review Review) (*model.Draft, error) {
	if _, err := w.Requeue(ctx, id, review); err != nil {
		return nil, err
	}
	return w.Send(ctx, id)
}

// Send posts an approved draft to the helpdesk as its manager
func (w *Workflow) Send(ctx context.Context, id string) (*model.Draft, error) {
	draft, err := w.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != model.DraftStatusApproved {
		return nil, &repository.InvalidTransitionError{DraftID: id, From: draft.Status, To: model.DraftStatusSent}
	}

	sender := draft.ManagerUserID
	if sender == "" {
		settings, err := w.store.LoadSettings(ctx)
		if err != nil {
			return nil, err
		}
		sender = settings.DefaultManagerID
	}
	if sender == "" {
		return nil, ErrNoSender
	}

	claimed, err := w.store.ClaimSend(ctx, id, w.claimTTL)
	if err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"draft_id":    id,
		"source_type": claimed.SourceType,
		"source_id":   claimed.SourceID,
		"sender":      sender,
	})

	result, postErr := w.source.PostMessage(ctx, claimed.SourceType, claimed.SourceID, sender, claimed.FinalText())

	// the outcome must be recorded even if the caller went away mid-post
	recordCtx := context.WithoutCancel(ctx)

	if postErr != nil {
		logger.WithError(postErr).Error("Failed to send draft")
		w.metrics.Sends.WithLabelValues("failed").Inc()

		failed, err := w.store.TransitionDraft(recordCtx, id, model.DraftStatusApproved, model.DraftStatusError, repository.TransitionFields{
			SendError: postErr.Error(),
		})
		if err != nil {
			logger.WithError(err).Error("Failed to record send failure")
			if rerr := w.store.ReleaseSend(recordCtx, id); rerr != nil {
				logger.WithError(rerr).Error("Failed to release send claim")
			}
			return nil, &SendFailure{DraftID: id, Err: postErr}
		}
		return failed, &SendFailure{DraftID: id, Err: postErr}
	}

	sent, err := w.store.TransitionDraft(recordCtx, id, model.DraftStatusApproved, model.DraftStatusSent, repository.TransitionFields{
		SourceResponse: datatypes.JSON(result.Raw),
	})
	if err != nil {
		// the reply is out; the claim stays so nobody resends until it expires
		logger.WithError(err).Error("Reply delivered but failed to mark draft sent")
		return nil, fmt.Errorf("reply delivered but status not recorded: %w", err)
	}

	w.metrics.Sends.WithLabelValues("sent").Inc()
	logger.Info("Draft sent")
	return sent, nil
}

// ApproveAndSend approves a pending draft and sends it. A failed send leaves
// the approval committed and the draft in the error status.
func (w *Workflow) ApproveAndSend(ctx context.Context, id string, review Review) (*model.Draft, error) {
	if _, err := w.Approve(ctx, id, review); err != nil {
		return nil, err
	}
	return w.Send(ctx, id)
}

// SendAllApproved sends every approved draft independently
func (w *Workflow) SendAllApproved(ctx context.Context) ([]SendResult, error) {
	ids, err := w.store.ListApprovedIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SendResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		result := SendResult{DraftID: id, Status: model.DraftStatusApproved}
		sent, err := w.Send(ctx, id)
		if sent != nil {
			result.Status = sent.Status
		}
		if err != nil {
			result.Error = err.Error()
			var failure *SendFailure
			if errors.As(err, &failure) && sent == nil {
				result.Status = model.DraftStatusError
			}
		}
		results = append(results, result)
	}

	logrus.WithField("count", len(results)).Info("Sent approved drafts")
	return results, nil
}
