package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"helpdesk-autoreply/internal/model"
)

// TransitionFields are column values written together with a status change
type TransitionFields struct {
	ReviewedBy     string
	ReviewNotes    string
	EditedResponse string
	SendError      string
	SourceResponse datatypes.JSON
}

// CreateDraft inserts a new pending draft. A pending draft for the same
// client message already in the queue yields a *ConflictError.
func (r *Repository) CreateDraft(ctx context.Context, draft *model.Draft) error {
	return insertDraft(r.db.WithContext(ctx), draft)
}

// EnqueueDraft claims the ledger entry for the draft's client message and
// inserts the pending draft in one transaction. When the ledger already holds
// the message nothing is written and queued is false. A pending draft for the
// message already in the queue yields a *ConflictError and no ledger entry.
func (r *Repository) EnqueueDraft(ctx context.Context, draft *model.Draft, entry *model.ProcessedMessage) (queued bool, err error) {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	draftID := draft.ID
	entry.SourceType = draft.SourceType
	entry.SourceID = draft.SourceID
	entry.MessageID = draft.ClientMessageID
	entry.Action = model.ActionDraftCreated
	entry.DraftID = &draftID
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
		if res.Error != nil {
			return fmt.Errorf("failed to record processed message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errAlreadyProcessed
		}
		return insertDraft(tx, draft)
	})
	if errors.Is(err, errAlreadyProcessed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func insertDraft(db *gorm.DB, draft *model.Draft) error {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if !draft.Confidence.Valid() {
		draft.Confidence = model.ConfidenceLow
	}
	key := draft.MessageKey()
	draft.Status = model.DraftStatusPending
	draft.PendingKey = &key
	draft.ConfidenceRank = draft.Confidence.Rank()

	if err := db.Create(draft).Error; err != nil {
		if isDuplicateKey(err) {
			return &ConflictError{Key: key}
		}
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

// FindPendingDraft returns the pending draft for a client message, if any
func (r *Repository) FindPendingDraft(ctx context.Context, sourceType model.SourceType, sourceID, messageID string) (*model.Draft, error) {
	var draft model.Draft
	err := r.db.WithContext(ctx).
		Where("pending_key = ?", model.MessageKey(sourceType, sourceID, messageID)).
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error finding pending draft: %w", err)
	}
	return &draft, nil
}

// GetDraft returns a draft by ID
func (r *Repository) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	var draft model.Draft
	if err := r.db.WithContext(ctx).First(&draft, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error getting draft: %w", err)
	}
	return &draft, nil
}

// ListPending returns pending drafts, highest confidence first, oldest first within a rank
func (r *Repository) ListPending(ctx context.Context, limit int) ([]model.Draft, error) {
	var drafts []model.Draft
	err := r.db.WithContext(ctx).
		Where("status = ?", model.DraftStatusPending).
		Order("confidence_rank ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&drafts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending drafts: %w", err)
	}
	return drafts, nil
}

// ListApproved returns approved drafts in review order
func (r *Repository) ListApproved(ctx context.Context, limit int) ([]model.Draft, error) {
	var drafts []model.Draft
	err := r.db.WithContext(ctx).
		Where("status = ?", model.DraftStatusApproved).
		Order("reviewed_at ASC").
		Limit(limit).
		Find(&drafts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list approved drafts: %w", err)
	}
	return drafts, nil
}

// ListApprovedIDs returns the ids of every approved draft in review order
func (r *Repository) ListApprovedIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Draft{}).
		Where("status = ?", model.DraftStatusApproved).
		Order("reviewed_at ASC").
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list approved drafts: %w", err)
	}
	return ids, nil
}

// ListDrafts returns drafts in the given status, newest first
func (r *Repository) ListDrafts(ctx context.Context, status model.DraftStatus, limit int) ([]model.Draft, error) {
	if status == model.DraftStatusPending {
		return r.ListPending(ctx, limit)
	}
	var drafts []model.Draft
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at DESC").
		Limit(limit).
		Find(&drafts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s drafts: %w", status, err)
	}
	return drafts, nil
}

// TransitionDraft moves a draft from one status to another. The update only
// applies while the stored status still equals from, so of two concurrent
// requests for the same draft exactly one wins and the other gets an
// *InvalidTransitionError.
func (r *Repository) TransitionDraft(ctx context.Context, id string, from, to model.DraftStatus, fields TransitionFields) (*model.Draft, error) {
	if !from.CanTransition(to) {
		return nil, &InvalidTransitionError{DraftID: id, From: from, To: to}
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}

	switch to {
	case model.DraftStatusApproved, model.DraftStatusRejected:
		updates["reviewed_by"] = fields.ReviewedBy
		updates["reviewed_at"] = now
		updates["review_notes"] = fields.ReviewNotes
		if fields.EditedResponse != "" {
			updates["edited_response"] = fields.EditedResponse
		}
		if from == model.DraftStatusError {
			updates["send_error"] = ""
			updates["send_claimed_at"] = nil
		}
	case model.DraftStatusSent:
		updates["sent_at"] = now
		updates["send_error"] = ""
		updates["source_response"] = fields.SourceResponse
		updates["send_claimed_at"] = nil
	case model.DraftStatusError:
		updates["send_error"] = fields.SendError
		updates["source_response"] = fields.SourceResponse
		updates["send_claimed_at"] = nil
	}

	if from == model.DraftStatusPending {
		updates["pending_key"] = nil
	}

	res := r.db.WithContext(ctx).
		Model(&model.Draft{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update draft status: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		current, err := r.GetDraft(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{DraftID: id, From: current.Status, To: to}
	}

	return r.GetDraft(ctx, id)
}

// EditDraft replaces the reply text of a pending draft
func (r *Repository) EditDraft(ctx context.Context, id, text string) (*model.Draft, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Draft{}).
		Where("id = ? AND status = ?", id, model.DraftStatusPending).
		Updates(map[string]interface{}{
			"edited_response": text,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to edit draft: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		current, err := r.GetDraft(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{DraftID: id, From: current.Status}
	}

	return r.GetDraft(ctx, id)
}

// ClaimSend marks an approved draft as being sent. A claim older than
// staleAfter is considered abandoned and may be taken over.
func (r *Repository) ClaimSend(ctx context.Context, id string, staleAfter time.Duration) (*model.Draft, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.Draft{}).
		Where("id = ? AND status = ?", id, model.DraftStatusApproved).
		Where("(send_claimed_at IS NULL OR send_claimed_at < ?)", now.Add(-staleAfter)).
		Update("send_claimed_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim draft for sending: %w", res.Error)
	}

	current, err := r.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		if current.Status != model.DraftStatusApproved {
			return nil, &InvalidTransitionError{DraftID: id, From: current.Status, To: model.DraftStatusSent}
		}
		return nil, ErrSendInProgress
	}

	return current, nil
}

// ReleaseSend drops a send claim without changing the status
func (r *Repository) ReleaseSend(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Draft{}).
		Where("id = ?", id).
		Update("send_claimed_at", nil).Error
	if err != nil {
		return fmt.Errorf("failed to release send claim: %w", err)
	}
	return nil
}
