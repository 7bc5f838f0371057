package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"helpdesk-autoreply/internal/model"
)

// HasBeenProcessed checks the dedup ledger for a client message
func (r *Repository) HasBeenProcessed(ctx context.Context, sourceType model.SourceType, sourceID, messageID string) (bool, error) {
	var entry model.ProcessedMessage
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND message_id = ?", sourceType, sourceID, messageID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("database error checking processed message: %w", err)
	}
	return true, nil
}

// GetProcessed returns the ledger entry for a client message
func (r *Repository) GetProcessed(ctx context.Context, sourceType model.SourceType, sourceID, messageID string) (*model.ProcessedMessage, error) {
	var entry model.ProcessedMessage
	err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ? AND message_id = ?", sourceType, sourceID, messageID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error getting processed message: %w", err)
	}
	return &entry, nil
}

// RecordProcessed adds a ledger entry unless one already exists for the
// message. The first writer wins; inserted reports whether this call did.
func (r *Repository) RecordProcessed(ctx context.Context, entry *model.ProcessedMessage) (inserted bool, err error) {
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record processed message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
