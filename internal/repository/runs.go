package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"helpdesk-autoreply/internal/model"
)

// StartRun persists a new run in the running state
func (r *Repository) StartRun(ctx context.Context) (*model.PollerRun, error) {
	run := &model.PollerRun{
		ID:        ulid.Make().String(),
		Status:    model.RunStatusRunning,
		ErrorLog:  []model.RunError{},
		StartedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create poller run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters of a run and marks it completed
func (r *Repository) FinishRun(ctx context.Context, run *model.PollerRun) error {
	now := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.CompletedAt = &now
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to finish poller run: %w", err)
	}
	return nil
}

// FailRun marks a run failed, appending cause to its error log
func (r *Repository) FailRun(ctx context.Context, run *model.PollerRun, cause error) error {
	now := time.Now().UTC()
	run.Status = model.RunStatusFailed
	run.CompletedAt = &now
	if cause != nil {
		run.ErrorLog = append(run.ErrorLog, model.RunError{Error: cause.Error(), Timestamp: now})
	}
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to mark poller run failed: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]model.PollerRun, error) {
	var runs []model.PollerRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list poller runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the newest run, or nil when none has happened yet
func (r *Repository) LastRun(ctx context.Context) (*model.PollerRun, error) {
	var run model.PollerRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last poller run: %w", err)
	}
	return &run, nil
}
