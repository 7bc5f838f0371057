package repository

import (
	"context"
	"fmt"

	"helpdesk-autoreply/internal/model"
)

// Stats summarises the queue for the dashboard
type Stats struct {
	Pending  int64            `json:"pending"`
	Approved int64            `json:"approved"`
	Rejected int64            `json:"rejected"`
	Sent     int64            `json:"sent"`
	Error    int64            `json:"error"`
	Total    int64            `json:"total"`
	LastRun  *model.PollerRun `json:"last_run,omitempty"`
}

type statusCount struct {
	Status model.DraftStatus
	Count  int64
}

// Stats counts drafts per status and attaches the latest poller run
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&model.Draft{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count drafts: %w", err)
	}

	stats := &Stats{}
	for _, row := range rows {
		switch row.Status {
		case model.DraftStatusPending:
			stats.Pending = row.Count
		case model.DraftStatusApproved:
			stats.Approved = row.Count
		case model.DraftStatusRejected:
			stats.Rejected = row.Count
		case model.DraftStatusSent:
			stats.Sent = row.Count
		case model.DraftStatusError:
			stats.Error = row.Count
		}
		stats.Total += row.Count
	}

	stats.LastRun, err = r.LastRun(ctx)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
