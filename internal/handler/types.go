package handler

import (
	"time"

	"helpdesk-autoreply/internal/approval"
)

// ReviewRequest is the body of approve, reject and requeue requests
type ReviewRequest struct {
	Reviewer       string `json:"reviewer"`
	Notes          string `json:"notes"`
	EditedResponse string `json:"edited_response"`
}

func (r ReviewRequest) toReview(defaultReviewer string) approval.Review {
	review := approval.Review{
		Reviewer:       r.Reviewer,
		Notes:          r.Notes,
		EditedResponse: r.EditedResponse,
	}
	if review.Reviewer == "" {
		review.Reviewer = defaultReviewer
	}
	return review
}

// EditRequest is the body of a draft edit
type EditRequest struct {
	Text string `json:"text" binding:"required"`
}

// SettingRequest is the body of a single setting update
type SettingRequest struct {
	Value string `json:"value"`
}

// RunOnceRequest is the optional body of a manual polling run
type RunOnceRequest struct {
	HoursLookback int  `json:"hours_lookback"`
	DryRun        bool `json:"dry_run"`
	Force         bool `json:"force"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
