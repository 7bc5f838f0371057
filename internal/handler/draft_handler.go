package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"helpdesk-autoreply/internal/model"
)

// reviewer returns the authenticated reviewer, if any
func reviewer(c *gin.Context) string {
	return c.GetString(reviewerKey)
}

// bindReview reads an optional review body
func bindReview(c *gin.Context) (ReviewRequest, bool) {
	var req ReviewRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return req, false
	}
	return req, true
}

// ListDrafts returns drafts in a status, pending by default
func (h *Handlers) ListDrafts(c *gin.Context) {
	status, err := model.ParseDraftStatus(c.DefaultQuery("status", string(model.DraftStatusPending)))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	drafts, err := h.workflow.List(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"count":  len(drafts),
		"drafts": drafts,
	})
}

// GetDraft returns a single draft
func (h *Handlers) GetDraft(c *gin.Context) {
	draft, err := h.workflow.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// EditDraft replaces the text of a pending draft
func (h *Handlers) EditDraft(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	draft, err := h.workflow.Edit(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// ApproveDraft approves a pending draft
func (h *Handlers) ApproveDraft(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}

	draft, err := h.workflow.Approve(c.Request.Context(), c.Param("id"), req.toReview(reviewer(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// RejectDraft rejects a pending draft
func (h *Handlers) RejectDraft(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}

	draft, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), req.toReview(reviewer(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// SendDraft posts an approved draft to the helpdesk
func (h *Handlers) SendDraft(c *gin.Context) {
	draft, err := h.workflow.Send(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// ApproveAndSendDraft approves and immediately sends a pending draft
func (h *Handlers) ApproveAndSendDraft(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}

	draft, err := h.workflow.ApproveAndSend(c.Request.Context(), c.Param("id"), req.toReview(reviewer(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// RequeueDraft moves a failed draft back to approved
func (h *Handlers) RequeueDraft(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}

	draft, err := h.workflow.Requeue(c.Request.Context(), c.Param("id"), req.toReview(reviewer(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// RetryDraft requeues a failed draft and sends it again
func (h *Handlers) RetryDraft(c *gin.Context) {
	req, ok := bindReview(c)
	if !ok {
		return
	}

	draft, err := h.workflow.Retry(c.Request.Context(), c.Param("id"), req.toReview(reviewer(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// SendApproved sends every approved draft and reports per-draft results
func (h *Handlers) SendApproved(c *gin.Context) {
	results, err := h.workflow.SendAllApproved(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sent":    len(results) - failed,
		"failed":  failed,
		"results": results,
	})
}

// GetStats returns queue counters
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.workflow.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
