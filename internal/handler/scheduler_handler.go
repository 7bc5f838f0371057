package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"helpdesk-autoreply/internal/poller"
)

// StartScheduler starts the polling scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler: " + err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the polling scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce runs a polling pass synchronously and returns its report
func (h *Handlers) RunOnce(c *gin.Context) {
	var req RunOnceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	report, err := h.scheduler.RunOnce(c.Request.Context(), poller.Options{
		HoursLookback: req.HoursLookback,
		DryRun:        req.DryRun,
		Force:         req.Force,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scheduler_error",
			"message": "Polling run failed: " + err.Error(),
			"code":    http.StatusInternalServerError,
			"report":  report,
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	state := "stopped"
	if h.scheduler.IsRunning() {
		state = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      state,
		"next_run":    h.scheduler.GetNextRun(),
		"last_run":    h.scheduler.GetLastRun(),
		"last_report": h.scheduler.LastReport(),
	})
}
