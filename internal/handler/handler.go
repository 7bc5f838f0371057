package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"helpdesk-autoreply/internal/approval"
	"helpdesk-autoreply/internal/config"
	metricsPkg "helpdesk-autoreply/internal/metrics"
	"helpdesk-autoreply/internal/repository"
	"helpdesk-autoreply/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	repo      *repository.Repository
	workflow  *approval.Workflow
	scheduler *scheduler.Scheduler
	metrics   *metricsPkg.Metrics
	auth      config.AuthConfig
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, repo *repository.Repository, workflow *approval.Workflow, scheduler *scheduler.Scheduler, metrics *metricsPkg.Metrics, auth config.AuthConfig) *Handlers {
	return &Handlers{
		db:        db,
		repo:      repo,
		workflow:  workflow,
		scheduler: scheduler,
		metrics:   metrics,
		auth:      auth,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(JWTAuth(h.auth.JWTSecret))
	{
		api.GET("/drafts", h.ListDrafts)
		api.POST("/drafts/send-approved", h.SendApproved)
		api.GET("/drafts/:id", h.GetDraft)
		api.PATCH("/drafts/:id", h.EditDraft)
		api.POST("/drafts/:id/approve", h.ApproveDraft)
		api.POST("/drafts/:id/reject", h.RejectDraft)
		api.POST("/drafts/:id/send", h.SendDraft)
		api.POST("/drafts/:id/approve-and-send", h.ApproveAndSendDraft)
		api.POST("/drafts/:id/requeue", h.RequeueDraft)
		api.POST("/drafts/:id/retry", h.RetryDraft)

		api.GET("/stats", h.GetStats)
		api.GET("/runs", h.ListRuns)

		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)
		api.GET("/settings/:key", h.GetSetting)
		api.PUT("/settings/:key", h.UpdateSetting)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	if err := h.db.WithContext(c.Request.Context()).Exec("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
