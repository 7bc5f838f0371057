package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"helpdesk-autoreply/internal/approval"
	"helpdesk-autoreply/internal/composer"
	"helpdesk-autoreply/internal/config"
	"helpdesk-autoreply/internal/db"
	"helpdesk-autoreply/internal/handler"
	"helpdesk-autoreply/internal/logger"
	"helpdesk-autoreply/internal/metrics"
	"helpdesk-autoreply/internal/poller"
	"helpdesk-autoreply/internal/repository"
	"helpdesk-autoreply/internal/router"
	"helpdesk-autoreply/internal/scheduler"
	"helpdesk-autoreply/internal/source"
)

// App holds the wired components shared by every command
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Repo      *repository.Repository
	Metrics   *metrics.Metrics
	Engine    *poller.Engine
	Workflow  *approval.Workflow
	Scheduler *scheduler.Scheduler
}

// loadConfig reads configuration and configures logging from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.Log)
	return cfg, nil
}

// New loads configuration, opens and migrates the database and wires the pipeline
func New() (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repo := repository.New(dbConn)
	if err := repo.SeedSettings(context.Background()); err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	src := source.NewSPPClient(cfg.Source)
	comp := composer.NewAnthropicComposer(cfg.Composer)

	engine := poller.NewEngine(repo, src, comp, m, cfg.Poller)
	workflow := approval.NewWorkflow(repo, src, m, cfg.Poller.SendClaimTTL)
	sched := scheduler.NewScheduler(&cfg.Scheduler, engine, workflow)

	return &App{
		Config:    cfg,
		DB:        dbConn,
		Repo:      repo,
		Metrics:   m,
		Engine:    engine,
		Workflow:  workflow,
		Scheduler: sched,
	}, nil
}

// Close releases the database connection
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Serve runs the HTTP API and the scheduler until SIGINT or SIGTERM
func (a *App) Serve() error {
	logrus.Info("Starting helpdesk auto-reply service")

	h := handler.NewHandlers(a.DB, a.Repo, a.Workflow, a.Scheduler, a.Metrics, a.Config.Auth)
	srv := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logrus.Info("Scheduler disabled; polling runs only on demand")
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server error: %w", err)
	}

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.Scheduler.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return runErr
}

// Poll runs a single polling pass
func (a *App) Poll(ctx context.Context, opts poller.Options) (*poller.Report, error) {
	return a.Engine.Run(ctx, opts)
}

// SendApproved delivers every approved draft
func (a *App) SendApproved(ctx context.Context) ([]approval.SendResult, error) {
	return a.Workflow.SendAllApproved(ctx)
}

// IssueToken signs a reviewer token with the configured auth secret
func IssueToken(reviewer string, ttl time.Duration) (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return handler.IssueToken(cfg.Auth.JWTSecret, reviewer, ttl)
}

// Migrate creates or updates the schema and seeds default settings. Only the
// database section of the configuration is required.
func Migrate() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := dbConn.DB(); err == nil {
		defer sqlDB.Close()
	}

	return repository.New(dbConn).SeedSettings(context.Background())
}
