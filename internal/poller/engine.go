package poller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"helpdesk-autoreply/internal/composer"
	"helpdesk-autoreply/internal/config"
	"helpdesk-autoreply/internal/metrics"
	"helpdesk-autoreply/internal/model"
	"helpdesk-autoreply/internal/repository"
	"helpdesk-autoreply/internal/source"
)

const autoApproveReviewer = "auto-approve"

var ErrNoCandidates = errors.New("could not list orders or tickets")

// Store is the part of the queue store the engine writes to
type Store interface {
	LoadSettings(ctx context.Context) (model.Settings, error)
	StartRun(ctx context.Context) (*model.PollerRun, error)
	FinishRun(ctx context.Context, run *model.PollerRun) error
	FailRun(ctx context.Context, run *model.PollerRun, cause error) error
	HasBeenProcessed(ctx context.Context, sourceType model.SourceType, sourceID, messageID string) (bool, error)
	RecordProcessed(ctx context.Context, entry *model.ProcessedMessage) (bool, error)
	EnqueueDraft(ctx context.Context, draft *model.Draft, entry *model.ProcessedMessage) (bool, error)
	FindPendingDraft(ctx context.Context, sourceType model.SourceType, sourceID, messageID string) (*model.Draft, error)
	TransitionDraft(ctx context.Context, id string, from, to model.DraftStatus, fields repository.TransitionFields) (*model.Draft, error)
}

// Engine runs polling passes: list candidates, compose drafts, queue them
type Engine struct {
	store       Store
	source      source.Connector
	composer    composer.Composer
	metrics     *metrics.Metrics
	workers     int
	itemTimeout time.Duration
	closed      map[string]struct{}
	now         func() time.Time
}

// NewEngine creates a polling engine
func NewEngine(store Store, src source.Connector, comp composer.Composer, m *metrics.Metrics, cfg config.PollerConfig) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	itemTimeout := cfg.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = 2 * time.Minute
	}

	closed := make(map[string]struct{}, len(cfg.ClosedStatuses))
	for _, status := range cfg.ClosedStatuses {
		closed[strings.ToLower(strings.TrimSpace(status))] = struct{}{}
	}

	return &Engine{
		store:       store,
		source:      src,
		composer:    comp,
		metrics:     m,
		workers:     workers,
		itemTimeout: itemTimeout,
		closed:      closed,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one polling pass. Per-item failures are recorded on the run
// and never abort it; the run fails only when no candidates could be listed.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	started := time.Now()

	settings, err := e.store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if !settings.PollingEnabled && !opts.Force {
		logrus.Info("Polling disabled, skipping run")
		e.metrics.PollRuns.WithLabelValues("disabled").Inc()
		return &Report{Disabled: true, DryRun: opts.DryRun}, nil
	}

	hours := opts.HoursLookback
	if hours <= 0 {
		hours = settings.HoursLookback
	}
	if hours <= 0 {
		hours = model.DefaultSettings().HoursLookback
	}
	since := e.now().Add(-time.Duration(hours) * time.Hour)

	run := &model.PollerRun{Status: model.RunStatusRunning, StartedAt: e.now()}
	if !opts.DryRun {
		run, err = e.store.StartRun(ctx)
		if err != nil {
			return nil, err
		}
	}

	state := &runState{run: run, settings: settings, opts: opts}

	logger := logrus.WithFields(logrus.Fields{
		"run_id":         run.ID,
		"hours_lookback": hours,
		"dry_run":        opts.DryRun,
	})
	logger.Info("Starting polling run")

	candidates, err := e.listCandidates(ctx, state, since)
	if err != nil {
		logger.WithError(err).Error("Polling run failed")
		run.Status = model.RunStatusFailed
		if !opts.DryRun {
			if ferr := e.store.FailRun(context.WithoutCancel(ctx), run, err); ferr != nil {
				logger.WithError(ferr).Error("Failed to record failed run")
			}
		}
		e.metrics.PollRuns.WithLabelValues(string(model.RunStatusFailed)).Inc()
		e.metrics.RunDuration.Observe(time.Since(started).Seconds())
		return state.report(hours, started), err
	}

	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for _, conv := range candidates {
		if ctx.Err() != nil {
			break
		}
		conv := conv
		g.Go(func() error {
			e.processItem(ctx, state, conv)
			return nil
		})
	}
	g.Wait()

	finishCtx := context.WithoutCancel(ctx)
	if cerr := ctx.Err(); cerr != nil {
		run.Status = model.RunStatusFailed
		if !opts.DryRun {
			if ferr := e.store.FailRun(finishCtx, run, cerr); ferr != nil {
				logger.WithError(ferr).Error("Failed to record cancelled run")
			}
		}
	} else {
		run.Status = model.RunStatusCompleted
		if !opts.DryRun {
			if ferr := e.store.FinishRun(finishCtx, run); ferr != nil {
				logger.WithError(ferr).Error("Failed to record completed run")
			}
		}
	}

	report := state.report(hours, started)
	e.metrics.PollRuns.WithLabelValues(string(run.Status)).Inc()
	e.metrics.RunDuration.Observe(report.Duration.Seconds())

	logger.WithFields(logrus.Fields{
		"status":              report.Status,
		"orders_checked":      report.OrdersChecked,
		"tickets_checked":     report.TicketsChecked,
		"items_needing_reply": report.ItemsNeedingReply,
		"drafts_created":      report.DraftsCreated,
		"errors":              report.Errors,
		"duration":            report.Duration,
	}).Info("Polling run finished")

	if run.Status == model.RunStatusFailed {
		return report, ctx.Err()
	}
	return report, nil
}

// listCandidates fetches orders and tickets concurrently. One failed listing
// is logged on the run; both failing is fatal.
func (e *Engine) listCandidates(ctx context.Context, state *runState, since time.Time) ([]model.Conversation, error) {
	var (
		orders, tickets       []model.Conversation
		ordersErr, ticketsErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		orders, ordersErr = e.source.ListRecentOrders(ctx, since)
		return nil
	})
	g.Go(func() error {
		tickets, ticketsErr = e.source.ListRecentTickets(ctx, since)
		return nil
	})
	g.Wait()

	if ordersErr != nil && ticketsErr != nil {
		return nil, fmt.Errorf("%w: orders: %v; tickets: %v", ErrNoCandidates, ordersErr, ticketsErr)
	}
	if ordersErr != nil {
		logrus.WithError(ordersErr).Warn("Failed to list orders")
		state.addError(model.SourceOrder, "", "", ordersErr)
		e.metrics.ItemErrors.Inc()
	}
	if ticketsErr != nil {
		logrus.WithError(ticketsErr).Warn("Failed to list tickets")
		state.addError(model.SourceTicket, "", "", ticketsErr)
		e.metrics.ItemErrors.Inc()
	}

	state.mu.Lock()
	state.run.OrdersChecked = len(orders)
	state.run.TicketsChecked = len(tickets)
	state.mu.Unlock()

	e.metrics.ItemsChecked.WithLabelValues(string(model.SourceOrder)).Add(float64(len(orders)))
	e.metrics.ItemsChecked.WithLabelValues(string(model.SourceTicket)).Add(float64(len(tickets)))

	return append(orders, tickets...), nil
}

func (e *Engine) isClosed(status string) bool {
	_, ok := e.closed[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// needsReply reports whether the latest client-visible message came from the client
func (e *Engine) needsReply(conv model.Conversation, messages []model.Message) (model.Message, bool) {
	if e.isClosed(conv.Status) {
		return model.Message{}, false
	}
	latest, ok := model.LatestPublic(messages)
	if !ok || latest.SenderRole != model.SenderClient {
		return model.Message{}, false
	}
	return latest, true
}

func (e *Engine) processItem(ctx context.Context, state *runState, conv model.Conversation) {
	itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
	defer cancel()

	logger := logrus.WithFields(logrus.Fields{
		"source_type": conv.SourceType,
		"source_id":   conv.SourceID,
	})

	if e.isClosed(conv.Status) {
		logger.WithField("status", conv.Status).Debug("Conversation closed, skipping")
		return
	}

	messages, err := e.source.GetMessages(itemCtx, conv)
	if err != nil {
		logger.WithError(err).Warn("Failed to fetch messages")
		state.addError(conv.SourceType, conv.SourceID, "", err)
		e.metrics.ItemErrors.Inc()
		return
	}

	trigger, ok := e.needsReply(conv, messages)
	if !ok {
		logger.Debug("No reply needed")
		return
	}
	state.needsReply()
	e.metrics.ItemsNeedReply.Inc()

	logger = logger.WithField("message_id", trigger.ID)

	processed, err := e.store.HasBeenProcessed(itemCtx, conv.SourceType, conv.SourceID, trigger.ID)
	if err != nil {
		e.fail(ctx, state, conv, trigger, err)
		return
	}
	if processed {
		logger.Debug("Message already processed, skipping")
		return
	}

	meta := composer.Metadata{
		SourceType:  conv.SourceType,
		SourceID:    conv.SourceID,
		Status:      conv.Status,
		Subject:     conv.Subject,
		ServiceName: conv.ServiceName,
		ClientName:  conv.ClientName,
		Note:        conv.Note,
		ReplyTo:     trigger,
	}
	if conv.SourceType == model.SourceOrder {
		meta.Stage = composer.InferStage(conv.Status, conv.CreatedAt, e.now())
		if meta.Subject == "" {
			meta.Subject = conv.ServiceName
		}
	} else if meta.ServiceName == "" {
		meta.ServiceName = "Support"
	}

	result, err := e.composer.Generate(itemCtx, messages, meta)
	if err != nil {
		e.fail(ctx, state, conv, trigger, err)
		return
	}

	draft := &model.Draft{
		SourceType:          conv.SourceType,
		SourceID:            conv.SourceID,
		ClientMessageID:     trigger.ID,
		ConversationHistory: messages,
		ClientMessage:       trigger.Body,
		DraftResponse:       result.DraftResponse,
		ClientName:          conv.ClientName,
		ClientEmail:         conv.ClientEmail,
		ServiceName:         meta.ServiceName,
		Subject:             meta.Subject,
		Confidence:          result.Confidence,
		AINotes:             result.AINotes,
		ModelUsed:           result.ModelUsed,
		ManagerUserID:       conv.ManagerUserID,
		Status:              model.DraftStatusPending,
	}
	if draft.ManagerUserID == "" {
		draft.ManagerUserID = state.settings.DefaultManagerID
	}

	if state.opts.DryRun {
		logger.WithField("confidence", draft.Confidence).Info("Dry run: would create draft")
		state.wouldCreate(draft)
		return
	}

	// the ledger claim and the insert commit together; a run that loses the
	// claim writes nothing
	queued, err := e.store.EnqueueDraft(itemCtx, draft, &model.ProcessedMessage{
		MessageHash: hashBody(trigger.Body),
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			e.recordConflict(ctx, conv, trigger, logger)
			return
		}
		e.fail(ctx, state, conv, trigger, err)
		return
	}
	if !queued {
		logger.Info("Message processed by another run while composing")
		return
	}

	state.draftCreated(draft)
	e.metrics.DraftsCreated.Inc()
	logger.WithFields(logrus.Fields{
		"draft_id":   draft.ID,
		"confidence": draft.Confidence,
	}).Info("Draft created")

	if state.settings.AutoApproveHighConfidence && draft.Confidence == model.ConfidenceHigh {
		approved, err := e.store.TransitionDraft(ctx, draft.ID, model.DraftStatusPending, model.DraftStatusApproved, repository.TransitionFields{
			ReviewedBy:  autoApproveReviewer,
			ReviewNotes: "Auto-approved: high confidence",
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to auto-approve draft")
			state.addError(conv.SourceType, conv.SourceID, trigger.ID, err)
			e.metrics.ItemErrors.Inc()
			return
		}
		*draft = *approved
		e.metrics.AutoApproved.Inc()
	}
}

// recordConflict handles a pending draft created by a parallel run
func (e *Engine) recordConflict(ctx context.Context, conv model.Conversation, trigger model.Message, logger *logrus.Entry) {
	entry := &model.ProcessedMessage{
		SourceType:  conv.SourceType,
		SourceID:    conv.SourceID,
		MessageID:   trigger.ID,
		MessageHash: hashBody(trigger.Body),
	}

	existing, err := e.store.FindPendingDraft(ctx, conv.SourceType, conv.SourceID, trigger.ID)
	if err == nil {
		entry.Action = model.ActionDraftCreated
		entry.DraftID = &existing.ID
	} else {
		entry.Action = model.ActionSkipped
		entry.SkipReason = "pending draft already queued"
	}

	if _, err := e.store.RecordProcessed(ctx, entry); err != nil {
		logger.WithError(err).Warn("Failed to record processed message after conflict")
	}
	logger.Info("Pending draft already queued by another run")
}

// fail records a per-item error on the ledger and the run
func (e *Engine) fail(ctx context.Context, state *runState, conv model.Conversation, trigger model.Message, cause error) {
	logger := logrus.WithFields(logrus.Fields{
		"source_type": conv.SourceType,
		"source_id":   conv.SourceID,
		"message_id":  trigger.ID,
	})
	logger.WithError(cause).Error("Failed to process message")

	state.addError(conv.SourceType, conv.SourceID, trigger.ID, cause)
	e.metrics.ItemErrors.Inc()

	if state.opts.DryRun {
		return
	}

	if _, err := e.store.RecordProcessed(context.WithoutCancel(ctx), &model.ProcessedMessage{
		SourceType:   conv.SourceType,
		SourceID:     conv.SourceID,
		MessageID:    trigger.ID,
		Action:       model.ActionError,
		ErrorMessage: cause.Error(),
		MessageHash:  hashBody(trigger.Body),
	}); err != nil {
		logger.WithError(err).Warn("Failed to record processing error")
	}
}

func hashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
