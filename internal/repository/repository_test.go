package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-autoreply/internal/model"
	"helpdesk-autoreply/internal/testutil"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return New(testutil.NewDB(t))
}

func newDraft(sourceID, messageID string, confidence model.Confidence) *model.Draft {
	return &model.Draft{
		SourceType:      model.SourceOrder,
		SourceID:        sourceID,
		ClientMessageID: messageID,
		ClientMessage:   "Any update?",
		DraftResponse:   "Hi! Working on it.",
		Confidence:      confidence,
		ConversationHistory: []model.Message{
			{ID: messageID, SenderRole: model.SenderClient, Body: "Any update?", Timestamp: time.Now().UTC()},
		},
	}
}

func TestCreateDraftRejectsSecondPending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newDraft("501", "m9", model.ConfidenceHigh)
	require.NoError(t, repo.CreateDraft(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, model.DraftStatusPending, first.Status)

	err := repo.CreateDraft(ctx, newDraft("501", "m9", model.ConfidenceLow))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "order:501:m9", conflict.Key)

	existing, err := repo.FindPendingDraft(ctx, model.SourceOrder, "501", "m9")
	require.NoError(t, err)
	assert.Equal(t, first.ID, existing.ID)
}

func TestCreateDraftAllowedAfterReject(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newDraft("501", "m9", model.ConfidenceHigh)
	require.NoError(t, repo.CreateDraft(ctx, first))

	_, err := repo.TransitionDraft(ctx, first.ID, model.DraftStatusPending, model.DraftStatusRejected, TransitionFields{ReviewedBy: "ops"})
	require.NoError(t, err)

	assert.NoError(t, repo.CreateDraft(ctx, newDraft("501", "m9", model.ConfidenceHigh)))
}

func TestRecordProcessedFirstWriterWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	processed, err := repo.HasBeenProcessed(ctx, model.SourceTicket, "77", "m1")
	require.NoError(t, err)
	assert.False(t, processed)

	inserted, err := repo.RecordProcessed(ctx, &model.ProcessedMessage{
		SourceType: model.SourceTicket, SourceID: "77", MessageID: "m1", Action: model.ActionSkipped, SkipReason: "first",
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.RecordProcessed(ctx, &model.ProcessedMessage{
		SourceType: model.SourceTicket, SourceID: "77", MessageID: "m1", Action: model.ActionError, ErrorMessage: "second",
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	entry, err := repo.GetProcessed(ctx, model.SourceTicket, "77", "m1")
	require.NoError(t, err)
	assert.Equal(t, model.ActionSkipped, entry.Action)
	assert.Equal(t, "first", entry.SkipReason)

	processed, err = repo.HasBeenProcessed(ctx, model.SourceTicket, "77", "m1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestEnqueueDraftClaimsLedgerAndDraftTogether(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newDraft("501", "m2", model.ConfidenceHigh)
	queued, err := repo.EnqueueDraft(ctx, first, &model.ProcessedMessage{MessageHash: "abc"})
	require.NoError(t, err)
	assert.True(t, queued)

	entry, err := repo.GetProcessed(ctx, model.SourceOrder, "501", "m2")
	require.NoError(t, err)
	assert.Equal(t, model.ActionDraftCreated, entry.Action)
	require.NotNil(t, entry.DraftID)
	assert.Equal(t, first.ID, *entry.DraftID)

	// once the first draft leaves pending the unique key no longer guards the
	// message; the ledger claim must
	_, err = repo.TransitionDraft(ctx, first.ID, model.DraftStatusPending, model.DraftStatusApproved, TransitionFields{ReviewedBy: "ops"})
	require.NoError(t, err)

	second := newDraft("501", "m2", model.ConfidenceHigh)
	queued, err = repo.EnqueueDraft(ctx, second, &model.ProcessedMessage{})
	require.NoError(t, err)
	assert.False(t, queued)

	_, err = repo.GetDraft(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	approved, err := repo.ListDrafts(ctx, model.DraftStatusApproved, 10)
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestEnqueueDraftConflictLeavesNoLedgerEntry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateDraft(ctx, newDraft("501", "m3", model.ConfidenceLow)))

	queued, err := repo.EnqueueDraft(ctx, newDraft("501", "m3", model.ConfidenceHigh), &model.ProcessedMessage{})
	assert.ErrorIs(t, err, ErrConflict)
	assert.False(t, queued)

	processed, err := repo.HasBeenProcessed(ctx, model.SourceOrder, "501", "m3")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestListPendingOrdersByConfidenceThenAge(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	low := newDraft("1", "a", model.ConfidenceLow)
	high1 := newDraft("2", "b", model.ConfidenceHigh)
	medium := newDraft("3", "c", model.ConfidenceMedium)
	high2 := newDraft("4", "d", model.ConfidenceHigh)
	for _, d := range []*model.Draft{low, high1, medium, high2} {
		require.NoError(t, repo.CreateDraft(ctx, d))
		time.Sleep(5 * time.Millisecond)
	}

	drafts, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	ids := []string{drafts[0].ID, drafts[1].ID, drafts[2].ID, drafts[3].ID}
	assert.Equal(t, []string{high1.ID, high2.ID, medium.ID, low.ID}, ids)
}

func TestTransitionDraft(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := newDraft("501", "m9", model.ConfidenceHigh)
	require.NoError(t, repo.CreateDraft(ctx, d))

	approved, err := repo.TransitionDraft(ctx, d.ID, model.DraftStatusPending, model.DraftStatusApproved, TransitionFields{
		ReviewedBy:     "alice",
		ReviewNotes:    "looks good",
		EditedResponse: "Hi! Nearly done.",
	})
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusApproved, approved.Status)
	assert.Equal(t, "alice", approved.ReviewedBy)
	assert.NotNil(t, approved.ReviewedAt)
	assert.Nil(t, approved.PendingKey)
	assert.Equal(t, "Hi! Nearly done.", approved.FinalText())

	// the stored status is no longer pending
	_, err = repo.TransitionDraft(ctx, d.ID, model.DraftStatusPending, model.DraftStatusRejected, TransitionFields{})
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, model.DraftStatusApproved, invalid.From)
	assert.Equal(t, model.DraftStatusRejected, invalid.To)

	// illegal pair rejected before touching the database
	_, err = repo.TransitionDraft(ctx, d.ID, model.DraftStatusApproved, model.DraftStatusPending, TransitionFields{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.TransitionDraft(ctx, "missing", model.DraftStatusPending, model.DraftStatusApproved, TransitionFields{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionDraftConcurrentApproveAndReject(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := newDraft("501", "m9", model.ConfidenceHigh)
	require.NoError(t, repo.CreateDraft(ctx, d))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []model.DraftStatus{model.DraftStatusApproved, model.DraftStatusRejected}
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to model.DraftStatus) {
			defer wg.Done()
			_, errs[i] = repo.TransitionDraft(ctx, d.ID, model.DraftStatusPending, to, TransitionFields{ReviewedBy: "ops"})
		}(i, to)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestEditDraftOnlyWhilePending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := newDraft("501", "m9", model.ConfidenceHigh)
	require.NoError(t, repo.CreateDraft(ctx, d))

	edited, err := repo.EditDraft(ctx, d.ID, "New text")
	require.NoError(t, err)
	assert.Equal(t, "New text", edited.FinalText())
	assert.Equal(t, "Hi! Working on it.", edited.DraftResponse)

	_, err = repo.TransitionDraft(ctx, d.ID, model.DraftStatusPending, model.DraftStatusRejected, TransitionFields{})
	require.NoError(t, err)

	_, err = repo.EditDraft(ctx, d.ID, "Too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestClaimSend(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := newDraft("501", "m9", model.ConfidenceHigh)
	require.NoError(t, repo.CreateDraft(ctx, d))

	_, err := repo.ClaimSend(ctx, d.ID, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = repo.TransitionDraft(ctx, d.ID, model.DraftStatusPending, model.DraftStatusApproved, TransitionFields{ReviewedBy: "ops"})
	require.NoError(t, err)

	claimed, err := repo.ClaimSend(ctx, d.ID, time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, claimed.SendClaimedAt)

	_, err = repo.ClaimSend(ctx, d.ID, time.Minute)
	assert.ErrorIs(t, err, ErrSendInProgress)

	require.NoError(t, repo.ReleaseSend(ctx, d.ID))
	_, err = repo.ClaimSend(ctx, d.ID, time.Minute)
	assert.NoError(t, err)

	sent, err := repo.TransitionDraft(ctx, d.ID, model.DraftStatusApproved, model.DraftStatusSent, TransitionFields{
		SourceResponse: []byte(`{"id":1}`),
	})
	require.NoError(t, err)
	assert.NotNil(t, sent.SentAt)
	assert.Nil(t, sent.SendClaimedAt)
}

func TestRequeueFromError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := newDraft("501", "m9", model.ConfidenceHigh)
	require.NoError(t, repo.CreateDraft(ctx, d))
	_, err := repo.TransitionDraft(ctx, d.ID, model.DraftStatusPending, model.DraftStatusApproved, TransitionFields{ReviewedBy: "ops"})
	require.NoError(t, err)

	failed, err := repo.TransitionDraft(ctx, d.ID, model.DraftStatusApproved, model.DraftStatusError, TransitionFields{SendError: "HTTP 500"})
	require.NoError(t, err)
	assert.Equal(t, "HTTP 500", failed.SendError)

	requeued, err := repo.TransitionDraft(ctx, d.ID, model.DraftStatusError, model.DraftStatusApproved, TransitionFields{ReviewedBy: "bob"})
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusApproved, requeued.Status)
	assert.Empty(t, requeued.SendError)
	assert.Equal(t, "bob", requeued.ReviewedBy)
}

func TestRunLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	last, err := repo.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	run, err := repo.StartRun(ctx)
	require.NoError(t, err)
	assert.Len(t, run.ID, 26)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	run.OrdersChecked = 3
	run.DraftsCreated = 1
	require.NoError(t, repo.FinishRun(ctx, run))

	second, err := repo.StartRun(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.FailRun(ctx, second, errors.New("source unreachable")))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	require.Len(t, runs[0].ErrorLog, 1)
	assert.Equal(t, "source unreachable", runs[0].ErrorLog[0].Error)
	assert.Equal(t, model.RunStatusCompleted, runs[1].Status)
	assert.Equal(t, 3, runs[1].OrdersChecked)
	assert.NotNil(t, runs[1].CompletedAt)
}

func TestSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	settings, err := repo.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), settings)

	require.NoError(t, repo.SeedSettings(ctx))
	require.NoError(t, repo.SeedSettings(ctx))

	require.NoError(t, repo.SetSetting(ctx, model.SettingHoursLookback, "48"))
	require.NoError(t, repo.SetSetting(ctx, model.SettingAutoApproveHighConfidence, "true"))
	require.NoError(t, repo.SetSetting(ctx, model.SettingDefaultManagerID, "12"))

	assert.Error(t, repo.SetSetting(ctx, model.SettingHoursLookback, "soon"))
	assert.Error(t, repo.SetSetting(ctx, model.SettingPollingEnabled, "maybe"))
	assert.ErrorIs(t, repo.SetSetting(ctx, "colour", "blue"), ErrUnknownSetting)

	value, err := repo.GetSetting(ctx, model.SettingHoursLookback)
	require.NoError(t, err)
	assert.Equal(t, "48", value)

	settings, err = repo.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.PollingEnabled)
	assert.Equal(t, 48, settings.HoursLookback)
	assert.True(t, settings.AutoApproveHighConfidence)
	assert.Equal(t, "12", settings.DefaultManagerID)

	_, err = repo.GetSetting(ctx, "colour")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := newDraft("1", "a", model.ConfidenceHigh)
	b := newDraft("2", "b", model.ConfidenceLow)
	require.NoError(t, repo.CreateDraft(ctx, a))
	require.NoError(t, repo.CreateDraft(ctx, b))
	_, err := repo.TransitionDraft(ctx, b.ID, model.DraftStatusPending, model.DraftStatusRejected, TransitionFields{})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(2), stats.Total)
	assert.Nil(t, stats.LastRun)
}
