package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-autoreply/internal/metrics"
	"helpdesk-autoreply/internal/model"
	"helpdesk-autoreply/internal/repository"
	"helpdesk-autoreply/internal/source"
	"helpdesk-autoreply/internal/testutil"
)

type post struct {
	sourceType model.SourceType
	sourceID   string
	sender     string
	body       string
}

type fakeConnector struct {
	mu    sync.Mutex
	posts []post
	fail  map[string]error
}

func (f *fakeConnector) ListRecentOrders(ctx context.Context, since time.Time) ([]model.Conversation, error) {
	return nil, nil
}

func (f *fakeConnector) ListRecentTickets(ctx context.Context, since time.Time) ([]model.Conversation, error) {
	return nil, nil
}

func (f *fakeConnector) GetMessages(ctx context.Context, conv model.Conversation) ([]model.Message, error) {
	return nil, nil
}

func (f *fakeConnector) PostMessage(ctx context.Context, sourceType model.SourceType, sourceID, staffUserID, body string) (*source.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[sourceID]; err != nil {
		return nil, err
	}
	f.posts = append(f.posts, post{sourceType: sourceType, sourceID: sourceID, sender: staffUserID, body: body})
	return &source.DeliveryResult{MessageID: "900", Raw: []byte(`{"id":900}`)}, nil
}

func setup(t *testing.T) (*Workflow, *repository.Repository, *fakeConnector) {
	t.Helper()
	repo := repository.New(testutil.NewDB(t))
	conn := &fakeConnector{fail: map[string]error{}}
	wf := NewWorkflow(repo, conn, metrics.New(prometheus.NewRegistry()), time.Minute)
	return wf, repo, conn
}

func createDraft(t *testing.T, repo *repository.Repository, sourceID, manager string) *model.Draft {
	t.Helper()
	d := &model.Draft{
		SourceType:      model.SourceOrder,
		SourceID:        sourceID,
		ClientMessageID: "m-" + sourceID,
		ClientMessage:   "when will audit finish?",
		DraftResponse:   "Audit completes by Friday",
		Confidence:      model.ConfidenceHigh,
		ManagerUserID:   manager,
	}
	require.NoError(t, repo.CreateDraft(context.Background(), d))
	return d
}

func TestApproveThenRejectFails(t *testing.T) {
	wf, repo, _ := setup(t)
	ctx := context.Background()
	d := createDraft(t, repo, "501", "7")

	approved, err := wf.Approve(ctx, d.ID, Review{Reviewer: "alice", Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusApproved, approved.Status)
	assert.Equal(t, "alice", approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)

	_, err = wf.Reject(ctx, d.ID, Review{Reviewer: "bob"})
	var invalid *repository.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, model.DraftStatusApproved, invalid.From)

	current, err := wf.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusApproved, current.Status)
	assert.Equal(t, "alice", current.ReviewedBy)
}

func TestApproveDefaultsReviewerAndAppliesEdit(t *testing.T) {
	wf, repo, _ := setup(t)
	d := createDraft(t, repo, "501", "7")

	approved, err := wf.Approve(context.Background(), d.ID, Review{EditedResponse: "Audit done Thursday"})
	require.NoError(t, err)
	assert.Equal(t, defaultReviewer, approved.ReviewedBy)
	assert.Equal(t, "Audit done Thursday", approved.FinalText())
}

func TestEdit(t *testing.T) {
	wf, repo, _ := setup(t)
	ctx := context.Background()
	d := createDraft(t, repo, "501", "7")

	_, err := wf.Edit(ctx, d.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	edited, err := wf.Edit(ctx, d.ID, "New text")
	require.NoError(t, err)
	assert.Equal(t, "New text", edited.EditedResponse)

	_, err = wf.Approve(ctx, d.ID, Review{})
	require.NoError(t, err)

	_, err = wf.Edit(ctx, d.ID, "After approval")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestSendPostsFinalTextAsManager(t *testing.T) {
	wf, repo, conn := setup(t)
	ctx := context.Background()
	d := createDraft(t, repo, "501", "7")

	_, err := wf.Approve(ctx, d.ID, Review{EditedResponse: "Edited reply"})
	require.NoError(t, err)

	sent, err := wf.Send(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.JSONEq(t, `{"id":900}`, string(sent.SourceResponse))

	require.Len(t, conn.posts, 1)
	assert.Equal(t, post{sourceType: model.SourceOrder, sourceID: "501", sender: "7", body: "Edited reply"}, conn.posts[0])

	_, err = wf.Send(ctx, d.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	assert.Len(t, conn.posts, 1)
}

func TestSendRequiresApproved(t *testing.T) {
	wf, repo, conn := setup(t)
	d := createDraft(t, repo, "501", "7")

	_, err := wf.Send(context.Background(), d.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
	assert.Empty(t, conn.posts)

	_, err = wf.Send(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendFailureMovesToError(t *testing.T) {
	wf, repo, conn := setup(t)
	ctx := context.Background()
	d := createDraft(t, repo, "501", "7")
	conn.fail["501"] = &source.ConnectorError{Op: "post message", StatusCode: 500, Body: "boom"}

	_, err := wf.Approve(ctx, d.ID, Review{})
	require.NoError(t, err)

	failed, err := wf.Send(ctx, d.ID)
	var failure *SendFailure
	require.True(t, errors.As(err, &failure))
	require.NotNil(t, failed)
	assert.Equal(t, model.DraftStatusError, failed.Status)
	assert.Contains(t, failed.SendError, "HTTP 500")

	// operator retry after fixing the helpdesk side
	delete(conn.fail, "501")
	sent, err := wf.Retry(ctx, d.ID, Review{Reviewer: "ops"})
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusSent, sent.Status)
	assert.Empty(t, sent.SendError)
}

func TestSendWithoutSender(t *testing.T) {
	wf, repo, conn := setup(t)
	ctx := context.Background()
	d := createDraft(t, repo, "501", "")

	_, err := wf.Approve(ctx, d.ID, Review{})
	require.NoError(t, err)

	_, err = wf.Send(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNoSender)
	assert.Empty(t, conn.posts)

	current, err := wf.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusApproved, current.Status)

	require.NoError(t, repo.SetSetting(ctx, model.SettingDefaultManagerID, "12"))
	sent, err := wf.Send(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusSent, sent.Status)
	assert.Equal(t, "12", conn.posts[0].sender)
}

func TestApproveAndSendKeepsApprovalOnFailure(t *testing.T) {
	wf, repo, conn := setup(t)
	ctx := context.Background()
	d := createDraft(t, repo, "501", "7")
	conn.fail["501"] = errors.New("connection reset")

	_, err := wf.ApproveAndSend(ctx, d.ID, Review{Reviewer: "alice"})
	var failure *SendFailure
	require.True(t, errors.As(err, &failure))

	current, err := wf.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusError, current.Status)
	assert.Equal(t, "alice", current.ReviewedBy)
}

func TestSendAllApprovedContinuesPastFailures(t *testing.T) {
	wf, repo, conn := setup(t)
	ctx := context.Background()

	ok1 := createDraft(t, repo, "1", "7")
	bad := createDraft(t, repo, "2", "7")
	ok2 := createDraft(t, repo, "3", "7")
	pending := createDraft(t, repo, "4", "7")
	conn.fail["2"] = errors.New("HTTP 502")

	for _, d := range []*model.Draft{ok1, bad, ok2} {
		_, err := wf.Approve(ctx, d.ID, Review{})
		require.NoError(t, err)
	}

	results, err := wf.SendAllApproved(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[string]SendResult{}
	for _, r := range results {
		byID[r.DraftID] = r
	}
	assert.Equal(t, model.DraftStatusSent, byID[ok1.ID].Status)
	assert.Equal(t, model.DraftStatusSent, byID[ok2.ID].Status)
	assert.Equal(t, model.DraftStatusError, byID[bad.ID].Status)
	assert.NotEmpty(t, byID[bad.ID].Error)
	assert.NotContains(t, byID, pending.ID)
	assert.Len(t, conn.posts, 2)
}

func TestSendAllApprovedSendsEntireBacklog(t *testing.T) {
	wf, repo, conn := setup(t)
	ctx := context.Background()

	const backlog = 620
	reviewedAt := time.Now().UTC().Add(-time.Hour)
	drafts := make([]model.Draft, 0, backlog)
	for i := 0; i < backlog; i++ {
		drafts = append(drafts, model.Draft{
			ID:              fmt.Sprintf("draft-%04d", i),
			SourceType:      model.SourceTicket,
			SourceID:        fmt.Sprintf("%d", 1000+i),
			ClientMessageID: fmt.Sprintf("m-%d", i),
			DraftResponse:   "Done",
			Confidence:      model.ConfidenceHigh,
			ConfidenceRank:  model.ConfidenceHigh.Rank(),
			ManagerUserID:   "7",
			Status:          model.DraftStatusApproved,
			ReviewedBy:      "alice",
			ReviewedAt:      &reviewedAt,
		})
	}
	require.NoError(t, repo.DB().CreateInBatches(&drafts, 100).Error)

	results, err := wf.SendAllApproved(ctx)
	require.NoError(t, err)
	require.Len(t, results, backlog)
	for _, r := range results {
		assert.Equal(t, model.DraftStatusSent, r.Status, r.DraftID)
	}
	assert.Len(t, conn.posts, backlog)

	remaining, err := repo.ListApprovedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestConcurrentSendPostsOnce(t *testing.T) {
	wf, repo, conn := setup(t)
	ctx := context.Background()
	d := createDraft(t, repo, "501", "7")
	_, err := wf.Approve(ctx, d.ID, Review{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wf.Send(ctx, d.ID)
		}()
	}
	wg.Wait()

	assert.Len(t, conn.posts, 1)
}

func TestStatsUpdatesPendingGauge(t *testing.T) {
	wf, repo, _ := setup(t)
	createDraft(t, repo, "1", "7")
	createDraft(t, repo, "2", "7")

	stats, err := wf.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
}
