package composer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-autoreply/internal/config"
	"helpdesk-autoreply/internal/model"
)

func sampleConversation() ([]model.Message, Metadata) {
	history := []model.Message{
		{ID: "m1", SenderRole: model.SenderStaff, Body: "hi"},
		{ID: "m2", SenderRole: model.SenderClient, Body: "when will audit finish?"},
	}
	return history, Metadata{
		SourceType:  model.SourceOrder,
		SourceID:    "501",
		Status:      "Audit",
		ServiceName: "GMB Management",
		ClientName:  "Ana",
		Stage:       StageAudit,
		ReplyTo:     history[1],
	}
}

func newTestComposer(t *testing.T, handler http.HandlerFunc) *AnthropicComposer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewAnthropicComposer(config.ComposerConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: 2,
	})
	c.retryDelay = time.Millisecond
	return c
}

func textResponse(text string) string {
	encoded, _ := json.Marshal(map[string]interface{}{
		"model":   "claude-test",
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return string(encoded)
}

func TestGenerate(t *testing.T) {
	c := newTestComposer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Messages, 1) {
			assert.Contains(t, req.Messages[0].Content, "ORDER #501")
			assert.Contains(t, req.Messages[0].Content, "when will audit finish?")
			assert.Contains(t, req.Messages[0].Content, "AUDIT phase")
		}

		w.Write([]byte(textResponse("DRAFT:\nHi Ana! Audit completes by Friday.\n\nNOTES:\nStraightforward timeline question.")))
	})

	history, meta := sampleConversation()
	result, err := c.Generate(context.Background(), history, meta)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana! Audit completes by Friday.", result.DraftResponse)
	assert.Equal(t, "Straightforward timeline question.", result.AINotes)
	assert.Equal(t, model.ConfidenceHigh, result.Confidence)
	assert.Equal(t, "claude-test", result.ModelUsed)
}

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls int32
	c := newTestComposer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(textResponse("DRAFT: Hello\nNOTES: fine")))
	})

	history, meta := sampleConversation()
	result, err := c.Generate(context.Background(), history, meta)
	require.NoError(t, err)
	assert.Equal(t, "Hello", result.DraftResponse)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	var calls int32
	c := newTestComposer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	})

	history, meta := sampleConversation()
	_, err := c.Generate(context.Background(), history, meta)

	var compErr *CompositionError
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateRejectsEmptyInput(t *testing.T) {
	c := newTestComposer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Generate(context.Background(), nil, Metadata{})
	var compErr *CompositionError
	assert.True(t, errors.As(err, &compErr))
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	c := NewAnthropicComposer(config.ComposerConfig{})
	history, meta := sampleConversation()

	_, err := c.Generate(context.Background(), history, meta)
	assert.ErrorIs(t, err, ErrComposerUnavailable)
}

func TestParseResponse(t *testing.T) {
	draft, notes := parseResponse("DRAFT:\nHi there\nNOTES:\nCheck with the team about dates")
	assert.Equal(t, "Hi there", draft)
	assert.Equal(t, "Check with the team about dates", notes)

	draft, notes = parseResponse("Just a reply with no markers")
	assert.Equal(t, "Just a reply with no markers", draft)
	assert.Equal(t, noNotes, notes)
}

func TestAssessConfidence(t *testing.T) {
	assert.Equal(t, model.ConfidenceLow, assessConfidence("short", "Not sure which plan they are on"))
	assert.Equal(t, model.ConfidenceLow, assessConfidence("short", "Might need to escalate"))
	assert.Equal(t, model.ConfidenceMedium, assessConfidence(strings.Repeat("a", 401), "fine"))
	assert.Equal(t, model.ConfidenceHigh, assessConfidence("short", "fine"))
}

func TestFormatHistory(t *testing.T) {
	var messages []model.Message
	for i := 0; i < 12; i++ {
		messages = append(messages, model.Message{SenderRole: model.SenderClient, Body: "msg"})
	}
	messages = append(messages, model.Message{SenderRole: model.SenderStaff, Body: "note", Internal: true})
	messages = append(messages, model.Message{SenderRole: model.SenderClient, Body: strings.Repeat("x", 600)})

	out := formatHistory(messages, 10)
	assert.Equal(t, 10, strings.Count(out, "[CLIENT]")+strings.Count(out, "[STAFF (internal)]"))
	assert.Contains(t, out, "[STAFF (internal)]: note")
	assert.Contains(t, out, strings.Repeat("x", 500)+"... [truncated]")
	assert.NotContains(t, out, strings.Repeat("x", 501))
}

func TestInferStage(t *testing.T) {
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, StageOnboarding, InferStage("Pending", time.Time{}, now))
	assert.Equal(t, StageSetup, InferStage("Working", time.Time{}, now))
	assert.Equal(t, StageAudit, InferStage("In Audit", time.Time{}, now))
	assert.Equal(t, StageEnhancement, InferStage("Enhancement", time.Time{}, now))
	assert.Equal(t, StageManagement, InferStage("Completed", time.Time{}, now))

	assert.Equal(t, StageOnboarding, InferStage("Open", now.Add(-2*24*time.Hour), now))
	assert.Equal(t, StageAudit, InferStage("Open", now.Add(-9*24*time.Hour), now))
	assert.Equal(t, StageEnhancement, InferStage("Open", now.Add(-20*24*time.Hour), now))
	assert.Equal(t, StageManagement, InferStage("Open", now.Add(-40*24*time.Hour), now))
	assert.Equal(t, Stage(""), InferStage("Open", time.Time{}, now))
}
