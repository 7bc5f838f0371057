package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"helpdesk-autoreply/internal/config"
	"helpdesk-autoreply/internal/model"
)

const (
	anthropicVersion = "2023-06-01"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
)

// AnthropicComposer drafts replies with the Anthropic Messages API
type AnthropicComposer struct {
	apiKey       string
	baseURL      string
	model        string
	maxTokens    int
	timeout      time.Duration
	maxRetries   int
	retryDelay   time.Duration
	historyLimit int
	signOff      string
	httpClient   *http.Client
}

// NewAnthropicComposer creates a composer from configuration
func NewAnthropicComposer(cfg config.ComposerConfig) *AnthropicComposer {
	c := &AnthropicComposer{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   500 * time.Millisecond,
		historyLimit: cfg.HistoryLimit,
		signOff:      cfg.SignOff,
		httpClient:   &http.Client{},
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.anthropic.com"
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = 60 * time.Second
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.historyLimit <= 0 {
		c.historyLimit = defaultHistoryLimit
	}
	return c
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system"`
	Messages  []messagesPrompt `json:"messages"`
}

type messagesPrompt struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("anthropic status %d: %s", e.StatusCode, e.Message)
}

// Generate drafts a reply to meta.ReplyTo given the conversation history
func (c *AnthropicComposer) Generate(ctx context.Context, history []model.Message, meta Metadata) (*Result, error) {
	if c.apiKey == "" {
		return nil, &CompositionError{Reason: "upstream unavailable", Err: ErrComposerUnavailable}
	}
	if len(history) == 0 || strings.TrimSpace(meta.ReplyTo.Body) == "" {
		return nil, &CompositionError{Reason: "empty conversation"}
	}

	payload, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []messagesPrompt{
			{Role: "user", Content: buildUserPrompt(history, meta, c.historyLimit, c.signOff)},
		},
	})
	if err != nil {
		return nil, &CompositionError{Reason: "marshal request", Err: err}
	}

	var (
		text    string
		modelID string
		lastErr error
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		text, modelID, lastErr = c.call(ctx, payload)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) || attempt == c.maxRetries {
			break
		}

		logrus.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"source":  model.MessageKey(meta.SourceType, meta.SourceID, meta.ReplyTo.ID),
		}).WithError(lastErr).Warn("Retrying draft composition")

		select {
		case <-ctx.Done():
			return nil, &CompositionError{Reason: "upstream unavailable", Err: ctx.Err()}
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		}
	}
	if lastErr != nil {
		return nil, &CompositionError{Reason: "upstream unavailable", Err: lastErr}
	}

	draft, notes := parseResponse(text)
	if draft == "" {
		return nil, &CompositionError{Reason: "empty draft returned"}
	}

	return &Result{
		DraftResponse: draft,
		Confidence:    assessConfidence(draft, notes),
		AINotes:       notes,
		ModelUsed:     firstNonEmpty(modelID, c.model),
	}, nil
}

func (c *AnthropicComposer) call(ctx context.Context, payload []byte) (string, string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return "", "", fmt.Errorf("anthropic timeout: %w", err)
		}
		return "", "", fmt.Errorf("anthropic transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read anthropic body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 700 {
			message = message[:700]
		}
		return "", "", &apiError{StatusCode: resp.StatusCode, Message: message}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var fragments []string
	for _, block := range parsed.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			fragments = append(fragments, block.Text)
		}
	}

	return strings.Join(fragments, "\n"), parsed.Model, nil
}

func isRetryable(err error) bool {
	var httpErr *apiError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
