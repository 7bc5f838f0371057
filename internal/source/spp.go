package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"helpdesk-autoreply/internal/config"
	"helpdesk-autoreply/internal/model"
)

const (
	defaultAPIVersion = "2024-03-05"
	defaultPageSize   = 100
	maxPages          = 10
	messagesLimit     = 50
)

// SPPClient talks to a Service Provider Pro workspace API
type SPPClient struct {
	baseURL    string
	apiVersion string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSPPClient creates a helpdesk client. The API key is sent as a bearer token.
func NewSPPClient(cfg config.SourceConfig) *SPPClient {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   "Bearer",
	})

	return &SPPClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiVersion: apiVersion,
		pageSize:   pageSize,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: tokenSource, Base: http.DefaultTransport},
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// ListRecentOrders returns orders whose last message is at or after since
func (c *SPPClient) ListRecentOrders(ctx context.Context, since time.Time) ([]model.Conversation, error) {
	return c.listRecent(ctx, "orders", model.SourceOrder, since)
}

// ListRecentTickets returns tickets whose last message is at or after since
func (c *SPPClient) ListRecentTickets(ctx context.Context, since time.Time) ([]model.Conversation, error) {
	return c.listRecent(ctx, "tickets", model.SourceTicket, since)
}

// listRecent pages through a list sorted by last_message_at desc and stops
// at the first item older than the cutoff. Items with no last_message_at are
// kept.
func (c *SPPClient) listRecent(ctx context.Context, endpoint string, sourceType model.SourceType, since time.Time) ([]model.Conversation, error) {
	var out []model.Conversation

	for page := 1; page <= maxPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.pageSize))
		query.Set("page", strconv.Itoa(page))
		query.Set("sort", "last_message_at:desc")

		var resp sppListResponse[sppItem]
		if err := c.do(ctx, "list "+endpoint, http.MethodGet, endpoint, query, nil, &resp); err != nil {
			return nil, err
		}

		for _, item := range resp.Data {
			conv := item.toConversation(sourceType)
			// without a timestamp the message history decides
			if !conv.LastMessageAt.IsZero() && conv.LastMessageAt.Before(since) {
				return out, nil
			}
			out = append(out, conv)
		}

		if len(resp.Data) < c.pageSize {
			break
		}
	}

	logrus.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"count":    len(out),
	}).Debug("Listed recent helpdesk items")

	return out, nil
}

// GetMessages returns the conversation's messages oldest first
func (c *SPPClient) GetMessages(ctx context.Context, conv model.Conversation) ([]model.Message, error) {
	endpoint, err := messagesEndpoint(conv.SourceType, conv.SourceID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(messagesLimit))

	var resp sppListResponse[sppMessage]
	if err := c.do(ctx, "get messages", http.MethodGet, endpoint, query, nil, &resp); err != nil {
		return nil, err
	}

	// the API returns newest first
	messages := make([]model.Message, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		messages = append(messages, resp.Data[i].toMessage(conv.ClientUserID))
	}
	return messages, nil
}

// PostMessage posts a client-visible reply authored by staffUserID
func (c *SPPClient) PostMessage(ctx context.Context, sourceType model.SourceType, sourceID, staffUserID, body string) (*DeliveryResult, error) {
	endpoint, err := messagesEndpoint(sourceType, sourceID)
	if err != nil {
		return nil, err
	}

	userID, err := strconv.ParseInt(staffUserID, 10, 64)
	if err != nil {
		return nil, &ConnectorError{Op: "post message", Err: fmt.Errorf("invalid staff user id %q: %w", staffUserID, err)}
	}

	payload := sppPostRequest{
		Message:   body,
		StaffOnly: false,
		UserID:    userID,
	}

	var raw json.RawMessage
	if err := c.do(ctx, "post message", http.MethodPost, endpoint, nil, payload, &raw); err != nil {
		return nil, err
	}

	result := &DeliveryResult{Raw: raw}
	var posted struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &posted); err == nil && posted.ID != 0 {
		result.MessageID = strconv.FormatInt(posted.ID, 10)
	}

	return result, nil
}

func messagesEndpoint(sourceType model.SourceType, sourceID string) (string, error) {
	switch sourceType {
	case model.SourceOrder:
		return "order_messages/" + url.PathEscape(sourceID), nil
	case model.SourceTicket:
		return "ticket_messages/" + url.PathEscape(sourceID), nil
	default:
		return "", fmt.Errorf("unknown source type %q", sourceType)
	}
}

func (c *SPPClient) do(ctx context.Context, op, method, endpoint string, query url.Values, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ConnectorError{Op: op, Err: err}
	}

	target := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return &ConnectorError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &ConnectorError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Version", c.apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectorError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectorError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(data))
		if len(message) > 500 {
			message = message[:500]
		}
		return &ConnectorError{Op: op, StatusCode: resp.StatusCode, Body: message}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ConnectorError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
