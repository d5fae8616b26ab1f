package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"treasuryd/engine"
)

// NopSink discards notifications. Used when no webhook endpoint is
// configured.
type NopSink struct{}

// Notify does nothing.
func (NopSink) Notify(context.Context, string, string) error { return nil }

var _ engine.Sink = NopSink{}

// WebhookSink posts run notifications as JSON to an external endpoint.
// Delivery is rate limited and best effort: callers log returned errors and
// never propagate them into run bookkeeping.
type WebhookSink struct {
	endpoint *url.URL
	client   *http.Client
	limiter  *rate.Limiter
}

// NewWebhookSink validates the endpoint and constructs a sink allowing at
// most perMinute deliveries.
func NewWebhookSink(endpoint string, perMinute float64) (*WebhookSink, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("notify: endpoint required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("notify: parse endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("notify: endpoint must include scheme and host")
	}
	perSecond := perMinute / 60.0
	if perSecond <= 0 {
		perSecond = 0.5
	}
	return &WebhookSink{
		endpoint: parsed,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}, nil
}

var _ engine.Sink = (*WebhookSink)(nil)

type notification struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Notify posts the message to the configured webhook.
func (s *WebhookSink) Notify(ctx context.Context, channelID, message string) error {
	if s == nil || s.endpoint == nil {
		return fmt.Errorf("notify: sink not configured")
	}
	if strings.TrimSpace(channelID) == "" {
		return fmt.Errorf("notify: channel required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: rate limit wait: %w", err)
	}
	payload, err := json.Marshal(notification{Channel: channelID, Text: message})
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
