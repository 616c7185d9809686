package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookPayload is the JSON body sent to webhook endpoints.
type webhookPayload struct {
	EventType string    `json:"event_type"`
	Subject   string    `json:"subject,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// WebhookSender delivers notification payloads via HTTP POST to one URL.
type WebhookSender struct {
	client  *http.Client
	url     string
	secret  string
	headers map[string]string
}

// NewWebhookSender creates a sender for one endpoint. A non-positive
// timeout falls back to the default.
func NewWebhookSender(url, secret string, headers map[string]string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client:  &http.Client{Timeout: timeout},
		url:     url,
		secret:  secret,
		headers: headers,
	}
}

// Send posts the payload to the endpoint. Any response outside 2xx is a
// delivery failure.
func (s *WebhookSender) Send(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RocketTelemetry-Webhook/0.1")

	// Add HMAC-SHA256 signature if secret is configured.
	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	// Add custom headers.
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST %s: %w", s.url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook POST %s: status %d", s.url, resp.StatusCode)
	}

	return nil
}
