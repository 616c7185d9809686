package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/internal/testutil"
	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

func anomalyPayload() webhookPayload {
	rec := testutil.NewAnomalyRecord()
	return webhookPayload{
		EventType: "anomaly.detected",
		Subject:   rec.Explanation,
		Timestamp: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
		Data:      rec,
	}
}

func TestWebhookSender_Send_Success(t *testing.T) {
	var received webhookPayload
	var headers http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "", nil, 0)

	payload := anomalyPayload()
	if err := sender.Send(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.EventType != "anomaly.detected" {
		t.Errorf("event_type = %q, want %q", received.EventType, "anomaly.detected")
	}
	rec := payload.Data.(*telemetry.AnomalyRecord)
	data, ok := received.Data.(map[string]any)
	if !ok {
		t.Fatalf("data decoded as %T, want object", received.Data)
	}
	if data["id"] != rec.ID {
		t.Errorf("data.id = %v, want %q", data["id"], rec.ID)
	}
	if data["asset_id"] != "rocket-1" {
		t.Errorf("data.asset_id = %v, want %q", data["asset_id"], "rocket-1")
	}
	if headers.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want %q", headers.Get("Content-Type"), "application/json")
	}
	if headers.Get("User-Agent") != "RocketTelemetry-Webhook/0.1" {
		t.Errorf("User-Agent = %q, want %q", headers.Get("User-Agent"), "RocketTelemetry-Webhook/0.1")
	}
	if headers.Get("X-Signature") != "" {
		t.Errorf("X-Signature = %q, want empty without a secret", headers.Get("X-Signature"))
	}
}

func TestWebhookSender_Send_HMACSignature(t *testing.T) {
	secret := "test-secret-key"
	var receivedSig string
	var receivedBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSig = r.Header.Get("X-Signature")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, secret, nil, 0)

	if err := sender.Send(context.Background(), anomalyPayload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedSig == "" {
		t.Fatal("expected X-Signature header, got empty")
	}

	// Verify HMAC over the exact bytes received.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(receivedBody)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	if receivedSig != expectedSig {
		t.Errorf("signature mismatch: got %q, want %q", receivedSig, expectedSig)
	}
}

func TestWebhookSender_Send_CustomHeaders(t *testing.T) {
	var headers http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "", map[string]string{
		"X-Custom-Header": "custom-value",
	}, 0)

	if err := sender.Send(context.Background(), anomalyPayload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if headers.Get("X-Custom-Header") != "custom-value" {
		t.Errorf("X-Custom-Header = %q, want %q", headers.Get("X-Custom-Header"), "custom-value")
	}
}

func TestWebhookSender_Send_Non2xxError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "", nil, 0)

	if err := sender.Send(context.Background(), anomalyPayload()); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestWebhookSender_Send_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "", nil, 50*time.Millisecond)

	if err := sender.Send(context.Background(), anomalyPayload()); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestWebhookSender_Send_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "", nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	if err := sender.Send(ctx, anomalyPayload()); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
