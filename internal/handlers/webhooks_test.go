package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashgrove-goods/api/internal/payments"
	"github.com/ashgrove-goods/api/internal/services"
)

func newWebhookRouter(h *WebhookHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestWebhookInvalidSignatureIsBadRequest(t *testing.T) {
	verifier := &stubWebhookVerifier{
		verifyFn: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{}, payments.ErrInvalidWebhookSignature
		},
	}
	processed := false
	svc := &stubWebhookService{
		processFn: func(context.Context, services.WebhookEventCommand) error {
			processed = true
			return nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(verifier, svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if processed {
		t.Fatalf("unverified payload must never reach the dispatcher")
	}
}

func TestWebhookVerifiedEventIsAcked(t *testing.T) {
	verifier := &stubWebhookVerifier{
		verifyFn: func(payload []byte, _ string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{
				ID:     "evt_1",
				Type:   "payment_intent.succeeded",
				Object: json.RawMessage(`{"id":"pi_123"}`),
			}, nil
		},
	}
	var captured services.WebhookEventCommand
	svc := &stubWebhookService{
		processFn: func(_ context.Context, cmd services.WebhookEventCommand) error {
			captured = cmd
			return nil
		},
	}
	router := newWebhookRouter(NewWebhookHandlers(verifier, svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.EventID != "evt_1" || captured.Type != "payment_intent.succeeded" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if !strings.Contains(rec.Body.String(), "received") {
		t.Fatalf("expected ack payload, got %s", rec.Body.String())
	}
}

func TestWebhookProcessingFailureStillAcked(t *testing.T) {
	verifier := &stubWebhookVerifier{
		verifyFn: func([]byte, string) (payments.WebhookEvent, error) {
			return payments.WebhookEvent{ID: "evt_1", Type: "payment_intent.succeeded", Object: json.RawMessage(`{}`)}, nil
		},
	}
	svc := &stubWebhookService{
		processFn: func(context.Context, services.WebhookEventCommand) error {
			return errors.New("repository unavailable")
		},
	}
	var logged []string
	logger := func(_ context.Context, event string, _ map[string]any) {
		logged = append(logged, event)
	}
	router := newWebhookRouter(NewWebhookHandlers(verifier, svc, logger))

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{"id":"evt_1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("verified events must be acked, got %d", rec.Code)
	}
	if len(logged) != 1 || logged[0] != "webhook.event.process.failed" {
		t.Fatalf("expected failure log, got %v", logged)
	}
}

func TestWebhookWithoutCollaboratorsIsUnavailable(t *testing.T) {
	router := newWebhookRouter(NewWebhookHandlers(nil, nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
