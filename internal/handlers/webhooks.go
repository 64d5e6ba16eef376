package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashgrove-goods/api/internal/payments"
	"github.com/ashgrove-goods/api/internal/platform/httpx"
	"github.com/ashgrove-goods/api/internal/services"
)

// Stripe tops out at 64KB webhook payloads; anything beyond that is noise.
const maxWebhookBody = 64 * 1024

// WebhookHandlers receives processor callbacks. Signature verification is the
// only authentication on this surface.
type WebhookHandlers struct {
	verifier payments.WebhookVerifier
	webhooks services.WebhookService
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(verifier payments.WebhookVerifier, webhooks services.WebhookService, logger func(ctx context.Context, event string, fields map[string]any)) *WebhookHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{
		verifier: verifier,
		webhooks: webhooks,
		logger:   logger,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil || h.webhooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook receiver unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return
	}
	if int64(len(payload)) > maxWebhookBody {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
		return
	}

	// The signature covers the raw body; verification happens before any
	// business field is parsed.
	event, err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidWebhookSignature) {
			h.logger(ctx, "webhook.signature.invalid", map[string]any{
				"error": err.Error(),
			})
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to verify webhook", http.StatusInternalServerError))
		return
	}

	err = h.webhooks.ProcessEvent(ctx, services.WebhookEventCommand{
		EventID: event.ID,
		Type:    event.Type,
		Object:  event.Object,
	})
	if err != nil {
		// A verified event that fails on our side is logged and acked. A
		// non-2xx answer would put the delivery on the processor's retry
		// schedule, and a malformed or unprocessable event never improves
		// on redelivery.
		h.logger(ctx, "webhook.event.process.failed", map[string]any{
			"eventId": event.ID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
