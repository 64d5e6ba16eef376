package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78/webhook"
)

// ErrInvalidWebhookSignature is returned when the event signature does not
// verify against the configured endpoint secret.
var ErrInvalidWebhookSignature = errors.New("payments: invalid webhook signature")

// WebhookEvent is the verified PSP event handed to the dispatcher. Object
// holds the raw JSON of the event payload object.
type WebhookEvent struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// WebhookVerifier authenticates raw webhook payloads.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (WebhookEvent, error)
}

// StripeWebhookVerifier verifies Stripe event signatures with the endpoint
// signing secret.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier constructs a verifier for the given endpoint secret.
func NewStripeWebhookVerifier(secret string) (*StripeWebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	return &StripeWebhookVerifier{secret: secret}, nil
}

// Verify checks the Stripe-Signature header against the raw body and returns
// the parsed event.
func (v *StripeWebhookVerifier) Verify(payload []byte, signature string) (WebhookEvent, error) {
	if v == nil {
		return WebhookEvent{}, errors.New("stripe: verifier is nil")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return WebhookEvent{
		ID:     event.ID,
		Type:   string(event.Type),
		Object: event.Data.Raw,
	}, nil
}
