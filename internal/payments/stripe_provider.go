package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/customer"

	"github.com/ashgrove-goods/api/internal/platform/textutil"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeCustomerAPI interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
	ListByEmail(params *stripe.CustomerListParams) ([]*stripe.Customer, error)
}

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	customers stripeCustomerAPI
	intents   stripePaymentIntentAPI
	refunds   stripeRefundAPI
}

// customerClientAdapter flattens the SDK list iterator so the narrow
// interface stays stubbable in tests.
type customerClientAdapter struct {
	client *customer.Client
}

func (a customerClientAdapter) New(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return a.client.New(params)
}

func (a customerClientAdapter) ListByEmail(params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	iter := a.client.List(params)
	var out []*stripe.Customer
	for iter.Next() {
		out = append(out, iter.Customer())
	}
	return out, iter.Err()
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			customers: customerClientAdapter{client: sc.Customers},
			intents:   sc.PaymentIntents,
			refunds:   sc.Refunds,
		}
	}

	if clients.customers == nil || clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// EnsureCustomer finds an existing Stripe customer by email or creates one.
func (p *StripeProvider) EnsureCustomer(ctx context.Context, req CustomerRequest) (CustomerProfile, error) {
	if p == nil {
		return CustomerProfile{}, errors.New("stripe: provider is nil")
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return CustomerProfile{}, errors.New("stripe: customer email is required")
	}

	listParams := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	if p.account != "" {
		listParams.SetStripeAccount(p.account)
	}
	existing, err := p.api.customers.ListByEmail(listParams)
	if err != nil {
		return CustomerProfile{}, fmt.Errorf("stripe: list customers: %w", err)
	}
	if len(existing) > 0 {
		return CustomerProfile{ID: existing[0].ID, Email: email}, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		params.Name = stripe.String(name)
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		params.Phone = stripe.String(phone)
	}
	created, err := p.api.customers.New(params)
	if err != nil {
		return CustomerProfile{}, fmt.Errorf("stripe: create customer: %w", err)
	}

	p.logger(ctx, "payments.stripe.customer.created", map[string]any{
		"customerId": created.ID,
	})

	return CustomerProfile{ID: created.ID, Email: email}, nil
}

// CreateIntent opens a Stripe Payment Intent for the order amount.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, errors.New("stripe: intent amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if md := textutil.NormalizeStringMap(req.Metadata); md != nil {
		params.Metadata = md
	}
	if req.Shipping != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name: stripe.String(req.Shipping.Name),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(req.Shipping.Address.Line1),
				City:       stripe.String(req.Shipping.Address.City),
				Country:    stripe.String(req.Shipping.Address.Country),
				Line2:      optionalString(req.Shipping.Address.Line2),
				State:      optionalString(req.Shipping.Address.State),
				PostalCode: optionalString(req.Shipping.Address.PostalCode),
			},
		}
		if phone := strings.TrimSpace(req.Shipping.Phone); phone != "" {
			params.Shipping.Phone = stripe.String(phone)
		}
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw["payment_intent"] = intent
	}

	return Intent{
		ID:           intent.ID,
		Provider:     "stripe",
		ClientSecret: intent.ClientSecret,
		Status:       stripeIntentStatus(intent.Status),
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Raw:          raw,
	}, nil
}

// Refund creates a refund for the provided Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	if p == nil {
		return Refund{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if md := textutil.NormalizeStringMap(req.Metadata); md != nil {
		params.Metadata = md
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return Refund{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.IntentID,
		"refundId":      refund.ID,
		"amount":        refund.Amount,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(refund); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw["refund"] = refund
	}

	return Refund{
		ID:       refund.ID,
		IntentID: req.IntentID,
		Amount:   refund.Amount,
		Status:   string(refund.Status),
		Raw:      raw,
	}, nil
}

// LookupPayment retrieves a Stripe Payment Intent.
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(req.IntentID, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripePaymentDetails(intent), nil
}

func stripeIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusProcessing:
		return StatusProcessing
	default:
		return StatusPending
	}
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := stripeIntentStatus(intent.Status)

	var capturedAt *time.Time
	var refundedAt *time.Time
	captured := intent.Status == stripe.PaymentIntentStatusSucceeded

	if charge := intent.LatestCharge; charge != nil {
		if charge.Paid || charge.Captured {
			t := time.Unix(charge.Created, 0).UTC()
			capturedAt = &t
			captured = true
		}
		if charge.Refunded || charge.AmountRefunded > 0 {
			t := time.Unix(charge.Created, 0).UTC()
			refundedAt = &t
			if charge.AmountRefunded >= charge.Amount && charge.Amount > 0 {
				status = StatusRefunded
			}
		}
		if charge.Status == "failed" && status == StatusPending {
			status = StatusFailed
		}
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw["payment_intent"] = intent
	}

	return PaymentDetails{
		Provider:   "stripe",
		IntentID:   intent.ID,
		Status:     status,
		Amount:     intent.Amount,
		Currency:   currency,
		Captured:   captured,
		CapturedAt: capturedAt,
		RefundedAt: refundedAt,
		Raw:        raw,
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return stripe.String(value)
}
