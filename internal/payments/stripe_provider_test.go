package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubCustomerAPI struct {
	newFn  func(params *stripe.CustomerParams) (*stripe.Customer, error)
	listFn func(params *stripe.CustomerListParams) ([]*stripe.Customer, error)
}

func (s *stubCustomerAPI) New(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return s.newFn(params)
}

func (s *stubCustomerAPI) ListByEmail(params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	return s.listFn(params)
}

type stubIntentAPI struct {
	newFn func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFn(params)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

type stubRefundAPI struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	return s.newFn(params)
}

func newTestProvider(t *testing.T, clients stripeClients) *StripeProvider {
	t.Helper()
	if clients.customers == nil {
		clients.customers = &stubCustomerAPI{
			newFn:  func(*stripe.CustomerParams) (*stripe.Customer, error) { return nil, errors.New("unexpected") },
			listFn: func(*stripe.CustomerListParams) ([]*stripe.Customer, error) { return nil, errors.New("unexpected") },
		}
	}
	if clients.intents == nil {
		clients.intents = &stubIntentAPI{
			newFn: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) { return nil, errors.New("unexpected") },
			getFn: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				return nil, errors.New("unexpected")
			},
		}
	}
	if clients.refunds == nil {
		clients.refunds = &stubRefundAPI{
			newFn: func(*stripe.RefundParams) (*stripe.Refund, error) { return nil, errors.New("unexpected") },
		}
	}
	p, err := NewStripeProvider(StripeProviderConfig{
		Clients: &clients,
		Clock:   func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestEnsureCustomerReusesExisting(t *testing.T) {
	created := false
	p := newTestProvider(t, stripeClients{
		customers: &stubCustomerAPI{
			listFn: func(params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
				if params.Email == nil || *params.Email != "jane@example.com" {
					t.Fatalf("unexpected list email: %v", params.Email)
				}
				return []*stripe.Customer{{ID: "cus_existing"}}, nil
			},
			newFn: func(*stripe.CustomerParams) (*stripe.Customer, error) {
				created = true
				return &stripe.Customer{ID: "cus_new"}, nil
			},
		},
	})

	profile, err := p.EnsureCustomer(context.Background(), CustomerRequest{Email: "Jane@Example.com"})
	if err != nil {
		t.Fatalf("ensure customer: %v", err)
	}
	if profile.ID != "cus_existing" {
		t.Fatalf("expected existing customer, got %q", profile.ID)
	}
	if created {
		t.Fatalf("expected no customer creation")
	}
}

func TestEnsureCustomerCreatesWhenMissing(t *testing.T) {
	p := newTestProvider(t, stripeClients{
		customers: &stubCustomerAPI{
			listFn: func(*stripe.CustomerListParams) ([]*stripe.Customer, error) {
				return nil, nil
			},
			newFn: func(params *stripe.CustomerParams) (*stripe.Customer, error) {
				if params.Name == nil || *params.Name != "Jane Doe" {
					t.Fatalf("expected name on create params")
				}
				return &stripe.Customer{ID: "cus_new"}, nil
			},
		},
	})

	profile, err := p.EnsureCustomer(context.Background(), CustomerRequest{Email: "jane@example.com", Name: "Jane Doe"})
	if err != nil {
		t.Fatalf("ensure customer: %v", err)
	}
	if profile.ID != "cus_new" {
		t.Fatalf("expected created customer, got %q", profile.ID)
	}
}

func TestCreateIntentMapsRequest(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	p := newTestProvider(t, stripeClients{
		intents: &stubIntentAPI{
			newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				captured = params
				return &stripe.PaymentIntent{
					ID:           "pi_123",
					ClientSecret: "pi_123_secret",
					Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
					Amount:       21000,
					Currency:     "usd",
				}, nil
			},
		},
	})

	intent, err := p.CreateIntent(context.Background(), IntentRequest{
		Amount:         21000,
		Currency:       "USD",
		CustomerID:     "cus_1",
		ReceiptEmail:   "jane@example.com",
		IdempotencyKey: "idem-1",
		Metadata:       map[string]string{"orderId": "ord_1"},
		Shipping: &ShippingInfo{
			Name: "Jane Doe",
			Address: ShippingAddress{
				Line1:   "1 Main St",
				City:    "Springfield",
				Country: "US",
			},
		},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("expected pending status, got %q", intent.Status)
	}
	if captured.Amount == nil || *captured.Amount != 21000 {
		t.Fatalf("expected amount forwarded")
	}
	if captured.Currency == nil || *captured.Currency != "usd" {
		t.Fatalf("expected lowercase currency, got %v", captured.Currency)
	}
	if captured.Metadata["orderId"] != "ord_1" {
		t.Fatalf("expected order metadata forwarded")
	}
	if captured.Shipping == nil || captured.Shipping.Address == nil || *captured.Shipping.Address.Line1 != "1 Main St" {
		t.Fatalf("expected shipping address forwarded")
	}
	if captured.AutomaticPaymentMethods == nil || captured.AutomaticPaymentMethods.Enabled == nil || !*captured.AutomaticPaymentMethods.Enabled {
		t.Fatalf("expected automatic payment methods enabled")
	}
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	p := newTestProvider(t, stripeClients{})
	if _, err := p.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "USD"}); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestRefundReturnsNormalizedResult(t *testing.T) {
	p := newTestProvider(t, stripeClients{
		refunds: &stubRefundAPI{
			newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
				if params.PaymentIntent == nil || *params.PaymentIntent != "pi_123" {
					t.Fatalf("expected intent id on refund params")
				}
				if params.Reason == nil || *params.Reason != string(stripe.RefundReasonRequestedByCustomer) {
					t.Fatalf("expected mapped refund reason")
				}
				return &stripe.Refund{ID: "re_1", Amount: 21000, Status: stripe.RefundStatusSucceeded}, nil
			},
		},
	})

	refund, err := p.Refund(context.Background(), RefundRequest{
		IntentID: "pi_123",
		Reason:   "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.ID != "re_1" || refund.Amount != 21000 || refund.Status != "succeeded" {
		t.Fatalf("unexpected refund: %+v", refund)
	}
	if refund.IntentID != "pi_123" {
		t.Fatalf("expected intent id carried through")
	}
}

func TestLookupPaymentDetectsFullRefund(t *testing.T) {
	p := newTestProvider(t, stripeClients{
		intents: &stubIntentAPI{
			getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				return &stripe.PaymentIntent{
					ID:       id,
					Status:   stripe.PaymentIntentStatusSucceeded,
					Amount:   21000,
					Currency: "usd",
					LatestCharge: &stripe.Charge{
						Paid:           true,
						Captured:       true,
						Refunded:       true,
						Amount:         21000,
						AmountRefunded: 21000,
						Created:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix(),
					},
				}, nil
			},
		},
	})

	details, err := p.LookupPayment(context.Background(), LookupRequest{IntentID: "pi_123"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if details.Status != StatusRefunded {
		t.Fatalf("expected refunded status, got %q", details.Status)
	}
	if details.RefundedAt == nil {
		t.Fatalf("expected refund timestamp")
	}
	if !details.Captured || details.CapturedAt == nil {
		t.Fatalf("expected capture details")
	}
	if details.Currency != "USD" {
		t.Fatalf("expected uppercase currency, got %q", details.Currency)
	}
}

func TestNewStripeProviderRequiresKeyOrClients(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key or clients")
	}
}
