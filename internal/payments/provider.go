package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusProcessing indicates the PSP is processing the payment.
	StatusProcessing Status = "processing"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the payment was abandoned before capture.
	StatusCanceled Status = "canceled"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ShippingAddress carries the postal address forwarded to the PSP.
type ShippingAddress struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ShippingInfo names the recipient for PSP-side shipping records.
type ShippingInfo struct {
	Name    string
	Phone   string
	Address ShippingAddress
}

// CustomerRequest resolves or creates a PSP-side customer profile keyed by email.
type CustomerRequest struct {
	Email string
	Name  string
	Phone string
}

// CustomerProfile is the PSP-side customer record.
type CustomerProfile struct {
	ID    string
	Email string
}

// IntentRequest captures the payload required to open a payment transaction.
type IntentRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	ReceiptEmail   string
	Description    string
	Shipping       *ShippingInfo
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent represents the PSP transaction returned to the client. ClientSecret
// is the opaque handle the browser uses to complete authentication with the
// processor directly.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
	Raw          map[string]any
}

// RefundRequest defines a PSP refund attempt.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// Refund normalises the PSP refund response.
type Refund struct {
	ID       string
	IntentID string
	Amount   int64
	Status   string
	Raw      map[string]any
}

// LookupRequest returns provider specific payment details for reconciliation.
type LookupRequest struct {
	IntentID string
}

// PaymentDetails normalises PSP specific fields for storage.
type PaymentDetails struct {
	Provider   string
	IntentID   string
	Status     Status
	Amount     int64
	Currency   string
	Captured   bool
	CapturedAt *time.Time
	RefundedAt *time.Time
	Raw        map[string]any
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	EnsureCustomer(ctx context.Context, req CustomerRequest) (CustomerProfile, error)
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// EnsureCustomer delegates to the resolved provider.
func (m *Manager) EnsureCustomer(ctx context.Context, paymentCtx PaymentContext, req CustomerRequest) (CustomerProfile, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return CustomerProfile{}, err
	}
	return provider.EnsureCustomer(ctx, req)
}

// CreateIntent delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, paymentCtx PaymentContext, req IntentRequest) (Intent, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Intent{}, err
	}
	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, paymentCtx PaymentContext, req RefundRequest) (Refund, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Refund{}, err
	}
	return provider.Refund(ctx, req)
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, paymentCtx PaymentContext, req LookupRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupPayment(ctx, req)
}

// Bind fixes a PaymentContext, exposing the Manager through the plain
// Provider interface for callers that carry no routing hints.
func (m *Manager) Bind(paymentCtx PaymentContext) Provider {
	return boundProvider{manager: m, paymentCtx: paymentCtx}
}

type boundProvider struct {
	manager    *Manager
	paymentCtx PaymentContext
}

func (b boundProvider) EnsureCustomer(ctx context.Context, req CustomerRequest) (CustomerProfile, error) {
	return b.manager.EnsureCustomer(ctx, b.paymentCtx, req)
}

func (b boundProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	return b.manager.CreateIntent(ctx, b.paymentCtx, req)
}

func (b boundProvider) Refund(ctx context.Context, req RefundRequest) (Refund, error) {
	return b.manager.Refund(ctx, b.paymentCtx, req)
}

func (b boundProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	return b.manager.LookupPayment(ctx, b.paymentCtx, req)
}
