package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashgrove-goods/api/internal/platform/auth"
	"github.com/ashgrove-goods/api/internal/platform/httpx"
	"github.com/ashgrove-goods/api/internal/services"
)

const (
	maxPaymentRequestBody = 16 * 1024

	createIntentRateLimit  = 20
	createIntentRateWindow = time.Minute
)

// PaymentHandlers exposes the checkout payment endpoints. Intent creation is
// open to the storefront; refunds require an admin identity.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	limiter  rateLimiter
}

// PaymentHandlerOption customises payment handler construction.
type PaymentHandlerOption func(*PaymentHandlers)

// WithPaymentRateLimiter overrides the per-client limiter on intent creation.
func WithPaymentRateLimiter(limiter rateLimiter) PaymentHandlerOption {
	return func(h *PaymentHandlers) {
		h.limiter = limiter
	}
}

// WithPaymentRateLimit rebuilds the intent limiter with the given budget per
// window. A non-positive limit disables throttling.
func WithPaymentRateLimit(limit int, window time.Duration) PaymentHandlerOption {
	return func(h *PaymentHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentHandlerOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
		limiter:  newSimpleRateLimiter(createIntentRateLimit, createIntentRateWindow, nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/create-intent", h.createIntent)
	r.Get("/status/{transactionID}", h.paymentStatus)

	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	admin.Post("/refund", h.refund)
}

type shippingDetailsRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address struct {
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postalCode"`
		Country    string `json:"country"`
	} `json:"address"`
}

type intentItemRequest struct {
	ProductID string  `json:"productId"`
	Size      *string `json:"size"`
	Color     *string `json:"color"`
	Quantity  int     `json:"quantity"`
}

type createIntentRequest struct {
	Amount          int64                  `json:"amount"`
	Currency        string                 `json:"currency"`
	CustomerEmail   string                 `json:"customerEmail"`
	CustomerName    string                 `json:"customerName"`
	CustomerPhone   string                 `json:"customerPhone"`
	ShippingDetails shippingDetailsRequest `json:"shippingDetails"`
	Items           []intentItemRequest    `json:"items"`
	Notes           *string                `json:"notes"`
}

type createIntentResponse struct {
	ClientSecret  string `json:"clientSecret"`
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

type paymentStatusResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	OrderStatus   string `json:"orderStatus"`
}

type refundRequest struct {
	TransactionID string   `json:"transactionId"`
	OrderID       string   `json:"orderId"`
	Amount        *float64 `json:"amount"`
	Reason        string   `json:"reason"`
}

type refundResponse struct {
	RefundID string        `json:"refundId"`
	Amount   float64       `json:"amount"`
	Status   string        `json:"status"`
	Order    orderResponse `json:"order"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment attempts; retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxPaymentRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req createIntentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			ProductID: item.ProductID,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
		})
	}

	shipping := services.ShippingAddress{
		Name:    req.ShippingDetails.Name,
		Line1:   req.ShippingDetails.Address.Line1,
		City:    req.ShippingDetails.Address.City,
		Country: req.ShippingDetails.Address.Country,
	}
	if v := strings.TrimSpace(req.ShippingDetails.Phone); v != "" {
		shipping.Phone = &v
	}
	if v := strings.TrimSpace(req.ShippingDetails.Address.Line2); v != "" {
		shipping.Line2 = &v
	}
	if v := strings.TrimSpace(req.ShippingDetails.Address.State); v != "" {
		shipping.State = &v
	}
	if v := strings.TrimSpace(req.ShippingDetails.Address.PostalCode); v != "" {
		shipping.PostalCode = &v
	}

	cmd := services.CreateIntentCommand{
		Amount:         req.Amount,
		Currency:       req.Currency,
		CustomerEmail:  req.CustomerEmail,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Shipping:       shipping,
		Items:          items,
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}

	result, err := h.payments.CreateIntent(ctx, cmd)
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, createIntentResponse{
		ClientSecret:  result.ClientSecret,
		TransactionID: result.TransactionID,
		OrderID:       result.OrderID,
		OrderNumber:   result.OrderNumber,
		Amount:        result.Amount,
		Currency:      result.Currency,
	})
}

func (h *PaymentHandlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.payments.PaymentStatus(ctx, chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentStatusResponse{
		TransactionID: result.TransactionID,
		Status:        string(result.Status),
		Amount:        result.Amount,
		Currency:      result.Currency,
		OrderID:       result.OrderID,
		OrderNumber:   result.OrderNumber,
		OrderStatus:   string(result.OrderStatus),
	})
}

func (h *PaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxPaymentRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req refundRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.TransactionID) == "" && strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transactionId or orderId is required", http.StatusBadRequest))
		return
	}

	result, err := h.payments.Refund(ctx, services.RefundCommand{
		TransactionID: req.TransactionID,
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Reason:        req.Reason,
		ActorID:       actorFromContext(ctx),
	})
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, refundResponse{
		RefundID: result.RefundID,
		Amount:   result.Amount,
		Status:   result.Status,
		Order:    orderResponseFrom(result.Order),
	})
}

func (h *PaymentHandlers) writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", "declared amount disagrees with computed total", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound), errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("payment_invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentSetupFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_setup_failed", "payment could not be set up", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
