package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashgrove-goods/api/internal/services"
)

func newPaymentRouter(h *PaymentHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestCreateIntentMapsRequestBody(t *testing.T) {
	var captured services.CreateIntentCommand
	svc := &stubPaymentService{
		createIntentFn: func(_ context.Context, cmd services.CreateIntentCommand) (services.IntentResult, error) {
			captured = cmd
			return services.IntentResult{
				ClientSecret:  "pi_123_secret",
				TransactionID: "pi_123",
				OrderID:       "ord_1",
				OrderNumber:   "ORD-20250601-000001",
				Amount:        cmd.Amount,
				Currency:      "USD",
			}, nil
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc, WithPaymentRateLimiter(allowAllLimiter{})))

	body := `{
		"amount": 21000,
		"currency": "usd",
		"customerEmail": "jane@example.com",
		"customerName": "Jane Doe",
		"shippingDetails": {
			"name": "Jane Doe",
			"phone": "555-0100",
			"address": {"line1": "1 Main St", "city": "Springfield", "postalCode": "62704", "country": "US"}
		},
		"items": [{"productId": "prod_ring", "size": "7", "quantity": 1}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/create-intent", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "idem-1")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Amount != 21000 || captured.CustomerEmail != "jane@example.com" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.IdempotencyKey != "idem-1" {
		t.Fatalf("expected idempotency key forwarded, got %q", captured.IdempotencyKey)
	}
	if captured.Shipping.PostalCode == nil || *captured.Shipping.PostalCode != "62704" {
		t.Fatalf("expected postal code mapped, got %v", captured.Shipping.PostalCode)
	}
	if len(captured.Items) != 1 || captured.Items[0].Size == nil || *captured.Items[0].Size != "7" {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["clientSecret"] != "pi_123_secret" || resp["orderNumber"] != "ORD-20250601-000001" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestCreateIntentAmountMismatchIsBadRequest(t *testing.T) {
	svc := &stubPaymentService{
		createIntentFn: func(context.Context, services.CreateIntentCommand) (services.IntentResult, error) {
			return services.IntentResult{}, services.ErrPaymentAmountMismatch
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc, WithPaymentRateLimiter(allowAllLimiter{})))

	req := httptest.NewRequest(http.MethodPost, "/create-intent", strings.NewReader(`{"amount":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "amount_mismatch") {
		t.Fatalf("expected amount_mismatch code, got %s", rec.Body.String())
	}
}

func TestCreateIntentSetupFailureIsBadGateway(t *testing.T) {
	svc := &stubPaymentService{
		createIntentFn: func(context.Context, services.CreateIntentCommand) (services.IntentResult, error) {
			return services.IntentResult{}, services.ErrPaymentSetupFailed
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc, WithPaymentRateLimiter(allowAllLimiter{})))

	req := httptest.NewRequest(http.MethodPost, "/create-intent", strings.NewReader(`{"amount":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestCreateIntentRateLimited(t *testing.T) {
	router := newPaymentRouter(NewPaymentHandlers(nil, &stubPaymentService{}, WithPaymentRateLimiter(denyAllLimiter{})))

	req := httptest.NewRequest(http.MethodPost, "/create-intent", strings.NewReader(`{"amount":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestPaymentStatusEndpoint(t *testing.T) {
	svc := &stubPaymentService{
		statusFn: func(_ context.Context, txn string) (services.PaymentStatusResult, error) {
			return services.PaymentStatusResult{
				TransactionID: txn,
				Status:        "succeeded",
				Amount:        21000,
				Currency:      "USD",
				OrderID:       "ord_1",
				OrderNumber:   "ORD-20250601-000001",
				OrderStatus:   "confirmed",
			}, nil
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodGet, "/status/pi_123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["transactionId"] != "pi_123" || resp["orderStatus"] != "confirmed" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestPaymentStatusNotFound(t *testing.T) {
	svc := &stubPaymentService{
		statusFn: func(context.Context, string) (services.PaymentStatusResult, error) {
			return services.PaymentStatusResult{}, services.ErrPaymentNotFound
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodGet, "/status/pi_missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRefundRequiresTransactionOrOrderID(t *testing.T) {
	router := newPaymentRouter(NewPaymentHandlers(nil, &stubPaymentService{}))

	req := httptest.NewRequest(http.MethodPost, "/refund", strings.NewReader(`{"reason":"damaged"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRefundAcceptsTransactionID(t *testing.T) {
	var captured services.RefundCommand
	svc := &stubPaymentService{
		refundFn: func(_ context.Context, cmd services.RefundCommand) (services.RefundResult, error) {
			captured = cmd
			return services.RefundResult{
				RefundID: "re_2",
				Amount:   210.00,
				Status:   "succeeded",
				Order:    services.Order{ID: "ord_1", Status: "canceled"},
			}, nil
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/refund", strings.NewReader(`{"transactionId":"pi_123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.TransactionID != "pi_123" || captured.OrderID != "" {
		t.Fatalf("unexpected command: %+v", captured)
	}
}

func TestRefundInvalidStateIsBadRequest(t *testing.T) {
	svc := &stubPaymentService{
		refundFn: func(context.Context, services.RefundCommand) (services.RefundResult, error) {
			return services.RefundResult{}, services.ErrPaymentInvalidState
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/refund", strings.NewReader(`{"transactionId":"pi_123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRefundReturnsOrder(t *testing.T) {
	var captured services.RefundCommand
	svc := &stubPaymentService{
		refundFn: func(_ context.Context, cmd services.RefundCommand) (services.RefundResult, error) {
			captured = cmd
			return services.RefundResult{
				RefundID: "re_1",
				Amount:   210.00,
				Status:   "succeeded",
				Order:    services.Order{ID: "ord_1", Status: "canceled"},
			}, nil
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/refund", strings.NewReader(`{"orderId":"ord_1","reason":"damaged"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Reason != "damaged" || captured.Amount != nil {
		t.Fatalf("unexpected command: %+v", captured)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["refundId"] != "re_1" {
		t.Fatalf("unexpected response: %v", resp)
	}
}
