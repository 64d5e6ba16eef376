package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/payments"
)

func testCatalogProducts() map[string]domain.Product {
	return map[string]domain.Product{
		"prod_ring": {
			ID:     "prod_ring",
			Name:   "Ashgrove Ring",
			Active: true,
			Variations: []domain.ProductVariation{
				{
					Color:     "gold",
					Price:     100.00,
					Materials: []string{"gold"},
					Stock:     domain.SizedStock{Sizes: []domain.SizeStock{{Size: "7", Stock: 3}}},
					Active:    true,
				},
			},
		},
		"prod_band": {
			ID:     "prod_band",
			Name:   "Ashgrove Band",
			Active: true,
			Variations: []domain.ProductVariation{
				{
					Color:  "silver",
					Price:  50.00,
					Stock:  domain.FlatStock{Stock: 10},
					Active: true,
				},
			},
		},
	}
}

func testProductRepo() *stubProductRepo {
	catalog := testCatalogProducts()
	return &stubProductRepo{
		findFn: func(_ context.Context, id string) (domain.Product, error) {
			product, ok := catalog[id]
			if !ok {
				return domain.Product{}, notFoundRepoError{}
			}
			return product, nil
		},
	}
}

func testIntentCommand() CreateIntentCommand {
	size := "7"
	return CreateIntentCommand{
		Amount:        21000,
		Currency:      "usd",
		CustomerEmail: "Jane@Example.com",
		CustomerName:  "Jane Doe",
		Shipping: ShippingAddress{
			Name:    "Jane Doe",
			Line1:   "1 Main St",
			City:    "Springfield",
			Country: "US",
		},
		Items: []OrderItemInput{
			{ProductID: "prod_ring", Size: &size, Quantity: 1},
			{ProductID: "prod_band", Quantity: 2},
		},
	}
}

func newTestPaymentService(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.Orders == nil {
		var last domain.Order
		deps.Orders = &stubOrderRepo{
			insertFn: func(_ context.Context, order domain.Order) error {
				last = order
				return nil
			},
			findFn: func(context.Context, string) (domain.Order, error) {
				return last, nil
			},
		}
	}
	if deps.Products == nil {
		deps.Products = testProductRepo()
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepo{
			nextFn: func(context.Context, string, int64) (int64, error) { return 42, nil },
		}
	}
	if deps.Provider == nil {
		deps.Provider = &stubPaymentProvider{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func TestCreateIntentComputesTotalsAndPersistsBeforeProcessor(t *testing.T) {
	var inserted, updated *domain.Order
	var intentReq payments.IntentRequest
	intentCalled := false

	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			if intentCalled {
				t.Fatalf("order must be persisted before the processor call")
			}
			o := order
			inserted = &o
			return nil
		},
		findFn: func(context.Context, string) (domain.Order, error) {
			if inserted == nil {
				return domain.Order{}, notFoundRepoError{}
			}
			return *inserted, nil
		},
		updateFn: func(_ context.Context, order domain.Order) error {
			o := order
			updated = &o
			return nil
		},
	}
	provider := &stubPaymentProvider{
		intentFn: func(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
			intentCalled = true
			intentReq = req
			return payments.Intent{ID: "pi_123", ClientSecret: "pi_123_secret", Status: payments.StatusPending, Amount: req.Amount, Currency: req.Currency}, nil
		},
	}

	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider})

	result, err := svc.CreateIntent(context.Background(), testIntentCommand())
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if inserted == nil {
		t.Fatalf("expected pending order persisted")
	}
	if inserted.Subtotal != 200.00 || inserted.Tax != 10.00 || inserted.Total != 210.00 {
		t.Fatalf("unexpected totals: %+v", inserted)
	}
	if inserted.Payment.Amount != 21000 {
		t.Fatalf("expected 21000 minor units, got %d", inserted.Payment.Amount)
	}
	if inserted.Status != domain.OrderStatusPending || inserted.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending order and payment, got %q/%q", inserted.Status, inserted.Payment.Status)
	}
	if inserted.Payment.TransactionID != nil {
		t.Fatalf("transaction id must not be set before intent creation")
	}
	if !strings.HasPrefix(inserted.OrderNumber, "ORD-20250601-") {
		t.Fatalf("unexpected order number %q", inserted.OrderNumber)
	}

	if intentReq.Metadata["orderId"] != inserted.ID {
		t.Fatalf("expected order id metadata, got %v", intentReq.Metadata)
	}
	if intentReq.Metadata["orderNumber"] != inserted.OrderNumber {
		t.Fatalf("expected order number metadata")
	}
	if intentReq.Metadata["customerEmail"] != "jane@example.com" {
		t.Fatalf("expected normalized email metadata, got %v", intentReq.Metadata)
	}

	if updated == nil || updated.Payment.TransactionID == nil || *updated.Payment.TransactionID != "pi_123" {
		t.Fatalf("expected transaction id attached after intent creation")
	}

	if result.ClientSecret != "pi_123_secret" || result.Amount != 21000 || result.Currency != "USD" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateIntentToleratesOneMinorUnit(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})
	cmd := testIntentCommand()
	cmd.Amount = 21001

	if _, err := svc.CreateIntent(context.Background(), cmd); err != nil {
		t.Fatalf("expected 1 minor unit tolerance, got %v", err)
	}
}

func TestCreateIntentRejectsAmountMismatch(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})
	cmd := testIntentCommand()
	cmd.Amount = 21500

	if _, err := svc.CreateIntent(context.Background(), cmd); !errors.Is(err, ErrPaymentAmountMismatch) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}
}

func TestCreateIntentProcessorFailureLeavesPendingOrder(t *testing.T) {
	updateCalled := false
	orders := &stubOrderRepo{
		updateFn: func(context.Context, domain.Order) error {
			updateCalled = true
			return nil
		},
	}
	provider := &stubPaymentProvider{
		intentFn: func(context.Context, payments.IntentRequest) (payments.Intent, error) {
			return payments.Intent{}, errors.New("stripe is down")
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider})

	_, err := svc.CreateIntent(context.Background(), testIntentCommand())
	if !errors.Is(err, ErrPaymentSetupFailed) {
		t.Fatalf("expected setup failure, got %v", err)
	}
	if updateCalled {
		t.Fatalf("order must keep no transaction id after processor failure")
	}
}

func TestCreateIntentRejectsUnknownProduct(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})
	cmd := testIntentCommand()
	cmd.Items = []OrderItemInput{{ProductID: "prod_missing", Quantity: 1}}

	if _, err := svc.CreateIntent(context.Background(), cmd); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateIntentRejectsUnknownSize(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})
	cmd := testIntentCommand()
	size := "13"
	cmd.Items = []OrderItemInput{{ProductID: "prod_ring", Size: &size, Quantity: 1}}
	cmd.Amount = 10500

	if _, err := svc.CreateIntent(context.Background(), cmd); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input for unknown size, got %v", err)
	}
}

func TestPaymentStatusReadsThrough(t *testing.T) {
	orders := &stubOrderRepo{
		findTxnFn: func(_ context.Context, txn string) (domain.Order, error) {
			order := testOrder()
			order.Payment.TransactionID = valuePtr(txn)
			return order, nil
		},
	}
	provider := &stubPaymentProvider{
		lookupFn: func(_ context.Context, req payments.LookupRequest) (payments.PaymentDetails, error) {
			return payments.PaymentDetails{
				IntentID: req.IntentID,
				Status:   payments.StatusSucceeded,
				Amount:   21000,
				Currency: "USD",
			}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider})

	result, err := svc.PaymentStatus(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("payment status: %v", err)
	}
	if result.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", result.Status)
	}
	if result.OrderID != "ord_1" || result.OrderNumber != "ORD-20250601-000042" {
		t.Fatalf("unexpected order linkage: %+v", result)
	}
}

func TestPaymentStatusUnknownTransaction(t *testing.T) {
	orders := &stubOrderRepo{
		findTxnFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, notFoundRepoError{}
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	if _, err := svc.PaymentStatus(context.Background(), "pi_missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestRefundCancelsOrderAndRecordsAmount(t *testing.T) {
	paid := testOrder()
	paid.Status = domain.OrderStatusConfirmed
	paid.Payment.Status = domain.PaymentStatusSucceeded
	paid.Payment.TransactionID = valuePtr("pi_123")

	var updated domain.Order
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return paid, nil
		},
		updateFn: func(_ context.Context, order domain.Order) error {
			updated = order
			return nil
		},
	}
	provider := &stubPaymentProvider{
		refundFn: func(_ context.Context, req payments.RefundRequest) (payments.Refund, error) {
			if req.IntentID != "pi_123" {
				t.Fatalf("unexpected intent id %q", req.IntentID)
			}
			if req.Amount == nil || *req.Amount != 5000 {
				t.Fatalf("expected partial amount 5000, got %v", req.Amount)
			}
			return payments.Refund{ID: "re_1", IntentID: req.IntentID, Amount: 5000, Status: "succeeded"}, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider, Events: events})

	amount := 50.00
	result, err := svc.Refund(context.Background(), RefundCommand{
		OrderID: "ord_1",
		Amount:  &amount,
		Reason:  "damaged item",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.RefundID != "re_1" || result.Amount != 50.00 || result.Status != "succeeded" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if updated.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected order canceled, got %q", updated.Status)
	}
	if updated.Payment.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment, got %q", updated.Payment.Status)
	}
	if updated.Payment.RefundAmount == nil || *updated.Payment.RefundAmount != 50.00 {
		t.Fatalf("expected refund amount recorded, got %v", updated.Payment.RefundAmount)
	}
	if updated.Payment.RefundedAt == nil {
		t.Fatalf("expected refundedAt set")
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one event, got %d", len(events.events))
	}
}

func TestRefundResolvesOrderByTransactionID(t *testing.T) {
	paid := testOrder()
	paid.Status = domain.OrderStatusConfirmed
	paid.Payment.Status = domain.PaymentStatusSucceeded
	paid.Payment.TransactionID = valuePtr("pi_123")

	var lookedUp string
	var updated domain.Order
	orders := &stubOrderRepo{
		findTxnFn: func(_ context.Context, transactionID string) (domain.Order, error) {
			lookedUp = transactionID
			return paid, nil
		},
		findFn: func(context.Context, string) (domain.Order, error) {
			return paid, nil
		},
		updateFn: func(_ context.Context, order domain.Order) error {
			updated = order
			return nil
		},
	}
	provider := &stubPaymentProvider{
		refundFn: func(_ context.Context, req payments.RefundRequest) (payments.Refund, error) {
			return payments.Refund{ID: "re_2", IntentID: req.IntentID, Amount: 21000, Status: "succeeded"}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Provider: provider})

	result, err := svc.Refund(context.Background(), RefundCommand{TransactionID: "pi_123"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if lookedUp != "pi_123" {
		t.Fatalf("expected lookup by transaction id, got %q", lookedUp)
	}
	if result.RefundID != "re_2" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if updated.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected order canceled, got %q", updated.Status)
	}
}

func TestRefundRequiresTransactionOrOrderID(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})
	if _, err := svc.Refund(context.Background(), RefundCommand{}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRefundRejectsUnpaidOrder(t *testing.T) {
	pending := testOrder()
	pending.Payment.TransactionID = valuePtr("pi_123")
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return pending, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	if _, err := svc.Refund(context.Background(), RefundCommand{OrderID: "ord_1"}); !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRefundRejectsAmountAboveCharge(t *testing.T) {
	paid := testOrder()
	paid.Payment.Status = domain.PaymentStatusSucceeded
	paid.Payment.TransactionID = valuePtr("pi_123")
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return paid, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	amount := 500.00
	if _, err := svc.Refund(context.Background(), RefundCommand{OrderID: "ord_1", Amount: &amount}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
