package services

import (
	"context"
	"errors"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/payments"
	"github.com/ashgrove-goods/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn     func(context.Context, domain.Order) error
	updateFn     func(context.Context, domain.Order) error
	findFn       func(context.Context, string) (domain.Order, error)
	findNumberFn func(context.Context, string) (domain.Order, error)
	findTxnFn    func(context.Context, string) (domain.Order, error)
	listFn       func(context.Context, repositories.OrderListFilter) (repositories.OrderPage, error)
	statsFn      func(context.Context, domain.StatsRange) (domain.OrderStats, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findNumberFn != nil {
		return s.findNumberFn(ctx, orderNumber)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error) {
	if s.findTxnFn != nil {
		return s.findTxnFn(ctx, transactionID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ListByEmail(ctx context.Context, filter repositories.OrderListFilter) (repositories.OrderPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return repositories.OrderPage{}, nil
}

func (s *stubOrderRepo) Stats(ctx context.Context, window domain.StatsRange) (domain.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, window)
	}
	return domain.OrderStats{}, nil
}

type stubCustomerRepo struct {
	insertFn func(context.Context, domain.Customer) error
	updateFn func(context.Context, domain.Customer) error
	findFn   func(context.Context, string) (domain.Customer, error)
}

func (s *stubCustomerRepo) Insert(ctx context.Context, customer domain.Customer) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, customer domain.Customer) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if s.findFn != nil {
		return s.findFn(ctx, email)
	}
	return domain.Customer{}, errors.New("not implemented")
}

type stubProductRepo struct {
	findFn func(context.Context, string) (domain.Product, error)
	listFn func(context.Context, repositories.ProductFilter) (repositories.ProductPage, error)
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductFilter) (repositories.ProductPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return repositories.ProductPage{}, nil
}

type stubCategoryRepo struct {
	findFn func(context.Context, string) (domain.Category, error)
	listFn func(context.Context) ([]domain.Category, error)
}

func (s *stubCategoryRepo) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if s.findFn != nil {
		return s.findFn(ctx, categoryID)
	}
	return domain.Category{}, errors.New("not implemented")
}

func (s *stubCategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type stubPaymentProvider struct {
	ensureFn func(context.Context, payments.CustomerRequest) (payments.CustomerProfile, error)
	intentFn func(context.Context, payments.IntentRequest) (payments.Intent, error)
	refundFn func(context.Context, payments.RefundRequest) (payments.Refund, error)
	lookupFn func(context.Context, payments.LookupRequest) (payments.PaymentDetails, error)
}

func (s *stubPaymentProvider) EnsureCustomer(ctx context.Context, req payments.CustomerRequest) (payments.CustomerProfile, error) {
	if s.ensureFn != nil {
		return s.ensureFn(ctx, req)
	}
	return payments.CustomerProfile{ID: "cus_stub"}, nil
}

func (s *stubPaymentProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if s.intentFn != nil {
		return s.intentFn(ctx, req)
	}
	return payments.Intent{ID: "pi_stub", ClientSecret: "pi_stub_secret", Status: payments.StatusPending}, nil
}

func (s *stubPaymentProvider) Refund(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, req)
	}
	return payments.Refund{}, errors.New("not implemented")
}

func (s *stubPaymentProvider) LookupPayment(ctx context.Context, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if s.lookupFn != nil {
		return s.lookupFn(ctx, req)
	}
	return payments.PaymentDetails{}, errors.New("not implemented")
}

type stubRefundInitiator struct {
	refundFn func(context.Context, RefundCommand) (RefundResult, error)
}

func (s *stubRefundInitiator) Refund(ctx context.Context, cmd RefundCommand) (RefundResult, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return RefundResult{}, errors.New("not implemented")
}

type captureOrderEvents struct {
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return nil
}

type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "document missing" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }
