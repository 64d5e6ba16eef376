package handlers

import (
	"context"

	"github.com/ashgrove-goods/api/internal/payments"
	"github.com/ashgrove-goods/api/internal/services"
)

type stubPaymentService struct {
	createIntentFn func(context.Context, services.CreateIntentCommand) (services.IntentResult, error)
	statusFn       func(context.Context, string) (services.PaymentStatusResult, error)
	refundFn       func(context.Context, services.RefundCommand) (services.RefundResult, error)
}

func (s *stubPaymentService) CreateIntent(ctx context.Context, cmd services.CreateIntentCommand) (services.IntentResult, error) {
	if s.createIntentFn != nil {
		return s.createIntentFn(ctx, cmd)
	}
	return services.IntentResult{}, nil
}

func (s *stubPaymentService) PaymentStatus(ctx context.Context, transactionID string) (services.PaymentStatusResult, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, transactionID)
	}
	return services.PaymentStatusResult{}, nil
}

func (s *stubPaymentService) Refund(ctx context.Context, cmd services.RefundCommand) (services.RefundResult, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.RefundResult{}, nil
}

type stubOrderService struct {
	listFn         func(context.Context, services.OrderListFilter) (services.OrderPage, error)
	getFn          func(context.Context, services.OrderLookupCommand) (services.Order, error)
	getByNumberFn  func(context.Context, services.OrderNumberLookupCommand) (services.Order, error)
	cancelFn       func(context.Context, services.CancelOrderCommand) (services.Order, error)
	updateStatusFn func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	statsFn        func(context.Context, services.StatsRange) (services.OrderStats, error)
}

func (s *stubOrderService) ListCustomerOrders(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return services.OrderPage{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, cmd services.OrderLookupCommand) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, cmd services.OrderNumberLookupCommand) (services.Order, error) {
	if s.getByNumberFn != nil {
		return s.getByNumberFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Stats(ctx context.Context, window services.StatsRange) (services.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, window)
	}
	return services.OrderStats{}, nil
}

type stubWebhookService struct {
	processFn func(context.Context, services.WebhookEventCommand) error
}

func (s *stubWebhookService) ProcessEvent(ctx context.Context, cmd services.WebhookEventCommand) error {
	if s.processFn != nil {
		return s.processFn(ctx, cmd)
	}
	return nil
}

type stubCatalogService struct {
	listProductsFn   func(context.Context, services.ProductListFilter) (services.ProductListResult, error)
	getProductFn     func(context.Context, string) (services.Product, error)
	listCategoriesFn func(context.Context) ([]services.Category, error)
	getCategoryFn    func(context.Context, string) (services.Category, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (services.ProductListResult, error) {
	if s.listProductsFn != nil {
		return s.listProductsFn(ctx, filter)
	}
	return services.ProductListResult{}, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, productID)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.Category, error) {
	if s.listCategoriesFn != nil {
		return s.listCategoriesFn(ctx)
	}
	return nil, nil
}

func (s *stubCatalogService) GetCategory(ctx context.Context, categoryID string) (services.Category, error) {
	if s.getCategoryFn != nil {
		return s.getCategoryFn(ctx, categoryID)
	}
	return services.Category{}, nil
}

type stubSystemService struct {
	reportFn func(context.Context) (services.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx)
	}
	return services.SystemHealthReport{}, nil
}

type stubWebhookVerifier struct {
	verifyFn func(payload []byte, header string) (payments.WebhookEvent, error)
}

func (s *stubWebhookVerifier) Verify(payload []byte, header string) (payments.WebhookEvent, error) {
	if s.verifyFn != nil {
		return s.verifyFn(payload, header)
	}
	return payments.WebhookEvent{}, nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(string) bool { return true }

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }
