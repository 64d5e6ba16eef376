package services

import (
	"context"
	"encoding/json"
	"time"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	PageRequest        = domain.PageRequest
	PageInfo           = domain.PageInfo
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	PaymentDetails     = domain.PaymentDetails
	ShippingAddress    = domain.ShippingAddress
	VariationSnapshot  = domain.VariationSnapshot
	Customer           = domain.Customer
	CustomerAddress    = domain.CustomerAddress
	Product            = domain.Product
	Category           = domain.Category
	OrderStats         = domain.OrderStats
	StatsRange         = domain.StatsRange
	SystemHealthReport = domain.SystemHealthReport
)

// OrderListFilter narrows customer order listings.
type OrderListFilter = repositories.OrderListFilter

// OrderPage is one page of a customer's order history.
type OrderPage = repositories.OrderPage

// PaymentService bridges checkout requests to the payment processor. Creating
// an intent also creates the pending order it pays for.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (IntentResult, error)
	PaymentStatus(ctx context.Context, transactionID string) (PaymentStatusResult, error)
	Refund(ctx context.Context, cmd RefundCommand) (RefundResult, error)
}

// WebhookService applies verified processor events to order state.
type WebhookService interface {
	ProcessEvent(ctx context.Context, cmd WebhookEventCommand) error
}

// OrderService exposes customer and admin order read/write flows.
type OrderService interface {
	ListCustomerOrders(ctx context.Context, filter OrderListFilter) (OrderPage, error)
	GetOrder(ctx context.Context, cmd OrderLookupCommand) (Order, error)
	GetOrderByNumber(ctx context.Context, cmd OrderNumberLookupCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Stats(ctx context.Context, window StatsRange) (OrderStats, error)
}

// CatalogService provides the read-only product and category surface.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (ProductListResult, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, categoryID string) (Category, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// RefundInitiator is the slice of PaymentService the order service needs to
// refund a paid order during customer cancellation.
type RefundInitiator interface {
	Refund(ctx context.Context, cmd RefundCommand) (RefundResult, error)
}

// Command and DTO definitions ------------------------------------------------

// OrderItemInput is one client-submitted order line awaiting server-side
// price resolution.
type OrderItemInput struct {
	ProductID string
	Size      *string
	Color     *string
	Quantity  int
}

type CreateIntentCommand struct {
	Amount         int64
	Currency       string
	CustomerEmail  string
	CustomerName   string
	CustomerPhone  string
	Shipping       ShippingAddress
	Items          []OrderItemInput
	Notes          *string
	IdempotencyKey string
}

// IntentResult returns the processor handle alongside the order it pays for.
type IntentResult struct {
	ClientSecret  string
	TransactionID string
	OrderID       string
	OrderNumber   string
	Amount        int64
	Currency      string
}

// PaymentStatusResult is a read-through view of a transaction and its order.
type PaymentStatusResult struct {
	TransactionID string
	Status        PaymentStatus
	Amount        int64
	Currency      string
	OrderID       string
	OrderNumber   string
	OrderStatus   OrderStatus
}

// RefundCommand requests a full or partial refund. The charge is addressed
// by its processor transaction id or by the order it pays for; at least one
// is required. Amount is in major currency units; nil refunds the full
// charge. Note, when set, is recorded on the order alongside the refund.
type RefundCommand struct {
	TransactionID string
	OrderID       string
	Amount        *float64
	Reason        string
	Note          string
	ActorID       string
}

// RefundResult reports the processor refund and the updated order.
type RefundResult struct {
	RefundID string
	Amount   float64
	Status   string
	Order    Order
}

// WebhookEventCommand is a signature-verified processor event.
type WebhookEventCommand struct {
	EventID string
	Type    string
	Object  json.RawMessage
}

type OrderLookupCommand struct {
	OrderID string
	Email   string
}

type OrderNumberLookupCommand struct {
	OrderNumber string
	Email       string
}

type CancelOrderCommand struct {
	OrderID string
	Email   string
	Reason  string
}

type UpdateOrderStatusCommand struct {
	OrderID           string
	Status            OrderStatus
	TrackingNumber    *string
	EstimatedDelivery *time.Time
	Notes             *string
	ActorID           string
}

type ProductListFilter struct {
	CategoryID *string
	ActiveOnly bool
	Page       PageRequest
}

// ProductListResult is one page of catalog products.
type ProductListResult struct {
	Products []Product
	Page     PageInfo
}
