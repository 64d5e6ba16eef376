package repositories

import (
	"context"

	domain "github.com/ashgrove-goods/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows and pages a customer's order listing.
type OrderListFilter struct {
	CustomerEmail string
	Status        *domain.OrderStatus
	Page          domain.PageRequest
}

// OrderPage bundles one page of orders with its paging metadata.
type OrderPage struct {
	Orders []domain.Order
	Page   domain.PageInfo
}

// OrderRepository persists order documents and provides the lookup paths used
// by customers, admins, and the webhook receiver.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error)
	ListByEmail(ctx context.Context, filter OrderListFilter) (OrderPage, error)
	Stats(ctx context.Context, window domain.StatsRange) (domain.OrderStats, error)
}

// CustomerRepository persists the denormalized customer profiles accumulated
// from successful payments.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
}

// ProductFilter narrows and pages catalog product listings.
type ProductFilter struct {
	CategoryID *string
	ActiveOnly bool
	Page       domain.PageRequest
}

// ProductPage bundles one page of products with its paging metadata.
type ProductPage struct {
	Products []domain.Product
	Page     domain.PageInfo
}

// ProductRepository reads catalog products for listings and order-time
// price snapshotting.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductFilter) (ProductPage, error)
}

// CategoryRepository reads the category tree.
type CategoryRepository interface {
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// CounterConfig carries optional counter settings applied by Configure.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
