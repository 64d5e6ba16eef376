package domain

import (
	"strings"
	"time"
)

// PageRequest defines offset-based paging inputs for list operations.
type PageRequest struct {
	Page  int
	Limit int
}

// PageInfo summarizes the paging state of a list response.
type PageInfo struct {
	CurrentPage int
	TotalPages  int
	TotalItems  int64
	HasNext     bool
	HasPrev     bool
}

// Normalize clamps paging inputs to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset returns the number of records to skip for the current page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// NewPageInfo derives paging metadata from a normalized request and total count.
func NewPageInfo(req PageRequest, total int64) PageInfo {
	pages := int(total) / req.Limit
	if int(total)%req.Limit != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}
	return PageInfo{
		CurrentPage: req.Page,
		TotalPages:  pages,
		TotalItems:  total,
		HasNext:     req.Page < pages,
		HasPrev:     req.Page > 1,
	}
}

// ShippingAddress is the structured postal address attached to an order.
type ShippingAddress struct {
	Name       string
	Phone      *string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode *string
	Country    string
}

// VariationSnapshot records the purchased configuration of a product at order
// time. Snapshots are immutable once written; later catalog edits never touch
// them.
type VariationSnapshot struct {
	Size      *string
	Color     *string
	Materials []string
	Price     float64
	Images    []string
}

// OrderItem stores a single price-snapshotted line of an order.
type OrderItem struct {
	ProductID string
	Name      string
	Variation VariationSnapshot
	Quantity  int
	Subtotal  float64
}

// PaymentDetails is the processor-facing sub-record of an order. Amount is in
// minor currency units; the order totals are in major units.
type PaymentDetails struct {
	Method        string
	Status        PaymentStatus
	TransactionID *string
	Amount        int64
	Currency      string
	PaidAt        *time.Time
	RefundedAt    *time.Time
	RefundAmount  *float64
}

// Order is the durable record of one checkout attempt and its payment and
// fulfillment lifecycle. Orders are never hard-deleted; cancellation is a
// terminal status.
type Order struct {
	ID                string
	OrderNumber       string
	CustomerEmail     string
	Items             []OrderItem
	ShippingAddress   ShippingAddress
	Subtotal          float64
	Tax               float64
	Total             float64
	Payment           PaymentDetails
	Status            OrderStatus
	TrackingNumber    *string
	EstimatedDelivery *time.Time
	Notes             *string
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CustomerAddress is one shipping address on file for a customer. Addresses
// are deduplicated by line1, city, and postal code.
type CustomerAddress struct {
	Name       *string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Default    bool
}

// Customer is the denormalized, email-keyed profile accumulated from
// successful payments. It is advisory; the order remains the source of truth
// for a given purchase.
type Customer struct {
	ID               string
	Email            string
	FirstName        *string
	LastName         *string
	Phone            *string
	Addresses        []CustomerAddress
	OrderIDs         []string
	StripeCustomerID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasOrder reports whether the order id is already linked to the customer.
func (c *Customer) HasOrder(orderID string) bool {
	for _, id := range c.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

// HasAddress reports whether an equivalent address is already on file.
func (c *Customer) HasAddress(addr CustomerAddress) bool {
	for _, existing := range c.Addresses {
		if strings.EqualFold(existing.Line1, addr.Line1) &&
			strings.EqualFold(existing.City, addr.City) &&
			strings.EqualFold(existing.PostalCode, addr.PostalCode) {
			return true
		}
	}
	return false
}

// CategoryKind selects the stock shape used by variations of products in a
// category.
type CategoryKind string

const (
	// CategoryKindSized marks categories whose products carry per-size stock.
	CategoryKindSized CategoryKind = "sized"
	// CategoryKindFlat marks categories whose products carry a single stock count.
	CategoryKindFlat CategoryKind = "flat"
)

// ValidCategoryKind reports whether the value is a known category kind.
func ValidCategoryKind(kind CategoryKind) bool {
	return kind == CategoryKindSized || kind == CategoryKindFlat
}

// Category groups products and fixes the variation shape for all of them.
type Category struct {
	ID          string
	Name        string
	Description *string
	Image       *string
	ParentID    *string
	Kind        CategoryKind
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SizeStock pairs one size label with its available stock.
type SizeStock struct {
	Size  string
	Stock int
}

// VariationStock is the tagged union of per-kind stock shapes. Exactly one of
// SizedStock or FlatStock backs every variation, selected by the owning
// category's kind.
type VariationStock interface {
	variationStock()
	// TotalStock returns the units available across the variation.
	TotalStock() int
}

// SizedStock tracks stock per size for sized categories.
type SizedStock struct {
	Sizes []SizeStock
}

func (SizedStock) variationStock() {}

// TotalStock sums the stock across all sizes.
func (s SizedStock) TotalStock() int {
	total := 0
	for _, ss := range s.Sizes {
		total += ss.Stock
	}
	return total
}

// StockFor returns the stock for one size label.
func (s SizedStock) StockFor(size string) (int, bool) {
	for _, ss := range s.Sizes {
		if ss.Size == size {
			return ss.Stock, true
		}
	}
	return 0, false
}

// FlatStock tracks a single stock count for flat categories.
type FlatStock struct {
	Stock int
}

func (FlatStock) variationStock() {}

// TotalStock returns the flat stock count.
func (f FlatStock) TotalStock() int {
	return f.Stock
}

// ProductVariation is one purchasable configuration of a product with its own
// price, imagery, and stock.
type ProductVariation struct {
	Color         string
	Price         float64
	OriginalPrice *float64
	Materials     []string
	Images        []string
	Stock         VariationStock
	Active        bool
}

// Product is a catalog entry carrying at least one variation.
type Product struct {
	ID            string
	Name          string
	Description   *string
	Brand         *string
	CategoryID    string
	SubCategoryID *string
	BaseImage     *string
	Variations    []ProductVariation
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PriceRange returns the lowest and highest active variation prices.
func (p *Product) PriceRange() (min, max float64) {
	first := true
	for _, v := range p.Variations {
		if !v.Active {
			continue
		}
		if first || v.Price < min {
			min = v.Price
		}
		if first || v.Price > max {
			max = v.Price
		}
		first = false
	}
	return min, max
}

// StatsRange bounds an aggregate reporting query by creation time.
type StatsRange struct {
	From *time.Time
	To   *time.Time
}

// OrderStatsSummary aggregates order counts and revenue for reporting.
type OrderStatsSummary struct {
	TotalOrders       int64
	TotalRevenue      float64
	AverageOrderValue float64
	StatusCounts      map[OrderStatus]int64
}

// StatusRevenue is one row of the per-status revenue distribution.
type StatusRevenue struct {
	Status  OrderStatus
	Count   int64
	Revenue float64
}

// OrderStats is the admin reporting payload.
type OrderStats struct {
	Summary      OrderStatsSummary
	Distribution []StatusRevenue
}

// NormalizeEmail lower-cases and trims an email for use as a lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
