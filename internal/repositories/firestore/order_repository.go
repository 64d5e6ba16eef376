package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ashgrove-goods/api/internal/domain"
	pfirestore "github.com/ashgrove-goods/api/internal/platform/firestore"
	"github.com/ashgrove-goods/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document, failing with a conflict when the id is
// already taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		if err := tx.Create(ref, fromDomainOrder(order)); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	if _, err := r.base.Set(ctx, order.ID, fromDomainOrder(order)); err != nil {
		return err
	}
	return nil
}

// FindByID loads one order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindByNumber loads one order by its human-shareable order number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.findOne(ctx, "orders.findByNumber", func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", strings.ToUpper(strings.TrimSpace(orderNumber)))
	})
}

// FindByTransactionID loads the order carrying the processor transaction id.
// Transaction ids are attached at most once so the first match is the only
// match.
func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error) {
	return r.findOne(ctx, "orders.findByTransaction", func(q firestore.Query) firestore.Query {
		return q.Where("paymentDetails.transactionId", "==", strings.TrimSpace(transactionID))
	})
}

func (r *OrderRepository) findOne(ctx context.Context, op string, build pfirestore.QueryBuilder) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return build(q).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError(op, status.Error(codes.NotFound, "order not found"))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

// ListByEmail pages a customer's orders newest first, optionally narrowed to a
// single status.
func (r *OrderRepository) ListByEmail(ctx context.Context, filter repositories.OrderListFilter) (repositories.OrderPage, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return repositories.OrderPage{}, errors.New("order repository not initialised")
	}
	email := domain.NormalizeEmail(filter.CustomerEmail)
	if email == "" {
		return repositories.OrderPage{}, errors.New("customer email is required")
	}
	page := filter.Page.Normalize()

	narrow := func(q firestore.Query) firestore.Query {
		q = q.Where("customerEmail", "==", email)
		if filter.Status != nil {
			q = q.Where("orderStatus", "==", string(*filter.Status))
		}
		return q
	}

	total, err := r.count(ctx, narrow)
	if err != nil {
		return repositories.OrderPage{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return narrow(q).
			OrderBy("createdAt", firestore.Desc).
			Offset(page.Offset()).
			Limit(page.Limit)
	})
	if err != nil {
		return repositories.OrderPage{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return repositories.OrderPage{
		Orders: orders,
		Page:   domain.NewPageInfo(page, total),
	}, nil
}

// Stats aggregates order counts and revenue, optionally bounded by creation
// time. Firestore has no server-side grouping so the rollup happens in memory.
func (r *OrderRepository) Stats(ctx context.Context, window domain.StatsRange) (domain.OrderStats, error) {
	if r == nil || r.base == nil {
		return domain.OrderStats{}, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if window.From != nil {
			q = q.Where("createdAt", ">=", window.From.UTC())
		}
		if window.To != nil {
			q = q.Where("createdAt", "<=", window.To.UTC())
		}
		return q
	})
	if err != nil {
		return domain.OrderStats{}, err
	}

	summary := domain.OrderStatsSummary{
		StatusCounts: make(map[domain.OrderStatus]int64),
	}
	revenueByStatus := make(map[domain.OrderStatus]float64)
	for _, doc := range docs {
		order := toDomainOrder(doc.ID, doc.Data)
		summary.TotalOrders++
		summary.TotalRevenue += order.Total
		summary.StatusCounts[order.Status]++
		revenueByStatus[order.Status] += order.Total
	}
	if summary.TotalOrders > 0 {
		summary.AverageOrderValue = summary.TotalRevenue / float64(summary.TotalOrders)
	}

	distribution := make([]domain.StatusRevenue, 0, len(summary.StatusCounts))
	for _, st := range domain.OrderStatusValues() {
		count, ok := summary.StatusCounts[st]
		if !ok {
			continue
		}
		distribution = append(distribution, domain.StatusRevenue{
			Status:  st,
			Count:   count,
			Revenue: revenueByStatus[st],
		})
	}

	return domain.OrderStats{Summary: summary, Distribution: distribution}, nil
}

func (r *OrderRepository) count(ctx context.Context, narrow pfirestore.QueryBuilder) (int64, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	query := narrow(client.Collection(orderCollection).Query)
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("orders.count", err)
	}
	raw, ok := results["total"]
	if !ok {
		return 0, errors.New("orders count aggregation missing result")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, errors.New("orders count aggregation unexpected type")
	}
	return value.GetIntegerValue(), nil
}

type orderDocument struct {
	OrderNumber       string                  `firestore:"orderNumber"`
	CustomerEmail     string                  `firestore:"customerEmail"`
	Items             []orderItemDocument     `firestore:"items"`
	ShippingAddress   shippingAddressDocument `firestore:"shippingAddress"`
	Subtotal          float64                 `firestore:"subtotal"`
	Tax               float64                 `firestore:"tax"`
	Total             float64                 `firestore:"total"`
	Payment           paymentDetailsDocument  `firestore:"paymentDetails"`
	Status            string                  `firestore:"orderStatus"`
	TrackingNumber    *string                 `firestore:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time              `firestore:"estimatedDelivery,omitempty"`
	Notes             *string                 `firestore:"notes,omitempty"`
	Metadata          map[string]any          `firestore:"metadata,omitempty"`
	CreatedAt         time.Time               `firestore:"createdAt"`
	UpdatedAt         time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string                    `firestore:"productId"`
	Name      string                    `firestore:"name"`
	Variation variationSnapshotDocument `firestore:"variation"`
	Quantity  int                       `firestore:"quantity"`
	Subtotal  float64                   `firestore:"subtotal"`
}

type variationSnapshotDocument struct {
	Size      *string  `firestore:"size,omitempty"`
	Color     *string  `firestore:"color,omitempty"`
	Materials []string `firestore:"materials,omitempty"`
	Price     float64  `firestore:"price"`
	Images    []string `firestore:"images,omitempty"`
}

type shippingAddressDocument struct {
	Name       string  `firestore:"name"`
	Phone      *string `firestore:"phone,omitempty"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode *string `firestore:"postalCode,omitempty"`
	Country    string  `firestore:"country"`
}

type paymentDetailsDocument struct {
	Method        string     `firestore:"method"`
	Status        string     `firestore:"status"`
	TransactionID *string    `firestore:"transactionId,omitempty"`
	Amount        int64      `firestore:"amount"`
	Currency      string     `firestore:"currency"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
	RefundedAt    *time.Time `firestore:"refundedAt,omitempty"`
	RefundAmount  *float64   `firestore:"refundAmount,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variation: variationSnapshotDocument{
				Size:      item.Variation.Size,
				Color:     item.Variation.Color,
				Materials: item.Variation.Materials,
				Price:     item.Variation.Price,
				Images:    item.Variation.Images,
			},
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
		})
	}

	return orderDocument{
		OrderNumber:   order.OrderNumber,
		CustomerEmail: domain.NormalizeEmail(order.CustomerEmail),
		Items:         items,
		ShippingAddress: shippingAddressDocument{
			Name:       order.ShippingAddress.Name,
			Phone:      order.ShippingAddress.Phone,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		Subtotal: order.Subtotal,
		Tax:      order.Tax,
		Total:    order.Total,
		Payment: paymentDetailsDocument{
			Method:        order.Payment.Method,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			Amount:        order.Payment.Amount,
			Currency:      order.Payment.Currency,
			PaidAt:        order.Payment.PaidAt,
			RefundedAt:    order.Payment.RefundedAt,
			RefundAmount:  order.Payment.RefundAmount,
		},
		Status:            string(order.Status),
		TrackingNumber:    order.TrackingNumber,
		EstimatedDelivery: order.EstimatedDelivery,
		Notes:             order.Notes,
		Metadata:          order.Metadata,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variation: domain.VariationSnapshot{
				Size:      item.Variation.Size,
				Color:     item.Variation.Color,
				Materials: item.Variation.Materials,
				Price:     item.Variation.Price,
				Images:    item.Variation.Images,
			},
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
		})
	}

	return domain.Order{
		ID:            id,
		OrderNumber:   doc.OrderNumber,
		CustomerEmail: doc.CustomerEmail,
		Items:         items,
		ShippingAddress: domain.ShippingAddress{
			Name:       doc.ShippingAddress.Name,
			Phone:      doc.ShippingAddress.Phone,
			Line1:      doc.ShippingAddress.Line1,
			Line2:      doc.ShippingAddress.Line2,
			City:       doc.ShippingAddress.City,
			State:      doc.ShippingAddress.State,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
		},
		Subtotal: doc.Subtotal,
		Tax:      doc.Tax,
		Total:    doc.Total,
		Payment: domain.PaymentDetails{
			Method:        doc.Payment.Method,
			Status:        domain.PaymentStatus(doc.Payment.Status),
			TransactionID: doc.Payment.TransactionID,
			Amount:        doc.Payment.Amount,
			Currency:      doc.Payment.Currency,
			PaidAt:        doc.Payment.PaidAt,
			RefundedAt:    doc.Payment.RefundedAt,
			RefundAmount:  doc.Payment.RefundAmount,
		},
		Status:            domain.OrderStatus(doc.Status),
		TrackingNumber:    doc.TrackingNumber,
		EstimatedDelivery: doc.EstimatedDelivery,
		Notes:             doc.Notes,
		Metadata:          doc.Metadata,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}
