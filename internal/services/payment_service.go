package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/payments"
	"github.com/ashgrove-goods/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	orderNumberCounterPrefix = "orders-"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentAmountMismatch indicates the declared charge amount disagrees
	// with the server-side recomputation beyond tolerance.
	ErrPaymentAmountMismatch = errors.New("payment: amount mismatch")
	// ErrPaymentSetupFailed indicates the processor rejected intent creation.
	// The pending order survives without a transaction id.
	ErrPaymentSetupFailed = errors.New("payment: setup failed")
	// ErrPaymentNotFound indicates no order matches the transaction.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentInvalidState indicates the payment is not in a state that
	// permits the operation.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Counters    repositories.CounterRepository
	Provider    payments.Provider
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	TaxRate     float64
	Currency    string
}

type paymentService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	counters   repositories.CounterRepository
	provider   payments.Provider
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	taxRate    float64
	currency   string
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("payment service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("payment service: counter repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: payment provider is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	taxRate := deps.TaxRate
	if taxRate == 0 {
		taxRate = domain.DefaultTaxRate
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &paymentService{
		orders:     deps.Orders,
		products:   deps.Products,
		counters:   deps.Counters,
		provider:   deps.Provider,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		logger:   logger,
		taxRate:  taxRate,
		currency: currency,
	}, nil
}

func (s *paymentService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (IntentResult, error) {
	email := domain.NormalizeEmail(cmd.CustomerEmail)
	if email == "" {
		return IntentResult{}, fmt.Errorf("%w: customer email is required", ErrPaymentInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return IntentResult{}, fmt.Errorf("%w: at least one item is required", ErrPaymentInvalidInput)
	}
	if err := validateShippingAddress(cmd.Shipping); err != nil {
		return IntentResult{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	items, err := s.resolveItems(ctx, cmd.Items)
	if err != nil {
		return IntentResult{}, err
	}

	pricing := domain.PriceItems(items, s.taxRate)
	if !pricing.MatchesAmount(cmd.Amount) {
		return IntentResult{}, fmt.Errorf("%w: declared %d, computed %d",
			ErrPaymentAmountMismatch, cmd.Amount, pricing.AmountMinor)
	}

	profile, err := s.provider.EnsureCustomer(ctx, payments.CustomerRequest{
		Email: email,
		Name:  strings.TrimSpace(cmd.CustomerName),
		Phone: strings.TrimSpace(cmd.CustomerPhone),
	})
	if err != nil {
		s.logger(ctx, "payment.customer.ensure.failed", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return IntentResult{}, fmt.Errorf("%w: %v", ErrPaymentSetupFailed, err)
	}

	now := s.now()
	order := Order{
		ID:              orderIDPrefix + s.newID(),
		CustomerEmail:   email,
		Items:           items,
		ShippingAddress: cmd.Shipping,
		Subtotal:        pricing.Subtotal,
		Tax:             pricing.Tax,
		Total:           pricing.Total,
		Payment: PaymentDetails{
			Method:   "card",
			Status:   domain.PaymentStatusPending,
			Amount:   pricing.AmountMinor,
			Currency: currency,
		},
		Status:    domain.OrderStatusPending,
		Notes:     cmd.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return IntentResult{}, err
	}
	order.OrderNumber = number

	// The order is persisted before the processor call so a processor-side
	// failure leaves a resumable pending record rather than nothing.
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return IntentResult{}, err
	}

	intent, err := s.provider.CreateIntent(ctx, payments.IntentRequest{
		Amount:       pricing.AmountMinor,
		Currency:     currency,
		CustomerID:   profile.ID,
		ReceiptEmail: email,
		Metadata: map[string]string{
			"orderId":       order.ID,
			"orderNumber":   order.OrderNumber,
			"customerEmail": email,
		},
		Shipping:       providerShipping(cmd.Shipping),
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		s.logger(ctx, "payment.intent.create.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return IntentResult{}, fmt.Errorf("%w: %v", ErrPaymentSetupFailed, err)
	}

	attachedAt := s.now()
	order, _, err = applyOrder(ctx, s.unitOfWork, s.orders, order.ID, func(o *Order) (bool, error) {
		o.Payment.TransactionID = valuePtr(intent.ID)
		if mapped := mapProviderStatus(intent.Status); domain.CanTransitionPayment(o.Payment.Status, mapped) {
			o.Payment.Status = mapped
		}
		o.UpdatedAt = attachedAt
		return true, nil
	})
	if err != nil {
		return IntentResult{}, err
	}

	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
		Metadata: map[string]any{
			"transactionId": intent.ID,
			"amount":        pricing.AmountMinor,
			"currency":      currency,
		},
	})

	return IntentResult{
		ClientSecret:  intent.ClientSecret,
		TransactionID: intent.ID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Amount:        pricing.AmountMinor,
		Currency:      currency,
	}, nil
}

func (s *paymentService) PaymentStatus(ctx context.Context, transactionID string) (PaymentStatusResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return PaymentStatusResult{}, fmt.Errorf("%w: transaction id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByTransactionID(ctx, transactionID)
	if err != nil {
		mapped := mapOrderRepositoryError(err)
		if errors.Is(mapped, ErrOrderNotFound) {
			return PaymentStatusResult{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, transactionID)
		}
		return PaymentStatusResult{}, mapped
	}

	details, err := s.provider.LookupPayment(ctx, payments.LookupRequest{IntentID: transactionID})
	if err != nil {
		return PaymentStatusResult{}, fmt.Errorf("payment: lookup: %w", err)
	}

	return PaymentStatusResult{
		TransactionID: transactionID,
		Status:        mapProviderStatus(details.Status),
		Amount:        details.Amount,
		Currency:      details.Currency,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderStatus:   order.Status,
	}, nil
}

func (s *paymentService) Refund(ctx context.Context, cmd RefundCommand) (RefundResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	transactionID := strings.TrimSpace(cmd.TransactionID)

	var (
		order Order
		err   error
	)
	switch {
	case orderID != "":
		order, err = s.orders.FindByID(ctx, orderID)
	case transactionID != "":
		order, err = s.orders.FindByTransactionID(ctx, transactionID)
	default:
		return RefundResult{}, fmt.Errorf("%w: transaction id or order id is required", ErrPaymentInvalidInput)
	}
	if err != nil {
		return RefundResult{}, mapOrderRepositoryError(err)
	}

	if order.Payment.TransactionID == nil {
		return RefundResult{}, fmt.Errorf("%w: order has no transaction", ErrPaymentInvalidState)
	}
	if order.Payment.Status != domain.PaymentStatusSucceeded {
		return RefundResult{}, fmt.Errorf("%w: payment status %q is not refundable", ErrPaymentInvalidState, order.Payment.Status)
	}

	var amountMinor *int64
	if cmd.Amount != nil {
		if *cmd.Amount <= 0 {
			return RefundResult{}, fmt.Errorf("%w: refund amount must be positive", ErrPaymentInvalidInput)
		}
		minor := domain.MajorToMinor(*cmd.Amount)
		if minor > order.Payment.Amount {
			return RefundResult{}, fmt.Errorf("%w: refund exceeds charge amount", ErrPaymentInvalidInput)
		}
		amountMinor = &minor
	}

	refund, err := s.provider.Refund(ctx, payments.RefundRequest{
		IntentID: *order.Payment.TransactionID,
		Amount:   amountMinor,
		Reason:   "requested_by_customer",
		Metadata: map[string]string{
			"orderId": order.ID,
		},
	})
	if err != nil {
		return RefundResult{}, fmt.Errorf("payment: refund: %w", err)
	}

	now := s.now()
	refundedMajor := domain.MinorToMajor(refund.Amount)

	var prevStatus OrderStatus
	updated, _, err := applyOrder(ctx, s.unitOfWork, s.orders, order.ID, func(o *Order) (bool, error) {
		prevStatus = o.Status
		o.Payment.Status = domain.PaymentStatusRefunded
		o.Payment.RefundedAt = &now
		o.Payment.RefundAmount = valuePtr(refundedMajor)
		o.Status = domain.OrderStatusCanceled
		if note := strings.TrimSpace(cmd.Note); note != "" {
			o.Notes = appendNote(o.Notes, note)
		}
		if reason := strings.TrimSpace(cmd.Reason); reason != "" {
			o.Notes = appendNote(o.Notes, "Refund issued: "+reason)
		}
		o.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return RefundResult{}, err
	}

	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata: map[string]any{
			"refundId":     refund.ID,
			"refundAmount": refundedMajor,
		},
	})

	return RefundResult{
		RefundID: refund.ID,
		Amount:   refundedMajor,
		Status:   refund.Status,
		Order:    updated,
	}, nil
}

func (s *paymentService) resolveItems(ctx context.Context, inputs []OrderItemInput) ([]OrderItem, error) {
	items := make([]OrderItem, 0, len(inputs))
	for _, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item product id is required", ErrPaymentInvalidInput)
		}
		if input.Quantity < 1 {
			return nil, fmt.Errorf("%w: item quantity must be at least 1", ErrPaymentInvalidInput)
		}

		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			mapped := mapOrderRepositoryError(err)
			if errors.Is(mapped, ErrOrderNotFound) {
				return nil, fmt.Errorf("%w: unknown product %q", ErrPaymentInvalidInput, productID)
			}
			return nil, mapped
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %q is not available", ErrPaymentInvalidInput, productID)
		}

		variation, err := resolveVariation(product, input)
		if err != nil {
			return nil, err
		}

		snapshot := VariationSnapshot{
			Color:     valuePtr(variation.Color),
			Materials: variation.Materials,
			Price:     variation.Price,
			Images:    variation.Images,
		}
		if input.Size != nil {
			size := strings.TrimSpace(*input.Size)
			if size != "" {
				if sized, ok := variation.Stock.(domain.SizedStock); ok {
					if _, found := sized.StockFor(size); !found {
						return nil, fmt.Errorf("%w: product %q has no size %q", ErrPaymentInvalidInput, productID, size)
					}
				}
				snapshot.Size = valuePtr(size)
			}
		}

		items = append(items, OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Variation: snapshot,
			Quantity:  input.Quantity,
			Subtotal:  variation.Price * float64(input.Quantity),
		})
	}
	return items, nil
}

func resolveVariation(product Product, input OrderItemInput) (domain.ProductVariation, error) {
	var color string
	if input.Color != nil {
		color = strings.TrimSpace(*input.Color)
	}

	for _, variation := range product.Variations {
		if !variation.Active {
			continue
		}
		if color == "" || strings.EqualFold(variation.Color, color) {
			return variation, nil
		}
	}

	if color != "" {
		return domain.ProductVariation{}, fmt.Errorf("%w: product %q has no variation %q", ErrPaymentInvalidInput, product.ID, color)
	}
	return domain.ProductVariation{}, fmt.Errorf("%w: product %q has no active variation", ErrPaymentInvalidInput, product.ID)
}

func validateShippingAddress(addr ShippingAddress) error {
	if strings.TrimSpace(addr.Name) == "" {
		return fmt.Errorf("%w: shipping name is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: shipping address line is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: shipping city is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: shipping country is required", ErrPaymentInvalidInput)
	}
	return nil
}

func providerShipping(addr ShippingAddress) *payments.ShippingInfo {
	info := &payments.ShippingInfo{
		Name: addr.Name,
		Address: payments.ShippingAddress{
			Line1:   addr.Line1,
			City:    addr.City,
			Country: addr.Country,
		},
	}
	if addr.Phone != nil {
		info.Phone = *addr.Phone
	}
	if addr.Line2 != nil {
		info.Address.Line2 = *addr.Line2
	}
	if addr.State != nil {
		info.Address.State = *addr.State
	}
	if addr.PostalCode != nil {
		info.Address.PostalCode = *addr.PostalCode
	}
	return info
}

func mapProviderStatus(status payments.Status) PaymentStatus {
	switch status {
	case payments.StatusSucceeded:
		return domain.PaymentStatusSucceeded
	case payments.StatusProcessing:
		return domain.PaymentStatusProcessing
	case payments.StatusFailed:
		return domain.PaymentStatusFailed
	case payments.StatusCanceled:
		return domain.PaymentStatusCanceled
	case payments.StatusRefunded:
		return domain.PaymentStatusRefunded
	default:
		return domain.PaymentStatusPending
	}
}

func (s *paymentService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq, err := s.counters.Next(ctx, orderNumberCounterPrefix+day, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%06d", day, seq), nil
}

func (s *paymentService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *paymentService) now() time.Time {
	return s.clock()
}
