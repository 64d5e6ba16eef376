package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status.changed"
	orderEventPaymentConfirmed = "order.payment.confirmed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or the email
	// did not match; callers cannot tell the two apart.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent modification or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

// Statuses a customer may cancel from. Later states are already in
// fulfillment and require support involvement.
var customerCancellableStatuses = []OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
}

func customerCancellable(status OrderStatus) bool {
	for _, candidate := range customerCancellableStatuses {
		if status == candidate {
			return true
		}
	}
	return false
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Refunds    RefundInitiator
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Events     OrderEventPublisher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	refunds    RefundInitiator
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		refunds:    deps.Refunds,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) ListCustomerOrders(ctx context.Context, filter OrderListFilter) (OrderPage, error) {
	email := domain.NormalizeEmail(filter.CustomerEmail)
	if email == "" {
		return OrderPage{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	if filter.Status != nil && !domain.ValidOrderStatus(*filter.Status) {
		return OrderPage{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *filter.Status)
	}

	filter.CustomerEmail = email
	filter.Page = filter.Page.Normalize()

	page, err := s.orders.ListByEmail(ctx, filter)
	if err != nil {
		return OrderPage{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd OrderLookupCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	email := domain.NormalizeEmail(cmd.Email)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if email == "" {
		return Order{}, fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if domain.NormalizeEmail(order.CustomerEmail) != email {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, cmd OrderNumberLookupCommand) (Order, error) {
	number := strings.ToUpper(strings.TrimSpace(cmd.OrderNumber))
	email := domain.NormalizeEmail(cmd.Email)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	if email == "" {
		return Order{}, fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if domain.NormalizeEmail(order.CustomerEmail) != email {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, number)
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	email := domain.NormalizeEmail(cmd.Email)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if email == "" {
		return Order{}, fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if domain.NormalizeEmail(order.CustomerEmail) != email {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	if !customerCancellable(order.Status) {
		return Order{}, fmt.Errorf("%w: order status %q cannot be canceled", ErrOrderInvalidState, order.Status)
	}

	reason := strings.TrimSpace(cmd.Reason)
	note := "Canceled by customer"
	if reason != "" {
		note = "Canceled by customer: " + reason
	}

	// A paid order is canceled through the refund path so the processor and
	// the order record stay in step. The cancellation note rides the refund's
	// own write; a rejected refund leaves the order untouched.
	if order.Payment.Status == domain.PaymentStatusSucceeded {
		if s.refunds == nil {
			return Order{}, errors.New("order: refund initiator not configured")
		}
		result, err := s.refunds.Refund(ctx, RefundCommand{
			OrderID: order.ID,
			Reason:  reason,
			Note:    note,
		})
		if err != nil {
			return Order{}, err
		}
		return result.Order, nil
	}

	now := s.now()
	var prevStatus OrderStatus
	updated, _, err := s.applyOrder(ctx, order.ID, func(o *Order) (bool, error) {
		if domain.NormalizeEmail(o.CustomerEmail) != email {
			return false, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if !customerCancellable(o.Status) {
			return false, fmt.Errorf("%w: order status %q cannot be canceled", ErrOrderInvalidState, o.Status)
		}
		// The payment may have settled between the first read and this one;
		// a settled order must go through the refund path instead.
		if o.Payment.Status == domain.PaymentStatusSucceeded {
			return false, fmt.Errorf("%w: payment settled during cancellation", ErrOrderConflict)
		}
		prevStatus = o.Status
		o.Notes = appendNote(o.Notes, note)
		o.Status = domain.OrderStatusCanceled
		if domain.CanTransitionPayment(o.Payment.Status, domain.PaymentStatusCanceled) {
			o.Payment.Status = domain.PaymentStatusCanceled
		}
		o.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": reason},
	})

	return updated, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.now()
	var prevStatus OrderStatus
	updated, _, err := s.applyOrder(ctx, orderID, func(o *Order) (bool, error) {
		prevStatus = o.Status
		o.Status = cmd.Status

		// Admin overrides are not blocked by the state machine, but
		// incompatible payment pairings are logged for follow-up.
		if !domain.StatusesCompatible(cmd.Status, o.Payment.Status) {
			s.logger(ctx, "order.status.override.incompatible", map[string]any{
				"order":         o.ID,
				"orderStatus":   string(cmd.Status),
				"paymentStatus": string(o.Payment.Status),
				"actor":         cmd.ActorID,
			})
		}

		if cmd.TrackingNumber != nil {
			o.TrackingNumber = optionalString(strings.TrimSpace(*cmd.TrackingNumber))
		}
		if cmd.EstimatedDelivery != nil {
			eta := cmd.EstimatedDelivery.UTC()
			o.EstimatedDelivery = &eta
		}
		if cmd.Notes != nil {
			if trimmed := strings.TrimSpace(*cmd.Notes); trimmed != "" {
				o.Notes = appendNote(o.Notes, trimmed)
			}
		}

		o.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) Stats(ctx context.Context, window StatsRange) (OrderStats, error) {
	if window.From != nil && window.To != nil && window.To.Before(*window.From) {
		return OrderStats{}, fmt.Errorf("%w: stats range end precedes start", ErrOrderInvalidInput)
	}
	stats, err := s.orders.Stats(ctx, window)
	if err != nil {
		return OrderStats{}, s.mapRepositoryError(err)
	}
	return stats, nil
}

func (s *orderService) applyOrder(ctx context.Context, orderID string, mutate func(*Order) (bool, error)) (Order, bool, error) {
	return applyOrder(ctx, s.unitOfWork, s.orders, orderID, mutate)
}

// applyOrder re-reads the order inside the unit of work, applies mutate to
// the fresh copy, and writes the result when mutate reports true. Concurrent
// writers serialise on the re-read instead of clobbering each other's fields.
func applyOrder(ctx context.Context, unit repositories.UnitOfWork, orders repositories.OrderRepository, orderID string, mutate func(order *Order) (bool, error)) (Order, bool, error) {
	var (
		result  Order
		applied bool
	)
	err := unit.RunInTx(ctx, func(txCtx context.Context) error {
		fresh, err := orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapOrderRepositoryError(err)
		}
		write, err := mutate(&fresh)
		if err != nil {
			return err
		}
		result = fresh
		applied = write
		if !write {
			return nil
		}
		if err := orders.Update(txCtx, fresh); err != nil {
			return mapOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	return result, applied, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

func publishOrderEvent(ctx context.Context, publisher OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if publisher == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func appendNote(existing *string, note string) *string {
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return valuePtr(note)
	}
	return valuePtr(*existing + "\n" + note)
}

func valuePtr[T any](v T) *T {
	return &v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}
