package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/repositories"
)

const customerIDPrefix = "cus_"

// Processor event types the dispatcher understands. Anything else is acked
// and ignored.
const (
	webhookEventIntentSucceeded  = "payment_intent.succeeded"
	webhookEventIntentFailed     = "payment_intent.payment_failed"
	webhookEventIntentCanceled   = "payment_intent.canceled"
	webhookEventIntentProcessing = "payment_intent.processing"
	webhookEventDisputeCreated   = "charge.dispute.created"
)

// ErrWebhookInvalidPayload signals the event object could not be decoded.
var ErrWebhookInvalidPayload = errors.New("webhook: invalid payload")

// WebhookServiceDeps bundles collaborators required to construct the webhook service.
type WebhookServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type webhookService struct {
	orders     repositories.OrderRepository
	customers  repositories.CustomerRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewWebhookService wires dependencies into a concrete WebhookService implementation.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Orders == nil {
		return nil, errors.New("webhook service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("webhook service: customer repository is required")
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

	return &webhookService{
		orders:     deps.Orders,
		customers:  deps.Customers,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

type intentEventObject struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Customer string `json:"customer"`
}

type disputeEventObject struct {
	ID            string `json:"id"`
	Reason        string `json:"reason"`
	PaymentIntent string `json:"payment_intent"`
}

func (s *webhookService) ProcessEvent(ctx context.Context, cmd WebhookEventCommand) error {
	switch cmd.Type {
	case webhookEventIntentSucceeded:
		intent, err := decodeIntentObject(cmd.Object)
		if err != nil {
			return err
		}
		return s.handleIntentSucceeded(ctx, intent)
	case webhookEventIntentFailed:
		intent, err := decodeIntentObject(cmd.Object)
		if err != nil {
			return err
		}
		return s.handleIntentTerminal(ctx, intent.ID, domain.PaymentStatusFailed)
	case webhookEventIntentCanceled:
		intent, err := decodeIntentObject(cmd.Object)
		if err != nil {
			return err
		}
		return s.handleIntentTerminal(ctx, intent.ID, domain.PaymentStatusCanceled)
	case webhookEventIntentProcessing:
		intent, err := decodeIntentObject(cmd.Object)
		if err != nil {
			return err
		}
		return s.handleIntentProcessing(ctx, intent.ID)
	case webhookEventDisputeCreated:
		var dispute disputeEventObject
		if err := json.Unmarshal(cmd.Object, &dispute); err != nil {
			return fmt.Errorf("%w: %v", ErrWebhookInvalidPayload, err)
		}
		return s.handleDisputeCreated(ctx, dispute)
	default:
		s.logger(ctx, "webhook.event.ignored", map[string]any{
			"eventId": cmd.EventID,
			"type":    cmd.Type,
		})
		return nil
	}
}

func (s *webhookService) handleIntentSucceeded(ctx context.Context, intent intentEventObject) error {
	order, found, err := s.findOrder(ctx, intent.ID)
	if err != nil || !found {
		return err
	}

	// Replayed success deliveries are no-ops; paidAt is set exactly once.
	if order.Payment.Status == domain.PaymentStatusSucceeded {
		return nil
	}

	now := s.now()
	var prevStatus domain.OrderStatus
	updated, applied, err := s.applyOrder(ctx, order.ID, func(o *Order) (bool, error) {
		if o.Payment.Status == domain.PaymentStatusSucceeded {
			return false, nil
		}
		if !domain.CanTransitionPayment(o.Payment.Status, domain.PaymentStatusSucceeded) {
			s.logger(ctx, "webhook.payment.transition.rejected", map[string]any{
				"order": o.ID,
				"from":  string(o.Payment.Status),
				"to":    string(domain.PaymentStatusSucceeded),
			})
			return false, nil
		}
		prevStatus = o.Status
		o.Payment.Status = domain.PaymentStatusSucceeded
		if o.Payment.PaidAt == nil {
			o.Payment.PaidAt = &now
		}
		s.advanceOrder(ctx, o, domain.OrderStatusConfirmed)
		o.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if err := s.upsertCustomer(ctx, updated, intent.Customer, now); err != nil {
		s.logger(ctx, "webhook.customer.upsert.failed", map[string]any{
			"order": updated.ID,
			"email": updated.CustomerEmail,
			"error": err.Error(),
		})
	}

	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           orderEventPaymentConfirmed,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     now,
		Metadata: map[string]any{
			"transactionId": intent.ID,
			"amount":        intent.Amount,
		},
	})

	return nil
}

func (s *webhookService) handleIntentTerminal(ctx context.Context, intentID string, target domain.PaymentStatus) error {
	order, found, err := s.findOrder(ctx, intentID)
	if err != nil || !found {
		return err
	}

	if order.Payment.Status == target {
		return nil
	}

	now := s.now()
	var prevStatus domain.OrderStatus
	updated, applied, err := s.applyOrder(ctx, order.ID, func(o *Order) (bool, error) {
		if o.Payment.Status == target {
			return false, nil
		}
		if !domain.CanTransitionPayment(o.Payment.Status, target) {
			s.logger(ctx, "webhook.payment.transition.rejected", map[string]any{
				"order": o.ID,
				"from":  string(o.Payment.Status),
				"to":    string(target),
			})
			return false, nil
		}
		prevStatus = o.Status
		o.Payment.Status = target
		s.advanceOrder(ctx, o, domain.OrderStatusCanceled)
		o.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     now,
		Metadata: map[string]any{
			"transactionId": intentID,
			"paymentStatus": string(target),
		},
	})

	return nil
}

func (s *webhookService) handleIntentProcessing(ctx context.Context, intentID string) error {
	order, found, err := s.findOrder(ctx, intentID)
	if err != nil || !found {
		return err
	}

	if order.Payment.Status == domain.PaymentStatusProcessing {
		return nil
	}

	now := s.now()
	_, _, err = s.applyOrder(ctx, order.ID, func(o *Order) (bool, error) {
		if o.Payment.Status == domain.PaymentStatusProcessing {
			return false, nil
		}
		// A late processing event after settlement is stale; ignore it.
		if !domain.CanTransitionPayment(o.Payment.Status, domain.PaymentStatusProcessing) {
			return false, nil
		}
		o.Payment.Status = domain.PaymentStatusProcessing
		s.advanceOrder(ctx, o, domain.OrderStatusProcessing)
		o.UpdatedAt = now
		return true, nil
	})
	return err
}

func (s *webhookService) handleDisputeCreated(ctx context.Context, dispute disputeEventObject) error {
	order, found, err := s.findOrder(ctx, dispute.PaymentIntent)
	if err != nil || !found {
		return err
	}

	now := s.now()
	note := fmt.Sprintf("Dispute created: %s - %s", dispute.Reason, dispute.ID)
	if order.Notes != nil && strings.Contains(*order.Notes, note) {
		return nil
	}

	var prevStatus domain.OrderStatus
	updated, applied, err := s.applyOrder(ctx, order.ID, func(o *Order) (bool, error) {
		if o.Notes != nil && strings.Contains(*o.Notes, note) {
			return false, nil
		}
		o.Notes = appendNote(o.Notes, note)
		prevStatus = o.Status
		s.advanceOrder(ctx, o, domain.OrderStatusDisputed)
		o.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return err
	}

	if applied && prevStatus != updated.Status {
		publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        updated.ID,
			OrderNumber:    updated.OrderNumber,
			PreviousStatus: string(prevStatus),
			CurrentStatus:  string(updated.Status),
			OccurredAt:     now,
			Metadata: map[string]any{
				"disputeId": dispute.ID,
				"reason":    dispute.Reason,
			},
		})
	}

	return nil
}

// advanceOrder moves the fulfillment status forward when the state machine
// allows it and the move would not regress an order that already advanced.
// It reports whether the status changed.
func (s *webhookService) advanceOrder(ctx context.Context, order *Order, target domain.OrderStatus) bool {
	if order.Status == target {
		return false
	}
	if !domain.CanTransitionOrder(order.Status, target) || domain.WouldRegressOrder(order.Status, target) {
		s.logger(ctx, "webhook.order.transition.rejected", map[string]any{
			"order": order.ID,
			"from":  string(order.Status),
			"to":    string(target),
		})
		return false
	}
	order.Status = target
	return true
}

// findOrder resolves the order for an intent. A missing order is logged and
// acked rather than failing the delivery; the processor would retry forever
// on an order this service never created.
func (s *webhookService) findOrder(ctx context.Context, intentID string) (Order, bool, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Order{}, false, fmt.Errorf("%w: missing payment intent id", ErrWebhookInvalidPayload)
	}

	order, err := s.orders.FindByTransactionID(ctx, intentID)
	if err != nil {
		mapped := mapOrderRepositoryError(err)
		if errors.Is(mapped, ErrOrderNotFound) {
			s.logger(ctx, "webhook.order.unmatched", map[string]any{
				"transactionId": intentID,
			})
			return Order{}, false, nil
		}
		return Order{}, false, mapped
	}
	return order, true, nil
}

func (s *webhookService) now() time.Time {
	return s.clock()
}

func (s *webhookService) applyOrder(ctx context.Context, orderID string, mutate func(*Order) (bool, error)) (Order, bool, error) {
	return applyOrder(ctx, s.unitOfWork, s.orders, orderID, mutate)
}

// upsertCustomer accumulates the advisory customer profile after a payment
// succeeds. Addresses are deduplicated by line1, city, and postal code; the
// first address on file becomes the default.
func (s *webhookService) upsertCustomer(ctx context.Context, order Order, stripeCustomerID string, now time.Time) error {
	email := domain.NormalizeEmail(order.CustomerEmail)
	if email == "" {
		return nil
	}

	address := customerAddressFromShipping(order.ShippingAddress)

	customer, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return s.insertCustomer(ctx, order, email, stripeCustomerID, address, now)
		}
		return err
	}

	changed := false
	if !customer.HasOrder(order.ID) {
		customer.OrderIDs = append(customer.OrderIDs, order.ID)
		changed = true
	}
	if address != nil && !customer.HasAddress(*address) {
		address.Default = len(customer.Addresses) == 0
		customer.Addresses = append(customer.Addresses, *address)
		changed = true
	}
	if stripeCustomerID != "" && customer.StripeCustomerID == nil {
		customer.StripeCustomerID = valuePtr(stripeCustomerID)
		changed = true
	}
	if !changed {
		return nil
	}

	customer.UpdatedAt = now
	return s.customers.Update(ctx, customer)
}

func (s *webhookService) insertCustomer(ctx context.Context, order Order, email, stripeCustomerID string, address *CustomerAddress, now time.Time) error {
	customer := Customer{
		ID:        customerIDPrefix + s.newID(),
		Email:     email,
		OrderIDs:  []string{order.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}

	first, last := splitName(order.ShippingAddress.Name)
	customer.FirstName = optionalString(first)
	customer.LastName = optionalString(last)
	if order.ShippingAddress.Phone != nil {
		customer.Phone = optionalString(strings.TrimSpace(*order.ShippingAddress.Phone))
	}
	if stripeCustomerID != "" {
		customer.StripeCustomerID = valuePtr(stripeCustomerID)
	}
	if address != nil {
		address.Default = true
		customer.Addresses = []CustomerAddress{*address}
	}

	return s.customers.Insert(ctx, customer)
}

func customerAddressFromShipping(shipping ShippingAddress) *CustomerAddress {
	if strings.TrimSpace(shipping.Line1) == "" || strings.TrimSpace(shipping.City) == "" {
		return nil
	}
	address := CustomerAddress{
		Line1:   shipping.Line1,
		Line2:   shipping.Line2,
		City:    shipping.City,
		State:   shipping.State,
		Country: shipping.Country,
	}
	if name := strings.TrimSpace(shipping.Name); name != "" {
		address.Name = valuePtr(name)
	}
	if shipping.PostalCode != nil {
		address.PostalCode = strings.TrimSpace(*shipping.PostalCode)
	}
	return &address
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func decodeIntentObject(raw json.RawMessage) (intentEventObject, error) {
	var intent intentEventObject
	if err := json.Unmarshal(raw, &intent); err != nil {
		return intentEventObject{}, fmt.Errorf("%w: %v", ErrWebhookInvalidPayload, err)
	}
	return intent, nil
}
