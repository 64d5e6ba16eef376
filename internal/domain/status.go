package domain

// OrderStatus is the fulfillment lifecycle state of an order. It is tracked
// separately from the processor-side payment status; the two are correlated
// but not identical.
type OrderStatus string

const (
	// OrderStatusPending marks a freshly created order awaiting payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed marks an order whose payment succeeded.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing marks an order being prepared for shipment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped marks an order handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered marks a completed order. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled marks a canceled order. Terminal.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusDisputed flags an order with an open payment dispute. An
	// admin can still move it forward or to canceled.
	OrderStatusDisputed OrderStatus = "disputed"
)

// PaymentStatus is the processor-side state of an order's payment.
type PaymentStatus string

const (
	// PaymentStatusPending marks a payment not yet attempted or completed.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing marks a payment in flight at the processor.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusSucceeded marks a captured payment.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed marks a payment rejected by the processor. Terminal.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusCanceled marks a payment abandoned before capture. Terminal.
	PaymentStatusCanceled PaymentStatus = "canceled"
	// PaymentStatusRefunded marks a captured payment returned to the customer.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// orderStatusRank orders fulfillment states along the happy path so late
// webhook deliveries cannot regress an order that already advanced. Confirmed
// and processing share a rank: a succeeded payment confirms an order that was
// reported processing, and fulfillment moves a confirmed order into
// processing, so neither direction is a regression.
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusConfirmed:  1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCanceled},
	OrderStatusProcessing: {OrderStatusConfirmed, OrderStatusShipped, OrderStatusCanceled, OrderStatusDisputed},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCanceled, OrderStatusDisputed},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusDisputed},
	OrderStatusDelivered:  {OrderStatusDisputed},
	OrderStatusDisputed:   {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled},
	OrderStatusCanceled:   {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled},
	PaymentStatusProcessing: {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled},
	PaymentStatusSucceeded:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {},
	PaymentStatusCanceled:   {},
	PaymentStatusRefunded:   {},
}

// compatiblePayments lists the payment states each fulfillment state may
// coexist with. The guard closes the "shipped but unpaid" class of bug.
var compatiblePayments = map[OrderStatus][]PaymentStatus{
	OrderStatusPending:    {PaymentStatusPending, PaymentStatusProcessing, PaymentStatusFailed},
	OrderStatusConfirmed:  {PaymentStatusSucceeded},
	OrderStatusProcessing: {PaymentStatusPending, PaymentStatusProcessing, PaymentStatusSucceeded},
	OrderStatusShipped:    {PaymentStatusSucceeded},
	OrderStatusDelivered:  {PaymentStatusSucceeded},
	OrderStatusCanceled:   {PaymentStatusPending, PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded},
	OrderStatusDisputed:   {PaymentStatusSucceeded, PaymentStatusRefunded},
}

// ValidOrderStatus reports whether the value is a known order status.
func ValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled, OrderStatusDisputed:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether the value is a known payment status.
func ValidPaymentStatus(status PaymentStatus) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusSucceeded,
		PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded:
		return true
	}
	return false
}

// CanTransitionOrder reports whether the fulfillment state machine allows the
// move. Self-transitions are permitted as no-ops so replayed events stay
// idempotent.
func CanTransitionOrder(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment state machine allows the
// move. Self-transitions are permitted as no-ops.
func CanTransitionPayment(from, to PaymentStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StatusesCompatible reports whether a fulfillment state may coexist with a
// payment state.
func StatusesCompatible(order OrderStatus, payment PaymentStatus) bool {
	for _, allowed := range compatiblePayments[order] {
		if allowed == payment {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus reports whether no further fulfillment transitions
// are possible.
func IsTerminalOrderStatus(status OrderStatus) bool {
	return len(orderTransitions[status]) == 0
}

// WouldRegressOrder reports whether moving to the target would take the order
// backwards along the happy path. Side states (canceled, disputed) never count
// as regressions.
func WouldRegressOrder(from, to OrderStatus) bool {
	fromRank, fromOK := orderStatusRank[from]
	toRank, toOK := orderStatusRank[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank < fromRank
}

// OrderStatusValues lists every known fulfillment status.
func OrderStatusValues() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCanceled,
		OrderStatusDisputed,
	}
}
