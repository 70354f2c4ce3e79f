package orders

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError reports a transition attempted from the wrong state.
type TransitionError struct {
	OrderID string
	Action  string
	Current LifecycleState
	Payment PaymentState
}

func (e *TransitionError) Error() string {
	if e.Payment != "" {
		return fmt.Sprintf("cannot %s order %s: order is %s (payment %s)", e.Action, e.OrderID, e.Current, e.Payment)
	}
	return fmt.Sprintf("cannot %s order %s: order is %s", e.Action, e.OrderID, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func (o Order) invalid(action string) error {
	return &TransitionError{OrderID: o.OrderID, Action: action, Current: o.LifecycleState, Payment: o.PaymentState}
}

// Terminal reports whether no further transition is possible.
func (o Order) Terminal() bool {
	return o.LifecycleState == StateDelivered || o.LifecycleState == StateCancelled
}

// Activate confirms payment: pending_payment -> active. The token is only
// written when the order does not carry one yet. The returned deltas are
// the stock decrements that must commit together with the new state.
func (o Order) Activate(token string, now time.Time) (Order, []StockDelta, error) {
	if o.LifecycleState != StatePendingPayment || o.PaymentState != PaymentPending {
		return o, nil, o.invalid("activate")
	}
	next := o
	next.PaymentState = PaymentCompleted
	next.LifecycleState = StateActive
	if next.RedemptionToken == "" {
		next.RedemptionToken = token
	}
	next.UpdatedAt = now
	return next, o.stockDeltas(-1), nil
}

// FailPayment records a declined payment. The order stays in pending_payment.
func (o Order) FailPayment(now time.Time) (Order, error) {
	if o.LifecycleState != StatePendingPayment || o.PaymentState != PaymentPending {
		return o, o.invalid("fail payment for")
	}
	next := o
	next.PaymentState = PaymentFailed
	next.UpdatedAt = now
	return next, nil
}

// ReplacePaymentReference swaps the gateway handle of an unpaid order.
func (o Order) ReplacePaymentReference(ref string, now time.Time) (Order, error) {
	if o.LifecycleState != StatePendingPayment || o.PaymentState != PaymentPending {
		return o, o.invalid("replace payment handle of")
	}
	next := o
	next.PaymentReference = ref
	next.UpdatedAt = now
	return next, nil
}

// Scan redeems the token: active -> scanned.
func (o Order) Scan(now time.Time) (Order, error) {
	if o.LifecycleState != StateActive {
		return o, o.invalid("scan")
	}
	next := o
	next.LifecycleState = StateScanned
	next.ScannedAt = &now
	next.UpdatedAt = now
	return next, nil
}

// Deliver hands the order over: scanned -> delivered.
func (o Order) Deliver(now time.Time) (Order, error) {
	if o.LifecycleState != StateScanned {
		return o, o.invalid("deliver")
	}
	next := o
	next.LifecycleState = StateDelivered
	next.DeliveredAt = &now
	next.UpdatedAt = now
	return next, nil
}

// Cancel moves pending_payment or active orders to cancelled. Stock is only
// returned for active orders; unpaid orders never took any.
func (o Order) Cancel(now time.Time) (Order, []StockDelta, error) {
	var deltas []StockDelta
	switch o.LifecycleState {
	case StatePendingPayment:
	case StateActive:
		deltas = o.stockDeltas(1)
	default:
		return o, nil, o.invalid("cancel")
	}
	next := o
	next.LifecycleState = StateCancelled
	next.CancelledAt = &now
	next.UpdatedAt = now
	return next, deltas, nil
}
