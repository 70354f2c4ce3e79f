// Package events describes the notifications emitted when an order changes state.
package events

import (
	"context"
	"errors"
	"time"
)

// Event types, one per committed lifecycle transition.
const (
	TypeOrderCreated   = "order.created"
	TypeOrderActivated = "order.activated"
	TypePaymentFailed  = "order.payment_failed"
	TypeOrderScanned   = "order.scanned"
	TypeOrderDelivered = "order.delivered"
	TypeOrderCancelled = "order.cancelled"
)

// Event is the payload published to downstream consumers.
type Event struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"order_id"`
	OwnerID        string    `json:"owner_id"`
	LifecycleState string    `json:"lifecycle_state"`
	PaymentState   string    `json:"payment_state"`
	TotalAmount    int64     `json:"total_amount"`
	Currency       string    `json:"currency"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Notifier delivers events somewhere. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Fanout sends every event to each notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }
