package main

import (
	"context"

	"github.com/imrishuroy/canteen-orderflow/internal/orders"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

// PaymentEvents applies gateway outcomes to orders.
type PaymentEvents interface {
	VerifyPayment(ctx context.Context, handle string, proof payment.Proof) (*orders.Order, error)
	FailPayment(ctx context.Context, handle string, proof payment.Proof) (*orders.Order, error)
}
