package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/canteen-orderflow/internal/handlers"
	"github.com/imrishuroy/canteen-orderflow/internal/lifecycle"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

// Processor applies queued gateway webhooks to the order lifecycle.
type Processor struct {
	payments PaymentEvents
	logger   *slog.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(payments PaymentEvents, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{payments: payments, logger: logger}
}

// Handle receives an SQS batch event and processes each message. Only failed
// messages are reported back so the rest of the batch is not redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg handlers.WebhookMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	ev, err := payment.ParseWebhook([]byte(msg.Body))
	if err != nil {
		return err
	}

	handle := ev.Payment.OrderID
	proof := payment.Proof{PaymentID: ev.Payment.ID, Signature: msg.Signature, WebhookBody: []byte(msg.Body)}
	log := p.logger.With("event", ev.Event, "payment_reference", handle, "message_id", rec.MessageId)

	switch ev.Event {
	case payment.EventPaymentCaptured:
		o, err := p.payments.VerifyPayment(ctx, handle, proof)
		if err != nil {
			return p.settle(log, err)
		}
		log.Info("payment captured", "order_id", o.OrderID, "state", o.LifecycleState)
	case payment.EventPaymentFailed:
		o, err := p.payments.FailPayment(ctx, handle, proof)
		if err != nil {
			return p.settle(log, err)
		}
		log.Info("payment failed", "order_id", o.OrderID, "state", o.LifecycleState)
	default:
		log.Info("skipping webhook event")
	}
	return nil
}

// settle drops messages that can never succeed and returns everything else
// for redelivery.
func (p *Processor) settle(log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrPaymentVerificationFailed),
		errors.Is(err, lifecycle.ErrInvalidState),
		errors.Is(err, lifecycle.ErrNotFound):
		log.Warn("dropping webhook", "error", err)
		return nil
	default:
		return err
	}
}
