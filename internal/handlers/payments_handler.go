package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

// SignatureHeader carries the gateway's HMAC of the webhook body.
const SignatureHeader = "X-Payment-Signature"

const maxWebhookBody = 64 << 10

type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) error
}

// Relay hands a message to the webhook queue.
type Relay interface {
	SendMessage(ctx context.Context, body string, attrs map[string]string) error
}

// WebhookMessage is the queued form of a gateway webhook. The raw body is
// kept byte for byte so the worker can check the signature again.
type WebhookMessage struct {
	Body      string `json:"body"`
	Signature string `json:"signature"`
}

// RegisterPaymentRoutes registers the gateway webhook endpoint. Verified
// webhooks are queued and applied by the worker.
func RegisterPaymentRoutes(r gin.IRouter, cfg HandlerConfig) {
	logger := cfg.logger()

	r.POST("/payments/webhook", func(c *gin.Context) {
		if cfg.WebhookRelay == nil {
			respondMessage(c, http.StatusServiceUnavailable, "webhooks are not enabled")
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			respondMessage(c, http.StatusBadRequest, "cannot read body")
			return
		}
		sig := c.GetHeader(SignatureHeader)
		if err := cfg.Webhooks.VerifyWebhook(body, sig); err != nil {
			logger.Warn("webhook rejected", "error", err)
			respondMessage(c, http.StatusBadRequest, "payment verification failed")
			return
		}
		ev, err := payment.ParseWebhook(body)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}

		msg, err := json.Marshal(WebhookMessage{Body: string(body), Signature: sig})
		if err != nil {
			respondError(c, logger, err)
			return
		}
		if err := cfg.WebhookRelay.SendMessage(c.Request.Context(), string(msg), map[string]string{
			"event":             ev.Event,
			"payment_reference": ev.Payment.OrderID,
		}); err != nil {
			respondError(c, logger, err)
			return
		}
		logger.Info("webhook queued", "event", ev.Event, "payment_reference", ev.Payment.OrderID)
		respond(c, http.StatusAccepted, gin.H{"event": ev.Event})
	})
}

// RegisterHealthRoutes registers the liveness probe.
func RegisterHealthRoutes(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		respond(c, http.StatusOK, gin.H{"status": "ok"})
	})
}
