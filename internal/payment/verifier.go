package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidSignature means a proof did not match the expected signature.
var ErrInvalidSignature = errors.New("invalid payment signature")

// Gateway webhook event names.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Proof is what a client or webhook presents to confirm a payment.
// A proof with a WebhookBody is checked against the webhook secret,
// otherwise Signature must sign "<handle>|<PaymentID>" with the key secret.
type Proof struct {
	PaymentID   string
	Signature   string
	WebhookBody []byte
}

// WebhookEvent is the subset of the gateway webhook payload we act on.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payment struct {
		ID      string `json:"id"`
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"payment"`
}

// ParseWebhook decodes a raw webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Event == "" || ev.Payment.OrderID == "" {
		return ev, fmt.Errorf("decode webhook: missing event or order id")
	}
	return ev, nil
}

type Verifier struct {
	keySecret     []byte
	webhookSecret []byte
	bypass        bool
}

// NewVerifier builds a Verifier. With bypass set every proof is accepted;
// that mode exists for local testing only.
func NewVerifier(keySecret, webhookSecret string, bypass bool) *Verifier {
	return &Verifier{keySecret: []byte(keySecret), webhookSecret: []byte(webhookSecret), bypass: bypass}
}

func (v *Verifier) Bypassed() bool { return v.bypass }

// Verify checks proof against the payment handle.
func (v *Verifier) Verify(handle string, proof Proof) error {
	if v.bypass {
		return nil
	}
	if len(proof.WebhookBody) > 0 {
		return v.verifyWebhookProof(handle, proof)
	}
	if len(v.keySecret) == 0 || proof.PaymentID == "" {
		return ErrInvalidSignature
	}
	return compare(Sign(v.keySecret, []byte(handle+"|"+proof.PaymentID)), proof.Signature)
}

// VerifyWebhook checks a raw webhook body against its signature header.
func (v *Verifier) VerifyWebhook(body []byte, signature string) error {
	if v.bypass {
		return nil
	}
	if len(v.webhookSecret) == 0 {
		return ErrInvalidSignature
	}
	return compare(Sign(v.webhookSecret, body), signature)
}

func (v *Verifier) verifyWebhookProof(handle string, proof Proof) error {
	if err := v.VerifyWebhook(proof.WebhookBody, proof.Signature); err != nil {
		return err
	}
	ev, err := ParseWebhook(proof.WebhookBody)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if ev.Payment.OrderID != handle || (proof.PaymentID != "" && ev.Payment.ID != proof.PaymentID) {
		return fmt.Errorf("%w: webhook names a different payment", ErrInvalidSignature)
	}
	return nil
}

// Sign returns the lowercase hex HMAC-SHA256 of msg.
func Sign(secret, msg []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayment returns the client-side signature for handle and paymentID.
func SignPayment(keySecret, handle, paymentID string) string {
	return Sign([]byte(keySecret), []byte(handle+"|"+paymentID))
}

func compare(expected, got string) error {
	if !hmac.Equal([]byte(expected), []byte(got)) {
		return ErrInvalidSignature
	}
	return nil
}
