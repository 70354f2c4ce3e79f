// Package payment talks to the external payment gateway and checks the
// signatures it issues.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks handles minted locally while the gateway is down.
const PlaceholderPrefix = "local_"

// Intent is the gateway-side order a customer pays against.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway creates payment intents.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency, receipt string) (Intent, error)
}

// PlaceholderIntent returns a locally unique intent used in degraded mode.
func PlaceholderIntent(amount int64, currency, receipt string) Intent {
	return Intent{
		ID:       PlaceholderPrefix + uuid.NewString(),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
}

// IsPlaceholder reports whether the handle was minted locally.
func IsPlaceholder(handle string) bool {
	return strings.HasPrefix(handle, PlaceholderPrefix)
}

// HTTPGateway is a JSON-over-HTTP gateway client authenticated with the key
// id and key secret.
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewHTTPGateway(baseURL, keyID, keySecret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: timeout},
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

func (g *HTTPGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency, receipt string) (Intent, error) {
	if g.baseURL == "" {
		return Intent{}, fmt.Errorf("payment gateway not configured")
	}
	body, err := json.Marshal(createIntentRequest{Amount: amount, Currency: currency, Receipt: receipt})
	if err != nil {
		return Intent{}, fmt.Errorf("marshal intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("create intent: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, fmt.Errorf("read intent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Intent{}, fmt.Errorf("create intent: gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var intent Intent
	if err := json.Unmarshal(respBody, &intent); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	if intent.ID == "" {
		return Intent{}, fmt.Errorf("create intent: gateway returned no id")
	}
	return intent, nil
}
