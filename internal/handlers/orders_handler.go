package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/canteen-orderflow/internal/accounts"
	"github.com/imrishuroy/canteen-orderflow/internal/idempotency"
	"github.com/imrishuroy/canteen-orderflow/internal/lifecycle"
	"github.com/imrishuroy/canteen-orderflow/internal/orders"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
	"github.com/imrishuroy/canteen-orderflow/internal/validation"
)

// OrderService is the order lifecycle as seen by the HTTP layer.
type OrderService interface {
	Checkout(ctx context.Context, ownerID string, lines []lifecycle.LineRequest) (*orders.Order, payment.Intent, error)
	VerifyPayment(ctx context.Context, handle string, proof payment.Proof) (*orders.Order, error)
	Scan(ctx context.Context, token string) (*orders.Order, error)
	Deliver(ctx context.Context, orderID string) (*orders.Order, error)
	Cancel(ctx context.Context, orderID string) (*orders.Order, error)
	RefreshPaymentHandle(ctx context.Context, orderID string) (*orders.Order, payment.Intent, error)
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]orders.Order, error)
}

// IdempotencyStore remembers checkout responses per Idempotency-Key.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, requestHash string) (*idempotency.IdempotencyRecord, bool, error)
	MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the HTTP handlers. Optional
// collaborators may be left nil.
type HandlerConfig struct {
	Orders   OrderService
	Accounts AccountReader
	Menu     MenuStore

	Idempotency       IdempotencyStore // optional
	MenuListing       MenuLister       // optional, defaults to Menu
	MenuCache         MenuInvalidator  // optional
	RateLimiter       RateLimitClient  // optional
	CheckoutRateLimit int
	Webhooks          WebhookVerifier
	WebhookRelay      Relay // optional

	Currency string
	Logger   *slog.Logger
}

type checkoutResponse struct {
	Order   *orders.Order  `json:"order"`
	Payment payment.Intent `json:"payment"`
}

type ordersHandler struct {
	svc    OrderService
	idemp  IdempotencyStore
	v      *validatorv10.Validate
	logger *slog.Logger
}

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	logger := cfg.logger()
	h := &ordersHandler{svc: cfg.Orders, idemp: cfg.Idempotency, v: validation.New(), logger: logger}

	g := r.Group("/orders", Identity(cfg.Accounts, logger))

	checkout := []gin.HandlerFunc{RequireRole(accounts.RoleStudent, accounts.RoleAdmin)}
	if cfg.RateLimiter != nil && cfg.CheckoutRateLimit > 0 {
		checkout = append(checkout, RateLimit(cfg.RateLimiter, "checkout", cfg.CheckoutRateLimit, time.Minute, logger))
	}
	g.POST("/checkout", append(checkout, h.checkout)...)

	g.POST("/verify-payment", h.verifyPayment)
	g.POST("/scan", RequireRole(accounts.RoleAdmin), h.scan)
	g.POST("/:id/deliver", RequireRole(accounts.RoleAdmin), h.deliver)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/payment-handle", h.refreshPaymentHandle)
	g.GET("/:id", h.get)
	g.GET("", h.list)
}

func (h *ordersHandler) checkout(c *gin.Context) {
	ctx := c.Request.Context()
	acct := caller(c)

	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if key != "" && h.idemp != nil {
		key = idempotency.ScopedKey(acct.AccountID, key)
		if replayed := h.beginIdempotent(c, key, req); replayed {
			return
		}
	} else {
		key = ""
	}

	lines := make([]lifecycle.LineRequest, len(req.Items))
	for i, it := range req.Items {
		lines[i] = lifecycle.LineRequest{ItemID: it.ItemID, Quantity: it.Quantity}
	}

	o, intent, err := h.svc.Checkout(ctx, acct.AccountID, lines)
	if err != nil {
		if key != "" {
			_ = h.idemp.MarkFailed(ctx, key, err.Error())
		}
		respondError(c, h.logger, err)
		return
	}

	body, err := json.Marshal(gin.H{"success": true, "data": checkoutResponse{Order: o, Payment: intent}})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if key != "" {
		if err := h.idemp.MarkDone(ctx, key, o.OrderID, string(body), http.StatusCreated); err != nil {
			h.logger.Warn("idempotency record not completed", "order_id", o.OrderID, "error", err)
		}
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", o.OrderID))
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

// beginIdempotent claims the key. It reports true when a response has
// already been written for a duplicate request.
func (h *ordersHandler) beginIdempotent(c *gin.Context, key string, req validation.CheckoutRequest) bool {
	hash, err := idempotency.RequestHash(req)
	if err != nil {
		respondError(c, h.logger, err)
		return true
	}
	rec, created, err := h.idemp.Begin(c.Request.Context(), key, hash)
	if err != nil {
		respondError(c, h.logger, err)
		return true
	}
	if created {
		return false
	}
	if rec.RequestHash != hash {
		respondMessage(c, http.StatusUnprocessableEntity, "idempotency key reused with a different request")
		return true
	}
	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
	case idempotency.StatusInProgress:
		respondMessage(c, http.StatusConflict, "request already in progress")
	default:
		respondMessage(c, http.StatusInternalServerError, "unknown idempotency status")
	}
	return true
}

func (h *ordersHandler) verifyPayment(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.VerifyPayment(c.Request.Context(), req.PaymentHandle, payment.Proof{
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, o)
}

func (h *ordersHandler) scan(c *gin.Context) {
	var req validation.ScanRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.Scan(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, o)
}

func (h *ordersHandler) deliver(c *gin.Context) {
	o, err := h.svc.Deliver(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, o)
}

func (h *ordersHandler) cancel(c *gin.Context) {
	if _, ok := h.authorizedOrder(c, true); !ok {
		return
	}
	o, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, o)
}

func (h *ordersHandler) refreshPaymentHandle(c *gin.Context) {
	if _, ok := h.authorizedOrder(c, false); !ok {
		return
	}
	o, intent, err := h.svc.RefreshPaymentHandle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, checkoutResponse{Order: o, Payment: intent})
}

func (h *ordersHandler) get(c *gin.Context) {
	o, ok := h.authorizedOrder(c, true)
	if !ok {
		return
	}
	respond(c, http.StatusOK, o)
}

func (h *ordersHandler) list(c *gin.Context) {
	list, err := h.svc.ListByOwner(c.Request.Context(), caller(c).AccountID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	respond(c, http.StatusOK, list)
}

// authorizedOrder loads the order in the path and checks the caller owns it,
// or is an admin when allowAdmin is set.
func (h *ordersHandler) authorizedOrder(c *gin.Context, allowAdmin bool) (*orders.Order, bool) {
	o, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	acct := caller(c)
	if o.OwnerID != acct.AccountID && !(allowAdmin && acct.IsAdmin()) {
		respondMessage(c, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return o, true
}

func (cfg HandlerConfig) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

func (cfg HandlerConfig) currency() string {
	if cfg.Currency != "" {
		return cfg.Currency
	}
	return "INR"
}
