// Package lifecycle drives an order from checkout through payment,
// redemption and delivery, keeping stock and redemption tokens consistent.
package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/events"
	"github.com/imrishuroy/canteen-orderflow/internal/orders"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

const (
	defaultPaymentTimeout = 5 * time.Second
	defaultCurrency       = "INR"
	catalogReadLimit      = 8
	maxCommitAttempts     = 3
)

// Catalog reads menu items.
type Catalog interface {
	Get(ctx context.Context, itemID string) (*catalog.Item, error)
}

// OrderStore persists orders and commits transitions atomically with their
// stock changes.
type OrderStore interface {
	Create(ctx context.Context, o orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	GetByPaymentReference(ctx context.Context, ref string) (*orders.Order, error)
	GetByRedemptionToken(ctx context.Context, token string) (*orders.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]orders.Order, error)
	Commit(ctx context.Context, from, to orders.Order, deltas []orders.StockDelta) (orders.Order, error)
}

// Verifier checks payment confirmation proofs.
type Verifier interface {
	Verify(handle string, proof payment.Proof) error
}

// LineRequest is one requested cart line.
type LineRequest struct {
	ItemID   string
	Quantity int64
}

// Deps are the collaborators of a Manager. Logger, Now, Rand, Notifier,
// PaymentTimeout and Currency have defaults.
type Deps struct {
	Catalog        Catalog
	Orders         OrderStore
	Gateway        payment.Gateway
	Verifier       Verifier
	Notifier       events.Notifier
	Logger         *slog.Logger
	Now            func() time.Time
	Rand           io.Reader
	PaymentTimeout time.Duration
	Currency       string
}

type Manager struct {
	catalog        Catalog
	orders         OrderStore
	gateway        payment.Gateway
	verifier       Verifier
	notifier       events.Notifier
	logger         *slog.Logger
	now            func() time.Time
	rand           io.Reader
	paymentTimeout time.Duration
	currency       string
}

func New(d Deps) *Manager {
	m := &Manager{
		catalog:        d.Catalog,
		orders:         d.Orders,
		gateway:        d.Gateway,
		verifier:       d.Verifier,
		notifier:       d.Notifier,
		logger:         d.Logger,
		now:            d.Now,
		rand:           d.Rand,
		paymentTimeout: d.PaymentTimeout,
		currency:       d.Currency,
	}
	if m.notifier == nil {
		m.notifier = events.Discard{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.rand == nil {
		m.rand = rand.Reader
	}
	if m.paymentTimeout <= 0 {
		m.paymentTimeout = defaultPaymentTimeout
	}
	if m.currency == "" {
		m.currency = defaultCurrency
	}
	return m
}

// Checkout prices the cart against live stock and opens a pending order.
// Stock is only checked here; it is taken when the payment is verified.
func (m *Manager) Checkout(ctx context.Context, ownerID string, req []LineRequest) (*orders.Order, payment.Intent, error) {
	if ownerID == "" {
		return nil, payment.Intent{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	lines, err := mergeLines(req)
	if err != nil {
		return nil, payment.Intent{}, err
	}

	items := make([]*catalog.Item, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogReadLimit)
	for i, l := range lines {
		i, l := i, l
		g.Go(func() error {
			it, err := m.catalog.Get(gctx, l.ItemID)
			if err != nil {
				return fmt.Errorf("get catalog item %s: %w", l.ItemID, err)
			}
			items[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, payment.Intent{}, err
	}

	orderLines := make([]orders.LineItem, len(lines))
	for i, l := range lines {
		it := items[i]
		if it == nil {
			return nil, payment.Intent{}, fmt.Errorf("%w: catalog item %s", ErrNotFound, l.ItemID)
		}
		if it.Currency != "" && it.Currency != m.currency {
			return nil, payment.Intent{}, fmt.Errorf("%w: item %s is priced in %s", ErrInvalidRequest, it.ItemID, it.Currency)
		}
		if l.Quantity > it.StockCount {
			return nil, payment.Intent{}, fmt.Errorf("%w: %s has %d left, %d requested", ErrInsufficientStock, it.Name, it.StockCount, l.Quantity)
		}
		orderLines[i] = orders.LineItem{ItemID: it.ItemID, Name: it.Name, Quantity: l.Quantity, UnitPrice: it.UnitPrice}
	}

	orderID := uuid.NewString()
	total := orders.Total(orderLines)
	intent := m.createIntent(ctx, orderID, total)

	o := orders.New(orderID, ownerID, m.currency, orderLines, intent.ID, m.now().UTC())
	if err := m.orders.Create(ctx, o); err != nil {
		return nil, payment.Intent{}, fmt.Errorf("create order: %w", err)
	}

	m.logger.Info("order created", "order_id", o.OrderID, "payment_reference", o.PaymentReference, "total", o.TotalAmount)
	m.emit(ctx, events.TypeOrderCreated, o)
	return &o, intent, nil
}

// createIntent asks the gateway for a payment handle and falls back to a
// local placeholder when it fails or times out.
func (m *Manager) createIntent(ctx context.Context, orderID string, amount int64) payment.Intent {
	intent, err := m.requestIntent(ctx, orderID, amount)
	if err != nil {
		m.logger.Warn("using placeholder payment handle", "order_id", orderID, "error", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err))
		return payment.PlaceholderIntent(amount, m.currency, orderID)
	}
	return intent
}

func (m *Manager) requestIntent(ctx context.Context, orderID string, amount int64) (payment.Intent, error) {
	if m.gateway == nil {
		return payment.Intent{}, ErrUpstreamUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, m.paymentTimeout)
	defer cancel()
	return m.gateway.CreatePaymentIntent(ctx, amount, m.currency, orderID)
}

// VerifyPayment confirms the payment behind handle, takes the stock and
// issues the redemption token. Repeating it for a paid order returns the
// order unchanged.
func (m *Manager) VerifyPayment(ctx context.Context, handle string, proof payment.Proof) (*orders.Order, error) {
	if err := m.verifier.Verify(handle, proof); err != nil {
		m.logger.Warn("payment verification failed", "payment_reference", handle, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPaymentVerificationFailed, err)
	}
	o, err := m.byPaymentReference(ctx, handle)
	if err != nil {
		return nil, err
	}

	committed, err := m.apply(ctx, *o, func(cur orders.Order) (orders.Order, []orders.StockDelta, error) {
		if cur.PaymentState == orders.PaymentCompleted && cur.LifecycleState != orders.StateCancelled {
			return cur, nil, errUnchanged
		}
		token, err := m.newToken()
		if err != nil {
			return cur, nil, err
		}
		return cur.Activate(token, m.now().UTC())
	})
	if errors.Is(err, errUnchanged) {
		m.logger.Info("payment already verified", "order_id", committed.OrderID, "state", committed.LifecycleState)
		return &committed, nil
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("order activated", "order_id", committed.OrderID, "payment_reference", handle, "state", committed.LifecycleState)
	m.emit(ctx, events.TypeOrderActivated, committed)
	return &committed, nil
}

// FailPayment records a declined payment reported by the gateway.
func (m *Manager) FailPayment(ctx context.Context, handle string, proof payment.Proof) (*orders.Order, error) {
	if err := m.verifier.Verify(handle, proof); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentVerificationFailed, err)
	}
	o, err := m.byPaymentReference(ctx, handle)
	if err != nil {
		return nil, err
	}

	committed, err := m.apply(ctx, *o, func(cur orders.Order) (orders.Order, []orders.StockDelta, error) {
		if cur.PaymentState == orders.PaymentFailed {
			return cur, nil, errUnchanged
		}
		next, err := cur.FailPayment(m.now().UTC())
		return next, nil, err
	})
	if errors.Is(err, errUnchanged) {
		return &committed, nil
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("payment failed", "order_id", committed.OrderID, "payment_reference", handle)
	m.emit(ctx, events.TypePaymentFailed, committed)
	return &committed, nil
}

// Scan redeems a redemption token at the counter. Only one concurrent scan
// of the same token can succeed.
func (m *Manager) Scan(ctx context.Context, token string) (*orders.Order, error) {
	o, err := m.orders.GetByRedemptionToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get order by token: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: no order for token", ErrNotFound)
	}
	committed, err := m.apply(ctx, *o, func(cur orders.Order) (orders.Order, []orders.StockDelta, error) {
		next, err := cur.Scan(m.now().UTC())
		return next, nil, err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("order scanned", "order_id", committed.OrderID, "state", committed.LifecycleState)
	m.emit(ctx, events.TypeOrderScanned, committed)
	return &committed, nil
}

func (m *Manager) Deliver(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	committed, err := m.apply(ctx, *o, func(cur orders.Order) (orders.Order, []orders.StockDelta, error) {
		next, err := cur.Deliver(m.now().UTC())
		return next, nil, err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("order delivered", "order_id", committed.OrderID, "state", committed.LifecycleState)
	m.emit(ctx, events.TypeOrderDelivered, committed)
	return &committed, nil
}

// Cancel cancels an unpaid or active order. Stock taken at activation is
// returned in the same transaction.
func (m *Manager) Cancel(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	committed, err := m.apply(ctx, *o, func(cur orders.Order) (orders.Order, []orders.StockDelta, error) {
		return cur.Cancel(m.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("order cancelled", "order_id", committed.OrderID, "state", committed.LifecycleState)
	m.emit(ctx, events.TypeOrderCancelled, committed)
	return &committed, nil
}

// RefreshPaymentHandle retries the gateway for an unpaid order that was
// given a placeholder handle. If the gateway is still down the order is
// returned unchanged.
func (m *Manager) RefreshPaymentHandle(ctx context.Context, orderID string) (*orders.Order, payment.Intent, error) {
	o, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, payment.Intent{}, err
	}
	if _, err := o.ReplacePaymentReference(o.PaymentReference, m.now()); err != nil {
		return nil, payment.Intent{}, err
	}
	if !payment.IsPlaceholder(o.PaymentReference) {
		return o, handleOf(*o), nil
	}

	intent, err := m.requestIntent(ctx, o.OrderID, o.TotalAmount)
	if err != nil {
		m.logger.Warn("payment gateway still unavailable", "order_id", o.OrderID, "error", fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err))
		return o, handleOf(*o), nil
	}

	committed, err := m.apply(ctx, *o, func(cur orders.Order) (orders.Order, []orders.StockDelta, error) {
		if !payment.IsPlaceholder(cur.PaymentReference) {
			return cur, nil, errUnchanged
		}
		next, err := cur.ReplacePaymentReference(intent.ID, m.now().UTC())
		return next, nil, err
	})
	if errors.Is(err, errUnchanged) {
		return &committed, handleOf(committed), nil
	}
	if err != nil {
		return nil, payment.Intent{}, err
	}
	m.logger.Info("payment handle replaced", "order_id", committed.OrderID, "payment_reference", committed.PaymentReference)
	return &committed, intent, nil
}

func (m *Manager) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return o, nil
}

func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]orders.Order, error) {
	list, err := m.orders.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

func (m *Manager) byPaymentReference(ctx context.Context, handle string) (*orders.Order, error) {
	o, err := m.orders.GetByPaymentReference(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("get order by payment reference: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: no order for payment %s", ErrNotFound, handle)
	}
	return o, nil
}

// apply runs step against o and commits the result. A lost compare-and-swap
// re-reads the order and runs step again against the fresh copy, so a
// transition that is no longer valid surfaces as ErrInvalidState with the
// current state. It returns the latest known order alongside any error.
func (m *Manager) apply(ctx context.Context, o orders.Order, step func(orders.Order) (orders.Order, []orders.StockDelta, error)) (orders.Order, error) {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		next, deltas, err := step(o)
		if err != nil {
			return o, err
		}
		committed, err := m.orders.Commit(ctx, o, next, deltas)
		switch {
		case err == nil:
			return committed, nil
		case errors.Is(err, orders.ErrStockUnavailable):
			return o, fmt.Errorf("%w: cannot commit stock for order %s", ErrInsufficientStock, o.OrderID)
		case errors.Is(err, orders.ErrTokenTaken):
			m.logger.Warn("redemption token collision, retrying", "order_id", o.OrderID)
			continue
		case errors.Is(err, orders.ErrStatusMismatch):
			fresh, gerr := m.orders.Get(ctx, o.OrderID)
			if gerr != nil {
				return o, fmt.Errorf("reload order: %w", gerr)
			}
			if fresh == nil {
				return o, fmt.Errorf("%w: order %s", ErrNotFound, o.OrderID)
			}
			if fresh.Version == o.Version {
				return o, fmt.Errorf("%w: order %s", ErrConflict, o.OrderID)
			}
			o = *fresh
		default:
			return o, fmt.Errorf("commit order %s: %w", o.OrderID, err)
		}
	}
	return o, fmt.Errorf("%w: order %s after %d attempts", ErrConflict, o.OrderID, maxCommitAttempts)
}

// newToken mints "ORD-<unix millis>-<16 hex chars>".
func (m *Manager) newToken() (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(m.rand, b[:]); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return fmt.Sprintf("ORD-%d-%s", m.now().UnixMilli(), hex.EncodeToString(b[:])), nil
}

func (m *Manager) emit(ctx context.Context, typ string, o orders.Order) {
	err := m.notifier.Notify(ctx, events.Event{
		Type:           typ,
		OrderID:        o.OrderID,
		OwnerID:        o.OwnerID,
		LifecycleState: string(o.LifecycleState),
		PaymentState:   string(o.PaymentState),
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		OccurredAt:     o.UpdatedAt,
	})
	if err != nil {
		m.logger.Warn("event delivery failed", "order_id", o.OrderID, "event", typ, "error", err)
	}
}

func handleOf(o orders.Order) payment.Intent {
	return payment.Intent{
		ID:       o.PaymentReference,
		Amount:   o.TotalAmount,
		Currency: o.Currency,
		Receipt:  o.OrderID,
		Status:   "created",
	}
}

// mergeLines validates the cart and folds repeated items into one line,
// keeping first-seen order.
func mergeLines(req []LineRequest) ([]LineRequest, error) {
	if len(req) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidRequest)
	}
	idx := make(map[string]int, len(req))
	out := make([]LineRequest, 0, len(req))
	for _, l := range req {
		if l.ItemID == "" {
			return nil, fmt.Errorf("%w: item id is required", ErrInvalidRequest)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidRequest, l.ItemID)
		}
		if i, ok := idx[l.ItemID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ItemID] = len(out)
		out = append(out, l)
	}
	return out, nil
}
