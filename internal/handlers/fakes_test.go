package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/canteen-orderflow/internal/accounts"
	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/idempotency"
	"github.com/imrishuroy/canteen-orderflow/internal/lifecycle"
	"github.com/imrishuroy/canteen-orderflow/internal/orders"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

type fakeAccounts map[string]accounts.Account

func (f fakeAccounts) Get(ctx context.Context, id string) (*accounts.Account, error) {
	a, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

var testAccounts = fakeAccounts{
	"student-1": {AccountID: "student-1", Role: accounts.RoleStudent},
	"student-2": {AccountID: "student-2", Role: accounts.RoleStudent},
	"admin-1":   {AccountID: "admin-1", Role: accounts.RoleAdmin},
}

// fakeOrders records calls and returns canned results.
type fakeOrders struct {
	mu            sync.Mutex
	order         orders.Order
	err           error
	checkoutCalls int
	lastLines     []lifecycle.LineRequest
	lastProof     payment.Proof
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{order: orders.Order{
		OrderID:          "o1",
		OwnerID:          "student-1",
		TotalAmount:      40,
		Currency:         "INR",
		PaymentReference: "pay_1",
		PaymentState:     orders.PaymentPending,
		LifecycleState:   orders.StatePendingPayment,
		Version:          1,
	}}
}

func (f *fakeOrders) result() (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	o := f.order
	return &o, nil
}

func (f *fakeOrders) Checkout(ctx context.Context, ownerID string, lines []lifecycle.LineRequest) (*orders.Order, payment.Intent, error) {
	f.mu.Lock()
	f.checkoutCalls++
	f.lastLines = lines
	f.mu.Unlock()
	o, err := f.result()
	if err != nil {
		return nil, payment.Intent{}, err
	}
	return o, payment.Intent{ID: o.PaymentReference, Amount: o.TotalAmount, Currency: o.Currency}, nil
}

func (f *fakeOrders) VerifyPayment(ctx context.Context, handle string, proof payment.Proof) (*orders.Order, error) {
	f.mu.Lock()
	f.lastProof = proof
	f.mu.Unlock()
	return f.result()
}

func (f *fakeOrders) Scan(ctx context.Context, token string) (*orders.Order, error) { return f.result() }

func (f *fakeOrders) Deliver(ctx context.Context, orderID string) (*orders.Order, error) {
	return f.result()
}

func (f *fakeOrders) Cancel(ctx context.Context, orderID string) (*orders.Order, error) {
	return f.result()
}

func (f *fakeOrders) RefreshPaymentHandle(ctx context.Context, orderID string) (*orders.Order, payment.Intent, error) {
	o, err := f.result()
	if err != nil {
		return nil, payment.Intent{}, err
	}
	return o, payment.Intent{ID: o.PaymentReference}, nil
}

func (f *fakeOrders) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if orderID != f.order.OrderID {
		return nil, lifecycle.ErrNotFound
	}
	o := f.order
	return &o, nil
}

func (f *fakeOrders) ListByOwner(ctx context.Context, ownerID string) ([]orders.Order, error) {
	o, err := f.result()
	if err != nil {
		return nil, err
	}
	if o.OwnerID != ownerID {
		return nil, nil
	}
	return []orders.Order{*o}, nil
}

type memIdempotency struct {
	mu   sync.Mutex
	recs map[string]*idempotency.IdempotencyRecord
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{recs: map[string]*idempotency.IdempotencyRecord{}}
}

func (m *memIdempotency) Begin(ctx context.Context, key, hash string) (*idempotency.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[key]; ok && rec.Status != idempotency.StatusFailed {
		cp := *rec
		return &cp, false, nil
	}
	m.recs[key] = &idempotency.IdempotencyRecord{IdempotencyKey: key, RequestHash: hash, Status: idempotency.StatusInProgress}
	return nil, true, nil
}

func (m *memIdempotency) MarkDone(ctx context.Context, key, orderID, body string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recs[key]
	rec.Status, rec.OrderID, rec.ResponseBody, rec.ResponseStatus = idempotency.StatusDone, orderID, body, status
	return nil
}

func (m *memIdempotency) MarkFailed(ctx context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key].Status = idempotency.StatusFailed
	m.recs[key].Note = note
	return nil
}

type fakeMenu struct {
	items map[string]catalog.Item
}

func (f *fakeMenu) List(ctx context.Context, category string) ([]catalog.Item, error) {
	var out []catalog.Item
	for _, it := range f.items {
		if category == "" || it.Category == category {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeMenu) Get(ctx context.Context, id string) (*catalog.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (f *fakeMenu) Put(ctx context.Context, it catalog.Item) (catalog.Item, error) {
	f.items[it.ItemID] = it
	return it, nil
}

func (f *fakeMenu) AdjustStock(ctx context.Context, id string, delta int64) (*catalog.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, catalog.ErrItemNotFound
	}
	if it.StockCount+delta < 0 {
		return nil, catalog.ErrInsufficientStock
	}
	it.StockCount += delta
	f.items[id] = it
	return &it, nil
}

type recordingCache struct{ invalidated []string }

func (r *recordingCache) Invalidate(ctx context.Context, categories ...string) {
	r.invalidated = append(r.invalidated, categories...)
}

type fakeRelay struct {
	bodies []string
	attrs  []map[string]string
}

func (f *fakeRelay) SendMessage(ctx context.Context, body string, attrs map[string]string) error {
	f.bodies = append(f.bodies, body)
	f.attrs = append(f.attrs, attrs)
	return nil
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}
