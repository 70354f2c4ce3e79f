package lifecycle

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/events"
	"github.com/imrishuroy/canteen-orderflow/internal/orders"
	"github.com/imrishuroy/canteen-orderflow/internal/payment"
)

type memCatalog struct {
	mu    sync.Mutex
	items map[string]*catalog.Item
}

func newMemCatalog(items ...catalog.Item) *memCatalog {
	c := &memCatalog{items: map[string]*catalog.Item{}}
	for _, it := range items {
		it := it
		c.items[it.ItemID] = &it
	}
	return c
}

func (c *memCatalog) Get(ctx context.Context, itemID string) (*catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[itemID]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (c *memCatalog) stock(itemID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[itemID].StockCount
}

// memStore commits transitions with the same all-or-nothing rules as the
// DynamoDB store: stock conditions, then the order CAS, then lookup rows.
type memStore struct {
	mu     sync.Mutex
	cat    *memCatalog
	orders map[string]orders.Order
	refs   map[string]string
	tokens map[string]string

	tokenCollisions int
	commits         int
}

func newMemStore(cat *memCatalog) *memStore {
	return &memStore{
		cat:    cat,
		orders: map[string]orders.Order{},
		refs:   map[string]string{},
		tokens: map[string]string{},
	}
}

func (s *memStore) Create(ctx context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refs[o.PaymentReference]; ok {
		return orders.ErrReferenceTaken
	}
	s.orders[o.OrderID] = o
	s.refs[o.PaymentReference] = o.OrderID
	return nil
}

func (s *memStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *memStore) GetByPaymentReference(ctx context.Context, ref string) (*orders.Order, error) {
	s.mu.Lock()
	id, ok := s.refs[ref]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *memStore) GetByRedemptionToken(ctx context.Context, token string) (*orders.Order, error) {
	s.mu.Lock()
	id, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *memStore) ListByOwner(ctx context.Context, ownerID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.OwnerID == ownerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) Commit(ctx context.Context, from, to orders.Order, deltas []orders.StockDelta) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cat.mu.Lock()
	defer s.cat.mu.Unlock()

	for _, d := range deltas {
		it, ok := s.cat.items[d.ItemID]
		if !ok || it.StockCount+d.Delta < 0 {
			return from, orders.ErrStockUnavailable
		}
	}
	cur, ok := s.orders[from.OrderID]
	if !ok || cur.LifecycleState != from.LifecycleState || cur.Version != from.Version {
		return from, orders.ErrStatusMismatch
	}
	newToken := to.RedemptionToken != "" && to.RedemptionToken != from.RedemptionToken
	if newToken {
		if _, taken := s.tokens[to.RedemptionToken]; taken || s.tokenCollisions > 0 {
			s.tokenCollisions--
			return from, orders.ErrTokenTaken
		}
	}
	if to.PaymentReference != from.PaymentReference {
		if _, taken := s.refs[to.PaymentReference]; taken {
			return from, orders.ErrReferenceTaken
		}
	}

	for _, d := range deltas {
		s.cat.items[d.ItemID].StockCount += d.Delta
	}
	if newToken {
		s.tokens[to.RedemptionToken] = to.OrderID
	}
	if to.PaymentReference != from.PaymentReference {
		delete(s.refs, from.PaymentReference)
		s.refs[to.PaymentReference] = to.OrderID
	}
	to.Version = from.Version + 1
	s.orders[to.OrderID] = to
	s.commits++
	return to, nil
}

type fakeGateway struct {
	mu    sync.Mutex
	err   error
	block bool
	calls int
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency, receipt string) (payment.Intent, error) {
	g.mu.Lock()
	g.calls++
	n, err, block := g.calls, g.err, g.block
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return payment.Intent{}, ctx.Err()
	}
	if err != nil {
		return payment.Intent{}, err
	}
	return payment.Intent{ID: "pay_" + receipt + "_" + strconv.Itoa(n), Amount: amount, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (g *fakeGateway) set(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recorder) Notify(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

var errGatewayDown = errors.New("gateway down")
