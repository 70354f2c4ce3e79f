package orders

import (
	"sort"
	"time"
)

// LifecycleState is the order's position in its fulfilment workflow.
type LifecycleState string

const (
	StatePendingPayment LifecycleState = "pending_payment"
	StateActive         LifecycleState = "active"
	StateScanned        LifecycleState = "scanned"
	StateDelivered      LifecycleState = "delivered"
	StateCancelled      LifecycleState = "cancelled"
)

// PaymentState moves pending -> completed or pending -> failed, never back.
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentCompleted PaymentState = "completed"
	PaymentFailed    PaymentState = "failed"
)

// LineItem snapshots the menu item's name and price at checkout time.
type LineItem struct {
	ItemID    string `dynamodbav:"item_id" json:"item_id"`
	Name      string `dynamodbav:"name" json:"name"`
	Quantity  int64  `dynamodbav:"quantity" json:"quantity"`
	UnitPrice int64  `dynamodbav:"unit_price" json:"unit_price"` // minor units
}

func (l LineItem) Subtotal() int64 {
	return l.Quantity * l.UnitPrice
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID          string         `dynamodbav:"order_id" json:"order_id"` // PK
	OwnerID          string         `dynamodbav:"owner_id" json:"owner_id"` // GSI owner_id-index
	Lines            []LineItem     `dynamodbav:"lines" json:"lines"`
	Currency         string         `dynamodbav:"currency" json:"currency"`
	TotalAmount      int64          `dynamodbav:"total_amount" json:"total_amount"`
	PaymentReference string         `dynamodbav:"payment_reference" json:"payment_reference"`
	PaymentState     PaymentState   `dynamodbav:"payment_state" json:"payment_state"`
	RedemptionToken  string         `dynamodbav:"redemption_token,omitempty" json:"redemption_token,omitempty"`
	LifecycleState   LifecycleState `dynamodbav:"lifecycle_state" json:"lifecycle_state"`
	ScannedAt        *time.Time     `dynamodbav:"scanned_at,omitempty" json:"scanned_at,omitempty"`
	DeliveredAt      *time.Time     `dynamodbav:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	CancelledAt      *time.Time     `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CreatedAt        time.Time      `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `dynamodbav:"updated_at" json:"updated_at"`
	Version          int64          `dynamodbav:"version" json:"version"`
}

// StockDelta is a signed change to one menu item's stock count.
type StockDelta struct {
	ItemID string
	Delta  int64
}

// Total sums quantity x unit price over the lines.
func Total(lines []LineItem) int64 {
	var total int64
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

// New builds a pending order. The total is always derived from the lines.
func New(orderID, ownerID, currency string, lines []LineItem, paymentRef string, now time.Time) Order {
	cp := make([]LineItem, len(lines))
	copy(cp, lines)
	return Order{
		OrderID:          orderID,
		OwnerID:          ownerID,
		Lines:            cp,
		Currency:         currency,
		TotalAmount:      Total(cp),
		PaymentReference: paymentRef,
		PaymentState:     PaymentPending,
		LifecycleState:   StatePendingPayment,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
}

// stockDeltas merges the lines per item and applies sign to each quantity.
// The result is sorted by item id.
func (o Order) stockDeltas(sign int64) []StockDelta {
	byItem := map[string]int64{}
	for _, l := range o.Lines {
		byItem[l.ItemID] += l.Quantity
	}
	out := make([]StockDelta, 0, len(byItem))
	for id, qty := range byItem {
		out = append(out, StockDelta{ItemID: id, Delta: sign * qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
