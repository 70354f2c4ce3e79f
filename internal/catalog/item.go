// Package catalog holds the canteen menu and its live stock counts.
package catalog

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrInsufficientStock means a stock change would take the count below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrItemNotFound means no catalog item exists for the id.
	ErrItemNotFound = errors.New("catalog item not found")
)

// Item is a purchasable menu entry.
type Item struct {
	ItemID     string    `dynamodbav:"item_id" json:"item_id"` // PK
	Name       string    `dynamodbav:"name" json:"name"`
	UnitPrice  int64     `dynamodbav:"unit_price" json:"unit_price"` // minor units
	Currency   string    `dynamodbav:"currency" json:"currency"`
	StockCount int64     `dynamodbav:"stock_count" json:"stock_count"`
	Category   string    `dynamodbav:"category" json:"category"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Available reports whether at least one unit is in stock.
func (i Item) Available() bool {
	return i.StockCount > 0
}

// MarshalJSON adds the derived available flag.
func (i Item) MarshalJSON() ([]byte, error) {
	type plain Item
	return json.Marshal(struct {
		plain
		Available bool `json:"available"`
	}{plain(i), i.Available()})
}
