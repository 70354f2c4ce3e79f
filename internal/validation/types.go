package validation

// LineRequest is a single cart line.
type LineRequest struct {
	ItemID   string `json:"item_id" validate:"required"`               // catalog item id
	Quantity int64  `json:"quantity" validate:"required,min=1,max=20"` // per line
}

// CheckoutRequest is the payload for POST /orders/checkout
type CheckoutRequest struct {
	Items []LineRequest `json:"items" validate:"required,min=1,max=20,dive"`
}

// VerifyPaymentRequest is the payload for POST /orders/verify-payment
type VerifyPaymentRequest struct {
	PaymentHandle string `json:"payment_handle" validate:"required"`
	PaymentID     string `json:"payment_id" validate:"required"`
	Signature     string `json:"signature" validate:"required,hexadecimal"`
}

// ScanRequest is the payload for POST /orders/scan
type ScanRequest struct {
	Token string `json:"token" validate:"required,startswith=ORD-"`
}

// CreateMenuItemRequest is the payload for POST /menu
type CreateMenuItemRequest struct {
	ItemID     string `json:"item_id,omitempty"` // generated when empty
	Name       string `json:"name" validate:"required,max=100"`
	UnitPrice  int64  `json:"unit_price" validate:"required,gt=0"` // minor units
	StockCount int64  `json:"stock_count" validate:"min=0"`
	Category   string `json:"category" validate:"required,max=50"`
}

// AdjustStockRequest is the payload for POST /menu/:id/stock
type AdjustStockRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}
