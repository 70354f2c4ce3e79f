package lifecycle

import (
	"errors"

	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/orders"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrInsufficientStock         = catalog.ErrInsufficientStock
	ErrInvalidState              = orders.ErrInvalidTransition
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	// ErrUpstreamUnavailable is logged when the gateway cannot be reached.
	// Checkout recovers with a placeholder handle and never returns it.
	ErrUpstreamUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidRequest      = errors.New("invalid request")
	// ErrConflict means the order kept changing underneath the transition;
	// the caller may retry.
	ErrConflict = errors.New("concurrent update")
)

// errUnchanged short-circuits a transition that was already applied.
var errUnchanged = errors.New("transition already applied")
