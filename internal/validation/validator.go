package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// MaxCartQuantity caps the total number of units in one checkout.
const MaxCartQuantity = 50

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// cap the summed quantity across all lines of a checkout
	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	var units int64
	for _, it := range req.Items {
		units += it.Quantity
	}
	if units > MaxCartQuantity {
		sl.ReportError(req.Items, "items", "Items", "cart_quantity", fmt.Sprintf("%d", MaxCartQuantity))
	}
}
