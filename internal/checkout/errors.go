package checkout

import (
	"errors"
	"strings"
)

var (
	ErrEmptyCart             = errors.New("cart is empty, nothing to checkout")
	ErrCheckoutNotFound      = errors.New("checkout not found")
	ErrIllegalTransition     = errors.New("illegal transition of checkout step")
	ErrCheckoutCompleted     = errors.New("checkout already completed")
	ErrUnknownCoupon         = errors.New("unknown coupon code")
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
	ErrNoPayment             = errors.New("no payment in progress")
	ErrOrderMismatch         = errors.New("order does not belong to this checkout")
	ErrCartChanged           = errors.New("cart changed since payment started")
)

// ValidationError lists the address fields that were left empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}
