package checkout

import (
	"strings"
	"time"
)

type Step string

const (
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

var stepTransitions = map[Step][]Step{
	StepShipping: {StepPayment},
	StepPayment:  {StepShipping, StepConfirmation},
}

func CanTransitionTo(from, to Step) bool {
	for _, s := range stepTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingStandard || m == ShippingExpress
}

type Address struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

// Validate returns a *ValidationError naming every required field that is blank.
func (a Address) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"email", a.Email},
		{"phone", a.Phone},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Session is one pass through the checkout flow.
type Session struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	CartKey  string         `json:"cart_key"`
	Step     Step           `json:"step"`
	Address  Address        `json:"address"`
	Coupon   string         `json:"coupon,omitempty"`
	Shipping ShippingMethod `json:"shipping_method"`
	OrderID  string         `json:"order_id,omitempty"`
	// Attempts counts orders created for this checkout; it keeps receipts unique.
	Attempts  int       `json:"-"`
	PaymentID string    `json:"payment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// priced holds the lines the live order was priced from.
	priced []LineTotal
}

// sameLines reports whether a and b hold the same products in the same quantities.
func sameLines(a, b []LineTotal) bool {
	if len(a) != len(b) {
		return false
	}
	qty := make(map[string]int, len(a))
	for _, l := range a {
		qty[l.ProductID] += l.Quantity
	}
	for _, l := range b {
		qty[l.ProductID] -= l.Quantity
	}
	for _, n := range qty {
		if n != 0 {
			return false
		}
	}
	return true
}
