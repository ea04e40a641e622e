package checkout

import (
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Coupon is a percentage (0.10 for 10%) or a flat amount off.
type Coupon struct {
	Percent decimal.Decimal
	Flat    decimal.Decimal
}

type Pricing struct {
	Currency              string
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	ExpressShippingFee    decimal.Decimal
	// Coupons is keyed by upper-case code.
	Coupons map[string]Coupon
}

type LineTotal struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

type Breakdown struct {
	Lines          []LineTotal     `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Coupon         string          `json:"coupon,omitempty"`
	ShippingMethod ShippingMethod  `json:"shipping_method"`
	Shipping       decimal.Decimal `json:"shipping"`
	Tax            decimal.Decimal `json:"tax"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	Currency       string          `json:"currency"`
}

func NormalizeCoupon(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LookupCoupon matches code exactly after normalization.
func (p Pricing) LookupCoupon(code string) (Coupon, bool) {
	c, ok := p.Coupons[NormalizeCoupon(code)]
	return c, ok
}

// Quote prices lines. Every derived amount is rounded half away from zero to cents.
func (p Pricing) Quote(lines []domain.CartLine, couponCode string, method ShippingMethod) (Breakdown, error) {
	if method == "" {
		method = ShippingStandard
	}
	if !method.Valid() {
		return Breakdown{}, ErrUnknownShippingMethod
	}

	b := Breakdown{
		Lines:          make([]LineTotal, 0, len(lines)),
		Subtotal:       decimal.Zero,
		Discount:       decimal.Zero,
		ShippingMethod: method,
		Currency:       p.Currency,
	}
	for _, l := range lines {
		total := round2(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		b.Lines = append(b.Lines, LineTotal{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
			Total:     total,
		})
		b.Subtotal = b.Subtotal.Add(total)
	}

	if couponCode != "" {
		c, ok := p.LookupCoupon(couponCode)
		if !ok {
			return Breakdown{}, ErrUnknownCoupon
		}
		b.Coupon = NormalizeCoupon(couponCode)
		if c.Percent.IsPositive() {
			b.Discount = round2(b.Subtotal.Mul(c.Percent))
		} else {
			b.Discount = round2(c.Flat)
		}
		if b.Discount.GreaterThan(b.Subtotal) {
			b.Discount = b.Subtotal
		}
	}

	switch {
	case len(lines) == 0:
		b.Shipping = decimal.Zero
	case method == ShippingExpress:
		b.Shipping = round2(p.ExpressShippingFee)
	case b.Subtotal.GreaterThanOrEqual(p.FreeShippingThreshold):
		b.Shipping = decimal.Zero
	default:
		b.Shipping = round2(p.FlatShippingFee)
	}

	b.Tax = round2(b.Subtotal.Sub(b.Discount).Mul(p.TaxRate))
	b.GrandTotal = round2(b.Subtotal.Add(b.Shipping).Add(b.Tax).Sub(b.Discount))
	return b, nil
}

// round2 rounds half away from zero.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
