package domain

import "github.com/shopspring/decimal"

// CartLine holds the product as it was when the line was last touched.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

func (l CartLine) Total() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SnapshotLine is the persisted form of a cart line. Product details are
// looked up again from the catalog when a snapshot is loaded.
type SnapshotLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CartView struct {
	Key        string          `json:"key"`
	Lines      []CartLine      `json:"lines"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}
