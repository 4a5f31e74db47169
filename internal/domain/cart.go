package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	SessionID string     `bson:"session_id" json:"session_id"`
	UserID    string     `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ID         string          `bson:"item_id" json:"id"`
	ProductID  int64           `bson:"product_id,omitempty" json:"product_id,omitempty"`
	Name       string          `bson:"name" json:"name"`
	Price      decimal.Decimal `bson:"price" json:"price"`
	Quantity   int             `bson:"quantity" json:"quantity"`
	IsGiftCard bool            `bson:"is_gift_card" json:"is_gift_card"`
	TaxEnabled bool            `bson:"tax_enabled" json:"tax_enabled"`
	Note       string          `bson:"note,omitempty" json:"note,omitempty"`
}

// LineTotal returns price multiplied by quantity, unrounded.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Taxable reports whether the line participates in tax calculation.
// Gift cards are never taxed; regular items opt out via TaxEnabled.
func (i CartItem) Taxable() bool {
	return !i.IsGiftCard && i.TaxEnabled
}
