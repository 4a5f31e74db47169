package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixed        DiscountType = "fixed"
	DiscountFreeShipping DiscountType = "free_shipping"
)

type Coupon struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MinPurchase   decimal.Decimal `json:"min_purchase"`
	MaxUses       int             `json:"max_uses"`
	TimesUsed     int             `json:"times_used"`
	// ProductID restricts the coupon to a single product when non-zero.
	ProductID int64      `json:"product_id,omitempty"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the coupon can still be applied at the given time.
// It does not check minimum purchase; that depends on the cart.
func (c *Coupon) Usable(now time.Time) bool {
	if c == nil || !c.Active {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.MaxUses > 0 && c.TimesUsed >= c.MaxUses {
		return false
	}
	return true
}

// AppliesTo reports whether the coupon covers the given cart item.
func (c *Coupon) AppliesTo(item CartItem) bool {
	if c == nil {
		return false
	}
	if c.ProductID == 0 {
		return true
	}
	return item.ProductID == c.ProductID
}

// FromLoyaltyRedemption reports whether this coupon was minted by a
// single-use loyalty redemption.
func (c *Coupon) FromLoyaltyRedemption() bool {
	return c != nil && c.MaxUses == 1
}
