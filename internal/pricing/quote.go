package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopfront/checkout/internal/domain"
)

// Quote is the full totals breakdown for a cart, ready to be copied into a
// pending order.
type Quote struct {
	Subtotal       decimal.Decimal
	CouponDiscount decimal.Decimal
	Tax            decimal.Decimal
	Shipping       decimal.Decimal
	Total          decimal.Decimal
}

// Calculate runs the whole pipeline in order: subtotal, coupon discount,
// tax, shipping override, total.
func Calculate(items []domain.CartItem, coupon *domain.Coupon, quotedShipping decimal.Decimal, settings TaxSettings, now time.Time) Quote {
	subtotal := ComputeSubtotal(items)
	discount := ComputeCouponDiscount(items, coupon, now)
	tax := ComputeTax(items, discount, settings)
	shipping := EffectiveShippingCost(quotedShipping, coupon)

	return Quote{
		Subtotal:       subtotal,
		CouponDiscount: discount,
		Tax:            tax,
		Shipping:       shipping,
		Total:          ComputeTotal(subtotal, discount, tax, shipping),
	}
}
