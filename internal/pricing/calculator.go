// Package pricing derives order totals from a cart snapshot. Everything in
// here is pure: no clock beyond the caller-supplied now, no I/O, no rounding
// except at the tax and total boundaries.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopfront/checkout/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type TaxSettings struct {
	Enabled bool
	// Rate is a percentage, e.g. 21 for 21% VAT.
	Rate decimal.Decimal
}

// ComputeSubtotal sums price x quantity over all items.
func ComputeSubtotal(items []domain.CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// applicableSubtotal is the portion of the cart a coupon can discount.
// Unrestricted coupons cover everything; product-restricted coupons cover
// only matching lines.
func applicableSubtotal(items []domain.CartItem, coupon *domain.Coupon) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		if coupon.AppliesTo(item) {
			sum = sum.Add(item.LineTotal())
		}
	}
	return sum
}

// ComputeCouponDiscount returns the monetary discount for the coupon,
// clamped to the applicable subtotal. Free-shipping coupons are worth zero
// here; their effect lands in EffectiveShippingCost.
func ComputeCouponDiscount(items []domain.CartItem, coupon *domain.Coupon, now time.Time) decimal.Decimal {
	if !coupon.Usable(now) {
		return decimal.Zero
	}
	if ComputeSubtotal(items).LessThan(coupon.MinPurchase) {
		return decimal.Zero
	}

	switch coupon.DiscountType {
	case domain.DiscountFreeShipping:
		return decimal.Zero
	case domain.DiscountPercentage:
		base := applicableSubtotal(items, coupon)
		discount := base.Mul(coupon.DiscountValue).Div(hundred)
		if discount.GreaterThan(base) {
			return base
		}
		return discount
	case domain.DiscountFixed:
		base := applicableSubtotal(items, coupon)
		if coupon.DiscountValue.GreaterThan(base) {
			return base
		}
		return coupon.DiscountValue
	default:
		return decimal.Zero
	}
}

// ComputeTax applies the tax rate to the taxable share of the cart after
// allocating the discount proportionally. A coupon applied to the whole cart
// only partially offsets tax-relevant items, hence the taxable ratio.
func ComputeTax(items []domain.CartItem, discount decimal.Decimal, settings TaxSettings) decimal.Decimal {
	if !settings.Enabled {
		return decimal.Zero
	}

	subtotal := ComputeSubtotal(items)
	taxable := decimal.Zero
	for _, item := range items {
		if item.Taxable() {
			taxable = taxable.Add(item.LineTotal())
		}
	}
	if taxable.IsZero() || subtotal.IsZero() {
		return decimal.Zero
	}

	taxableRatio := taxable.Div(subtotal)
	taxableDiscount := discount.Mul(taxableRatio)
	taxableAfterDiscount := taxable.Sub(taxableDiscount)
	if taxableAfterDiscount.IsNegative() {
		taxableAfterDiscount = decimal.Zero
	}

	rate := settings.Rate.Div(hundred)
	return taxableAfterDiscount.Mul(rate).Round(2)
}

// EffectiveShippingCost is the quoted cost unless a free-shipping coupon
// overrides it to zero.
func EffectiveShippingCost(quoted decimal.Decimal, coupon *domain.Coupon) decimal.Decimal {
	if coupon != nil && coupon.DiscountType == domain.DiscountFreeShipping {
		return decimal.Zero
	}
	return quoted
}

// ComputeTotal rounds the grand total to two decimal places, half up.
func ComputeTotal(subtotal, discount, tax, effectiveShipping decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(tax).Add(effectiveShipping).Round(2)
}
