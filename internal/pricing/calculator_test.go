package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/checkout/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mixedCart() []domain.CartItem {
	return []domain.CartItem{
		{ID: "a", Name: "poster", Price: dec("10"), Quantity: 2, TaxEnabled: true},
		{ID: "b", Name: "gift card", Price: dec("5"), Quantity: 1, IsGiftCard: true, TaxEnabled: true},
	}
}

func percentCoupon(value string) *domain.Coupon {
	return &domain.Coupon{
		Code:          "TEN",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: dec(value),
		Active:        true,
	}
}

var vat21 = TaxSettings{Enabled: true, Rate: dec("21")}

func TestComputeSubtotal(t *testing.T) {
	assert.True(t, ComputeSubtotal(mixedCart()).Equal(dec("25")))
	assert.True(t, ComputeSubtotal(nil).IsZero())
}

func TestComputeSubtotal_OrderIndependent(t *testing.T) {
	items := mixedCart()
	reversed := []domain.CartItem{items[1], items[0]}
	assert.True(t, ComputeSubtotal(items).Equal(ComputeSubtotal(reversed)))
}

func TestMixedCartWithPercentageCoupon(t *testing.T) {
	items := mixedCart()
	now := time.Now()

	subtotal := ComputeSubtotal(items)
	discount := ComputeCouponDiscount(items, percentCoupon("10"), now)
	tax := ComputeTax(items, discount, vat21)
	shipping := EffectiveShippingCost(dec("5.00"), percentCoupon("10"))
	total := ComputeTotal(subtotal, discount, tax, shipping)

	assert.True(t, subtotal.Equal(dec("25")), "subtotal = %s", subtotal)
	assert.True(t, discount.Equal(dec("2.5")), "discount = %s", discount)
	// taxable 20.00, ratio 0.8, taxable discount 2.00, base 18.00, 21% = 3.78
	assert.True(t, tax.Equal(dec("3.78")), "tax = %s", tax)
	assert.True(t, shipping.Equal(dec("5.00")), "shipping = %s", shipping)
	assert.True(t, total.Equal(dec("31.28")), "total = %s", total)
}

func TestFreeShippingCoupon(t *testing.T) {
	items := mixedCart()
	coupon := &domain.Coupon{
		Code:         "SHIPFREE",
		DiscountType: domain.DiscountFreeShipping,
		Active:       true,
	}
	now := time.Now()

	discount := ComputeCouponDiscount(items, coupon, now)
	require.True(t, discount.IsZero(), "free shipping has no monetary discount")

	shipping := EffectiveShippingCost(dec("12.50"), coupon)
	assert.True(t, shipping.IsZero())

	tax := ComputeTax(items, discount, vat21)
	total := ComputeTotal(ComputeSubtotal(items), discount, tax, shipping)
	assert.True(t, total.Equal(ComputeSubtotal(items).Add(tax)))
}

func TestComputeTax_AllGiftCards(t *testing.T) {
	items := []domain.CartItem{
		{ID: "a", Price: dec("25"), Quantity: 1, IsGiftCard: true, TaxEnabled: true},
		{ID: "b", Price: dec("50"), Quantity: 2, IsGiftCard: true, TaxEnabled: true},
	}
	assert.True(t, ComputeTax(items, decimal.Zero, vat21).IsZero())
}

func TestComputeTax_TaxDisabledGlobally(t *testing.T) {
	tax := ComputeTax(mixedCart(), decimal.Zero, TaxSettings{Enabled: false, Rate: dec("21")})
	assert.True(t, tax.IsZero())
}

func TestComputeTax_TaxDisabledPerItem(t *testing.T) {
	items := []domain.CartItem{
		{ID: "a", Price: dec("30"), Quantity: 1, TaxEnabled: false},
	}
	assert.True(t, ComputeTax(items, decimal.Zero, vat21).IsZero())
}

func TestComputeTax_EmptyCart(t *testing.T) {
	assert.True(t, ComputeTax(nil, decimal.Zero, vat21).IsZero())
}

func TestComputeCouponDiscount_Clamped(t *testing.T) {
	items := []domain.CartItem{{ID: "a", Price: dec("10"), Quantity: 1, TaxEnabled: true}}
	now := time.Now()

	fixed := &domain.Coupon{
		Code:          "BIG",
		DiscountType:  domain.DiscountFixed,
		DiscountValue: dec("50"),
		Active:        true,
	}
	discount := ComputeCouponDiscount(items, fixed, now)
	assert.True(t, discount.Equal(dec("10")), "fixed discount clamps to subtotal")

	over := percentCoupon("150")
	discount = ComputeCouponDiscount(items, over, now)
	assert.True(t, discount.Equal(dec("10")), "percentage discount clamps to subtotal")
}

func TestComputeCouponDiscount_BelowMinPurchase(t *testing.T) {
	items := []domain.CartItem{{ID: "a", Price: dec("10"), Quantity: 1, TaxEnabled: true}}
	coupon := percentCoupon("10")
	coupon.MinPurchase = dec("20")

	assert.True(t, ComputeCouponDiscount(items, coupon, time.Now()).IsZero())
}

func TestComputeCouponDiscount_InactiveExpiredExhausted(t *testing.T) {
	items := mixedCart()
	now := time.Now()

	inactive := percentCoupon("10")
	inactive.Active = false
	assert.True(t, ComputeCouponDiscount(items, inactive, now).IsZero())

	expired := percentCoupon("10")
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past
	assert.True(t, ComputeCouponDiscount(items, expired, now).IsZero())

	exhausted := percentCoupon("10")
	exhausted.MaxUses = 3
	exhausted.TimesUsed = 3
	assert.True(t, ComputeCouponDiscount(items, exhausted, now).IsZero())

	assert.True(t, ComputeCouponDiscount(items, nil, now).IsZero())
}

func TestComputeCouponDiscount_ProductRestricted(t *testing.T) {
	items := []domain.CartItem{
		{ID: "a", ProductID: 7, Price: dec("10"), Quantity: 2, TaxEnabled: true},
		{ID: "b", ProductID: 9, Price: dec("40"), Quantity: 1, TaxEnabled: true},
	}
	coupon := percentCoupon("50")
	coupon.ProductID = 7

	// only the 20.00 line for product 7 is discountable
	discount := ComputeCouponDiscount(items, coupon, time.Now())
	assert.True(t, discount.Equal(dec("10")), "discount = %s", discount)
}

func TestComputeTax_DiscountLargerThanTaxable(t *testing.T) {
	// a fixed discount that wipes out the taxable share must not push the
	// taxable base negative
	items := []domain.CartItem{
		{ID: "a", Price: dec("10"), Quantity: 1, TaxEnabled: true},
	}
	tax := ComputeTax(items, dec("15"), vat21)
	assert.True(t, tax.IsZero())
}

func TestCalculate_Quote(t *testing.T) {
	q := Calculate(mixedCart(), percentCoupon("10"), dec("5.00"), vat21, time.Now())

	assert.True(t, q.Subtotal.Equal(dec("25")))
	assert.True(t, q.CouponDiscount.Equal(dec("2.5")))
	assert.True(t, q.Tax.Equal(dec("3.78")))
	assert.True(t, q.Shipping.Equal(dec("5.00")))
	assert.True(t, q.Total.Equal(dec("31.28")))
}
