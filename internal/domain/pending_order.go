package domain

import "github.com/shopspring/decimal"

// ShippingInfo is the customer-entered delivery and contact block. The
// payment reference is generated once on the summary screen and rides along
// so every later step bills under the number the customer was shown.
type ShippingInfo struct {
	FullName         string `json:"full_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	Address          string `json:"address"`
	City             string `json:"city"`
	PostalCode       string `json:"postal_code"`
	Country          string `json:"country"`
	BillingAddress   string `json:"billing_address,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

// PendingOrder is the ephemeral snapshot held between the method-selection
// screen and finalization. It is written once, read once, deleted once.
type PendingOrder struct {
	CartItems      []CartItem      `json:"cart_items"`
	ShippingInfo   ShippingInfo    `json:"shipping_info"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Shipping       decimal.Decimal `json:"shipping"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	AppliedCoupon  *Coupon         `json:"applied_coupon,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Method         PaymentMethod   `json:"method"`
}
