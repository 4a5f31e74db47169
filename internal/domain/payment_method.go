package domain

import "errors"

var ErrUnknownMethod = errors.New("unknown payment method")

type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCard         PaymentMethod = "card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodRevolut      PaymentMethod = "revolut"
)

// ParsePaymentMethod maps a raw string to a known method.
// Anything else is rejected; there is no default branch.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodBankTransfer:
		return MethodBankTransfer, nil
	case MethodCard:
		return MethodCard, nil
	case MethodPayPal:
		return MethodPayPal, nil
	case MethodRevolut:
		return MethodRevolut, nil
	default:
		return "", ErrUnknownMethod
	}
}

// RedirectsExternally reports whether choosing this method sends the
// customer to an external payment page.
func (m PaymentMethod) RedirectsExternally() bool {
	return m == MethodCard || m == MethodPayPal || m == MethodRevolut
}

func (m PaymentMethod) String() string {
	return string(m)
}
