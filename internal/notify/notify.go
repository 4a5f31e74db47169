// Package notify dispatches best-effort order notifications. Delivery
// failures are logged and swallowed; a dead broker must never block a
// customer from their order confirmation.
package notify

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/shopfront/checkout/internal/domain"
)

// OrderNotification is the payload published for both admin and customer
// notifications.
type OrderNotification struct {
	OrderNumber   string               `json:"order_number"`
	Email         string               `json:"email,omitempty"`
	Total         decimal.Decimal      `json:"total"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	ItemCount     int                  `json:"item_count"`
}

type Dispatcher interface {
	NotifyAdmin(ctx context.Context, n OrderNotification)
	NotifyCustomer(ctx context.Context, n OrderNotification)
}

// Noop discards all notifications. Useful in tests and local setups
// without a broker.
type Noop struct{}

func (Noop) NotifyAdmin(context.Context, OrderNotification)    {}
func (Noop) NotifyCustomer(context.Context, OrderNotification) {}
