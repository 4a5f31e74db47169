package cart

import (
	"context"
	"errors"

	"github.com/shopfront/checkout/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// Repository defines cart persistence. Carts are keyed by the checkout
// session so guests get one too.
type Repository interface {
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	AddItem(ctx context.Context, sessionID string, item domain.CartItem) error
	UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) error
	RemoveItem(ctx context.Context, sessionID, itemID string) error
	DeleteCart(ctx context.Context, sessionID string) error
}
