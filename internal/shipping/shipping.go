// Package shipping quotes delivery cost for a cart.
package shipping

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/shopfront/checkout/internal/domain"
)

type Quote struct {
	Cost decimal.Decimal
}

type Calculator interface {
	Quote(ctx context.Context, country, postalCode string, cartTotal decimal.Decimal, items []domain.CartItem) (Quote, error)
}

// Rate is the per-country shipping rule.
type Rate struct {
	Base decimal.Decimal
	// FreeOver waives the cost once the cart total reaches it. Zero means
	// no free-shipping threshold.
	FreeOver decimal.Decimal
}

// TableCalculator quotes from a static country table with a rest-of-world
// fallback. Carts that contain only gift cards ship nothing and cost nothing.
type TableCalculator struct {
	rates    map[string]Rate
	fallback Rate
}

func NewTableCalculator(rates map[string]Rate, fallback Rate) *TableCalculator {
	return &TableCalculator{rates: rates, fallback: fallback}
}

func (c *TableCalculator) Quote(_ context.Context, country, _ string, cartTotal decimal.Decimal, items []domain.CartItem) (Quote, error) {
	if onlyGiftCards(items) {
		return Quote{Cost: decimal.Zero}, nil
	}

	rate, ok := c.rates[country]
	if !ok {
		rate = c.fallback
	}
	if rate.FreeOver.IsPositive() && cartTotal.GreaterThanOrEqual(rate.FreeOver) {
		return Quote{Cost: decimal.Zero}, nil
	}
	return Quote{Cost: rate.Base}, nil
}

func onlyGiftCards(items []domain.CartItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsGiftCard {
			return false
		}
	}
	return true
}
