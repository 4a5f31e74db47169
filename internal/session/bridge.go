// Package session holds the in-flight pending order between the
// method-selection screen and finalization.
package session

import (
	"context"
	"errors"

	"github.com/shopfront/checkout/internal/domain"
)

// ErrNotFound signals the pending order is absent. Callers must treat this
// as "already finalized (or never existed)" and no-op silently, not fail.
var ErrNotFound = errors.New("pending order not found")

type Bridge interface {
	Put(ctx context.Context, key string, order *domain.PendingOrder) error
	Get(ctx context.Context, key string) (*domain.PendingOrder, error)
	Delete(ctx context.Context, key string) error
}
