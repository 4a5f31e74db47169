package checkout

import "errors"

var (
	ErrEmptyCart           = errors.New("cart is empty, nothing to check out")
	IllegalTransitionError = errors.New("illegal transition of checkout state")
	// ErrItemsPersist means the order row exists but its line items do not.
	// The caller reports it; the order is intentionally not rolled back.
	ErrItemsPersist = errors.New("order items could not be persisted")
)
