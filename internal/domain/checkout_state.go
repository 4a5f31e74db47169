package domain

type CheckoutState string

const (
	CheckoutStateIdle                     CheckoutState = "IDLE"
	CheckoutStateMethodChosen             CheckoutState = "METHOD_CHOSEN"
	CheckoutStateBankInfoShown            CheckoutState = "BANK_INFO_SHOWN"
	CheckoutStateAwaitingExternalRedirect CheckoutState = "AWAITING_EXTERNAL_REDIRECT"
	CheckoutStateFinalizing               CheckoutState = "FINALIZING"
	CheckoutStateFinalized                CheckoutState = "FINALIZED"
	CheckoutStateCancelled                CheckoutState = "CANCELLED"
	CheckoutStateFailed                   CheckoutState = "FAILED"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:                     {CheckoutStateMethodChosen, CheckoutStateCancelled},
	CheckoutStateMethodChosen:             {CheckoutStateBankInfoShown, CheckoutStateAwaitingExternalRedirect, CheckoutStateIdle, CheckoutStateCancelled},
	CheckoutStateBankInfoShown:            {CheckoutStateFinalizing, CheckoutStateIdle, CheckoutStateCancelled},
	CheckoutStateAwaitingExternalRedirect: {CheckoutStateFinalizing, CheckoutStateIdle, CheckoutStateCancelled},
	CheckoutStateFinalizing:               {CheckoutStateFinalized, CheckoutStateFailed},
	CheckoutStateFinalized:                {},
	CheckoutStateCancelled:                {},
	CheckoutStateFailed:                   {CheckoutStateFinalizing, CheckoutStateCancelled},
}

// CanTransitionTo reports whether the state machine allows moving from one
// checkout state to another. Repeated triggers on FINALIZING or FINALIZED
// are rejected here, which is what makes re-entrant calls no-ops.
func CanTransitionTo(from, to CheckoutState) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateFinalized || s == CheckoutStateCancelled
}

// String representation (for logging)
func (s CheckoutState) String() string {
	return string(s)
}
