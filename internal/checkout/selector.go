package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/pricing"
	"github.com/shopfront/checkout/internal/reference"
	"github.com/shopfront/checkout/internal/repository"
	"github.com/shopfront/checkout/internal/session"
	"github.com/shopfront/checkout/internal/shipping"
)

// CartReader is the slice of the cart service the selector needs.
type CartReader interface {
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
}

// BankDetails is shown on the bank-transfer instructions screen.
type BankDetails struct {
	AccountHolder string `json:"account_holder"`
	IBAN          string `json:"iban"`
	BIC           string `json:"bic,omitempty"`
}

// PaymentLinks holds the external payment page URLs per redirecting method.
type PaymentLinks struct {
	Card    string
	PayPal  string
	Revolut string
}

func (l PaymentLinks) forMethod(m domain.PaymentMethod) string {
	switch m {
	case domain.MethodCard:
		return l.Card
	case domain.MethodPayPal:
		return l.PayPal
	case domain.MethodRevolut:
		return l.Revolut
	default:
		return ""
	}
}

// Instructions is what the instructions screen renders after a method is
// chosen.
type Instructions struct {
	Reference string               `json:"reference"`
	Method    domain.PaymentMethod `json:"method"`
	Totals    pricing.Quote        `json:"-"`
	Total     string               `json:"total"`
	// BankDetails is set for bank transfer; PaymentLink for external methods.
	BankDetails *BankDetails `json:"bank_details,omitempty"`
	PaymentLink string       `json:"payment_link,omitempty"`
	// RequiresConfirm marks the deferred bank-transfer path: the order is
	// finalized by an explicit confirm, not by choosing the method.
	RequiresConfirm bool `json:"requires_confirm"`
}

// ChooseMethodRequest is either a fresh cart checkout (InvoiceNumber empty)
// or payment of an existing invoice.
type ChooseMethodRequest struct {
	Method        domain.PaymentMethod
	ShippingInfo  domain.ShippingInfo
	CouponCode    string
	InvoiceNumber string
}

// SelectorDeps bundles the collaborators shared by all selectors.
type SelectorDeps struct {
	Cart      CartReader
	Store     repository.Store
	Bridge    session.Bridge
	Shipping  shipping.Calculator
	Finalizer *Finalizer
	Links     PaymentLinks
	Bank      BankDetails
	Now       func() time.Time
}

// Selector drives one checkout session through the payment-method state
// machine. It is the only writer of its session's pending order.
type Selector struct {
	deps       *SelectorDeps
	sessionKey string

	mu        sync.Mutex
	state     domain.CheckoutState
	isPending bool // bank transfer chosen, finalization deferred to confirm
	// invoicePayment marks a pay-existing-invoice session: the finalizer is
	// never invoked, only the invoice row was stamped
	invoicePayment bool
	invoiceLink    string
}

func NewSelector(deps *SelectorDeps, sessionKey string) *Selector {
	return &Selector{
		deps:       deps,
		sessionKey: sessionKey,
		state:      domain.CheckoutStateIdle,
	}
}

func (s *Selector) State() domain.CheckoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChooseMethod handles the summary-screen method selection. Paying an
// existing invoice never creates an order: it only stamps the invoice and
// shows instructions. A cart checkout prices the cart, writes the pending
// order to the bridge and moves to the instructions screen.
func (s *Selector) ChooseMethod(ctx context.Context, req ChooseMethodRequest) (*Instructions, error) {
	if req.InvoiceNumber != "" {
		return s.chooseForInvoice(ctx, req)
	}
	return s.chooseForCart(ctx, req)
}

func (s *Selector) chooseForInvoice(ctx context.Context, req ChooseMethodRequest) (*Instructions, error) {
	err := s.deps.Store.UpdateInvoicePayment(ctx, req.InvoiceNumber, req.Method, domain.PaymentStatusPending)
	if err != nil {
		return nil, fmt.Errorf("update invoice %s: %w", req.InvoiceNumber, err)
	}

	if err := s.transition(domain.CheckoutStateIdle, domain.CheckoutStateMethodChosen); err != nil {
		return nil, err
	}
	target := domain.CheckoutStateBankInfoShown
	if req.Method.RedirectsExternally() {
		target = domain.CheckoutStateAwaitingExternalRedirect
	}
	if err := s.transition(domain.CheckoutStateMethodChosen, target); err != nil {
		return nil, err
	}

	ins := &Instructions{
		Reference: req.InvoiceNumber,
		Method:    req.Method,
	}
	if req.Method == domain.MethodBankTransfer {
		bank := s.deps.Bank
		ins.BankDetails = &bank
	} else {
		ins.PaymentLink = buildPaymentLink(s.deps.Links.forMethod(req.Method), req.InvoiceNumber, "")
	}

	s.mu.Lock()
	s.invoicePayment = true
	s.invoiceLink = ins.PaymentLink
	s.mu.Unlock()
	return ins, nil
}

func (s *Selector) chooseForCart(ctx context.Context, req ChooseMethodRequest) (*Instructions, error) {
	cart, err := s.deps.Cart.GetCart(ctx, s.sessionKey)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	var coupon *domain.Coupon
	if req.CouponCode != "" {
		coupon, err = s.deps.Store.GetCouponByCode(ctx, req.CouponCode)
		if err != nil {
			return nil, fmt.Errorf("look up coupon %s: %w", req.CouponCode, err)
		}
	}

	settings, err := s.deps.Store.TaxSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tax settings: %w", err)
	}

	subtotal := pricing.ComputeSubtotal(cart.Items)
	quote, err := s.deps.Shipping.Quote(ctx, req.ShippingInfo.Country, req.ShippingInfo.PostalCode, subtotal, cart.Items)
	if err != nil {
		return nil, fmt.Errorf("quote shipping: %w", err)
	}

	totals := pricing.Calculate(cart.Items, coupon, quote.Cost, settings, s.now())

	// the reference is generated once per checkout attempt; re-pricing after
	// a cancel keeps billing under the number the customer already saw
	info := req.ShippingInfo
	if !reference.Valid(info.PaymentReference) {
		if prev, prevErr := s.deps.Bridge.Get(ctx, s.sessionKey); prevErr == nil && reference.Valid(prev.ShippingInfo.PaymentReference) {
			info.PaymentReference = prev.ShippingInfo.PaymentReference
		} else {
			info.PaymentReference = reference.Generate()
		}
	}

	pending := &domain.PendingOrder{
		CartItems:      cart.Items,
		ShippingInfo:   info,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		Shipping:       totals.Shipping,
		CouponDiscount: totals.CouponDiscount,
		AppliedCoupon:  coupon,
		Total:          totals.Total,
		Method:         req.Method,
	}
	// the state moves before the bridge write so a repeated submit is
	// rejected without clobbering the pending order of the submit that won
	if err := s.transition(domain.CheckoutStateIdle, domain.CheckoutStateMethodChosen); err != nil {
		return nil, err
	}
	if err := s.deps.Bridge.Put(ctx, s.sessionKey, pending); err != nil {
		s.mu.Lock()
		s.state = domain.CheckoutStateIdle
		s.mu.Unlock()
		return nil, fmt.Errorf("store pending order: %w", err)
	}

	ins := &Instructions{
		Reference: info.PaymentReference,
		Method:    req.Method,
		Totals:    totals,
		Total:     totals.Total.StringFixed(2),
	}

	if req.Method == domain.MethodBankTransfer {
		if err := s.transition(domain.CheckoutStateMethodChosen, domain.CheckoutStateBankInfoShown); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.isPending = true
		s.mu.Unlock()
		bank := s.deps.Bank
		ins.BankDetails = &bank
		ins.RequiresConfirm = true
		return ins, nil
	}

	if err := s.transition(domain.CheckoutStateMethodChosen, domain.CheckoutStateAwaitingExternalRedirect); err != nil {
		return nil, err
	}
	ins.PaymentLink = buildPaymentLink(s.deps.Links.forMethod(req.Method), info.PaymentReference, totals.Total.StringFixed(2))
	return ins, nil
}

// ConfirmPending fires the deferred bank-transfer finalization. The
// instructions screen calls it on mount when the pending flag is set; a
// repeat trigger from a re-fired effect lands in FINALIZING or FINALIZED and
// is ignored.
func (s *Selector) ConfirmPending(ctx context.Context) (*domain.Order, error) {
	s.mu.Lock()
	if !s.isPending || !domain.CanTransitionTo(s.state, domain.CheckoutStateFinalizing) {
		s.mu.Unlock()
		return nil, nil
	}
	s.state = domain.CheckoutStateFinalizing
	s.mu.Unlock()

	return s.finalize(ctx)
}

// OpenPaymentLink finalizes the order first and hands back the external
// link afterwards, whatever the finalize outcome was. The link must only
// open once the finalize call has returned.
func (s *Selector) OpenPaymentLink(ctx context.Context) (string, *domain.Order, error) {
	s.mu.Lock()
	if s.invoicePayment {
		// no order to finalize; the invoice was stamped on method choice
		link := s.invoiceLink
		s.mu.Unlock()
		return link, nil, nil
	}
	method := domain.PaymentMethod("")
	if !domain.CanTransitionTo(s.state, domain.CheckoutStateFinalizing) {
		state := s.state
		s.mu.Unlock()
		if state == domain.CheckoutStateFinalizing || state == domain.CheckoutStateFinalized {
			return "", nil, nil
		}
		return "", nil, IllegalTransitionError
	}
	s.state = domain.CheckoutStateFinalizing
	s.mu.Unlock()

	pending, err := s.deps.Bridge.Get(ctx, s.sessionKey)
	if err == nil {
		method = pending.Method
	}

	order, finErr := s.finalize(ctx)

	linkRef := s.sessionKey
	amount := ""
	if order != nil {
		linkRef = order.OrderNumber
		amount = order.Total.StringFixed(2)
	} else if pending != nil {
		linkRef = pending.ShippingInfo.PaymentReference
		amount = pending.Total.StringFixed(2)
	}
	link := buildPaymentLink(s.deps.Links.forMethod(method), linkRef, amount)

	// finErr is surfaced, but the link is returned regardless: the attempt
	// happened and the customer may still pay externally
	return link, order, finErr
}

func (s *Selector) finalize(ctx context.Context) (*domain.Order, error) {
	order, err := s.deps.Finalizer.Finalize(ctx, s.sessionKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !errors.Is(err, ErrItemsPersist) {
		s.state = domain.CheckoutStateFailed
		return nil, err
	}
	s.state = domain.CheckoutStateFinalized
	s.isPending = false
	return order, err
}

// Cancel returns to method selection. The pending order is discarded only
// when finalization never ran; once an attempt happened the bridge entry is
// the retry state and must survive.
func (s *Selector) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.state.IsTerminal() || s.state == domain.CheckoutStateFinalizing {
		s.mu.Unlock()
		return IllegalTransitionError
	}
	s.state = domain.CheckoutStateIdle
	s.isPending = false
	s.mu.Unlock()

	if !s.deps.Finalizer.Attempted(s.sessionKey) {
		if err := s.deps.Bridge.Delete(ctx, s.sessionKey); err != nil {
			log.Printf("failed to discard pending order %v on cancel: %v", s.sessionKey, err)
		}
	}
	return nil
}

// Abandon marks an idle-expired session as cancelled so the coordinator can
// drop it. A session mid-finalization is left alone and reported as kept;
// already-terminal sessions need no state change.
func (s *Selector) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.CheckoutStateFinalizing {
		return false
	}
	if !s.state.IsTerminal() {
		s.state = domain.CheckoutStateCancelled
		s.isPending = false
	}
	return true
}

func (s *Selector) transition(from, to domain.CheckoutState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from || !domain.CanTransitionTo(from, to) {
		return fmt.Errorf("%w: %v -> %v (current %v)", IllegalTransitionError, from, to, s.state)
	}
	s.state = to
	return nil
}

func (s *Selector) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now()
	}
	return time.Now()
}

func buildPaymentLink(base, ref, amount string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("reference", ref)
	if amount != "" {
		q.Set("amount", amount)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
