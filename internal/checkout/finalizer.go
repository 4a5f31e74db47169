package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shopfront/checkout/internal/auth"
	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/notify"
	"github.com/shopfront/checkout/internal/reference"
	"github.com/shopfront/checkout/internal/repository"
	"github.com/shopfront/checkout/internal/session"
	"github.com/shopfront/checkout/pkg/metrics"
)

// CartClearer is the slice of the cart service the finalizer needs.
type CartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

// Finalizer turns a pending order into a persisted order, items and invoice,
// at most once per checkout attempt. Re-entrant calls from the same process
// collapse through singleflight and the completed set; duplicate submissions
// from another context are rejected by the unique index on the order number.
type Finalizer struct {
	store    repository.Store
	bridge   session.Bridge
	cart     CartClearer
	notifier notify.Dispatcher
	auth     auth.Provider
	metrics  *metrics.CheckoutMetrics

	sfg singleflight.Group

	mu        sync.Mutex
	attempted map[string]bool
	completed map[string]bool
}

func NewFinalizer(store repository.Store, bridge session.Bridge, cart CartClearer, notifier notify.Dispatcher, authProvider auth.Provider, m *metrics.CheckoutMetrics) *Finalizer {
	return &Finalizer{
		store:     store,
		bridge:    bridge,
		cart:      cart,
		notifier:  notifier,
		auth:      authProvider,
		metrics:   m,
		attempted: make(map[string]bool),
		completed: make(map[string]bool),
	}
}

// Finalize runs the finalization pipeline for the pending order under the
// session key. A nil, nil return is a no-op: the attempt was already
// completed, is being completed right now by a racing caller, or the pending
// order is gone because an earlier attempt consumed it.
func (f *Finalizer) Finalize(ctx context.Context, sessionKey string) (*domain.Order, error) {
	f.mu.Lock()
	if f.completed[sessionKey] {
		f.mu.Unlock()
		f.metrics.Outcome(metrics.OutcomeNoop)
		return nil, nil
	}
	f.attempted[sessionKey] = true
	f.mu.Unlock()

	// concurrent callers for the same key join the same flight and share
	// its result instead of each inserting an order
	v, err, _ := f.sfg.Do(sessionKey, func() (interface{}, error) {
		return f.run(ctx, sessionKey)
	})
	if err != nil {
		return nil, err
	}
	res := v.(finalizeResult)
	return res.order, res.reported
}

// Attempted reports whether finalization was ever triggered for this key.
// The selector uses it to decide whether cancelling may discard the pending
// order.
func (f *Finalizer) Attempted(sessionKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempted[sessionKey]
}

// Forget drops the per-key bookkeeping for a session whose selector is gone.
// Duplicate submissions from another context stay blocked by the unique
// index on the order number.
func (f *Finalizer) Forget(sessionKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attempted, sessionKey)
	delete(f.completed, sessionKey)
}

type finalizeResult struct {
	order *domain.Order
	// reported carries the non-fatal-but-visible failure (order items could
	// not be written); the order itself is valid and returned alongside
	reported error
}

type failureClass int

const (
	classFatal failureClass = iota
	classReported
	classSilent
)

type finalizeStep struct {
	name  string
	class failureClass
	run   func(ctx context.Context, fr *finalizeRun) error
}

type finalizeRun struct {
	sessionKey string
	pending    *domain.PendingOrder
	order      *domain.Order
	items      []domain.OrderItem
}

func (f *Finalizer) pipeline() []finalizeStep {
	return []finalizeStep{
		{name: "insert_order", class: classFatal, run: f.insertOrder},
		{name: "insert_items", class: classReported, run: f.insertItems},
		{name: "update_coupon_usage", class: classSilent, run: f.updateCouponUsage},
		{name: "insert_invoice", class: classSilent, run: f.insertInvoice},
		{name: "dispatch_notifications", class: classSilent, run: f.dispatchNotifications},
		{name: "clear_cart", class: classSilent, run: f.clearCart},
		{name: "delete_pending", class: classSilent, run: f.deletePending},
	}
}

func (f *Finalizer) run(ctx context.Context, sessionKey string) (finalizeResult, error) {
	pending, err := f.bridge.Get(ctx, sessionKey)
	if errors.Is(err, session.ErrNotFound) {
		// consumed by an earlier attempt; silently do nothing
		f.markCompleted(sessionKey)
		f.metrics.Outcome(metrics.OutcomeNoop)
		return finalizeResult{}, nil
	}
	if err != nil {
		f.metrics.Outcome(metrics.OutcomeError)
		return finalizeResult{}, fmt.Errorf("read pending order: %w", err)
	}

	fr := &finalizeRun{
		sessionKey: sessionKey,
		pending:    pending,
		order:      f.buildOrder(ctx, pending),
	}

	var reported error
	for _, step := range f.pipeline() {
		stepErr := step.run(ctx, fr)
		if stepErr == nil {
			continue
		}

		switch step.class {
		case classFatal:
			if errors.Is(stepErr, repository.ErrDuplicateReference) {
				// another context already finalized this attempt
				log.Printf("order %v already exists, treating finalize as no-op", fr.order.OrderNumber)
				if delErr := f.bridge.Delete(ctx, sessionKey); delErr != nil {
					log.Printf("failed to delete pending order %v after duplicate: %v", sessionKey, delErr)
				}
				f.markCompleted(sessionKey)
				f.metrics.Outcome(metrics.OutcomeDuplicate)
				return finalizeResult{}, nil
			}
			f.metrics.Outcome(metrics.OutcomeError)
			return finalizeResult{}, fmt.Errorf("finalize %s: %w", step.name, stepErr)
		case classReported:
			log.Printf("finalize %s failed for order %v, order kept without rollback: %v", step.name, fr.order.OrderNumber, stepErr)
			reported = fmt.Errorf("%w: %v", ErrItemsPersist, stepErr)
		case classSilent:
			log.Printf("finalize %s failed for order %v (ignored): %v", step.name, fr.order.OrderNumber, stepErr)
		}
	}

	f.markCompleted(sessionKey)
	f.metrics.Outcome(metrics.OutcomeCreated)
	f.metrics.ObserveOrderValue(fr.order.Total.InexactFloat64())
	return finalizeResult{order: fr.order, reported: reported}, nil
}

func (f *Finalizer) markCompleted(sessionKey string) {
	f.mu.Lock()
	f.completed[sessionKey] = true
	f.mu.Unlock()
}

// buildOrder assembles the order row from the pending snapshot. The payment
// status is pending unconditionally; settlement is reconciled out-of-band.
func (f *Finalizer) buildOrder(ctx context.Context, pending *domain.PendingOrder) *domain.Order {
	ref := pending.ShippingInfo.PaymentReference
	if !reference.Valid(ref) {
		// the summary screen embeds the reference; older pending orders may lack it
		ref = reference.Generate()
		log.Printf("pending order carried no payment reference, generated %v", ref)
	}

	shippingAddr := formatAddress(pending.ShippingInfo)
	billingAddr := pending.ShippingInfo.BillingAddress
	if billingAddr == "" {
		billingAddr = shippingAddr
	}

	return &domain.Order{
		ID:              uuid.New(),
		OrderNumber:     ref,
		Subtotal:        pending.Subtotal,
		Tax:             pending.Tax,
		Shipping:        pending.Shipping,
		Discount:        pending.CouponDiscount,
		Total:           pending.Total,
		PaymentMethod:   pending.Method,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: shippingAddr,
		BillingAddress:  billingAddr,
		Notes:           buildNotes(pending),
		UserID:          f.auth.CurrentUser(ctx),
	}
}

func formatAddress(info domain.ShippingInfo) string {
	parts := []string{info.FullName, info.Address}
	if info.PostalCode != "" || info.City != "" {
		parts = append(parts, strings.TrimSpace(info.PostalCode+" "+info.City))
	}
	if info.Country != "" {
		parts = append(parts, info.Country)
	}
	return strings.Join(parts, ", ")
}

func buildNotes(pending *domain.PendingOrder) string {
	var lines []string
	for _, item := range pending.CartItems {
		if item.Note != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", item.Name, item.Note))
		}
	}
	if pending.AppliedCoupon != nil {
		lines = append(lines, fmt.Sprintf("Coupon %s applied: -%s", pending.AppliedCoupon.Code, pending.CouponDiscount.StringFixed(2)))
	}
	return strings.Join(lines, "\n")
}

func (f *Finalizer) insertOrder(ctx context.Context, fr *finalizeRun) error {
	return f.store.InsertOrder(ctx, fr.order)
}

func (f *Finalizer) insertItems(ctx context.Context, fr *finalizeRun) error {
	items := make([]domain.OrderItem, 0, len(fr.pending.CartItems))
	for _, line := range fr.pending.CartItems {
		items = append(items, domain.OrderItem{
			OrderID:    fr.order.ID,
			ProductID:  line.ProductID,
			Name:       line.Name,
			Price:      line.Price,
			Quantity:   line.Quantity,
			IsGiftCard: line.IsGiftCard,
		})
	}
	fr.items = items
	return f.store.InsertOrderItems(ctx, items)
}

func (f *Finalizer) updateCouponUsage(ctx context.Context, fr *finalizeRun) error {
	coupon := fr.pending.AppliedCoupon
	if coupon == nil {
		return nil
	}
	if err := f.store.IncrementCouponUsage(ctx, coupon.Code); err != nil {
		return err
	}
	if coupon.FromLoyaltyRedemption() {
		return f.store.MarkRedemptionUsed(ctx, coupon.Code)
	}
	return nil
}

func (f *Finalizer) insertInvoice(ctx context.Context, fr *finalizeRun) error {
	return f.store.InsertInvoice(ctx, &domain.Invoice{
		InvoiceNumber: fr.order.OrderNumber,
		OrderID:       fr.order.ID,
		Subtotal:      fr.order.Subtotal,
		Tax:           fr.order.Tax,
		Shipping:      fr.order.Shipping,
		Discount:      fr.order.Discount,
		Total:         fr.order.Total,
		PaymentMethod: fr.order.PaymentMethod,
		PaymentStatus: domain.PaymentStatusPending,
	})
}

func (f *Finalizer) dispatchNotifications(ctx context.Context, fr *finalizeRun) error {
	n := notify.OrderNotification{
		OrderNumber:   fr.order.OrderNumber,
		Email:         fr.pending.ShippingInfo.Email,
		Total:         fr.order.Total,
		PaymentMethod: fr.order.PaymentMethod,
		ItemCount:     len(fr.pending.CartItems),
	}
	f.notifier.NotifyAdmin(ctx, n)
	f.notifier.NotifyCustomer(ctx, n)
	return nil
}

func (f *Finalizer) clearCart(ctx context.Context, fr *finalizeRun) error {
	return f.cart.Clear(ctx, fr.sessionKey)
}

func (f *Finalizer) deletePending(ctx context.Context, fr *finalizeRun) error {
	return f.bridge.Delete(ctx, fr.sessionKey)
}
