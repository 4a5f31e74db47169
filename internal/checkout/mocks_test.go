package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/notify"
	"github.com/shopfront/checkout/internal/pricing"
	"github.com/shopfront/checkout/internal/repository"
	"github.com/shopfront/checkout/internal/session"
)

// fakeStore implements repository.Store in memory with switchable failures.
type fakeStore struct {
	mu sync.Mutex

	orders      map[string]*domain.Order
	items       map[uuid.UUID][]domain.OrderItem
	invoices    map[string]*domain.Invoice
	coupons     map[string]*domain.Coupon
	redemptions map[string]bool

	tax pricing.TaxSettings

	failOrderInsert   error
	failItemsInsert   error
	failInvoiceInsert error
	failCouponUpdate  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:      map[string]*domain.Order{},
		items:       map[uuid.UUID][]domain.OrderItem{},
		invoices:    map[string]*domain.Invoice{},
		coupons:     map[string]*domain.Coupon{},
		redemptions: map[string]bool{},
		tax:         pricing.TaxSettings{Enabled: true, Rate: decimal.RequireFromString("21")},
	}
}

func (f *fakeStore) InsertOrder(_ context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOrderInsert != nil {
		return f.failOrderInsert
	}
	if _, exists := f.orders[order.OrderNumber]; exists {
		return repository.ErrDuplicateReference
	}
	cp := *order
	f.orders[order.OrderNumber] = &cp
	return nil
}

func (f *fakeStore) InsertOrderItems(_ context.Context, items []domain.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failItemsInsert != nil {
		return f.failItemsInsert
	}
	for _, item := range items {
		f.items[item.OrderID] = append(f.items[item.OrderID], item)
	}
	return nil
}

func (f *fakeStore) InsertInvoice(_ context.Context, invoice *domain.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInvoiceInsert != nil {
		return f.failInvoiceInsert
	}
	cp := *invoice
	f.invoices[invoice.InvoiceNumber] = &cp
	return nil
}

func (f *fakeStore) UpdateInvoicePayment(_ context.Context, invoiceNumber string, method domain.PaymentMethod, status domain.PaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[invoiceNumber]
	if !ok {
		return repository.ErrInvoiceNotFound
	}
	inv.PaymentMethod = method
	inv.PaymentStatus = status
	return nil
}

func (f *fakeStore) GetOrderByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderNumber]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeStore) OrderItemsByOrderID(_ context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[orderID], nil
}

func (f *fakeStore) OrdersWithoutItems(_ context.Context, limit int) ([]*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Order
	for _, order := range f.orders {
		if len(f.items[order.ID]) == 0 && len(out) < limit {
			out = append(out, order)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	coupon, ok := f.coupons[code]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	return coupon, nil
}

func (f *fakeStore) IncrementCouponUsage(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCouponUpdate != nil {
		return f.failCouponUpdate
	}
	coupon, ok := f.coupons[code]
	if !ok {
		return repository.ErrCouponNotFound
	}
	coupon.TimesUsed++
	return nil
}

func (f *fakeStore) MarkRedemptionUsed(_ context.Context, couponCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redemptions[couponCode] = true
	return nil
}

func (f *fakeStore) TaxSettings(context.Context) (pricing.TaxSettings, error) {
	return f.tax, nil
}

func (f *fakeStore) RunMigrations(*repository.Credentials) error { return nil }
func (f *fakeStore) Close() error                                { return nil }

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// fakeBridge is an in-memory session.Bridge.
type fakeBridge struct {
	mu      sync.Mutex
	entries map[string]*domain.PendingOrder
	getErr  error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{entries: map[string]*domain.PendingOrder{}}
}

func (f *fakeBridge) Put(_ context.Context, key string, order *domain.PendingOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = order
	return nil
}

func (f *fakeBridge) Get(_ context.Context, key string) (*domain.PendingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	order, ok := f.entries[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	return order, nil
}

func (f *fakeBridge) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeBridge) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[key]
	return ok
}

// fakeCart records clears and serves a fixed cart.
type fakeCart struct {
	mu     sync.Mutex
	items  []domain.CartItem
	clears int
}

func (f *fakeCart) GetCart(_ context.Context, sessionID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &domain.Cart{SessionID: sessionID, Items: f.items}, nil
}

func (f *fakeCart) Clear(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.items = nil
	return nil
}

// fakeNotifier counts dispatches.
type fakeNotifier struct {
	mu        sync.Mutex
	admin     int
	customer  int
	lastOrder string
}

func (f *fakeNotifier) NotifyAdmin(_ context.Context, n notify.OrderNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admin++
	f.lastOrder = n.OrderNumber
}

func (f *fakeNotifier) NotifyCustomer(_ context.Context, n notify.OrderNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customer++
}

// fakeAuth returns a fixed identity, nil for guests.
type fakeAuth struct {
	userID *string
}

func (f fakeAuth) CurrentUser(context.Context) *string { return f.userID }

var errBoom = errors.New("boom")
