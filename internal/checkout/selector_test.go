package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/shipping"
)

func testDeps(store *fakeStore, bridge *fakeBridge, cart *fakeCart) *SelectorDeps {
	fin := NewFinalizer(store, bridge, cart, &fakeNotifier{}, fakeAuth{}, nil)
	return &SelectorDeps{
		Cart:      cart,
		Store:     store,
		Bridge:    bridge,
		Shipping:  shipping.NewTableCalculator(map[string]shipping.Rate{"NL": {Base: dec("5.00")}}, shipping.Rate{Base: dec("15.00")}),
		Finalizer: fin,
		Links: PaymentLinks{
			Card:    "https://pay.example.com/card",
			PayPal:  "https://paypal.me/shopfront",
			Revolut: "https://revolut.me/shopfront",
		},
		Bank: BankDetails{AccountHolder: "Shopfront BV", IBAN: "NL02ABNA0123456789"},
		Now:  func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func shippingInfo() domain.ShippingInfo {
	return domain.ShippingInfo{
		FullName:   "Ada Lovelace",
		Email:      "ada@example.com",
		Address:    "Main Street 1",
		City:       "Amsterdam",
		PostalCode: "1011AB",
		Country:    "NL",
	}
}

func cartWithItems() *fakeCart {
	return &fakeCart{items: []domain.CartItem{
		{ID: "a", Name: "poster", Price: dec("10"), Quantity: 2, TaxEnabled: true},
		{ID: "b", Name: "gift card", Price: dec("5"), Quantity: 1, IsGiftCard: true, TaxEnabled: true},
	}}
}

func TestChooseMethod_BankTransferDefersFinalization(t *testing.T) {
	store := newFakeStore()
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodBankTransfer,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutStateBankInfoShown, sel.State())
	assert.True(t, ins.RequiresConfirm)
	require.NotNil(t, ins.BankDetails)
	assert.Equal(t, "NL02ABNA0123456789", ins.BankDetails.IBAN)
	assert.Empty(t, ins.PaymentLink)
	assert.Regexp(t, `^[0-9]{3}[A-Z]{3}$`, ins.Reference)

	// the pending order is written, but no order exists yet
	assert.True(t, bridge.has("sess-1"))
	assert.Equal(t, 0, store.orderCount())

	// tax enabled at 21%: subtotal 25, taxable 20, tax 4.20, ship 5, total 34.20
	assert.Equal(t, "34.20", ins.Total)
}

func TestConfirmPending_FinalizesOnce(t *testing.T) {
	store := newFakeStore()
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodBankTransfer,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	order, err := sel.ConfirmPending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, ins.Reference, order.OrderNumber, "shown reference equals billed number")
	assert.Equal(t, domain.CheckoutStateFinalized, sel.State())

	// effect re-fire after the state change is ignored
	again, err := sel.ConfirmPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, 1, store.orderCount())
}

func TestChooseMethod_CardAwaitsRedirect(t *testing.T) {
	store := newFakeStore()
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodCard,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutStateAwaitingExternalRedirect, sel.State())
	assert.False(t, ins.RequiresConfirm)
	assert.Nil(t, ins.BankDetails)
	assert.Contains(t, ins.PaymentLink, "https://pay.example.com/card")
	assert.Contains(t, ins.PaymentLink, "reference="+ins.Reference)
	assert.Equal(t, 0, store.orderCount(), "no order until the link is opened")
}

func TestOpenPaymentLink_FinalizesBeforeReturningLink(t *testing.T) {
	store := newFakeStore()
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodPayPal,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	link, order, err := sel.OpenPaymentLink(context.Background())
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, 1, store.orderCount())
	assert.Contains(t, link, "https://paypal.me/shopfront")
	assert.Contains(t, link, "reference="+ins.Reference)
	assert.Equal(t, domain.CheckoutStateFinalized, sel.State())

	// clicking again neither bills nor errors
	link2, order2, err := sel.OpenPaymentLink(context.Background())
	require.NoError(t, err)
	assert.Empty(t, link2)
	assert.Nil(t, order2)
	assert.Equal(t, 1, store.orderCount())
}

func TestOpenPaymentLink_FatalFinalizeStillReturnsLink(t *testing.T) {
	store := newFakeStore()
	store.failOrderInsert = errBoom
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	_, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodRevolut,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	link, order, err := sel.OpenPaymentLink(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Nil(t, order)
	// the attempt happened; the link is handed back regardless
	assert.Contains(t, link, "https://revolut.me/shopfront")
	assert.Equal(t, domain.CheckoutStateFailed, sel.State())
}

func TestChooseMethod_InvoicePaymentNeverCreatesOrder(t *testing.T) {
	store := newFakeStore()
	store.invoices["771QRS"] = &domain.Invoice{
		InvoiceNumber: "771QRS",
		Total:         dec("99.00"),
		PaymentStatus: domain.PaymentStatusFailed,
	}
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:        domain.MethodBankTransfer,
		InvoiceNumber: "771QRS",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, store.orderCount())
	assert.False(t, bridge.has("sess-1"), "invoice payment writes no pending order")
	inv := store.invoices["771QRS"]
	assert.Equal(t, domain.PaymentStatusPending, inv.PaymentStatus)
	assert.Equal(t, domain.MethodBankTransfer, inv.PaymentMethod)
	require.NotNil(t, ins.BankDetails)

	// opening the link path for an invoice payment is also a pure no-op
	_, order, err := sel.OpenPaymentLink(context.Background())
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Equal(t, 0, store.orderCount())
}

func TestChooseMethod_UnknownInvoice(t *testing.T) {
	sel := NewSelector(testDeps(newFakeStore(), newFakeBridge(), cartWithItems()), "sess-1")

	_, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:        domain.MethodCard,
		InvoiceNumber: "000XXX",
	})
	assert.Error(t, err)
}

func TestChooseMethod_EmptyCart(t *testing.T) {
	sel := NewSelector(testDeps(newFakeStore(), newFakeBridge(), &fakeCart{}), "sess-1")

	_, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodCard,
		ShippingInfo: shippingInfo(),
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCancel_BeforeFinalizationDiscardsPendingOrder(t *testing.T) {
	store := newFakeStore()
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	_, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodBankTransfer,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)
	require.True(t, bridge.has("sess-1"))

	require.NoError(t, sel.Cancel(context.Background()))
	assert.Equal(t, domain.CheckoutStateIdle, sel.State())
	assert.False(t, bridge.has("sess-1"), "never-finalized pending order is discarded")
}

func TestCancel_AfterAttemptKeepsPendingOrder(t *testing.T) {
	store := newFakeStore()
	store.failOrderInsert = errBoom
	bridge := newFakeBridge()
	deps := testDeps(store, bridge, cartWithItems())
	sel := NewSelector(deps, "sess-1")

	_, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodCard,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	_, _, err = sel.OpenPaymentLink(context.Background())
	require.ErrorIs(t, err, errBoom)

	require.NoError(t, sel.Cancel(context.Background()))
	// the bridge entry is the retry state and must survive the cancel
	assert.True(t, bridge.has("sess-1"))
}

func TestChooseMethod_RepeatedSubmitKeepsFirstPendingOrder(t *testing.T) {
	store := newFakeStore()
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodCard,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	// a double submit is rejected before it can touch the bridge
	_, err = sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodCard,
		ShippingInfo: shippingInfo(),
	})
	require.ErrorIs(t, err, IllegalTransitionError)

	pending, err := bridge.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, ins.Reference, pending.ShippingInfo.PaymentReference)

	_, order, err := sel.OpenPaymentLink(context.Background())
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, ins.Reference, order.OrderNumber, "billed under the number that was shown")
}

func TestChooseMethod_RetryAfterFailedAttemptKeepsReference(t *testing.T) {
	store := newFakeStore()
	store.failOrderInsert = errBoom
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodCard,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)

	_, _, err = sel.OpenPaymentLink(context.Background())
	require.ErrorIs(t, err, errBoom)
	require.NoError(t, sel.Cancel(context.Background()))

	// choosing again after the failed attempt reuses the surviving pending
	// order's number instead of minting a fresh one
	store.failOrderInsert = nil
	again, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodPayPal,
		ShippingInfo: shippingInfo(),
	})
	require.NoError(t, err)
	assert.Equal(t, ins.Reference, again.Reference)
}

func TestCoordinator_ReturnsSameSelectorPerSession(t *testing.T) {
	coord := NewCoordinator(testDeps(newFakeStore(), newFakeBridge(), cartWithItems()))

	a := coord.Session("sess-1")
	b := coord.Session("sess-1")
	c := coord.Session("sess-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestChooseMethod_CouponApplied(t *testing.T) {
	store := newFakeStore()
	store.coupons["WELCOME10"] = &domain.Coupon{
		Code:          "WELCOME10",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: dec("10"),
		Active:        true,
	}
	bridge := newFakeBridge()
	sel := NewSelector(testDeps(store, bridge, cartWithItems()), "sess-1")

	ins, err := sel.ChooseMethod(context.Background(), ChooseMethodRequest{
		Method:       domain.MethodCard,
		ShippingInfo: shippingInfo(),
		CouponCode:   "WELCOME10",
	})
	require.NoError(t, err)

	// subtotal 25, discount 2.50, tax 3.78, shipping 5 => 31.28
	assert.Equal(t, "31.28", ins.Total)

	pending, err := bridge.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, pending.AppliedCoupon)
	assert.Equal(t, "WELCOME10", pending.AppliedCoupon.Code)
	assert.True(t, pending.CouponDiscount.Equal(dec("2.5")))
}
