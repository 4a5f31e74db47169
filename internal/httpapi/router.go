package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopfront/checkout/pkg/metrics"
)

// NewRouter assembles the full HTTP surface. Handlers are constructed by the
// caller so tests can wire fakes behind them.
func NewRouter(cartHandler *CartHandler, checkoutHandler *CheckoutHandler, m *metrics.CheckoutMetrics, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(SessionMiddleware)
	r.Use(AuthMiddleware)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if m != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Patch("/items/{itemID}", cartHandler.UpdateQuantity)
			r.Delete("/items/{itemID}", cartHandler.RemoveItem)
		})

		r.Post("/coupons/apply", cartHandler.ApplyCoupon)

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/method", checkoutHandler.ChooseMethod)
			r.Post("/finalize", checkoutHandler.Confirm)
			r.Post("/payment-link", checkoutHandler.OpenPaymentLink)
			r.Post("/cancel", checkoutHandler.Cancel)
		})

		r.Post("/invoices/{invoiceNumber}/payment", checkoutHandler.PayInvoice)
		r.Get("/orders/{orderNumber}", checkoutHandler.GetOrder)
	})

	return r
}
