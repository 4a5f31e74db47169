package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront/checkout/internal/checkout"
	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/repository"
)

type CheckoutHandler struct {
	coordinator *checkout.Coordinator
	store       repository.Store
}

func NewCheckoutHandler(coordinator *checkout.Coordinator, store repository.Store) *CheckoutHandler {
	return &CheckoutHandler{
		coordinator: coordinator,
		store:       store,
	}
}

type ShippingInfoDTO struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	City           string `json:"city"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	BillingAddress string `json:"billing_address"`
}

type ChooseMethodRequestDTO struct {
	Method        string          `json:"method"`
	ShippingInfo  ShippingInfoDTO `json:"shipping_info"`
	CouponCode    string          `json:"coupon_code"`
	InvoiceNumber string          `json:"invoice_number"`
}

type OrderResponseDTO struct {
	OrderNumber   string `json:"order_number"`
	Subtotal      string `json:"subtotal"`
	Tax           string `json:"tax"`
	Shipping      string `json:"shipping"`
	Discount      string `json:"discount"`
	Total         string `json:"total"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	// Warning is set when the order exists but a reported side effect
	// failed (line items missing); the flow still completed
	Warning string `json:"warning,omitempty"`
}

func orderDTO(order *domain.Order) OrderResponseDTO {
	return OrderResponseDTO{
		OrderNumber:   order.OrderNumber,
		Subtotal:      order.Subtotal.StringFixed(2),
		Tax:           order.Tax.StringFixed(2),
		Shipping:      order.Shipping.StringFixed(2),
		Discount:      order.Discount.StringFixed(2),
		Total:         order.Total.StringFixed(2),
		PaymentMethod: order.PaymentMethod.String(),
		PaymentStatus: string(order.PaymentStatus),
	}
}

// POST /api/v1/checkout/method
func (h *CheckoutHandler) ChooseMethod(w http.ResponseWriter, r *http.Request) {
	sessionKey := getSessionKey(r.Context())

	var req ChooseMethodRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_method", "unknown payment method: "+req.Method)
		return
	}

	sel := h.coordinator.Session(sessionKey)
	ins, err := sel.ChooseMethod(r.Context(), checkout.ChooseMethodRequest{
		Method: method,
		ShippingInfo: domain.ShippingInfo{
			FullName:       req.ShippingInfo.FullName,
			Email:          req.ShippingInfo.Email,
			Phone:          req.ShippingInfo.Phone,
			Address:        req.ShippingInfo.Address,
			City:           req.ShippingInfo.City,
			PostalCode:     req.ShippingInfo.PostalCode,
			Country:        req.ShippingInfo.Country,
			BillingAddress: req.ShippingInfo.BillingAddress,
		},
		CouponCode:    req.CouponCode,
		InvoiceNumber: req.InvoiceNumber,
	})
	if err != nil {
		h.handleCheckoutError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ins)
}

// POST /api/v1/checkout/finalize fires the deferred bank-transfer
// finalization. The instructions screen calls it on mount.
func (h *CheckoutHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sel := h.coordinator.Session(getSessionKey(r.Context()))

	order, err := sel.ConfirmPending(r.Context())
	if err != nil && !errors.Is(err, checkout.ErrItemsPersist) {
		h.handleCheckoutError(w, r, err)
		return
	}
	if order == nil {
		// nothing to do: repeated trigger or already finalized
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.coordinator.Release(getSessionKey(r.Context()))

	dto := orderDTO(order)
	if errors.Is(err, checkout.ErrItemsPersist) {
		dto.Warning = "order was created but its line items could not be saved; support has been notified"
	}
	respondJSON(w, http.StatusCreated, dto)
}

type PaymentLinkResponseDTO struct {
	PaymentLink string            `json:"payment_link"`
	Order       *OrderResponseDTO `json:"order,omitempty"`
}

// POST /api/v1/checkout/payment-link finalizes first, then hands the
// external link back for the client to open.
func (h *CheckoutHandler) OpenPaymentLink(w http.ResponseWriter, r *http.Request) {
	sel := h.coordinator.Session(getSessionKey(r.Context()))

	link, order, err := sel.OpenPaymentLink(r.Context())
	if err != nil && !errors.Is(err, checkout.ErrItemsPersist) {
		if errors.Is(err, checkout.IllegalTransitionError) {
			respondError(w, http.StatusConflict, "illegal_state", "no payment awaiting an external redirect")
			return
		}
		// finalize failed but the attempt happened; surface the error with
		// the link so the client can decide what to show
		log.Printf("finalize before payment link failed: %v", err)
		respondJSON(w, http.StatusBadGateway, PaymentLinkResponseDTO{PaymentLink: link})
		return
	}

	resp := PaymentLinkResponseDTO{PaymentLink: link}
	if order != nil {
		h.coordinator.Release(getSessionKey(r.Context()))
		dto := orderDTO(order)
		if errors.Is(err, checkout.ErrItemsPersist) {
			dto.Warning = "order was created but its line items could not be saved; support has been notified"
		}
		resp.Order = &dto
	}
	respondJSON(w, http.StatusOK, resp)
}

// POST /api/v1/checkout/cancel
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sel := h.coordinator.Session(getSessionKey(r.Context()))

	if err := sel.Cancel(r.Context()); err != nil {
		respondError(w, http.StatusConflict, "illegal_state", "checkout can no longer be cancelled")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/invoices/{invoiceNumber}/payment
func (h *CheckoutHandler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceNumber := chi.URLParam(r, "invoiceNumber")

	var req struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_method", "unknown payment method: "+req.Method)
		return
	}

	sel := h.coordinator.Session(getSessionKey(r.Context()))
	ins, err := sel.ChooseMethod(r.Context(), checkout.ChooseMethodRequest{
		Method:        method,
		InvoiceNumber: invoiceNumber,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			respondError(w, http.StatusNotFound, "invoice_not_found", "no invoice with number "+invoiceNumber)
			return
		}
		h.handleCheckoutError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ins)
}

// GET /api/v1/orders/{orderNumber}
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	order, err := h.store.GetOrderByNumber(r.Context(), orderNumber)
	if errors.Is(err, repository.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "order_not_found", "no order with number "+orderNumber)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to load order")
		return
	}

	respondJSON(w, http.StatusOK, orderDTO(order))
}

func (h *CheckoutHandler) handleCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty, nothing to check out")
	case errors.Is(err, repository.ErrCouponNotFound):
		respondError(w, http.StatusNotFound, "coupon_not_found", "coupon code is not valid")
	case errors.Is(err, repository.ErrInvoiceNotFound):
		respondError(w, http.StatusNotFound, "invoice_not_found", "invoice does not exist")
	case errors.Is(err, checkout.IllegalTransitionError):
		respondError(w, http.StatusConflict, "illegal_state", "action not allowed in the current checkout state")
	default:
		log.Printf("checkout error request_id = %v: %v", getRequestID(r.Context()), err)
		respondError(w, http.StatusInternalServerError, "internal", "checkout failed, please try again")
	}
}
