package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopfront/checkout/internal/cart"
	"github.com/shopfront/checkout/internal/domain"
	"github.com/shopfront/checkout/internal/pricing"
	"github.com/shopfront/checkout/internal/repository"
)

type CartHandler struct {
	cart  *cart.Service
	store repository.Store
}

func NewCartHandler(svc *cart.Service, store repository.Store) *CartHandler {
	return &CartHandler{
		cart:  svc,
		store: store,
	}
}

type CartItemDTO struct {
	ID         string `json:"id"`
	ProductID  int64  `json:"product_id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Quantity   int    `json:"quantity"`
	IsGiftCard bool   `json:"is_gift_card"`
	Note       string `json:"note,omitempty"`
	LineTotal  string `json:"line_total"`
}

type CartResponseDTO struct {
	SessionID string        `json:"session_id"`
	Items     []CartItemDTO `json:"items"`
	Subtotal  string        `json:"subtotal"`
}

func cartDTO(c *domain.Cart) CartResponseDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, CartItemDTO{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Price:      item.Price.StringFixed(2),
			Quantity:   item.Quantity,
			IsGiftCard: item.IsGiftCard,
			Note:       item.Note,
			LineTotal:  item.LineTotal().StringFixed(2),
		})
	}
	return CartResponseDTO{
		SessionID: c.SessionID,
		Items:     items,
		Subtotal:  pricing.ComputeSubtotal(c.Items).StringFixed(2),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionKey := getSessionKey(r.Context())

	c, err := h.cart.GetCart(r.Context(), sessionKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to load cart")
		return
	}

	respondJSON(w, http.StatusOK, cartDTO(c))
}

type AddItemRequestDTO struct {
	ProductID  int64  `json:"product_id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Quantity   int    `json:"quantity"`
	IsGiftCard bool   `json:"is_gift_card"`
	TaxEnabled bool   `json:"tax_enabled"`
	Note       string `json:"note"`
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionKey := getSessionKey(r.Context())

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 || req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "product_id and quantity must be positive")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_request", "price must be a non-negative decimal string")
		return
	}

	item := domain.CartItem{
		ProductID:  req.ProductID,
		Name:       req.Name,
		Price:      price,
		Quantity:   req.Quantity,
		IsGiftCard: req.IsGiftCard,
		TaxEnabled: req.TaxEnabled,
		Note:       req.Note,
	}
	if err := h.cart.AddItem(r.Context(), sessionKey, item); err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to add item")
		return
	}

	c, err := h.cart.GetCart(r.Context(), sessionKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to load cart")
		return
	}
	respondJSON(w, http.StatusCreated, cartDTO(c))
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// PATCH /api/v1/cart/items/{itemID}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	sessionKey := getSessionKey(r.Context())
	itemID := chi.URLParam(r, "itemID")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "quantity must be positive, use DELETE to remove")
		return
	}

	err := h.cart.UpdateQuantity(r.Context(), sessionKey, itemID, req.Quantity)
	if errors.Is(err, cart.ErrItemNotFound) || errors.Is(err, cart.ErrCartNotFound) {
		respondError(w, http.StatusNotFound, "item_not_found", "no such item in the cart")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to update item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/cart/items/{itemID}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionKey := getSessionKey(r.Context())
	itemID := chi.URLParam(r, "itemID")

	err := h.cart.RemoveItem(r.Context(), sessionKey, itemID)
	if errors.Is(err, cart.ErrItemNotFound) || errors.Is(err, cart.ErrCartNotFound) {
		respondError(w, http.StatusNotFound, "item_not_found", "no such item in the cart")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to remove item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sessionKey := getSessionKey(r.Context())

	if err := h.cart.Clear(r.Context(), sessionKey); err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

type CouponPreviewDTO struct {
	Code         string `json:"code"`
	DiscountType string `json:"discount_type"`
	Discount     string `json:"discount"`
	FreeShipping bool   `json:"free_shipping"`
}

// POST /api/v1/coupons/apply previews the coupon against the current cart.
// Nothing is reserved; usage counts move only when an order finalizes.
func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	sessionKey := getSessionKey(r.Context())

	var req ApplyCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	coupon, err := h.store.GetCouponByCode(r.Context(), req.Code)
	if errors.Is(err, repository.ErrCouponNotFound) {
		respondError(w, http.StatusNotFound, "coupon_not_found", "coupon code is not valid")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to look up coupon")
		return
	}

	now := time.Now()
	if !coupon.Usable(now) {
		respondError(w, http.StatusUnprocessableEntity, "coupon_unusable", "coupon is inactive, expired or exhausted")
		return
	}

	c, err := h.cart.GetCart(r.Context(), sessionKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "failed to load cart")
		return
	}

	discount := pricing.ComputeCouponDiscount(c.Items, coupon, now)
	respondJSON(w, http.StatusOK, CouponPreviewDTO{
		Code:         coupon.Code,
		DiscountType: string(coupon.DiscountType),
		Discount:     discount.StringFixed(2),
		FreeShipping: coupon.DiscountType == domain.DiscountFreeShipping,
	})
}
