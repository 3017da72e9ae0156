package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CartService interface {
	Get(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error)
	AddItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, productID string, quantity int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID string) (*domain.Cart, error)
	Clear(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	log     *slog.Logger
	maxBody int64
}

func NewCartHandler(carts CartService, log *slog.Logger, maxBody int64) *CartHandler {
	return &CartHandler{carts: carts, log: log, maxBody: maxBody}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartItemDTO struct {
	ID        uuid.UUID `json:"id"`
	ProductID string    `json:"product_id"`
	Title     string    `json:"title"`
	UnitPrice int64     `json:"unit_price"`
	Currency  string    `json:"currency"`
	Quantity  int       `json:"quantity"`
	LineTotal int64     `json:"line_total"`
}

type CartDTO struct {
	ID        uuid.UUID     `json:"id"`
	Items     []CartItemDTO `json:"items"`
	Total     int64         `json:"total"`
	Currency  string        `json:"currency,omitempty"`
	Version   int64         `json:"version"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toCartDTO(c *domain.Cart) CartDTO {
	dto := CartDTO{
		ID:        c.ID,
		Items:     make([]CartItemDTO, 0, len(c.Items)),
		Total:     c.Total(),
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt,
	}
	// mixed currencies leave Currency empty
	dto.Currency, _ = c.Currency()
	for _, it := range c.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			ID:        it.ID,
			ProductID: it.ProductID,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
			Currency:  it.Currency,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal(),
		})
	}
	return dto
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Get(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	cart, err := h.carts.AddItem(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartDTO(cart))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	itemID := chi.URLParam(r, "item_id")
	cart, err := h.carts.UpdateItem(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()), itemID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	cart, err := h.carts.RemoveItem(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()), itemID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.Clear(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart))
}

// decodeJSON writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBody int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
