package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
	"github.com/google/uuid"
)

type CheckoutService interface {
	Checkout(ctx context.Context, tenantID string, identity domain.ShopperIdentity, customer domain.CustomerContact) (*domain.Order, error)
	CheckoutHosted(ctx context.Context, tenantID string, identity domain.ShopperIdentity, req service.HostedCheckoutRequest) (*service.HostedCheckoutResult, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	log      *slog.Logger
	maxBody  int64
}

func NewCheckoutHandler(checkout CheckoutService, log *slog.Logger, maxBody int64) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, log: log, maxBody: maxBody}
}

type CheckoutRequestDTO struct {
	Customer domain.CustomerContact `json:"customer"`
}

type HostedCheckoutRequestDTO struct {
	Customer   domain.CustomerContact `json:"customer"`
	SuccessURL string                 `json:"success_url"`
	CancelURL  string                 `json:"cancel_url"`
}

type HostedCheckoutResponseDTO struct {
	OrderID     uuid.UUID       `json:"order_id"`
	RedirectURL string          `json:"redirect_url"`
	Order       ShopperOrderDTO `json:"order"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	order, err := h.checkout.Checkout(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()), req.Customer)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toShopperOrderDTO(order))
}

func (h *CheckoutHandler) CheckoutHosted(w http.ResponseWriter, r *http.Request) {
	var req HostedCheckoutRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "success_url and cancel_url are required")
		return
	}

	res, err := h.checkout.CheckoutHosted(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()), service.HostedCheckoutRequest{
		Customer:   req.Customer,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, HostedCheckoutResponseDTO{
		OrderID:     res.Order.ID,
		RedirectURL: res.RedirectURL,
		Order:       toShopperOrderDTO(res.Order),
	})
}
