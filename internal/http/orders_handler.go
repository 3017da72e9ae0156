package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/audit"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderService interface {
	List(ctx context.Context, tenantID string, q service.OrderQuery) (*service.OrderPage, error)
	Get(ctx context.Context, tenantID, orderID string) (*domain.Order, error)
	GetForShopper(ctx context.Context, tenantID string, identity domain.ShopperIdentity, orderID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tenantID, orderID string, status, paymentStatus *string) (*domain.Order, error)
	MyPaidOrders(ctx context.Context, tenantID string, identity domain.ShopperIdentity, page, limit int) (*service.OrderPage, error)
	PaymentCallbacks(ctx context.Context, tenantID, orderID string) ([]audit.Entry, error)
}

type OrdersHandler struct {
	orders  OrderService
	log     *slog.Logger
	maxBody int64
}

func NewOrdersHandler(orders OrderService, log *slog.Logger, maxBody int64) *OrdersHandler {
	return &OrdersHandler{orders: orders, log: log, maxBody: maxBody}
}

type UpdateStatusRequestDTO struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"payment_status"`
}

type OrderItemDTO struct {
	ID        uuid.UUID `json:"id"`
	ProductID string    `json:"product_id"`
	Title     string    `json:"title"`
	UnitPrice int64     `json:"unit_price"`
	Currency  string    `json:"currency"`
	Quantity  int       `json:"quantity"`
	LineTotal int64     `json:"line_total"`
}

// ShopperOrderDTO is the storefront view of an order. Provider payloads, session data
// and the owning identity stay on the admin surface.
type ShopperOrderDTO struct {
	ID              uuid.UUID              `json:"id"`
	Status          domain.OrderStatus     `json:"status"`
	PaymentStatus   domain.PaymentStatus   `json:"payment_status"`
	Total           int64                  `json:"total"`
	Currency        string                 `json:"currency,omitempty"`
	Customer        domain.CustomerContact `json:"customer"`
	Items           []OrderItemDTO         `json:"items"`
	PaymentProvider string                 `json:"payment_provider,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type ShopperOrderPageDTO struct {
	Orders []ShopperOrderDTO `json:"orders"`
	Total  int               `json:"total"`
	Page   int               `json:"page"`
	Limit  int               `json:"limit"`
}

func toShopperOrderDTO(o *domain.Order) ShopperOrderDTO {
	dto := ShopperOrderDTO{
		ID:              o.ID,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		Total:           o.Total,
		Currency:        o.Currency,
		Customer:        o.Customer,
		Items:           make([]OrderItemDTO, 0, len(o.Items)),
		PaymentProvider: o.PaymentProvider,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
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

func toShopperOrderPageDTO(p *service.OrderPage) ShopperOrderPageDTO {
	dto := ShopperOrderPageDTO{
		Orders: make([]ShopperOrderDTO, 0, len(p.Orders)),
		Total:  p.Total,
		Page:   p.Page,
		Limit:  p.Limit,
	}
	for _, o := range p.Orders {
		dto.Orders = append(dto.Orders, toShopperOrderDTO(o))
	}
	return dto
}

// MyOrders lists the shopper's paid orders.
func (h *OrdersHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePagination(w, r)
	if !ok {
		return
	}
	res, err := h.orders.MyPaidOrders(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()), page, limit)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toShopperOrderPageDTO(res))
}

func (h *OrdersHandler) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetForShopper(r.Context(), tenantFromContext(r.Context()), identityFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toShopperOrderDTO(order))
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePagination(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	missing, _ := strconv.ParseBool(q.Get("missing_session"))

	res, err := h.orders.List(r.Context(), tenantFromContext(r.Context()), service.OrderQuery{
		Status:         q.Get("status"),
		PaymentStatus:  q.Get("payment_status"),
		Search:         q.Get("search"),
		MissingSession: missing,
		Page:           page,
		Limit:          limit,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "order_id"), req.Status, req.PaymentStatus)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) PaymentCallbacks(w http.ResponseWriter, r *http.Request) {
	entries, err := h.orders.PaymentCallbacks(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"callbacks": entries})
}

func parsePagination(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	q := r.URL.Query()
	var err error
	if raw := q.Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil || page < 1 {
			respondError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
			return 0, 0, false
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return 0, 0, false
		}
	}
	return page, limit, true
}
