package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/audit"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/repository"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*limit well inside the range of a Postgres OFFSET.
	MaxPage = 100_000

	callbackHistoryLimit = 50
)

type OrderQuery struct {
	Status         string
	PaymentStatus  string
	Search         string
	MissingSession bool
	Page           int
	Limit          int
}

type OrderPage struct {
	Orders []*domain.Order `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type OrderService struct {
	repo  repository.OrderRepository
	audit audit.Recorder
	log   *slog.Logger
}

func NewOrderService(repo repository.OrderRepository, recorder audit.Recorder, log *slog.Logger) *OrderService {
	return &OrderService{
		repo:  repo,
		audit: recorder,
		log:   log.With("component", "order_service"),
	}
}

// List returns one page of the tenant's orders, newest first.
func (s *OrderService) List(ctx context.Context, tenantID string, q OrderQuery) (*OrderPage, error) {
	filter := repository.OrderFilter{
		Search:                strings.TrimSpace(q.Search),
		MissingPaymentSession: q.MissingSession,
	}
	if q.Status != "" {
		status, err := domain.ParseOrderStatus(q.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	if q.PaymentStatus != "" {
		ps, err := domain.ParsePaymentStatus(q.PaymentStatus)
		if err != nil {
			return nil, err
		}
		filter.PaymentStatus = &ps
	}
	return s.list(ctx, tenantID, filter, q.Page, q.Limit)
}

// MyPaidOrders is the storefront order history: the shopper's PAID orders.
func (s *OrderService) MyPaidOrders(ctx context.Context, tenantID string, identity domain.ShopperIdentity, page, limit int) (*OrderPage, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	paid := domain.PaymentStatusPaid
	return s.list(ctx, tenantID, repository.OrderFilter{
		PaymentStatus: &paid,
		Identity:      &identity,
	}, page, limit)
}

func (s *OrderService) list(ctx context.Context, tenantID string, filter repository.OrderFilter, page, limit int) (*OrderPage, error) {
	page, limit = normalizePage(page, limit)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	orders, total, err := s.repo.ListOrders(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &OrderPage{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

func (s *OrderService) Get(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrder(ctx, tenantID, id)
}

// GetForShopper returns the order only if it belongs to the given shopper.
func (s *OrderService) GetForShopper(ctx context.Context, tenantID string, identity domain.ShopperIdentity, orderID string) (*domain.Order, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	order, err := s.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Identity != identity {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// UpdateStatus is the administrative override. Values are validated, transitions are not.
func (s *OrderService) UpdateStatus(ctx context.Context, tenantID, orderID string, status, paymentStatus *string) (*domain.Order, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if status == nil && paymentStatus == nil {
		return nil, domain.ErrNothingToUpdate
	}

	var (
		next    *domain.OrderStatus
		nextPay *domain.PaymentStatus
	)
	if status != nil {
		st, err := domain.ParseOrderStatus(*status)
		if err != nil {
			return nil, err
		}
		next = &st
	}
	if paymentStatus != nil {
		ps, err := domain.ParsePaymentStatus(*paymentStatus)
		if err != nil {
			return nil, err
		}
		nextPay = &ps
	}

	order, err := s.repo.UpdateOrderStatus(ctx, tenantID, id, next, nextPay)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "order status overridden",
		"order_id", order.ID,
		"tenant_id", tenantID,
		"status", order.Status,
		"payment_status", order.PaymentStatus)
	return order, nil
}

// PaymentCallbacks returns the audit trail of payment callbacks received for a tenant's order.
func (s *OrderService) PaymentCallbacks(ctx context.Context, tenantID, orderID string) ([]audit.Entry, error) {
	order, err := s.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByOrder(ctx, order.ID.String(), callbackHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list payment callbacks: %w", err)
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func parseOrderID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrOrderNotFound, raw)
	}
	return id, nil
}
