package http

import (
	"context"
	"sync"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/audit"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
	"github.com/google/uuid"
)

type mockCartService struct {
	cart *domain.Cart
	err  error

	gotTenant   string
	gotIdentity domain.ShopperIdentity
	gotProduct  string
	gotItem     string
	gotQuantity int
}

func (m *mockCartService) record(tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	m.gotTenant = tenantID
	m.gotIdentity = identity
	return m.cart, m.err
}

func (m *mockCartService) Get(_ context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	return m.record(tenantID, identity)
}

func (m *mockCartService) AddItem(_ context.Context, tenantID string, identity domain.ShopperIdentity, productID string, quantity int) (*domain.Cart, error) {
	m.gotProduct, m.gotQuantity = productID, quantity
	return m.record(tenantID, identity)
}

func (m *mockCartService) UpdateItem(_ context.Context, tenantID string, identity domain.ShopperIdentity, itemID string, quantity int) (*domain.Cart, error) {
	m.gotItem, m.gotQuantity = itemID, quantity
	return m.record(tenantID, identity)
}

func (m *mockCartService) RemoveItem(_ context.Context, tenantID string, identity domain.ShopperIdentity, itemID string) (*domain.Cart, error) {
	m.gotItem = itemID
	return m.record(tenantID, identity)
}

func (m *mockCartService) Clear(_ context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	return m.record(tenantID, identity)
}

type mockCheckoutService struct {
	order     *domain.Order
	hosted    *service.HostedCheckoutResult
	err       error
	gotHosted service.HostedCheckoutRequest
	gotBuyer  domain.CustomerContact
}

func (m *mockCheckoutService) Checkout(_ context.Context, _ string, _ domain.ShopperIdentity, customer domain.CustomerContact) (*domain.Order, error) {
	m.gotBuyer = customer
	return m.order, m.err
}

func (m *mockCheckoutService) CheckoutHosted(_ context.Context, _ string, _ domain.ShopperIdentity, req service.HostedCheckoutRequest) (*service.HostedCheckoutResult, error) {
	m.gotHosted = req
	return m.hosted, m.err
}

type mockOrderService struct {
	page      *service.OrderPage
	order     *domain.Order
	callbacks []audit.Entry
	err       error

	gotQuery    service.OrderQuery
	gotOrderID  string
	gotStatus   *string
	gotPayment  *string
	gotPage     int
	gotLimit    int
	gotIdentity domain.ShopperIdentity
}

func (m *mockOrderService) List(_ context.Context, _ string, q service.OrderQuery) (*service.OrderPage, error) {
	m.gotQuery = q
	return m.page, m.err
}

func (m *mockOrderService) Get(_ context.Context, _ string, orderID string) (*domain.Order, error) {
	m.gotOrderID = orderID
	return m.order, m.err
}

func (m *mockOrderService) GetForShopper(_ context.Context, _ string, identity domain.ShopperIdentity, orderID string) (*domain.Order, error) {
	m.gotIdentity, m.gotOrderID = identity, orderID
	return m.order, m.err
}

func (m *mockOrderService) UpdateStatus(_ context.Context, _ string, orderID string, status, paymentStatus *string) (*domain.Order, error) {
	m.gotOrderID, m.gotStatus, m.gotPayment = orderID, status, paymentStatus
	return m.order, m.err
}

func (m *mockOrderService) MyPaidOrders(_ context.Context, _ string, identity domain.ShopperIdentity, page, limit int) (*service.OrderPage, error) {
	m.gotIdentity, m.gotPage, m.gotLimit = identity, page, limit
	return m.page, m.err
}

func (m *mockOrderService) PaymentCallbacks(_ context.Context, _ string, orderID string) ([]audit.Entry, error) {
	m.gotOrderID = orderID
	return m.callbacks, m.err
}

type mockReconciler struct {
	mu      sync.Mutex
	order   *domain.Order
	outcome domain.PaymentOutcome
	err     error
	events  []domain.PaymentEvent
	sources []string
}

func (m *mockReconciler) ApplyPaymentEvent(_ context.Context, source string, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.sources = append(m.sources, source)
	if m.err != nil {
		return nil, "", m.err
	}
	return m.order, m.outcome, nil
}

type mockRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (m *mockRecorder) Record(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *mockRecorder) ListByOrder(context.Context, string, int64) ([]audit.Entry, error) {
	return nil, nil
}

func (m *mockRecorder) last() audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

// orderLedger applies payment events to in-memory orders the way the repository does.
type orderLedger struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func (l *orderLedger) ApplyPayment(_ context.Context, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[ev.OrderID]
	if !ok {
		return nil, "", domain.ErrOrderNotFound
	}
	outcome, err := o.ApplyPayment(ev)
	if err != nil {
		return nil, "", err
	}
	snapshot := *o
	return &snapshot, outcome, nil
}
