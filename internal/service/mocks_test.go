package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/audit"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/cache"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/catalog"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/payment"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/repository"
	"github.com/google/uuid"
)

// mockStore is an in-memory CartRepository and OrderRepository. One mutex stands in
// for the row locks of the real store.
type mockStore struct {
	mu     sync.Mutex
	carts  map[string]*domain.Cart
	orders map[uuid.UUID]*domain.Order
	events []domain.OrderEvent
	err    error

	// onConsume runs before ConsumeItems, outside the lock.
	onConsume  func()
	consumeErr error
	attachErr  error
	lastFilter repository.OrderFilter
}

func newMockStore() *mockStore {
	return &mockStore{
		carts:  map[string]*domain.Cart{},
		orders: map[uuid.UUID]*domain.Order{},
	}
}

func cartKey(tenantID string, identity domain.ShopperIdentity) string {
	return tenantID + "|" + identity.String()
}

func (m *mockStore) cart(tenantID string, identity domain.ShopperIdentity) *domain.Cart {
	key := cartKey(tenantID, identity)
	c, ok := m.carts[key]
	if !ok {
		now := time.Now().UTC()
		c = &domain.Cart{ID: uuid.New(), TenantID: tenantID, Identity: identity, Items: []domain.CartItem{}, CreatedAt: now, UpdatedAt: now}
		m.carts[key] = c
	}
	return c
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem{}, c.Items...)
	return &cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem{}, o.Items...)
	cp.PaymentDetails = domain.PaymentDetails{}
	if o.PaymentDetails.Session != nil {
		cp.PaymentDetails.Session = map[string]string{}
		for k, v := range o.PaymentDetails.Session {
			cp.PaymentDetails.Session[k] = v
		}
	}
	if o.PaymentDetails.Transactions != nil {
		cp.PaymentDetails.Transactions = map[string]domain.TransactionRecord{}
		for k, v := range o.PaymentDetails.Transactions {
			cp.PaymentDetails.Transactions[k] = v
		}
	}
	return &cp
}

func (m *mockStore) mutate(tenantID string, identity domain.ShopperIdentity, fn func(c *domain.Cart) error) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c := m.cart(tenantID, identity)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	return cloneCart(c), nil
}

func (m *mockStore) GetOrCreateCart(_ context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return cloneCart(m.cart(tenantID, identity)), nil
}

func (m *mockStore) AddItem(_ context.Context, tenantID string, identity domain.ShopperIdentity, item domain.CartItem) (*domain.Cart, error) {
	return m.mutate(tenantID, identity, func(c *domain.Cart) error {
		for i := range c.Items {
			if c.Items[i].ProductID == item.ProductID {
				if c.Items[i].Quantity+item.Quantity > domain.MaxItemQuantity {
					return domain.ErrInvalidQuantity
				}
				c.Items[i].Quantity += item.Quantity
				return nil
			}
		}
		item.ID = uuid.New()
		c.Items = append(c.Items, item)
		return nil
	})
}

func (m *mockStore) UpdateItemQuantity(_ context.Context, tenantID string, identity domain.ShopperIdentity, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	return m.mutate(tenantID, identity, func(c *domain.Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].Quantity = quantity
				return nil
			}
		}
		return domain.ErrItemNotFound
	})
}

func (m *mockStore) RemoveItem(_ context.Context, tenantID string, identity domain.ShopperIdentity, itemID uuid.UUID) (*domain.Cart, error) {
	return m.mutate(tenantID, identity, func(c *domain.Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
		return domain.ErrItemNotFound
	})
}

func (m *mockStore) ClearCart(_ context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	return m.mutate(tenantID, identity, func(c *domain.Cart) error {
		c.Items = []domain.CartItem{}
		return nil
	})
}

func (m *mockStore) ConsumeItems(_ context.Context, tenantID string, identity domain.ShopperIdentity, items []domain.OrderItem) (*domain.Cart, error) {
	if m.onConsume != nil {
		m.onConsume()
	}
	if m.consumeErr != nil {
		return nil, m.consumeErr
	}
	return m.mutate(tenantID, identity, func(c *domain.Cart) error {
		for _, ordered := range items {
			kept := c.Items[:0]
			for _, it := range c.Items {
				if it.ProductID == ordered.ProductID {
					if it.Quantity <= ordered.Quantity {
						continue
					}
					it.Quantity -= ordered.Quantity
				}
				kept = append(kept, it)
			}
			c.Items = kept
		}
		return nil
	})
}

func (m *mockStore) CheckoutCart(_ context.Context, tenantID string, identity domain.ShopperIdentity, build repository.OrderBuilder, clearCart bool) (*domain.Order, *domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, nil, m.err
	}
	c := m.cart(tenantID, identity)
	o, err := build(cloneCart(c))
	if err != nil {
		return nil, nil, err
	}
	m.orders[o.ID] = cloneOrder(o)
	m.events = append(m.events, domain.NewOrderEvent(domain.EventOrderCreated, o, ""))
	if clearCart {
		c.Items = []domain.CartItem{}
		c.Version++
	}
	return o, cloneCart(c), nil
}

func (m *mockStore) AttachPaymentSession(_ context.Context, orderID uuid.UUID, sessionID string, session map[string]string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.AttachSession(sessionID, session)
	out := cloneOrder(o)
	out.Items = nil
	return out, nil
}

func (m *mockStore) GetOrder(_ context.Context, tenantID string, orderID uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *mockStore) ListOrders(_ context.Context, tenantID string, f repository.OrderFilter) ([]*domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	if m.err != nil {
		return nil, 0, m.err
	}
	var matched []*domain.Order
	for _, o := range m.orders {
		if o.TenantID != tenantID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.PaymentStatus != nil && o.PaymentStatus != *f.PaymentStatus {
			continue
		}
		if f.Identity != nil && o.Identity != *f.Identity {
			continue
		}
		if f.MissingPaymentSession && !o.IsOrphaned() {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(o.Customer.Name+o.Customer.Email), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if f.Offset >= total {
		return []*domain.Order{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (m *mockStore) UpdateOrderStatus(_ context.Context, tenantID string, orderID uuid.UUID, status *domain.OrderStatus, pay *domain.PaymentStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, domain.ErrOrderNotFound
	}
	if status != nil {
		o.Status = *status
	}
	if pay != nil {
		o.PaymentStatus = *pay
	}
	return cloneOrder(o), nil
}

func (m *mockStore) ApplyPayment(_ context.Context, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, "", m.err
	}
	o, ok := m.orders[ev.OrderID]
	if !ok {
		return nil, "", domain.ErrOrderNotFound
	}
	outcome, err := o.ApplyPayment(ev)
	if err != nil {
		return nil, "", err
	}
	if outcome == domain.OutcomeApplied {
		m.events = append(m.events, domain.NewOrderEvent(domain.EventOrderPaymentUpdated, o, ev.TransactionID))
	}
	return cloneOrder(o), outcome, nil
}

func (m *mockStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *mockStore) storedOrder(id uuid.UUID) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.orders[id])
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]*domain.Cart
	getErr  error
	setErr  error
	gets    int
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]*domain.Cart{}}
}

func (m *mockCache) Get(_ context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.entries[cartKey(tenantID, identity)]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cloneCart(c), nil
}

func (m *mockCache) Set(_ context.Context, c *domain.Cart) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	key := cartKey(c.TenantID, c.Identity)
	if cur, ok := m.entries[key]; ok && cur.Version > c.Version {
		return false, nil
	}
	m.entries[key] = cloneCart(c)
	return true, nil
}

func (m *mockCache) Delete(_ context.Context, tenantID string, identity domain.ShopperIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.entries, cartKey(tenantID, identity))
	return nil
}

func (m *mockCache) entry(tenantID string, identity domain.ShopperIdentity) *domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[cartKey(tenantID, identity)]
}

type mockLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	releases int
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: map[string]string{}}
}

func (m *mockLocker) AcquireCheckout(_ context.Context, tenantID string, identity domain.ShopperIdentity, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	key := cartKey(tenantID, identity)
	if _, ok := m.held[key]; ok {
		return "", cache.ErrLockHeld
	}
	token := uuid.NewString()
	m.held[key] = token
	return token, nil
}

func (m *mockLocker) ReleaseCheckout(_ context.Context, tenantID string, identity domain.ShopperIdentity, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	key := cartKey(tenantID, identity)
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

type mockCatalog struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
}

func newMockCatalog(products ...*catalog.Product) *mockCatalog {
	m := &mockCatalog{products: map[string]*catalog.Product{}}
	for _, p := range products {
		m.products[p.TenantID+"|"+p.ID] = p
	}
	return m
}

func (m *mockCatalog) Lookup(_ context.Context, tenantID, productID string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[tenantID+"|"+productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockCatalog) setPrice(tenantID, productID string, price int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[tenantID+"|"+productID].Price = price
}

type mockProvider struct {
	mu       sync.Mutex
	requests []payment.SessionRequest
	session  *payment.Session
	err      error

	// onCreate runs before CreateSession records the request, outside the lock.
	onCreate func()
}

func (m *mockProvider) Name() string { return "stripe" }

func (m *mockProvider) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	if m.onCreate != nil {
		m.onCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
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

func (m *mockRecorder) ListByOrder(_ context.Context, orderID string, limit int64) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []audit.Entry
	for _, e := range m.entries {
		if e.OrderID == orderID && int64(len(out)) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}
