package http

import (
	"net/http"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Webhooks *WebhookHandler
	Health   http.HandlerFunc
}

func NewRouter(h Handlers, m *metrics.Metrics, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.Health)
	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequireTenant, RequireShopper)

			r.Get("/cart", h.Cart.GetCart)
			r.Post("/cart/items", h.Cart.AddItem)
			r.Put("/cart/items/{item_id}", h.Cart.UpdateQuantity)
			r.Delete("/cart/items/{item_id}", h.Cart.RemoveItem)
			r.Delete("/cart", h.Cart.ClearCart)

			r.Post("/checkout", h.Checkout.Checkout)
			r.Post("/checkout/hosted", h.Checkout.CheckoutHosted)

			r.Get("/orders/mine", h.Orders.MyOrders)
			r.Get("/orders/{order_id}", h.Orders.GetMyOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireTenant, RequireAdmin)

			r.Get("/orders", h.Orders.ListOrders)
			r.Get("/orders/{order_id}", h.Orders.GetOrder)
			r.Patch("/orders/{order_id}/status", h.Orders.UpdateStatus)
			r.Get("/orders/{order_id}/payment-callbacks", h.Orders.PaymentCallbacks)
		})
	})

	r.Post("/payments/webhooks/{provider}", h.Webhooks.Handle)

	return r
}
