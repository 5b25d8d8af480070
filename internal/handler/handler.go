// Package handler exposes the gallery checkout API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/gallery-checkout/internal/domain/auth"
	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/order"
)

// CartService is the cart API the handlers depend on.
type CartService interface {
	Add(ctx context.Context, buyerID, itemID int64) error
	Remove(ctx context.Context, buyerID, itemID int64) error
	Items(ctx context.Context, buyerID int64) ([]cart.Line, error)
}

// CheckoutService converts carts into orders.
type CheckoutService interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in cart responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves the /api/v1 routes.
type Handler struct {
	carts        CartService
	checkout     CheckoutService
	ledger       order.Ledger
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	carts CartService,
	checkout CheckoutService,
	ledger order.Ledger,
) *Handler {
	return &Handler{
		carts:        carts,
		checkout:     checkout,
		ledger:       ledger,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Mount registers the API under /api/v1 on r. Every route requires a bearer
// token; each one additionally requires a single capability.
func (h *Handler) Mount(r chi.Router, tokens TokenVerifier) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(tokens))
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		})

		r.Group(func(r chi.Router) {
			r.Use(Require(auth.CapPurchase))
			r.Post("/checkout", h.Checkout)
			r.Get("/cart", h.GetCart)
			r.Post("/cart/{artworkId}", h.AddToCart)
			r.Delete("/cart/{artworkId}", h.RemoveFromCart)
			r.Get("/orders", h.ListOrders)
		})

		r.Group(func(r chi.Router) {
			r.Use(Require(auth.CapViewLedger))
			r.Get("/analytics/transactions", h.ListTransactions)
			r.Get("/analytics/overview", h.Overview)
		})
	})
}
