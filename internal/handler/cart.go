package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
)

// GetCart handles GET /api/v1/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Items(r.Context(), identity(r).UserID)
	if err != nil {
		h.internalError(w, r, "Cart read failed", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, l := range lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("artworkId", func(e *jx.Encoder) { e.Int64(l.ArtworkID) })
					e.Field("title", func(e *jx.Encoder) { e.Str(l.Title) })
					e.Field("price", func(e *jx.Encoder) { money(e, l.Price) })
					e.Field("imageUrl", func(e *jx.Encoder) { e.Str(h.imageURL(l.ImageURL)) })
				})
			}
		})
	})
}

// AddToCart handles POST /api/v1/cart/{artworkId}.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	itemID, ok := artworkID(w, r)
	if !ok {
		return
	}

	err := h.carts.Add(r.Context(), identity(r).UserID, itemID)
	switch {
	case err == nil:
		writeMessage(w, http.StatusCreated, "Added to cart")
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, catalog.ErrNotFound.Error())
	case errors.Is(err, cart.ErrNotPurchasable):
		writeError(w, http.StatusUnprocessableEntity, cart.ErrNotPurchasable.Error())
	default:
		h.internalError(w, r, "Cart add failed", err)
	}
}

// RemoveFromCart handles DELETE /api/v1/cart/{artworkId}.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	itemID, ok := artworkID(w, r)
	if !ok {
		return
	}

	if err := h.carts.Remove(r.Context(), identity(r).UserID, itemID); err != nil {
		h.internalError(w, r, "Cart remove failed", err)
		return
	}
	writeMessage(w, http.StatusOK, "Removed from cart")
}

func artworkID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "artworkId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid artwork id")
		return 0, false
	}
	return id, true
}

// imageURL resolves a stored image path against the configured base.
// Absolute URLs pass through unchanged.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
