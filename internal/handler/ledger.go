package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListOrders handles GET /api/v1/orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.ledger.ListForBuyer(r.Context(), identity(r).UserID)
	if err != nil {
		h.internalError(w, r, "Order list failed", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, o := range orders {
				e.Obj(func(e *jx.Encoder) {
					e.Field("orderId", func(e *jx.Encoder) { e.Int64(o.ID) })
					e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
					e.Field("amount", func(e *jx.Encoder) { money(e, o.Total) })
					e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
					e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
					e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
					e.Field("delivery", func(e *jx.Encoder) {
						e.Obj(func(e *jx.Encoder) {
							e.Field("purchaserName", func(e *jx.Encoder) { e.Str(o.Delivery.RecipientName) })
							e.Field("mobile", func(e *jx.Encoder) { e.Str(o.Delivery.Mobile) })
							e.Field("address", func(e *jx.Encoder) { e.Str(o.Delivery.Address) })
							e.Field("landmark", func(e *jx.Encoder) { e.Str(o.Delivery.Landmark) })
						})
					})
					e.Field("items", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, it := range o.Items {
								e.Obj(func(e *jx.Encoder) {
									e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
									e.Field("artworkId", func(e *jx.Encoder) { e.Int64(it.ArtworkID) })
									e.Field("sellerId", func(e *jx.Encoder) { e.Int64(it.SellerID) })
									e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
								})
							}
						})
					})
				})
			}
		})
	})
}

// ListTransactions handles GET /api/v1/analytics/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.ListPaid(r.Context())
	if err != nil {
		h.internalError(w, r, "Transaction list failed", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, t := range txs {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Int64(t.LineItemID) })
					e.Field("orderId", func(e *jx.Encoder) { e.Int64(t.OrderID) })
					e.Field("status", func(e *jx.Encoder) { e.Str(string(t.Status)) })
					e.Field("currency", func(e *jx.Encoder) { e.Str(t.Currency) })
					e.Field("amount", func(e *jx.Encoder) { money(e, t.Amount) })
					e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(t.PaymentMethod) })
					e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, t.CreatedAt) })
					e.Field("buyerName", func(e *jx.Encoder) { e.Str(t.BuyerName) })
					e.Field("artworkTitle", func(e *jx.Encoder) { e.Str(t.ArtworkTitle) })
				})
			}
		})
	})
}

// Overview handles GET /api/v1/analytics/overview.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.ledger.Overview(r.Context())
	if err != nil {
		h.internalError(w, r, "Overview failed", err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("totalUsers", func(e *jx.Encoder) { e.Int64(ov.TotalUsers) })
			e.Field("approvedArtworks", func(e *jx.Encoder) { e.Int64(ov.ApprovedArtworks) })
			e.Field("pendingArtworks", func(e *jx.Encoder) { e.Int64(ov.PendingArtworks) })
			e.Field("totalSales", func(e *jx.Encoder) { e.Int64(ov.TotalSales) })
			e.Field("totalRevenue", func(e *jx.Encoder) { money(e, ov.TotalRevenue) })
		})
	})
}
