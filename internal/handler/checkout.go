package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/gallery-checkout/internal/domain/order"
)

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req := order.CheckoutRequest{BuyerID: identity(r).UserID}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case order.FieldRecipientName:
			dst = &req.Delivery.RecipientName
		case order.FieldMobile:
			dst = &req.Delivery.Mobile
		case order.FieldAddress:
			dst = &req.Delivery.Address
		case order.FieldLandmark:
			dst = &req.Delivery.Landmark
		case "paymentMethod":
			dst = &req.PaymentMethod
		case "currency":
			dst = &req.Currency
		default:
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		s, err := d.Str()
		if err != nil {
			return errors.Wrap(err, key)
		}
		*dst = s
		return nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadBody.Error())
		return
	}

	o, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		status, msg := mapCheckoutError(err)
		if status >= http.StatusInternalServerError {
			zctx.From(r.Context()).Error("Checkout request failed", zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Int64(o.ID) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
			e.Field("amount", func(e *jx.Encoder) { money(e, o.Total) })
			e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		})
	})
}

// mapCheckoutError translates checkout errors into a status and a message
// safe to show the buyer. Storage details never leave the server.
func mapCheckoutError(err error) (int, string) {
	var vErr *order.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error()
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, order.ErrEmptyCart.Error()
	default:
		return http.StatusInternalServerError, "checkout failed"
	}
}
