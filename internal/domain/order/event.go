package order

import (
	"strconv"
	"time"

	"github.com/go-faster/jx"
)

// TopicOrderPaid is the outbox topic for committed checkouts.
const TopicOrderPaid = "order.paid"

// PaidEvent builds the outbox event announcing a committed order. Amounts are
// encoded as strings to keep decimal precision across consumers.
func PaidEvent(o *Order) Event {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("buyerId", func(e *jx.Encoder) { e.Int64(o.BuyerID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(o.Total.String()) })
		e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("artworkId", func(e *jx.Encoder) { e.Int64(it.ArtworkID) })
						e.Field("sellerId", func(e *jx.Encoder) { e.Int64(it.SellerID) })
						e.Field("unitPrice", func(e *jx.Encoder) { e.Str(it.UnitPrice.String()) })
					})
				}
			})
		})
	})

	return Event{
		Topic:   TopicOrderPaid,
		Key:     strconv.FormatInt(o.ID, 10),
		Payload: e.Bytes(),
	}
}
