package memory

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/gallery-checkout/internal/domain/catalog"
	"github.com/xenking/gallery-checkout/internal/domain/order"
	"github.com/xenking/gallery-checkout/internal/outbox"
)

// ListForBuyer returns the buyer's orders newest first.
func (s *Store) ListForBuyer(_ context.Context, buyerID int64) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []order.Order{}
	for i := len(s.st.orders) - 1; i >= 0; i-- {
		o := s.st.orders[i]
		if o.BuyerID != buyerID {
			continue
		}
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	return out, nil
}

// ListPaid returns one transaction per line item of every PAID order, newest
// first.
func (s *Store) ListPaid(_ context.Context) ([]order.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []order.Transaction{}
	for i := len(s.st.orders) - 1; i >= 0; i-- {
		o := s.st.orders[i]
		if o.Status != order.StatusPaid {
			continue
		}
		for j := len(o.Items) - 1; j >= 0; j-- {
			it := o.Items[j]
			out = append(out, order.Transaction{
				LineItemID:    it.ID,
				OrderID:       o.ID,
				Status:        o.Status,
				Currency:      o.Currency,
				Amount:        it.UnitPrice,
				PaymentMethod: o.PaymentMethod,
				CreatedAt:     o.CreatedAt,
				BuyerName:     s.st.users[o.BuyerID].Name,
				ArtworkTitle:  s.st.artworks[it.ArtworkID].Title,
			})
		}
	}
	return out, nil
}

// Overview aggregates user, artwork and sales counters.
func (s *Store) Overview(_ context.Context) (*order.Overview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ov := order.Overview{TotalRevenue: decimal.Zero}
	for _, u := range s.st.users {
		if u.Active {
			ov.TotalUsers++
		}
	}
	for _, it := range s.st.artworks {
		switch it.Status {
		case catalog.StatusApproved:
			ov.ApprovedArtworks++
		case catalog.StatusPending:
			ov.PendingArtworks++
		}
	}
	for _, o := range s.st.orders {
		if o.Status == order.StatusPaid {
			ov.TotalSales++
			ov.TotalRevenue = ov.TotalRevenue.Add(o.Total)
		}
	}
	return &ov, nil
}

// Dispatch hands up to limit pending messages to fn and marks them sent when
// it succeeds. The store lock is held for the duration of fn.
func (s *Store) Dispatch(ctx context.Context, limit int, fn func(ctx context.Context, msgs []outbox.Message) error) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		msgs []outbox.Message
		idx  []int
	)
	for i, row := range s.st.outbox {
		if len(msgs) == limit {
			break
		}
		if !row.sent {
			msgs = append(msgs, row.msg)
			idx = append(idx, i)
		}
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	if err := fn(ctx, msgs); err != nil {
		return 0, err
	}
	for _, i := range idx {
		s.st.outbox[i].sent = true
	}
	return len(msgs), nil
}

// Pending returns the number of outbox messages not yet sent.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, row := range s.st.outbox {
		if !row.sent {
			n++
		}
	}
	return n
}
