package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gallery-checkout/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(buyer_id, status, currency, total, payment_method, recipient_name, mobile, address, landmark)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, artwork_id, seller_id, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	listOrdersForBuyerSQL = `SELECT id, buyer_id, status, currency, total, payment_method,
			recipient_name, mobile, address, landmark, created_at
		FROM orders WHERE buyer_id = $1
		ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT id, order_id, artwork_id, seller_id, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	listPaidSQL = `SELECT oi.id, o.id, o.status, o.currency, oi.unit_price, o.payment_method,
			o.created_at, u.name, COALESCE(a.title, '')
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN users u ON u.id = o.buyer_id
		LEFT JOIN artworks a ON a.id = oi.artwork_id
		WHERE o.status = 'PAID'
		ORDER BY o.created_at DESC, oi.id DESC`

	overviewSQL = `SELECT
		(SELECT count(*) FROM users WHERE is_active),
		(SELECT count(*) FROM artworks WHERE status = 'APPROVED'),
		(SELECT count(*) FROM artworks WHERE status = 'PENDING'),
		(SELECT count(*) FROM orders WHERE status = 'PAID'),
		(SELECT COALESCE(sum(total), 0) FROM orders WHERE status = 'PAID')`
)

var (
	_ order.Writer = (*OrderRepository)(nil)
	_ order.Ledger = (*OrderRepository)(nil)
)

// OrderRepository is the append-only order ledger backed by PostgreSQL.
type OrderRepository struct {
	db querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: pool}
}

// Append writes the order header and its line items. It assigns ids and the
// creation time on o. Callers run it inside a unit of work so a failed line
// insert leaves no header behind.
func (r *OrderRepository) Append(ctx context.Context, o *order.Order) error {
	d := o.Delivery
	err := r.db.QueryRow(ctx, insertOrderSQL,
		o.BuyerID, string(o.Status), o.Currency, o.Total, o.PaymentMethod,
		d.RecipientName, d.Mobile, d.Address, d.Landmark,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert order for buyer %d", o.BuyerID)
	}

	b := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		b.Queue(insertOrderItemSQL, o.ID, it.ArtworkID, it.SellerID, it.UnitPrice).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&it.ID)
			})
	}
	if err := r.db.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(err, "insert items of order %d", o.ID)
	}
	return nil
}

// ListForBuyer returns the buyer's orders newest first, with line items.
func (r *OrderRepository) ListForBuyer(ctx context.Context, buyerID int64) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersForBuyerSQL, buyerID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for buyer %d", buyerID)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for buyer %d", buyerID)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err = r.db.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	for _, it := range items {
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return orders, nil
}

// ListPaid returns one row per line item of every PAID order, newest first.
func (r *OrderRepository) ListPaid(ctx context.Context) ([]order.Transaction, error) {
	rows, err := r.db.Query(ctx, listPaidSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list paid transactions")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Transaction, error) {
		var (
			t      order.Transaction
			status string
		)
		err := row.Scan(&t.LineItemID, &t.OrderID, &status, &t.Currency, &t.Amount,
			&t.PaymentMethod, &t.CreatedAt, &t.BuyerName, &t.ArtworkTitle)
		t.Status = order.Status(status)
		return t, err
	})
}

// Overview aggregates user, artwork and sales counters.
func (r *OrderRepository) Overview(ctx context.Context) (*order.Overview, error) {
	var ov order.Overview
	err := r.db.QueryRow(ctx, overviewSQL).Scan(
		&ov.TotalUsers, &ov.ApprovedArtworks, &ov.PendingArtworks, &ov.TotalSales, &ov.TotalRevenue,
	)
	if err != nil {
		return nil, errors.Wrap(err, "overview")
	}
	return &ov, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.BuyerID, &status, &o.Currency, &o.Total, &o.PaymentMethod,
		&o.Delivery.RecipientName, &o.Delivery.Mobile, &o.Delivery.Address, &o.Delivery.Landmark,
		&o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.LineItem, error) {
	var it order.LineItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ArtworkID, &it.SellerID, &it.UnitPrice)
	return it, err
}
