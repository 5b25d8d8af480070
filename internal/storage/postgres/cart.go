package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gallery-checkout/internal/domain/cart"
)

const (
	getOrCreateCartSQL = `INSERT INTO carts (buyer_id) VALUES ($1)
		ON CONFLICT (buyer_id) DO UPDATE SET buyer_id = EXCLUDED.buyer_id
		RETURNING id`

	addCartItemSQL = `INSERT INTO cart_items (cart_id, artwork_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	removeCartItemSQL = `WITH c AS (
			SELECT id FROM carts WHERE buyer_id = $1 FOR NO KEY UPDATE
		)
		DELETE FROM cart_items ci USING c
		WHERE ci.cart_id = c.id AND ci.artwork_id = $2`

	listCartItemsSQL = `SELECT ci.artwork_id FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE c.buyer_id = $1 ORDER BY ci.artwork_id`

	lockCartSQL = `SELECT id, buyer_id, created_at FROM carts WHERE buyer_id = $1 FOR UPDATE`

	cartItemIDsSQL = `SELECT artwork_id FROM cart_items WHERE cart_id = $1 ORDER BY artwork_id`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db querier
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{db: pool}
}

// GetOrCreate returns the buyer's cart id, creating the cart on first use.
// Concurrent first calls resolve to the same row.
func (r *CartRepository) GetOrCreate(ctx context.Context, buyerID int64) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, getOrCreateCartSQL, buyerID).Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "get or create cart for buyer %d", buyerID)
	}
	return id, nil
}

// AddItem inserts the artwork into the buyer's cart unless already present.
func (r *CartRepository) AddItem(ctx context.Context, buyerID, itemID int64) error {
	cartID, err := r.GetOrCreate(ctx, buyerID)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, addCartItemSQL, cartID, itemID); err != nil {
		return errors.Wrapf(err, "add artwork %d to cart %d", itemID, cartID)
	}
	return nil
}

// RemoveItem deletes the artwork from the buyer's cart if present. It takes
// the cart row lock first, so it waits for an in-flight checkout.
func (r *CartRepository) RemoveItem(ctx context.Context, buyerID, itemID int64) error {
	if _, err := r.db.Exec(ctx, removeCartItemSQL, buyerID, itemID); err != nil {
		return errors.Wrapf(err, "remove artwork %d for buyer %d", itemID, buyerID)
	}
	return nil
}

// ListItems returns the artwork ids in the buyer's cart. A buyer without a
// cart has no items.
func (r *CartRepository) ListItems(ctx context.Context, buyerID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, listCartItemsSQL, buyerID)
	if err != nil {
		return nil, errors.Wrapf(err, "list cart items for buyer %d", buyerID)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Lock takes the row lock on the buyer's cart and reads its lines. Must run
// inside a transaction; the lock is held until it ends.
func (r *CartRepository) Lock(ctx context.Context, buyerID int64) (*cart.Cart, error) {
	var c cart.Cart
	err := r.db.QueryRow(ctx, lockCartSQL, buyerID).Scan(&c.ID, &c.BuyerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lock cart for buyer %d", buyerID)
	}

	rows, err := r.db.Query(ctx, cartItemIDsSQL, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "read cart %d", c.ID)
	}
	c.ItemIDs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errors.Wrapf(err, "read cart %d", c.ID)
	}
	return &c, nil
}

// Clear removes every line from the cart. The cart row itself is kept.
func (r *CartRepository) Clear(ctx context.Context, cartID int64) error {
	if _, err := r.db.Exec(ctx, clearCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "clear cart %d", cartID)
	}
	return nil
}
