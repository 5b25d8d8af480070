package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
	"github.com/xenking/gallery-checkout/internal/domain/order"
)

var _ order.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs checkout steps in a single Read Committed transaction.
// Same-buyer checkouts are serialized by the cart row lock taken in
// CartRepository.Lock, not by the isolation level.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that begins transactions on pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Within begins a transaction, runs fn and commits. The transaction is rolled
// back when fn fails, panics or ctx is done.
func (u *UnitOfWork) Within(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	// No-op after a successful commit. Runs while unwinding a panic too.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, txStores{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

type txStores struct {
	tx pgx.Tx
}

func (s txStores) Carts() cart.Repository   { return &CartRepository{db: s.tx} }
func (s txStores) Prices() catalog.Resolver { return &CatalogRepository{db: s.tx} }
func (s txStores) Orders() order.Writer     { return &OrderRepository{db: s.tx} }
func (s txStores) Outbox() order.Outbox     { return &OutboxRepository{db: s.tx} }
