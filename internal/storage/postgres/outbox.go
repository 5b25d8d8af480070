package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gallery-checkout/internal/domain/order"
	"github.com/xenking/gallery-checkout/internal/outbox"
)

const (
	enqueueOutboxSQL = `INSERT INTO order_outbox (topic, key, payload) VALUES ($1, $2, $3)`

	claimOutboxSQL = `SELECT id, topic, key, payload, created_at FROM order_outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markOutboxSentSQL = `UPDATE order_outbox SET sent_at = now() WHERE id = ANY($1)`
)

var (
	_ order.Outbox = (*OutboxRepository)(nil)
	_ outbox.Store = (*OutboxRepository)(nil)
)

// OutboxRepository stores events written alongside orders.
type OutboxRepository struct {
	db querier
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{db: pool}
}

// Enqueue records e as pending.
func (r *OutboxRepository) Enqueue(ctx context.Context, e order.Event) error {
	if _, err := r.db.Exec(ctx, enqueueOutboxSQL, e.Topic, e.Key, e.Payload); err != nil {
		return errors.Wrapf(err, "enqueue %s event", e.Topic)
	}
	return nil
}

// Dispatch claims a batch of pending rows in its own transaction.
func (r *OutboxRepository) Dispatch(ctx context.Context, limit int, fn func(ctx context.Context, msgs []outbox.Message) error) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rows, err := tx.Query(ctx, claimOutboxSQL, limit)
	if err != nil {
		return 0, errors.Wrap(err, "claim")
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Message, error) {
		var m outbox.Message
		err := row.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return 0, errors.Wrap(err, "claim")
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := fn(ctx, msgs); err != nil {
		return 0, errors.Wrap(err, "publish")
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if _, err := tx.Exec(ctx, markOutboxSentSQL, ids); err != nil {
		return 0, errors.Wrap(err, "mark sent")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return len(msgs), nil
}
