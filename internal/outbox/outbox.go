// Package outbox relays events recorded in the order ledger's outbox table to
// the message broker.
package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Message is a pending outbox row.
type Message struct {
	ID        int64
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Store claims pending messages.
//
// Dispatch locks up to limit unsent messages, passes them to fn and marks
// them sent only if fn succeeds. Rows locked by a concurrent Dispatch are
// skipped. It returns the number of messages marked sent.
type Store interface {
	Dispatch(ctx context.Context, limit int, fn func(ctx context.Context, msgs []Message) error) (int, error)
}

// Publisher delivers messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
}

// Relay periodically moves pending outbox messages to a Publisher. Delivery
// is at least once: a crash between publish and mark re-sends the batch.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	lg        *zap.Logger
}

// RelayOptions tunes a Relay.
type RelayOptions struct {
	Interval  time.Duration
	BatchSize int
}

// NewRelay creates a Relay.
func NewRelay(store Store, publisher Publisher, opts RelayOptions, lg *zap.Logger) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		lg:        lg,
	}
}

// Run flushes on every tick until ctx is done. Flush errors are logged and
// retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.lg.Warn("Outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush drains pending messages batch by batch and returns how many were
// published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.store.Dispatch(ctx, r.batchSize, r.publisher.Publish)
		total += n
		if err != nil {
			return total, errors.Wrap(err, "dispatch")
		}
		if n > 0 {
			r.lg.Debug("Outbox batch published", zap.Int("count", n))
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}
