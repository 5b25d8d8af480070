package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/gallery-checkout/internal/domain/cart"
)

// Checkout outcomes, recorded as the "outcome" metric attribute.
const (
	outcomePaid    = "paid"
	outcomeInvalid = "invalid"
	outcomeEmpty   = "empty"
	outcomeFailed  = "failed"
)

// ServiceOptions configures a Service. The zero value is usable.
type ServiceOptions struct {
	// ApprovedOnly excludes artworks that are no longer APPROVED at checkout
	// time, as if they had vanished from the catalog. Off by default: the cart
	// admission check is the only moderation gate.
	ApprovedOnly bool
	// Timeout bounds a single checkout, zero means the caller's deadline only.
	Timeout time.Duration
	// Cache is invalidated for the buyer after a successful checkout.
	Cache cart.ViewCache

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func (o *ServiceOptions) setDefaults() {
	if o.Cache == nil {
		o.Cache = cart.NopCache{}
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
}

// Service converts carts into paid orders.
type Service struct {
	uow          UnitOfWork
	approvedOnly bool
	timeout      time.Duration
	cache        cart.ViewCache
	tracer       trace.Tracer

	checkouts metric.Int64Counter
	revenue   metric.Float64Counter
}

// NewService creates an order Service on top of the given unit of work.
func NewService(uow UnitOfWork, opts ServiceOptions) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("gallery/order")
	checkouts, err := meter.Int64Counter("gallery.checkout.total",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout counter")
	}
	revenue, err := meter.Float64Counter("gallery.checkout.amount",
		metric.WithDescription("Total amount of paid orders"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "amount counter")
	}

	return &Service{
		uow:          uow,
		approvedOnly: opts.ApprovedOnly,
		timeout:      opts.Timeout,
		cache:        opts.Cache,
		tracer:       opts.TracerProvider.Tracer("gallery/order"),
		checkouts:    checkouts,
		revenue:      revenue,
	}, nil
}

// Checkout reads the buyer's cart, prices it from the live catalog, appends a
// PAID order with one line per artwork and empties the cart, all in one unit
// of work.
//
// Errors: *ValidationError before any storage access, ErrEmptyCart when there
// is nothing to buy, *TransactionError for storage failures. On error the cart
// is left exactly as it was.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	req, err := req.normalize()
	if err != nil {
		s.record(ctx, outcomeInvalid)
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "checkout",
		trace.WithAttributes(attribute.Int64("gallery.buyer_id", req.BuyerID)),
	)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var placed *Order
	err = s.uow.Within(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.place(ctx, tx, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	// The order is committed; the stale view goes even if the client left.
	if err := s.cache.Delete(context.WithoutCancel(ctx), req.BuyerID); err != nil {
		zctx.From(ctx).Warn("Cart cache invalidation failed", zap.Int64("buyer_id", req.BuyerID), zap.Error(err))
	}

	s.record(ctx, outcomePaid)
	s.revenue.Add(ctx, placed.Total.InexactFloat64(),
		metric.WithAttributes(attribute.String("currency", placed.Currency)),
	)
	span.SetAttributes(attribute.Int64("gallery.order_id", placed.ID))
	zctx.From(ctx).Info("Order placed",
		zap.Int64("order_id", placed.ID),
		zap.Int64("buyer_id", placed.BuyerID),
		zap.Int("items", len(placed.Items)),
		zap.Stringer("total", placed.Total),
	)
	return placed, nil
}

// place runs the checkout steps inside tx.
func (s *Service) place(ctx context.Context, tx Tx, req CheckoutRequest) (*Order, error) {
	c, err := tx.Carts().Lock(ctx, req.BuyerID)
	if errors.Is(err, cart.ErrNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, &TransactionError{Op: "lock cart", Err: err}
	}
	if c.Empty() {
		return nil, ErrEmptyCart
	}

	quotes, err := tx.Prices().Resolve(ctx, c.ItemIDs)
	if err != nil {
		return nil, &TransactionError{Op: "resolve prices", Err: err}
	}

	o := &Order{
		BuyerID:       req.BuyerID,
		Status:        StatusPaid,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Delivery:      req.Delivery,
		Items:         make([]LineItem, 0, len(c.ItemIDs)),
	}
	total := decimal.Zero
	for _, id := range c.ItemIDs {
		q, ok := quotes[id]
		if !ok || (s.approvedOnly && !q.Status.Purchasable()) {
			zctx.From(ctx).Info("Skipping unavailable artwork",
				zap.Int64("buyer_id", req.BuyerID),
				zap.Int64("artwork_id", id),
			)
			continue
		}
		o.Items = append(o.Items, LineItem{
			ArtworkID: id,
			SellerID:  q.SellerID,
			UnitPrice: q.UnitPrice,
		})
		total = total.Add(q.UnitPrice)
	}
	if len(o.Items) == 0 {
		return nil, ErrEmptyCart
	}
	o.Total = total

	if err := tx.Orders().Append(ctx, o); err != nil {
		return nil, &TransactionError{Op: "append order", Err: err}
	}
	if err := tx.Outbox().Enqueue(ctx, PaidEvent(o)); err != nil {
		return nil, &TransactionError{Op: "enqueue event", Err: err}
	}
	if err := tx.Carts().Clear(ctx, c.ID); err != nil {
		return nil, &TransactionError{Op: "clear cart", Err: err}
	}
	return o, nil
}

// fail classifies a unit of work error, records it and returns the error to
// surface to the caller.
func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	if errors.Is(err, ErrEmptyCart) {
		s.record(ctx, outcomeEmpty)
		return ErrEmptyCart
	}

	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		// Begin/commit failures and cancellation surface from the unit of
		// work itself.
		txErr = &TransactionError{Op: "commit", Err: err}
	}
	s.record(ctx, outcomeFailed)
	span.RecordError(txErr)
	span.SetStatus(codes.Error, txErr.Op)
	zctx.From(ctx).Error("Checkout failed", zap.String("op", txErr.Op), zap.Error(txErr.Err))
	return txErr
}

func (s *Service) record(ctx context.Context, outcome string) {
	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
