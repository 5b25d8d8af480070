package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xenking/gallery-checkout/internal/domain/auth"
	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
	"github.com/xenking/gallery-checkout/internal/domain/order"
	"github.com/xenking/gallery-checkout/internal/storage/memory"
)

const (
	buyerID   int64 = 100
	artworkA  int64 = 10
	artworkB  int64 = 11
	sellerOne int64 = 1
	sellerTwo int64 = 2
)

// --- Fakes ---

// spyUoW fails the test if a unit of work is started.
type spyUoW struct {
	t *testing.T
}

func (s spyUoW) Within(context.Context, func(context.Context, order.Tx) error) error {
	s.t.Fatal("unit of work must not be started")
	return nil
}

// faultyUoW wraps a real unit of work and injects failures into its stores.
type faultyUoW struct {
	inner      order.UnitOfWork
	lockErr    error
	resolveErr error
	appendErr  error
	enqueueErr error
	clearErr   error
	clearPanic bool
}

func (f *faultyUoW) Within(ctx context.Context, fn func(context.Context, order.Tx) error) error {
	return f.inner.Within(ctx, func(ctx context.Context, tx order.Tx) error {
		return fn(ctx, faultyTx{Tx: tx, f: f})
	})
}

type faultyTx struct {
	order.Tx
	f *faultyUoW
}

func (t faultyTx) Carts() cart.Repository {
	return faultyCarts{Repository: t.Tx.Carts(), f: t.f}
}

func (t faultyTx) Prices() catalog.Resolver {
	if t.f.resolveErr != nil {
		return failingResolver{err: t.f.resolveErr}
	}
	return t.Tx.Prices()
}

func (t faultyTx) Orders() order.Writer {
	if t.f.appendErr != nil {
		return failingWriter{err: t.f.appendErr}
	}
	return t.Tx.Orders()
}

func (t faultyTx) Outbox() order.Outbox {
	if t.f.enqueueErr != nil {
		return failingOutbox{err: t.f.enqueueErr}
	}
	return t.Tx.Outbox()
}

type faultyCarts struct {
	cart.Repository
	f *faultyUoW
}

func (c faultyCarts) Lock(ctx context.Context, buyerID int64) (*cart.Cart, error) {
	if c.f.lockErr != nil {
		return nil, c.f.lockErr
	}
	return c.Repository.Lock(ctx, buyerID)
}

func (c faultyCarts) Clear(ctx context.Context, cartID int64) error {
	if c.f.clearPanic {
		panic("clear exploded")
	}
	if c.f.clearErr != nil {
		return c.f.clearErr
	}
	return c.Repository.Clear(ctx, cartID)
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, []int64) (map[int64]catalog.Quote, error) {
	return nil, f.err
}

type failingWriter struct{ err error }

func (f failingWriter) Append(context.Context, *order.Order) error { return f.err }

type failingOutbox struct{ err error }

func (f failingOutbox) Enqueue(context.Context, order.Event) error { return f.err }

type spyCache struct {
	cart.NopCache
	mu      sync.Mutex
	deleted []int64
	ctxErrs []error
}

func (s *spyCache) Delete(ctx context.Context, buyerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, buyerID)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return nil
}

// cancelAfterCommit cancels the caller's context once the wrapped unit of
// work has committed, like a client hanging up right after checkout.
type cancelAfterCommit struct {
	order.UnitOfWork
	cancel context.CancelFunc
}

func (c cancelAfterCommit) Within(ctx context.Context, fn func(context.Context, order.Tx) error) error {
	err := c.UnitOfWork.Within(ctx, fn)
	c.cancel()
	return err
}

// --- Helpers ---

func newStore(t *testing.T) *memory.Store {
	t.Helper()

	s := memory.NewStore()
	s.PutUser(auth.User{ID: buyerID, Name: "Asha", Email: "asha@example.com", Role: auth.RoleVisitor, Active: true})
	s.PutArtwork(catalog.Item{ID: artworkA, SellerID: sellerOne, Title: "A", Price: decimal.NewFromInt(500), Status: catalog.StatusApproved})
	s.PutArtwork(catalog.Item{ID: artworkB, SellerID: sellerTwo, Title: "B", Price: decimal.NewFromInt(1200), Status: catalog.StatusApproved})
	return s
}

func newService(t *testing.T, uow order.UnitOfWork, opts order.ServiceOptions) *order.Service {
	t.Helper()

	svc, err := order.NewService(uow, opts)
	require.NoError(t, err)
	return svc
}

func fillCart(t *testing.T, s *memory.Store, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.AddItem(context.Background(), buyerID, id))
	}
}

func validRequest() order.CheckoutRequest {
	return order.CheckoutRequest{
		BuyerID: buyerID,
		Delivery: order.Delivery{
			RecipientName: "Asha Rao",
			Mobile:        "+91 98450 00000",
			Address:       "12 MG Road, Bengaluru",
			Landmark:      "Opposite the museum",
		},
	}
}

func cartItems(t *testing.T, s *memory.Store) []int64 {
	t.Helper()
	ids, err := s.ListItems(context.Background(), buyerID)
	require.NoError(t, err)
	return ids
}

func buyerOrders(t *testing.T, s *memory.Store) []order.Order {
	t.Helper()
	orders, err := s.ListForBuyer(context.Background(), buyerID)
	require.NoError(t, err)
	return orders
}

// --- Tests ---

func TestCheckout_TwoItems(t *testing.T) {
	s := newStore(t)
	fillCart(t, s, artworkA, artworkB)
	svc := newService(t, s, order.ServiceOptions{})

	o, err := svc.Checkout(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, order.StatusPaid, o.Status)
	assert.True(t, o.Total.Equal(decimal.NewFromInt(1700)), "total = %s", o.Total)
	assert.Equal(t, order.DefaultCurrency, o.Currency)
	assert.Equal(t, order.DefaultPaymentMethod, o.PaymentMethod)
	assert.NotZero(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())

	require.Len(t, o.Items, 2)
	assert.Equal(t, artworkA, o.Items[0].ArtworkID)
	assert.Equal(t, sellerOne, o.Items[0].SellerID)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, artworkB, o.Items[1].ArtworkID)
	assert.Equal(t, sellerTwo, o.Items[1].SellerID)
	for _, it := range o.Items {
		assert.Equal(t, o.ID, it.OrderID)
	}

	assert.Empty(t, cartItems(t, s))

	orders := buyerOrders(t, s)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
	assert.Equal(t, "Opposite the museum", orders[0].Delivery.Landmark)

	assert.Equal(t, 1, s.Pending())
}

func TestCheckout_TotalIsSumOfLines(t *testing.T) {
	s := newStore(t)
	s.PutArtwork(catalog.Item{ID: 12, SellerID: sellerOne, Price: decimal.RequireFromString("0.10"), Status: catalog.StatusApproved})
	s.PutArtwork(catalog.Item{ID: 13, SellerID: sellerOne, Price: decimal.RequireFromString("0.20"), Status: catalog.StatusApproved})
	fillCart(t, s, 12, 13)
	svc := newService(t, s, order.ServiceOptions{})

	o, err := svc.Checkout(context.Background(), validRequest())
	require.NoError(t, err)

	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.UnitPrice)
	}
	assert.True(t, o.Total.Equal(sum))
	assert.Equal(t, "0.3", o.Total.String())
}

func TestCheckout_EmptyCart(t *testing.T) {
	t.Run("NoCart", func(t *testing.T) {
		s := newStore(t)
		svc := newService(t, s, order.ServiceOptions{})

		_, err := svc.Checkout(context.Background(), validRequest())
		require.ErrorIs(t, err, order.ErrEmptyCart)
		assert.Empty(t, buyerOrders(t, s))
		assert.Zero(t, s.Pending())
	})
	t.Run("EmptiedCart", func(t *testing.T) {
		s := newStore(t)
		fillCart(t, s, artworkA)
		require.NoError(t, s.RemoveItem(context.Background(), buyerID, artworkA))
		svc := newService(t, s, order.ServiceOptions{})

		_, err := svc.Checkout(context.Background(), validRequest())
		require.ErrorIs(t, err, order.ErrEmptyCart)
		assert.Empty(t, buyerOrders(t, s))
	})
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *order.CheckoutRequest)
		missing []string
		message string
	}{
		{
			name:    "MissingLandmark",
			mutate:  func(r *order.CheckoutRequest) { r.Delivery.Landmark = "" },
			missing: []string{order.FieldLandmark},
			message: "landmark is required",
		},
		{
			name:    "BlankLandmark",
			mutate:  func(r *order.CheckoutRequest) { r.Delivery.Landmark = "   " },
			missing: []string{order.FieldLandmark},
			message: "landmark is required",
		},
		{
			name: "AllMissing",
			mutate: func(r *order.CheckoutRequest) {
				r.Delivery = order.Delivery{}
			},
			missing: []string{order.FieldRecipientName, order.FieldMobile, order.FieldAddress, order.FieldLandmark},
			message: "purchaserName, mobile, address, and landmark are required",
		},
		{
			name:    "BadCurrency",
			mutate:  func(r *order.CheckoutRequest) { r.Currency = "RUPEE" },
			message: "currency must be a 3-letter code",
		},
		{
			name:    "NoBuyer",
			mutate:  func(r *order.CheckoutRequest) { r.BuyerID = 0 },
			message: "buyer is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, spyUoW{t: t}, order.ServiceOptions{})

			req := validRequest()
			tt.mutate(&req)
			_, err := svc.Checkout(context.Background(), req)

			var vErr *order.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.missing, vErr.Missing)
			assert.Equal(t, tt.message, vErr.Error())
		})
	}
}

func TestCheckout_PaymentOverrides(t *testing.T) {
	s := newStore(t)
	fillCart(t, s, artworkA)
	svc := newService(t, s, order.ServiceOptions{})

	req := validRequest()
	req.PaymentMethod = " CARD "
	req.Currency = "usd"
	o, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "CARD", o.PaymentMethod)
	assert.Equal(t, "USD", o.Currency)
}

func TestCheckout_PriceSnapshot(t *testing.T) {
	s := newStore(t)
	fillCart(t, s, artworkA)
	svc := newService(t, s, order.ServiceOptions{})

	// Price changes between add and checkout are honoured.
	s.PutArtwork(catalog.Item{ID: artworkA, SellerID: sellerOne, Price: decimal.NewFromInt(650), Status: catalog.StatusApproved})

	o, err := svc.Checkout(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.NewFromInt(650)))

	// Changes after checkout are not.
	s.PutArtwork(catalog.Item{ID: artworkA, SellerID: sellerTwo, Price: decimal.NewFromInt(9999), Status: catalog.StatusApproved})

	orders := buyerOrders(t, s)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Total.Equal(decimal.NewFromInt(650)))
	assert.True(t, orders[0].Items[0].UnitPrice.Equal(decimal.NewFromInt(650)))
	assert.Equal(t, sellerOne, orders[0].Items[0].SellerID)
}

func TestCheckout_VanishedItems(t *testing.T) {
	t.Run("SomeVanished", func(t *testing.T) {
		s := newStore(t)
		fillCart(t, s, artworkA, artworkB)
		s.DeleteArtwork(artworkB)
		svc := newService(t, s, order.ServiceOptions{})

		o, err := svc.Checkout(context.Background(), validRequest())
		require.NoError(t, err)
		require.Len(t, o.Items, 1)
		assert.Equal(t, artworkA, o.Items[0].ArtworkID)
		assert.True(t, o.Total.Equal(decimal.NewFromInt(500)))
		assert.Empty(t, cartItems(t, s))
	})
	t.Run("AllVanished", func(t *testing.T) {
		s := newStore(t)
		fillCart(t, s, artworkA, artworkB)
		s.DeleteArtwork(artworkA)
		s.DeleteArtwork(artworkB)
		svc := newService(t, s, order.ServiceOptions{})

		_, err := svc.Checkout(context.Background(), validRequest())
		require.ErrorIs(t, err, order.ErrEmptyCart)
		assert.Empty(t, buyerOrders(t, s))
		assert.Equal(t, []int64{artworkA, artworkB}, cartItems(t, s))
	})
}

func TestCheckout_ApprovedOnly(t *testing.T) {
	setup := func(t *testing.T) *memory.Store {
		s := newStore(t)
		fillCart(t, s, artworkA, artworkB)
		s.PutArtwork(catalog.Item{ID: artworkB, SellerID: sellerTwo, Price: decimal.NewFromInt(1200), Status: catalog.StatusPending})
		return s
	}

	t.Run("Disabled", func(t *testing.T) {
		s := setup(t)
		svc := newService(t, s, order.ServiceOptions{})

		o, err := svc.Checkout(context.Background(), validRequest())
		require.NoError(t, err)
		assert.Len(t, o.Items, 2)
	})
	t.Run("Enabled", func(t *testing.T) {
		s := setup(t)
		svc := newService(t, s, order.ServiceOptions{ApprovedOnly: true})

		o, err := svc.Checkout(context.Background(), validRequest())
		require.NoError(t, err)
		require.Len(t, o.Items, 1)
		assert.Equal(t, artworkA, o.Items[0].ArtworkID)
		assert.True(t, o.Total.Equal(decimal.NewFromInt(500)))
	})
}

func TestCheckout_Rollback(t *testing.T) {
	storageErr := errors.New("connection reset")

	tests := []struct {
		name  string
		fault faultyUoW
		op    string
	}{
		{name: "Lock", fault: faultyUoW{lockErr: storageErr}, op: "lock cart"},
		{name: "Resolve", fault: faultyUoW{resolveErr: storageErr}, op: "resolve prices"},
		{name: "Append", fault: faultyUoW{appendErr: storageErr}, op: "append order"},
		{name: "Enqueue", fault: faultyUoW{enqueueErr: storageErr}, op: "enqueue event"},
		{name: "Clear", fault: faultyUoW{clearErr: storageErr}, op: "clear cart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			fillCart(t, s, artworkA, artworkB)
			tt.fault.inner = s
			svc := newService(t, &tt.fault, order.ServiceOptions{})

			_, err := svc.Checkout(context.Background(), validRequest())

			var txErr *order.TransactionError
			require.ErrorAs(t, err, &txErr)
			assert.Equal(t, tt.op, txErr.Op)
			require.ErrorIs(t, err, storageErr)

			assert.Equal(t, []int64{artworkA, artworkB}, cartItems(t, s))
			assert.Empty(t, buyerOrders(t, s))
			assert.Zero(t, s.Pending())
		})
	}
}

func TestCheckout_PanicRollsBack(t *testing.T) {
	s := newStore(t)
	fillCart(t, s, artworkA)
	svc := newService(t, &faultyUoW{inner: s, clearPanic: true}, order.ServiceOptions{})

	require.Panics(t, func() {
		_, _ = svc.Checkout(context.Background(), validRequest())
	})
	assert.Equal(t, []int64{artworkA}, cartItems(t, s))
	assert.Empty(t, buyerOrders(t, s))

	// The store is usable afterwards.
	svc = newService(t, s, order.ServiceOptions{})
	_, err := svc.Checkout(context.Background(), validRequest())
	require.NoError(t, err)
}

func TestCheckout_Cancelled(t *testing.T) {
	s := newStore(t)
	fillCart(t, s, artworkA)
	svc := newService(t, s, order.ServiceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Checkout(ctx, validRequest())
	var txErr *order.TransactionError
	require.ErrorAs(t, err, &txErr)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{artworkA}, cartItems(t, s))
	assert.Empty(t, buyerOrders(t, s))
}

func TestCheckout_ConcurrentSameBuyer(t *testing.T) {
	const racers = 8

	s := newStore(t)
	fillCart(t, s, artworkA, artworkB)
	svc := newService(t, s, order.ServiceOptions{})

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, racers)
	)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Checkout(context.Background(), validRequest())
		}()
	}
	close(start)
	wg.Wait()

	var paid, empty int
	for _, err := range errs {
		switch {
		case err == nil:
			paid++
		case errors.Is(err, order.ErrEmptyCart):
			empty++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, racers-1, empty)

	orders := buyerOrders(t, s)
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Items, 2)
	assert.True(t, orders[0].Total.Equal(decimal.NewFromInt(1700)))
}

func TestCheckout_InvalidatesCache(t *testing.T) {
	s := newStore(t)
	fillCart(t, s, artworkA)
	cache := &spyCache{}
	svc := newService(t, s, order.ServiceOptions{Cache: cache})

	_, err := svc.Checkout(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, []int64{buyerID}, cache.deleted)

	// Failed checkouts leave the cache alone.
	_, err = svc.Checkout(context.Background(), validRequest())
	require.ErrorIs(t, err, order.ErrEmptyCart)
	assert.Len(t, cache.deleted, 1)
}

func TestCheckout_InvalidatesCacheAfterClientLeft(t *testing.T) {
	s := newStore(t)
	fillCart(t, s, artworkA)
	cache := &spyCache{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newService(t, cancelAfterCommit{UnitOfWork: s, cancel: cancel}, order.ServiceOptions{Cache: cache})

	_, err := svc.Checkout(ctx, validRequest())
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	assert.Equal(t, []int64{buyerID}, cache.deleted)
	assert.Equal(t, []error{nil}, cache.ctxErrs)
}

func TestCheckout_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	s := newStore(t)
	fillCart(t, s, artworkA, artworkB)
	svc := newService(t, s, order.ServiceOptions{MeterProvider: mp})
	ctx := context.Background()

	_, err := svc.Checkout(ctx, validRequest())
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, validRequest())
	require.ErrorIs(t, err, order.ErrEmptyCart)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	outcomes := map[string]int64{}
	var revenue float64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "gallery.checkout.total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key("outcome"))
					outcomes[v.AsString()] += dp.Value
				}
			case "gallery.checkout.amount":
				sum, ok := m.Data.(metricdata.Sum[float64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					revenue += dp.Value
				}
			}
		}
	}
	assert.Equal(t, map[string]int64{"paid": 1, "empty": 1}, outcomes)
	assert.InDelta(t, 1700, revenue, 0.001)
}
