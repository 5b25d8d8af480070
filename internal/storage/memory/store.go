// Package memory is an in-process implementation of the gallery stores, used
// in demo mode and tests. Units of work are serialized and stage their writes
// on a copy of the state that replaces the live one only on success.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/gallery-checkout/internal/domain/auth"
	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
	"github.com/xenking/gallery-checkout/internal/domain/order"
	"github.com/xenking/gallery-checkout/internal/outbox"
)

var (
	_ cart.Repository  = (*Store)(nil)
	_ catalog.Resolver = (*Store)(nil)
	_ catalog.Reader   = (*Store)(nil)
	_ order.Ledger     = (*Store)(nil)
	_ order.UnitOfWork = (*Store)(nil)
	_ outbox.Store     = (*Store)(nil)
	_ order.Tx         = (*txView)(nil)
)

type cartRow struct {
	id        int64
	createdAt time.Time
	items     map[int64]struct{}
}

type outboxRow struct {
	msg  outbox.Message
	sent bool
}

type state struct {
	users    map[int64]auth.User
	artworks map[int64]catalog.Item
	carts    map[int64]*cartRow // by buyer id
	orders   []order.Order
	outbox   []outboxRow

	nextCartID   int64
	nextOrderID  int64
	nextLineID   int64
	nextOutboxID int64
}

func newState() *state {
	return &state{
		users:    make(map[int64]auth.User),
		artworks: make(map[int64]catalog.Item),
		carts:    make(map[int64]*cartRow),
	}
}

func (s *state) clone() *state {
	c := *s
	c.users = maps.Clone(s.users)
	c.artworks = maps.Clone(s.artworks)
	c.carts = make(map[int64]*cartRow, len(s.carts))
	for buyer, row := range s.carts {
		cp := *row
		cp.items = maps.Clone(row.items)
		c.carts[buyer] = &cp
	}
	c.orders = slices.Clone(s.orders)
	c.outbox = slices.Clone(s.outbox)
	return &c
}

// Store holds all gallery state in memory.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

// PutArtwork inserts or replaces an artwork.
func (s *Store) PutArtwork(it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.artworks[it.ID] = it
}

// DeleteArtwork removes an artwork from the catalog. Cart lines referencing
// it are left in place.
func (s *Store) DeleteArtwork(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.artworks, id)
}

func (s *Store) GetOrCreate(_ context.Context, buyerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getOrCreate(buyerID, s.now()), nil
}

func (s *Store) AddItem(_ context.Context, buyerID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.addItem(buyerID, itemID, s.now())
	return nil
}

func (s *Store) RemoveItem(_ context.Context, buyerID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.removeItem(buyerID, itemID)
	return nil
}

func (s *Store) ListItems(_ context.Context, buyerID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listItems(buyerID), nil
}

// Lock outside a unit of work only snapshots the cart; mutual exclusion comes
// from Within.
func (s *Store) Lock(_ context.Context, buyerID int64) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.lock(buyerID)
}

func (s *Store) Clear(_ context.Context, cartID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.clear(cartID)
	return nil
}

func (s *Store) Resolve(_ context.Context, ids []int64) (map[int64]catalog.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.resolve(ids), nil
}

func (s *Store) GetByID(_ context.Context, id int64) (*catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.st.artworks[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &it, nil
}

func (s *Store) GetByIDs(_ context.Context, ids []int64) ([]catalog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]catalog.Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := s.st.artworks[id]; ok {
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b catalog.Item) int { return cmp.Compare(a.ID, b.ID) })
	return slices.CompactFunc(items, func(a, b catalog.Item) bool { return a.ID == b.ID }), nil
}

// Within runs fn against a staged copy of the state while holding the store
// lock, and publishes the copy only if fn succeeds and ctx is still live.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := s.st.clone()
	if err := fn(ctx, &txView{st: staged, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// txView exposes staged state to a unit of work. It is only used while the
// store lock is held.
type txView struct {
	st  *state
	now func() time.Time
}

func (t *txView) Carts() cart.Repository   { return t }
func (t *txView) Prices() catalog.Resolver { return t }
func (t *txView) Orders() order.Writer     { return t }
func (t *txView) Outbox() order.Outbox     { return t }

func (t *txView) GetOrCreate(_ context.Context, buyerID int64) (int64, error) {
	return t.st.getOrCreate(buyerID, t.now()), nil
}

func (t *txView) AddItem(_ context.Context, buyerID, itemID int64) error {
	t.st.addItem(buyerID, itemID, t.now())
	return nil
}

func (t *txView) RemoveItem(_ context.Context, buyerID, itemID int64) error {
	t.st.removeItem(buyerID, itemID)
	return nil
}

func (t *txView) ListItems(_ context.Context, buyerID int64) ([]int64, error) {
	return t.st.listItems(buyerID), nil
}

func (t *txView) Lock(_ context.Context, buyerID int64) (*cart.Cart, error) {
	return t.st.lock(buyerID)
}

func (t *txView) Clear(_ context.Context, cartID int64) error {
	t.st.clear(cartID)
	return nil
}

func (t *txView) Resolve(_ context.Context, ids []int64) (map[int64]catalog.Quote, error) {
	return t.st.resolve(ids), nil
}

func (t *txView) Append(_ context.Context, o *order.Order) error {
	t.st.appendOrder(o, t.now())
	return nil
}

func (t *txView) Enqueue(_ context.Context, e order.Event) error {
	t.st.nextOutboxID++
	t.st.outbox = append(t.st.outbox, outboxRow{msg: outbox.Message{
		ID:        t.st.nextOutboxID,
		Topic:     e.Topic,
		Key:       e.Key,
		Payload:   slices.Clone(e.Payload),
		CreatedAt: t.now(),
	}})
	return nil
}

func (s *state) getOrCreate(buyerID int64, now time.Time) int64 {
	if row, ok := s.carts[buyerID]; ok {
		return row.id
	}
	s.nextCartID++
	s.carts[buyerID] = &cartRow{
		id:        s.nextCartID,
		createdAt: now,
		items:     make(map[int64]struct{}),
	}
	return s.nextCartID
}

func (s *state) addItem(buyerID, itemID int64, now time.Time) {
	s.getOrCreate(buyerID, now)
	s.carts[buyerID].items[itemID] = struct{}{}
}

func (s *state) removeItem(buyerID, itemID int64) {
	if row, ok := s.carts[buyerID]; ok {
		delete(row.items, itemID)
	}
}

func (s *state) listItems(buyerID int64) []int64 {
	row, ok := s.carts[buyerID]
	if !ok {
		return []int64{}
	}
	return slices.Sorted(maps.Keys(row.items))
}

func (s *state) lock(buyerID int64) (*cart.Cart, error) {
	row, ok := s.carts[buyerID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return &cart.Cart{
		ID:        row.id,
		BuyerID:   buyerID,
		ItemIDs:   slices.Sorted(maps.Keys(row.items)),
		CreatedAt: row.createdAt,
	}, nil
}

func (s *state) clear(cartID int64) {
	for _, row := range s.carts {
		if row.id == cartID {
			clear(row.items)
			return
		}
	}
}

func (s *state) resolve(ids []int64) map[int64]catalog.Quote {
	quotes := make(map[int64]catalog.Quote, len(ids))
	for _, id := range ids {
		if it, ok := s.artworks[id]; ok {
			quotes[id] = catalog.Quote{UnitPrice: it.Price, SellerID: it.SellerID, Status: it.Status}
		}
	}
	return quotes
}

func (s *state) appendOrder(o *order.Order, now time.Time) {
	s.nextOrderID++
	o.ID = s.nextOrderID
	o.CreatedAt = now
	for i := range o.Items {
		s.nextLineID++
		o.Items[i].ID = s.nextLineID
		o.Items[i].OrderID = o.ID
	}

	stored := *o
	stored.Items = slices.Clone(o.Items)
	s.orders = append(s.orders, stored)
}
