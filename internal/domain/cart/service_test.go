package cart

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/gallery-checkout/internal/domain/catalog"
)

// --- Mock implementations ---

type mockRepo struct {
	mu    sync.Mutex
	items map[int64]map[int64]struct{}
	lists atomic.Int32
	err   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[int64]map[int64]struct{})}
}

func (m *mockRepo) GetOrCreate(_ context.Context, buyerID int64) (int64, error) {
	return buyerID, m.err
}

func (m *mockRepo) AddItem(_ context.Context, buyerID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.items[buyerID] == nil {
		m.items[buyerID] = make(map[int64]struct{})
	}
	m.items[buyerID][itemID] = struct{}{}
	return nil
}

func (m *mockRepo) RemoveItem(_ context.Context, buyerID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.items[buyerID], itemID)
	return nil
}

func (m *mockRepo) ListItems(_ context.Context, buyerID int64) ([]int64, error) {
	m.lists.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.items[buyerID])), m.err
}

func (m *mockRepo) Lock(context.Context, int64) (*Cart, error) {
	return nil, errors.New("not used")
}

func (m *mockRepo) Clear(context.Context, int64) error {
	return errors.New("not used")
}

type mockCatalog struct {
	byID map[int64]catalog.Item
	// onGetByIDs runs before each GetByIDs lookup.
	onGetByIDs func()
}

func (m *mockCatalog) GetByID(_ context.Context, id int64) (*catalog.Item, error) {
	it, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &it, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []int64) ([]catalog.Item, error) {
	if m.onGetByIDs != nil {
		m.onGetByIDs()
	}
	var out []catalog.Item
	for _, id := range ids {
		if it, ok := m.byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[int64][]Line
	getErr  error
	deletes int
	// deleteCtxErrs records ctx.Err() seen by each Delete.
	deleteCtxErrs []error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[int64][]Line)}
}

func (c *mapCache) Get(_ context.Context, buyerID int64) ([]Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	lines, ok := c.entries[buyerID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return lines, nil
}

func (c *mapCache) Set(_ context.Context, buyerID int64, lines []Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[buyerID] = lines
	return nil
}

func (c *mapCache) Delete(ctx context.Context, buyerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	c.deleteCtxErrs = append(c.deleteCtxErrs, ctx.Err())
	delete(c.entries, buyerID)
	return nil
}

// --- Helpers ---

func newCatalog() *mockCatalog {
	return &mockCatalog{byID: map[int64]catalog.Item{
		1: {ID: 1, SellerID: 10, Title: "Temple Dawn", Price: decimal.NewFromInt(28500), ImageURL: "dawn.jpg", Status: catalog.StatusApproved},
		2: {ID: 2, SellerID: 11, Title: "Kyoto Monsoon", Price: decimal.NewFromInt(32400), ImageURL: "kyoto.jpg", Status: catalog.StatusApproved},
		3: {ID: 3, SellerID: 12, Title: "Bronze Chronicle", Price: decimal.NewFromInt(74800), Status: catalog.StatusPending},
	}}
}

// --- Tests ---

func TestAdd_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, newCatalog(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 1))
	require.NoError(t, svc.Add(ctx, 5, 1))

	ids, err := repo.ListItems(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestAdd_UnknownArtwork(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, newCatalog(), nil)

	err := svc.Add(context.Background(), 5, 99)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Empty(t, repo.items[5])
}

func TestAdd_NotPurchasable(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, newCatalog(), nil)

	err := svc.Add(context.Background(), 5, 3)
	require.ErrorIs(t, err, ErrNotPurchasable)
	assert.Empty(t, repo.items[5])
}

func TestRemove_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, newCatalog(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 1))
	require.NoError(t, svc.Add(ctx, 5, 2))
	require.NoError(t, svc.Remove(ctx, 5, 1))
	require.NoError(t, svc.Remove(ctx, 5, 1))
	require.NoError(t, svc.Remove(ctx, 5, 42))

	ids, err := repo.ListItems(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestItems_PricedAtReadTime(t *testing.T) {
	repo := newMockRepo()
	items := newCatalog()
	svc := NewService(repo, items, nil)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 2))
	require.NoError(t, svc.Add(ctx, 5, 1))

	lines, err := svc.Items(ctx, 5)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].ArtworkID)
	assert.Equal(t, "Temple Dawn", lines[0].Title)
	assert.Equal(t, "dawn.jpg", lines[0].ImageURL)
	assert.Equal(t, int64(2), lines[1].ArtworkID)

	// Without a cache the next read sees the new price.
	it := items.byID[1]
	it.Price = decimal.NewFromInt(30000)
	items.byID[1] = it

	lines, err = svc.Items(ctx, 5)
	require.NoError(t, err)
	assert.True(t, lines[0].Price.Equal(decimal.NewFromInt(30000)))
}

func TestItems_SkipsVanished(t *testing.T) {
	repo := newMockRepo()
	items := newCatalog()
	svc := NewService(repo, items, nil)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 1))
	require.NoError(t, svc.Add(ctx, 5, 2))
	delete(items.byID, 2)

	lines, err := svc.Items(ctx, 5)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].ArtworkID)
}

func TestItems_Empty(t *testing.T) {
	svc := NewService(newMockRepo(), newCatalog(), nil)

	lines, err := svc.Items(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestItems_Cache(t *testing.T) {
	repo := newMockRepo()
	cache := newMapCache()
	svc := NewService(repo, newCatalog(), cache)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 1))

	_, err := svc.Items(ctx, 5)
	require.NoError(t, err)
	_, err = svc.Items(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.lists.Load(), "second read must hit the cache")

	// Writes invalidate.
	require.NoError(t, svc.Add(ctx, 5, 2))
	lines, err := svc.Items(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, int32(2), repo.lists.Load())

	require.NoError(t, svc.Remove(ctx, 5, 1))
	lines, err = svc.Items(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.Equal(t, 3, cache.deletes)
}

func TestItems_RemoveDuringLoadNotCached(t *testing.T) {
	repo := newMockRepo()
	cache := newMapCache()
	items := newCatalog()
	svc := NewService(repo, items, cache)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 1))
	require.NoError(t, svc.Add(ctx, 5, 2))

	var once sync.Once
	items.onGetByIDs = func() {
		once.Do(func() { require.NoError(t, svc.Remove(ctx, 5, 1)) })
	}

	// The load listed both lines before the remove landed.
	lines, err := svc.Items(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	_, err = cache.Get(ctx, 5)
	require.ErrorIs(t, err, ErrCacheMiss)

	lines, err = svc.Items(ctx, 5)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(2), lines[0].ArtworkID)
}

func TestInvalidate_CancelledContext(t *testing.T) {
	repo := newMockRepo()
	cache := newMapCache()
	svc := NewService(repo, newCatalog(), cache)

	require.NoError(t, svc.Add(context.Background(), 5, 1))
	_, err := svc.Items(context.Background(), 5)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Remove(ctx, 5, 1))

	require.NotEmpty(t, cache.deleteCtxErrs)
	assert.NoError(t, cache.deleteCtxErrs[len(cache.deleteCtxErrs)-1])
	_, err = cache.Get(context.Background(), 5)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestViews_DeleteSkipsOverlappingLoad(t *testing.T) {
	repo := newMockRepo()
	cache := newMapCache()
	items := newCatalog()
	svc := NewService(repo, items, cache)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 1))

	var once sync.Once
	items.onGetByIDs = func() {
		once.Do(func() { require.NoError(t, svc.Views().Delete(ctx, 5)) })
	}
	_, err := svc.Items(ctx, 5)
	require.NoError(t, err)

	_, err = cache.Get(ctx, 5)
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestItems_CacheFailureFallsBack(t *testing.T) {
	repo := newMockRepo()
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	svc := NewService(repo, newCatalog(), cache)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, 5, 1))

	lines, err := svc.Items(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestItems_RepositoryError(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo, newCatalog(), nil)

	_, err := svc.Items(context.Background(), 5)
	require.Error(t, err)
	require.ErrorIs(t, err, repo.err)
}

func TestCart_Empty(t *testing.T) {
	var c *Cart
	assert.True(t, c.Empty())
	assert.True(t, (&Cart{}).Empty())
	assert.False(t, (&Cart{ItemIDs: []int64{1}}).Empty())
}
