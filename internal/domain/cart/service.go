package cart

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/gallery-checkout/internal/domain/catalog"
)

// Service is the presentation-facing cart API. Writes go straight to the
// repository; display reads are served from the view cache when possible.
type Service struct {
	carts   Repository
	catalog catalog.Reader
	cache   ViewCache
	group   singleflight.Group

	// epoch is bumped by every invalidation. A load that overlaps one does
	// not leave its view in the cache.
	epoch atomic.Uint64
}

// NewService creates a cart Service. A nil cache disables view caching.
func NewService(carts Repository, items catalog.Reader, cache ViewCache) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		carts:   carts,
		catalog: items,
		cache:   cache,
	}
}

// Add puts an approved artwork into the buyer's cart. Adding an artwork that
// is already present is a no-op.
func (s *Service) Add(ctx context.Context, buyerID, itemID int64) error {
	item, err := s.catalog.GetByID(ctx, itemID)
	if err != nil {
		return errors.Wrap(err, "get artwork")
	}
	if !item.Status.Purchasable() {
		return ErrNotPurchasable
	}

	if err := s.carts.AddItem(ctx, buyerID, itemID); err != nil {
		return errors.Wrap(err, "add item")
	}
	s.Invalidate(ctx, buyerID)
	return nil
}

// Remove drops an artwork from the buyer's cart. Removing an absent artwork is
// a no-op.
func (s *Service) Remove(ctx context.Context, buyerID, itemID int64) error {
	if err := s.carts.RemoveItem(ctx, buyerID, itemID); err != nil {
		return errors.Wrap(err, "remove item")
	}
	s.Invalidate(ctx, buyerID)
	return nil
}

// Items returns the buyer's cart priced at the current catalog state. Artworks
// that vanished from the catalog are not shown.
func (s *Service) Items(ctx context.Context, buyerID int64) ([]Line, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(buyerID, 10), func() (any, error) {
		lines, err := s.cache.Get(ctx, buyerID)
		if err == nil {
			return lines, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			zctx.From(ctx).Warn("Cart cache read failed", zap.Int64("buyer_id", buyerID), zap.Error(err))
		}

		start := s.epoch.Load()
		lines, err = s.load(ctx, buyerID)
		if err != nil {
			return nil, err
		}
		if s.epoch.Load() != start {
			return lines, nil
		}
		if err := s.cache.Set(ctx, buyerID, lines); err != nil {
			zctx.From(ctx).Warn("Cart cache write failed", zap.Int64("buyer_id", buyerID), zap.Error(err))
		}
		if s.epoch.Load() != start {
			s.drop(ctx, buyerID)
		}
		return lines, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Line), nil
}

// Invalidate drops the cached view of the buyer's cart, even when ctx is
// already cancelled. Failures are only logged.
func (s *Service) Invalidate(ctx context.Context, buyerID int64) {
	s.epoch.Add(1)
	s.drop(ctx, buyerID)
}

// Views returns the Service's view cache for writers outside it, such as
// checkout. Delete goes through Invalidate.
func (s *Service) Views() ViewCache {
	return serviceViews{s: s}
}

var _ ViewCache = serviceViews{}

type serviceViews struct {
	s *Service
}

func (v serviceViews) Get(ctx context.Context, buyerID int64) ([]Line, error) {
	return v.s.cache.Get(ctx, buyerID)
}

func (v serviceViews) Set(ctx context.Context, buyerID int64, lines []Line) error {
	return v.s.cache.Set(ctx, buyerID, lines)
}

func (v serviceViews) Delete(ctx context.Context, buyerID int64) error {
	v.s.epoch.Add(1)
	return v.s.cache.Delete(context.WithoutCancel(ctx), buyerID)
}

func (s *Service) drop(ctx context.Context, buyerID int64) {
	if err := s.cache.Delete(context.WithoutCancel(ctx), buyerID); err != nil {
		zctx.From(ctx).Warn("Cart cache invalidation failed", zap.Int64("buyer_id", buyerID), zap.Error(err))
	}
}

func (s *Service) load(ctx context.Context, buyerID int64) ([]Line, error) {
	ids, err := s.carts.ListItems(ctx, buyerID)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	if len(ids) == 0 {
		return []Line{}, nil
	}

	items, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get artworks")
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{
			ArtworkID: it.ID,
			Title:     it.Title,
			Price:     it.Price,
			ImageURL:  it.ImageURL,
		})
	}
	slices.SortFunc(lines, func(a, b Line) int {
		return cmp.Compare(a.ArtworkID, b.ArtworkID)
	})
	return lines, nil
}
