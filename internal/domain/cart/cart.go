// Package cart holds the per-buyer draft selection of artworks awaiting
// purchase. Lines never carry a price: prices are read from the catalog at the
// moment they are displayed or checked out.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by Lock when the buyer never created a cart.
	ErrNotFound = errors.New("cart not found")
	// ErrNotPurchasable is returned when adding an artwork that has not been
	// approved for sale.
	ErrNotPurchasable = errors.New("artwork is not available for purchase")
	// ErrCacheMiss is returned by ViewCache.Get when nothing is cached.
	ErrCacheMiss = errors.New("cache miss")
)

// Cart is a buyer's cart together with the artworks it references.
type Cart struct {
	ID        int64
	BuyerID   int64
	ItemIDs   []int64
	CreatedAt time.Time
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return c == nil || len(c.ItemIDs) == 0
}

// Line is the display form of a cart entry, priced at read time.
type Line struct {
	ArtworkID int64
	Title     string
	Price     decimal.Decimal
	ImageURL  string
}

// Repository defines persistence operations for carts.
//
// Lock and Clear are reserved for the checkout unit of work; presentation code
// goes through Service.
type Repository interface {
	GetOrCreate(ctx context.Context, buyerID int64) (int64, error)
	AddItem(ctx context.Context, buyerID, itemID int64) error
	RemoveItem(ctx context.Context, buyerID, itemID int64) error
	ListItems(ctx context.Context, buyerID int64) ([]int64, error)
	Lock(ctx context.Context, buyerID int64) (*Cart, error)
	Clear(ctx context.Context, cartID int64) error
}

// ViewCache caches display lines per buyer.
type ViewCache interface {
	Get(ctx context.Context, buyerID int64) ([]Line, error)
	Set(ctx context.Context, buyerID int64, lines []Line) error
	Delete(ctx context.Context, buyerID int64) error
}

// NopCache is a ViewCache that never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, int64) ([]Line, error) { return nil, ErrCacheMiss }

func (NopCache) Set(context.Context, int64, []Line) error { return nil }

func (NopCache) Delete(context.Context, int64) error { return nil }
