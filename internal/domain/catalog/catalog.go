// Package catalog describes the artwork catalog as seen by the checkout core:
// a read-only source of current prices, owning sellers and moderation status.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested artwork does not exist.
var ErrNotFound = errors.New("artwork not found")

// Status is the moderation state of an artwork.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Purchasable reports whether artworks in this state may be added to a cart.
func (s Status) Purchasable() bool {
	return s == StatusApproved
}

// Item is a catalog artwork.
type Item struct {
	ID       int64
	SellerID int64
	Title    string
	Price    decimal.Decimal
	ImageURL string
	Status   Status
}

// Quote is the authoritative price of an artwork at the instant it was read.
type Quote struct {
	UnitPrice decimal.Decimal
	SellerID  int64
	Status    Status
}

// Resolver returns live prices for a set of artworks. Artworks that no longer
// exist are left out of the result rather than failing the whole call.
type Resolver interface {
	Resolve(ctx context.Context, ids []int64) (map[int64]Quote, error)
}

// Reader looks up artworks for display and cart admission.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*Item, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Item, error)
}
