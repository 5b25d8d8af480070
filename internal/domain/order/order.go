package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
)

// Status is the lifecycle state of an order. Checkout only ever produces
// StatusPaid, which is also terminal.
type Status string

const StatusPaid Status = "PAID"

// Delivery holds where and to whom a paid order ships.
type Delivery struct {
	RecipientName string
	Mobile        string
	Address       string
	Landmark      string
}

// Order is an immutable record of a completed purchase.
type Order struct {
	ID            int64
	BuyerID       int64
	Status        Status
	Currency      string
	Total         decimal.Decimal
	PaymentMethod string
	Delivery      Delivery
	Items         []LineItem
	CreatedAt     time.Time
}

// LineItem is one purchased artwork with the price and seller captured at
// checkout time.
type LineItem struct {
	ID        int64
	OrderID   int64
	ArtworkID int64
	SellerID  int64
	UnitPrice decimal.Decimal
}

// Transaction is a paid line item joined with display fields for reporting.
type Transaction struct {
	LineItemID    int64
	OrderID       int64
	Status        Status
	Currency      string
	Amount        decimal.Decimal
	PaymentMethod string
	CreatedAt     time.Time
	BuyerName     string
	ArtworkTitle  string
}

// Overview aggregates gallery-wide sales figures.
type Overview struct {
	TotalUsers       int64
	ApprovedArtworks int64
	PendingArtworks  int64
	TotalSales       int64
	TotalRevenue     decimal.Decimal
}

// Writer appends orders to the ledger. Append assigns ID and CreatedAt on the
// order and its items.
type Writer interface {
	Append(ctx context.Context, o *Order) error
}

// Ledger is the read side of the order ledger. It has no update or delete
// operations.
type Ledger interface {
	ListForBuyer(ctx context.Context, buyerID int64) ([]Order, error)
	ListPaid(ctx context.Context) ([]Transaction, error)
	Overview(ctx context.Context) (*Overview, error)
}

// Event is a message recorded alongside an order for asynchronous delivery.
type Event struct {
	Topic   string
	Key     string
	Payload []byte
}

// Outbox records events in the same transaction as the order they describe.
type Outbox interface {
	Enqueue(ctx context.Context, e Event) error
}

// Tx exposes the stores bound to a single unit of work.
type Tx interface {
	Carts() cart.Repository
	Prices() catalog.Resolver
	Orders() Writer
	Outbox() Outbox
}

// UnitOfWork runs fn atomically. When fn returns an error, panics, or ctx is
// done before commit, none of the writes made through tx become visible.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
