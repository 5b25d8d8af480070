package memory

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/gallery-checkout/internal/domain/auth"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
)

// Demo account ids. Artists own the artwork with the same id.
const (
	DemoAdminID   int64 = 4
	DemoVisitorID int64 = 5
)

// NewDemoStore returns a Store seeded with the demo gallery: three artists,
// an administrator, a visitor and a small catalog with one piece still
// awaiting moderation.
func NewDemoStore(opts ...Option) *Store {
	s := NewStore(opts...)
	for _, u := range []auth.User{
		{ID: 1, Name: "Aarav Iyer", Email: "aarav@gallery.local", Role: auth.RoleArtist, Active: true},
		{ID: 2, Name: "Mei Tanaka", Email: "mei@gallery.local", Role: auth.RoleArtist, Active: true},
		{ID: 3, Name: "Lucas Moretti", Email: "lucas@gallery.local", Role: auth.RoleArtist, Active: true},
		{ID: DemoAdminID, Name: "Gallery Admin", Email: "admin@gallery.local", Role: auth.RoleAdmin, Active: true},
		{ID: DemoVisitorID, Name: "Demo Visitor", Email: "visitor@gallery.local", Role: auth.RoleVisitor, Active: true},
	} {
		s.PutUser(u)
	}
	for _, it := range []catalog.Item{
		{
			ID: 1, SellerID: 1, Title: "Temple Dawn", Price: decimal.NewFromInt(28500),
			ImageURL: "https://images.unsplash.com/photo-1547891654-e66ed7ebb968?auto=format&fit=crop&w=1000&q=80",
			Status:   catalog.StatusApproved,
		},
		{
			ID: 2, SellerID: 2, Title: "Kyoto Monsoon", Price: decimal.NewFromInt(32400),
			ImageURL: "https://images.unsplash.com/photo-1577083165633-14ebcdb0f658?auto=format&fit=crop&w=1000&q=80",
			Status:   catalog.StatusApproved,
		},
		{
			ID: 3, SellerID: 3, Title: "Bronze Chronicle", Price: decimal.NewFromInt(74800),
			ImageURL: "https://images.unsplash.com/photo-1460661419201-fd4cecdf8a8b?auto=format&fit=crop&w=1000&q=80",
			Status:   catalog.StatusPending,
		},
	} {
		s.PutArtwork(it)
	}
	return s
}
