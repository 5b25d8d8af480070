// Package auth models the identity supplied by the authentication
// collaborator and the capabilities each role grants.
package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// ErrUnknownRole is returned when a token carries a role outside the known set.
var ErrUnknownRole = errors.New("unknown role")

// Role is the coarse account type of a user.
type Role string

const (
	RoleVisitor Role = "VISITOR"
	RoleArtist  Role = "ARTIST"
	RoleCurator Role = "CURATOR"
	RoleAdmin   Role = "ADMIN"
)

// Capability is a single permission checked at an entry point.
type Capability string

const (
	// CapPurchase allows holding a cart, checking out and reading own orders.
	CapPurchase Capability = "purchase"
	// CapSell allows listing artworks for sale.
	CapSell Capability = "sell"
	// CapModerate allows approving and rejecting artworks.
	CapModerate Capability = "moderate"
	// CapViewLedger allows reading gallery-wide sales.
	CapViewLedger Capability = "view_ledger"
)

var roleCapabilities = map[Role][]Capability{
	RoleVisitor: {CapPurchase},
	RoleArtist:  {CapSell},
	RoleCurator: {CapModerate},
	RoleAdmin:   {CapModerate, CapViewLedger},
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := roleCapabilities[r]; !ok {
		return "", errors.Wrapf(ErrUnknownRole, "%q", s)
	}
	return r, nil
}

// Can reports whether the role grants c.
func (r Role) Can(c Capability) bool {
	return slices.Contains(roleCapabilities[r], c)
}

// Identity is a verified user as supplied by the authentication collaborator.
type Identity struct {
	UserID int64
	Role   Role
	Email  string

	// adminLocked is set when the token claims ADMIN but the account is not
	// the configured administrator.
	adminLocked bool
}

// Can reports whether the identity holds capability c.
func (id Identity) Can(c Capability) bool {
	if id.adminLocked {
		return false
	}
	return id.Role.Can(c)
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// User is a gallery account as stored in the user directory.
type User struct {
	ID     int64
	Name   string
	Email  string
	Role   Role
	Active bool
}
