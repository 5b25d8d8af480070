package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload issued for gallery users.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Tokens verifies and issues HS256 bearer tokens.
type Tokens struct {
	secret     []byte
	adminEmail string
	parser     *jwt.Parser
	now        func() time.Time
}

// NewTokens creates Tokens signing with secret. When adminEmail is non-empty,
// ADMIN tokens for any other email are stripped of their capabilities.
func NewTokens(secret []byte, adminEmail string) *Tokens {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return &Tokens{
		secret:     secret,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		parser:     parser,
		now:        time.Now,
	}
}

// Verify parses a raw bearer token into an Identity.
func (t *Tokens) Verify(raw string) (Identity, error) {
	var claims Claims
	_, err := t.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return Identity{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, errors.Wrap(ErrInvalidToken, "bad subject")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	id := Identity{
		UserID: userID,
		Role:   role,
		Email:  claims.Email,
	}
	if role == RoleAdmin && t.adminEmail != "" && strings.ToLower(claims.Email) != t.adminEmail {
		id.adminLocked = true
	}
	return id, nil
}

// Issue signs a token for id valid for ttl.
func (t *Tokens) Issue(id Identity, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Role:  string(id.Role),
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
