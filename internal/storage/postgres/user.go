package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gallery-checkout/internal/domain/auth"
)

const upsertUserSQL = `INSERT INTO users (name, email, role, is_active)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (email) DO UPDATE SET
		name      = EXCLUDED.name,
		role      = EXCLUDED.role,
		is_active = EXCLUDED.is_active
	RETURNING id`

// UserRepository writes the user directory for the seed tool.
type UserRepository struct {
	db querier
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

// Upsert inserts or updates a user keyed by email and returns its id.
func (r *UserRepository) Upsert(ctx context.Context, u auth.User) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, upsertUserSQL, u.Name, u.Email, string(u.Role), u.Active).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert user %q", u.Email)
	}
	return id, nil
}
