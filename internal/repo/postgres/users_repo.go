package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicepoint/garage-bookings/internal/domain"
)

type UsersRepo interface {
	Create(ctx context.Context, u *domain.User) error
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByRef(ctx context.Context, ref string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	Count(ctx context.Context) (int64, error)
}

type UsersRepoImpl struct{ pool *pgxpool.Pool }

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepoImpl { return &UsersRepoImpl{pool: pool} }

const userCols = `id, user_ref, name, phone, email, vehicles, prefs, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.UserRef, &u.Name, &u.Phone, &u.Email, &u.Vehicles, &u.Prefs,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepoImpl) Create(ctx context.Context, u *domain.User) error {
	const q = `
INSERT INTO users (user_ref, name, phone, email, vehicles, prefs)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, is_active, created_at, updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if u.Vehicles == nil {
		u.Vehicles = []domain.Vehicle{}
	}
	err := r.pool.QueryRow(ctx, q,
		u.UserRef, u.Name, u.Phone, u.Email, u.Vehicles, u.Prefs,
	).Scan(&u.ID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *UsersRepoImpl) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE phone=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, phone))
}

func (r *UsersRepoImpl) FindByRef(ctx context.Context, ref string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE user_ref=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, ref))
}

func (r *UsersRepoImpl) Update(ctx context.Context, u *domain.User) error {
	const q = `
UPDATE users SET name=$2, email=$3, vehicles=$4, prefs=$5, updated_at=now()
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if u.Vehicles == nil {
		u.Vehicles = []domain.Vehicle{}
	}
	_, err := r.pool.Exec(ctx, q, u.ID, u.Name, u.Email, u.Vehicles, u.Prefs)
	return err
}

func (r *UsersRepoImpl) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

var _ UsersRepo = (*UsersRepoImpl)(nil)
