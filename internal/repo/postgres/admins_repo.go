package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicepoint/garage-bookings/internal/domain"
)

type AdminsRepo interface {
	Create(ctx context.Context, a *domain.Admin) error
	FindByEmail(ctx context.Context, email string) (*domain.Admin, error)
	FindByRef(ctx context.Context, ref string) (*domain.Admin, error)
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]domain.Admin, error)
	TouchLogin(ctx context.Context, id int64) error
}

type AdminsRepoImpl struct{ pool *pgxpool.Pool }

func NewAdminsRepo(pool *pgxpool.Pool) *AdminsRepoImpl { return &AdminsRepoImpl{pool: pool} }

const adminCols = `id, admin_ref, name, email, password_hash, role, is_active,
last_login, created_by, created_at, updated_at`

func scanAdmin(row pgx.Row) (*domain.Admin, error) {
	var a domain.Admin
	err := row.Scan(
		&a.ID, &a.AdminRef, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.IsActive,
		&a.LastLogin, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AdminsRepoImpl) Create(ctx context.Context, a *domain.Admin) error {
	const q = `
INSERT INTO admins (admin_ref, name, email, password_hash, role, is_active, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, created_at, updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := r.pool.QueryRow(ctx, q,
		a.AdminRef, a.Name, a.Email, a.PasswordHash, a.Role, a.IsActive, a.CreatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *AdminsRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins WHERE email=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanAdmin(r.pool.QueryRow(ctx, q, email))
}

func (r *AdminsRepoImpl) FindByRef(ctx context.Context, ref string) (*domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins WHERE admin_ref=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanAdmin(r.pool.QueryRow(ctx, q, ref))
}

func (r *AdminsRepoImpl) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}

func (r *AdminsRepoImpl) List(ctx context.Context) ([]domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins ORDER BY created_at DESC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []domain.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, *a)
	}
	return admins, rows.Err()
}

func (r *AdminsRepoImpl) TouchLogin(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, `UPDATE admins SET last_login=now(), updated_at=now() WHERE id=$1`, id)
	return err
}

var _ AdminsRepo = (*AdminsRepoImpl)(nil)
