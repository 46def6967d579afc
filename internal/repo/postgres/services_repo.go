package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicepoint/garage-bookings/internal/domain"
)

type ServicesRepo interface {
	Create(ctx context.Context, s *domain.Service) error
	FindByRef(ctx context.Context, ref string) (*domain.Service, error)
	ListByGarage(ctx context.Context, garageID int64, activeOnly bool) ([]domain.Service, error)
	Update(ctx context.Context, s *domain.Service) error
	Delete(ctx context.Context, garageID int64, ref string) error
}

type ServicesRepoImpl struct{ pool *pgxpool.Pool }

func NewServicesRepo(pool *pgxpool.Pool) *ServicesRepoImpl { return &ServicesRepoImpl{pool: pool} }

const serviceCols = `id, service_ref, garage_id, name, description, category,
price_amount, price_currency, duration, is_active, added_by, created_at, updated_at`

func scanService(row pgx.Row) (*domain.Service, error) {
	var s domain.Service
	err := row.Scan(
		&s.ID, &s.ServiceRef, &s.GarageID, &s.Name, &s.Description, &s.Category,
		&s.Price.Amount, &s.Price.Currency, &s.Duration, &s.IsActive, &s.AddedBy,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ServicesRepoImpl) Create(ctx context.Context, s *domain.Service) error {
	const q = `
INSERT INTO services (service_ref, garage_id, name, description, category,
  price_amount, price_currency, duration, is_active, added_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at, updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := r.pool.QueryRow(ctx, q,
		s.ServiceRef, s.GarageID, s.Name, s.Description, s.Category,
		s.Price.Amount, s.Price.Currency, s.Duration, s.IsActive, s.AddedBy,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *ServicesRepoImpl) FindByRef(ctx context.Context, ref string) (*domain.Service, error) {
	const q = `SELECT ` + serviceCols + ` FROM services WHERE service_ref=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanService(r.pool.QueryRow(ctx, q, ref))
}

func (r *ServicesRepoImpl) ListByGarage(ctx context.Context, garageID int64, activeOnly bool) ([]domain.Service, error) {
	q := `SELECT ` + serviceCols + ` FROM services WHERE garage_id=$1`
	if activeOnly {
		q += ` AND is_active`
	}
	q += ` ORDER BY category, name`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, garageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []domain.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *s)
	}
	return services, rows.Err()
}

func (r *ServicesRepoImpl) Update(ctx context.Context, s *domain.Service) error {
	const q = `
UPDATE services SET name=$2, description=$3, category=$4, price_amount=$5,
  price_currency=$6, duration=$7, is_active=$8, updated_at=now()
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		s.ID, s.Name, s.Description, s.Category,
		s.Price.Amount, s.Price.Currency, s.Duration, s.IsActive,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

// Delete removes a service only when it belongs to the given garage, so
// an owner cannot delete another garage's catalog entry by ref.
func (r *ServicesRepoImpl) Delete(ctx context.Context, garageID int64, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, `DELETE FROM services WHERE garage_id=$1 AND service_ref=$2`, garageID, ref)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ ServicesRepo = (*ServicesRepoImpl)(nil)
