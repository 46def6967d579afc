package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servicepoint/garage-bookings/internal/domain"
)

// GarageFilter narrows garage searches; zero values mean "any".
type GarageFilter struct {
	State      string
	City       string
	District   string
	Category   domain.ServiceCategory
	Search     string // matches garage name or free-text location
	ActiveOnly bool
	Limit      int
	Offset     int
}

type GaragesRepo interface {
	Create(ctx context.Context, g *domain.Garage) error
	FindByEmail(ctx context.Context, email string) (*domain.Garage, error)
	FindByRef(ctx context.Context, ref string) (*domain.Garage, error)
	FindByID(ctx context.Context, id int64) (*domain.Garage, error)
	FindForClaim(ctx context.Context, email, ref string) (*domain.Garage, error)
	List(ctx context.Context, f GarageFilter) ([]domain.Garage, error)
	ListNearby(ctx context.Context, lat, lng, radiusKm float64, category domain.ServiceCategory, limit int) ([]domain.Garage, error)
	UpdateProfile(ctx context.Context, g *domain.Garage) error
	Claim(ctx context.Context, id int64, passwordHash string) error
	ResetPassword(ctx context.Context, id int64, passwordHash string) error
	UpdateRating(ctx context.Context, id int64, rating float64, total int) error
	SetActive(ctx context.Context, id int64, active bool) error
	TouchLogin(ctx context.Context, id int64) error
	Count(ctx context.Context, activeOnly bool) (int64, error)
}

type GaragesRepoImpl struct{ pool *pgxpool.Pool }

func NewGaragesRepo(pool *pgxpool.Pool) *GaragesRepoImpl { return &GaragesRepoImpl{pool: pool} }

const garageCols = `id, garage_ref, garage_name, owner_name, email, password_hash,
contact_number, location, country, state, city, district, latitude, longitude,
rating, total_ratings, is_active, is_claimed, registered_at, last_login,
created_by, created_at, updated_at`

func scanGarage(row pgx.Row) (*domain.Garage, error) {
	var g domain.Garage
	err := row.Scan(
		&g.ID, &g.GarageRef, &g.GarageName, &g.OwnerName, &g.Email, &g.PasswordHash,
		&g.ContactNumber, &g.Location, &g.Hierarchy.Country, &g.Hierarchy.State,
		&g.Hierarchy.City, &g.Hierarchy.District, &g.Coordinates.Latitude, &g.Coordinates.Longitude,
		&g.Rating, &g.TotalRatings, &g.IsActive, &g.IsClaimed, &g.RegisteredAt, &g.LastLogin,
		&g.CreatedBy, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GaragesRepoImpl) Create(ctx context.Context, g *domain.Garage) error {
	const q = `
INSERT INTO garages (garage_ref, garage_name, owner_name, email, password_hash,
  contact_number, location, country, state, city, district, latitude, longitude, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id, rating, total_ratings, is_active, is_claimed, created_at, updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := r.pool.QueryRow(ctx, q,
		g.GarageRef, g.GarageName, g.OwnerName, g.Email, g.PasswordHash,
		g.ContactNumber, g.Location, g.Hierarchy.Country, g.Hierarchy.State,
		g.Hierarchy.City, g.Hierarchy.District, g.Coordinates.Latitude, g.Coordinates.Longitude,
		g.CreatedBy,
	).Scan(&g.ID, &g.Rating, &g.TotalRatings, &g.IsActive, &g.IsClaimed, &g.CreatedAt, &g.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *GaragesRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.Garage, error) {
	const q = `SELECT ` + garageCols + ` FROM garages WHERE email=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanGarage(r.pool.QueryRow(ctx, q, email))
}

func (r *GaragesRepoImpl) FindByRef(ctx context.Context, ref string) (*domain.Garage, error) {
	const q = `SELECT ` + garageCols + ` FROM garages WHERE garage_ref=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanGarage(r.pool.QueryRow(ctx, q, ref))
}

func (r *GaragesRepoImpl) FindByID(ctx context.Context, id int64) (*domain.Garage, error) {
	const q = `SELECT ` + garageCols + ` FROM garages WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanGarage(r.pool.QueryRow(ctx, q, id))
}

// FindForClaim matches the email + garage ref pair presented during the
// owner claim flow; only active garages can be claimed.
func (r *GaragesRepoImpl) FindForClaim(ctx context.Context, email, ref string) (*domain.Garage, error) {
	const q = `SELECT ` + garageCols + ` FROM garages WHERE email=$1 AND garage_ref=$2 AND is_active`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanGarage(r.pool.QueryRow(ctx, q, email, ref))
}

func (r *GaragesRepoImpl) List(ctx context.Context, f GarageFilter) ([]domain.Garage, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if f.State != "" {
		where = append(where, "state = "+arg(f.State))
	}
	if f.City != "" {
		where = append(where, "city = "+arg(f.City))
	}
	if f.District != "" {
		where = append(where, "district = "+arg(f.District))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, "(garage_name ILIKE "+p+" OR location ILIKE "+p+")")
	}
	if f.Category != "" {
		where = append(where, "EXISTS (SELECT 1 FROM services s WHERE s.garage_id = garages.id AND s.category = "+arg(string(f.Category))+" AND s.is_active)")
	}

	q := `SELECT ` + garageCols + ` FROM garages`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY rating DESC, total_ratings DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gs := make([]domain.Garage, 0, f.Limit)
	for rows.Next() {
		g, err := scanGarage(rows)
		if err != nil {
			return nil, err
		}
		gs = append(gs, *g)
	}
	return gs, rows.Err()
}

// ListNearby ranks active garages by great-circle distance from the
// given point, haversine evaluated in SQL.
func (r *GaragesRepoImpl) ListNearby(ctx context.Context, lat, lng, radiusKm float64, category domain.ServiceCategory, limit int) ([]domain.Garage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if radiusKm <= 0 {
		radiusKm = 50
	}

	inner := `
SELECT ` + garageCols + `,
  6371 * acos(least(1.0,
    cos(radians($1)) * cos(radians(latitude)) * cos(radians(longitude) - radians($2)) +
    sin(radians($1)) * sin(radians(latitude))
  )) AS distance_km
FROM garages
WHERE is_active`
	args := []any{lat, lng, radiusKm, limit}
	if category != "" {
		inner += ` AND EXISTS (SELECT 1 FROM services s WHERE s.garage_id = garages.id AND s.category = $5 AND s.is_active)`
		args = append(args, string(category))
	}
	full := `SELECT * FROM (` + inner + `) g WHERE g.distance_km <= $3 ORDER BY g.distance_km ASC, g.rating DESC LIMIT $4`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, full, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gs := make([]domain.Garage, 0, limit)
	for rows.Next() {
		var g domain.Garage
		var distance float64
		if err := rows.Scan(
			&g.ID, &g.GarageRef, &g.GarageName, &g.OwnerName, &g.Email, &g.PasswordHash,
			&g.ContactNumber, &g.Location, &g.Hierarchy.Country, &g.Hierarchy.State,
			&g.Hierarchy.City, &g.Hierarchy.District, &g.Coordinates.Latitude, &g.Coordinates.Longitude,
			&g.Rating, &g.TotalRatings, &g.IsActive, &g.IsClaimed, &g.RegisteredAt, &g.LastLogin,
			&g.CreatedBy, &g.CreatedAt, &g.UpdatedAt, &distance,
		); err != nil {
			return nil, err
		}
		gs = append(gs, g)
	}
	return gs, rows.Err()
}

func (r *GaragesRepoImpl) UpdateProfile(ctx context.Context, g *domain.Garage) error {
	const q = `
UPDATE garages SET garage_name=$2, owner_name=$3, contact_number=$4, location=$5,
  country=$6, state=$7, city=$8, district=$9, latitude=$10, longitude=$11, updated_at=now()
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q,
		g.ID, g.GarageName, g.OwnerName, g.ContactNumber, g.Location,
		g.Hierarchy.Country, g.Hierarchy.State, g.Hierarchy.City, g.Hierarchy.District,
		g.Coordinates.Latitude, g.Coordinates.Longitude,
	)
	return err
}

// Claim commits the owner's chosen password and flips is_claimed in one
// statement; a second claim finds no unclaimed row and reports conflict.
func (r *GaragesRepoImpl) Claim(ctx context.Context, id int64, passwordHash string) error {
	const q = `
UPDATE garages SET password_hash=$2, is_claimed=TRUE, registered_at=now(), updated_at=now()
WHERE id=$1 AND NOT is_claimed`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAlreadyClaimed
	}
	return nil
}

func (r *GaragesRepoImpl) ResetPassword(ctx context.Context, id int64, passwordHash string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, `UPDATE garages SET password_hash=$2, updated_at=now() WHERE id=$1`, id, passwordHash)
	return err
}

func (r *GaragesRepoImpl) UpdateRating(ctx context.Context, id int64, rating float64, total int) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, `UPDATE garages SET rating=$2, total_ratings=$3, updated_at=now() WHERE id=$1`, id, rating, total)
	return err
}

func (r *GaragesRepoImpl) SetActive(ctx context.Context, id int64, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, `UPDATE garages SET is_active=$2, updated_at=now() WHERE id=$1`, id, active)
	return err
}

func (r *GaragesRepoImpl) TouchLogin(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, `UPDATE garages SET last_login=now(), updated_at=now() WHERE id=$1`, id)
	return err
}

func (r *GaragesRepoImpl) Count(ctx context.Context, activeOnly bool) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	q := `SELECT COUNT(*) FROM garages`
	if activeOnly {
		q += ` WHERE is_active`
	}
	var n int64
	err := r.pool.QueryRow(ctx, q).Scan(&n)
	return n, err
}

var _ GaragesRepo = (*GaragesRepoImpl)(nil)
