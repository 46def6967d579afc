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

// BookingFilter narrows booking listings; zero values mean "any".
type BookingFilter struct {
	GarageID int64
	Phone    string
	Status   domain.BookingStatus
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
	Offset   int
}

type BookingsRepo interface {
	Create(ctx context.Context, b *domain.Booking) error
	FindByBookingID(ctx context.Context, bookingID string) (*domain.Booking, error)
	Update(ctx context.Context, b *domain.Booking) error
	List(ctx context.Context, f BookingFilter) ([]domain.Booking, int, error)
	StatsByGarage(ctx context.Context, garageID int64) (*domain.BookingStats, error)
	Stats(ctx context.Context) (*domain.BookingStats, error)
	RatingByGarage(ctx context.Context, garageID int64) (avg float64, count int, err error)
}

type BookingsRepoImpl struct{ pool *pgxpool.Pool }

func NewBookingsRepo(pool *pgxpool.Pool) *BookingsRepoImpl { return &BookingsRepoImpl{pool: pool} }

const bookingCols = `id, booking_id, service, customer_name, customer_phone, customer_email,
garage_id, scheduled_date, scheduled_time, notes, status, status_history,
estimated_cost, actual_cost, vehicle, feedback, completed_at, cancelled_at,
cancellation_reason, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.BookingID, &b.Service, &b.CustomerName, &b.CustomerPhone, &b.CustomerEmail,
		&b.GarageID, &b.ScheduledDate, &b.ScheduledTime, &b.Notes, &b.Status, &b.StatusHistory,
		&b.EstimatedCost, &b.ActualCost, &b.Vehicle, &b.Feedback, &b.CompletedAt, &b.CancelledAt,
		&b.CancellationReason, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingsRepoImpl) Create(ctx context.Context, b *domain.Booking) error {
	const q = `
INSERT INTO bookings (booking_id, service, customer_name, customer_phone, customer_email,
  garage_id, scheduled_date, scheduled_time, notes, status, status_history, vehicle)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if b.StatusHistory == nil {
		b.StatusHistory = []domain.StatusEntry{}
	}
	err := r.pool.QueryRow(ctx, q,
		b.BookingID, b.Service, b.CustomerName, b.CustomerPhone, b.CustomerEmail,
		b.GarageID, b.ScheduledDate, b.ScheduledTime, b.Notes, b.Status, b.StatusHistory, b.Vehicle,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *BookingsRepoImpl) FindByBookingID(ctx context.Context, bookingID string) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE booking_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanBooking(r.pool.QueryRow(ctx, q, bookingID))
}

// Update persists the full mutable state of a booking after a domain
// transition. The id never changes; everything derived from a status
// change travels together.
func (r *BookingsRepoImpl) Update(ctx context.Context, b *domain.Booking) error {
	const q = `
UPDATE bookings SET status=$2, status_history=$3, estimated_cost=$4, actual_cost=$5,
  feedback=$6, completed_at=$7, cancelled_at=$8, cancellation_reason=$9,
  scheduled_date=$10, scheduled_time=$11, notes=$12, updated_at=now()
WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		b.ID, b.Status, b.StatusHistory, b.EstimatedCost, b.ActualCost,
		b.Feedback, b.CompletedAt, b.CancelledAt, b.CancellationReason,
		b.ScheduledDate, b.ScheduledTime, b.Notes,
	)
	return err
}

func (r *BookingsRepoImpl) List(ctx context.Context, f BookingFilter) ([]domain.Booking, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
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

	if f.GarageID != 0 {
		where = append(where, "garage_id = "+arg(f.GarageID))
	}
	if f.Phone != "" {
		where = append(where, "customer_phone = "+arg(f.Phone))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if !f.DateFrom.IsZero() {
		where = append(where, "scheduled_date >= "+arg(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		where = append(where, "scheduled_date <= "+arg(f.DateTo))
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + bookingCols + ` FROM bookings` + cond +
		` ORDER BY created_at DESC LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0, f.Limit)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, total, rows.Err()
}

func (r *BookingsRepoImpl) StatsByGarage(ctx context.Context, garageID int64) (*domain.BookingStats, error) {
	return r.stats(ctx, `WHERE garage_id=$1`, garageID)
}

func (r *BookingsRepoImpl) Stats(ctx context.Context) (*domain.BookingStats, error) {
	return r.stats(ctx, "")
}

func (r *BookingsRepoImpl) stats(ctx context.Context, cond string, args ...any) (*domain.BookingStats, error) {
	q := `
SELECT COUNT(*),
  COUNT(*) FILTER (WHERE status = 'pending'),
  COUNT(*) FILTER (WHERE status = 'confirmed'),
  COUNT(*) FILTER (WHERE status = 'in_progress'),
  COUNT(*) FILTER (WHERE status = 'completed'),
  COUNT(*) FILTER (WHERE status = 'cancelled')
FROM bookings ` + cond
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.BookingStats
	err := r.pool.QueryRow(ctx, q, args...).Scan(
		&s.Total, &s.Pending, &s.Confirmed, &s.InProgress, &s.Completed, &s.Cancelled,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RatingByGarage recomputes the mean rating across all feedback left on
// the garage's bookings, rounded to one decimal.
func (r *BookingsRepoImpl) RatingByGarage(ctx context.Context, garageID int64) (float64, int, error) {
	const q = `
SELECT COALESCE(ROUND(AVG((feedback->>'rating')::numeric), 1), 0), COUNT(*)
FROM bookings
WHERE garage_id=$1 AND feedback IS NOT NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var avg float64
	var count int
	if err := r.pool.QueryRow(ctx, q, garageID).Scan(&avg, &count); err != nil {
		return 0, 0, err
	}
	return avg, count, nil
}

var _ BookingsRepo = (*BookingsRepoImpl)(nil)
