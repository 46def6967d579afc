package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/pkg/events"
	"github.com/servicepoint/garage-bookings/pkg/logger"
)

// CreateBookingRequest carries the customer-facing booking form.
type CreateBookingRequest struct {
	Service       string              `json:"service"`
	CustomerName  string              `json:"customer_name"`
	CustomerPhone string              `json:"customer_phone"`
	CustomerEmail string              `json:"customer_email"`
	GarageRef     string              `json:"garage_id"`
	ScheduledDate string              `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime string              `json:"scheduled_time"` // HH:MM
	Notes         string              `json:"notes"`
	Vehicle       *domain.VehicleInfo `json:"vehicle"`
}

// UpdateStatusRequest is a garage's or admin's status change, optionally
// attaching cost figures.
type UpdateStatusRequest struct {
	Status        string       `json:"status"`
	Note          string       `json:"note"`
	EstimatedCost *domain.Cost `json:"estimated_cost"`
	ActualCost    *domain.Cost `json:"actual_cost"`
}

type BookingPage struct {
	Bookings   []domain.Booking  `json:"bookings"`
	Pagination domain.Pagination `json:"pagination"`
}

type BookingService interface {
	Create(ctx context.Context, req *CreateBookingRequest) (*domain.Booking, error)
	Track(ctx context.Context, bookingID string) (*domain.Booking, error)
	ListByPhone(ctx context.Context, phone string, status string, page, limit int) (*BookingPage, error)
	Cancel(ctx context.Context, bookingID, phone, reason string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, garage *domain.Garage, actor domain.ActorRole, bookingID string, req *UpdateStatusRequest) (*domain.Booking, error)
	SubmitFeedback(ctx context.Context, bookingID, phone string, rating int, comment string) (*domain.Booking, error)
	ListByGarage(ctx context.Context, garageID int64, status string, dateFrom, dateTo string, page, limit int) (*BookingPage, error)
}

type bookingService struct {
	bookings postgres.BookingsRepo
	garages  postgres.GaragesRepo
	users    postgres.UsersRepo
	bus      events.Publisher
	now      func() time.Time
}

func NewBookingService(bookings postgres.BookingsRepo, garages postgres.GaragesRepo, users postgres.UsersRepo, bus events.Publisher) BookingService {
	return &bookingService{
		bookings: bookings,
		garages:  garages,
		users:    users,
		bus:      bus,
		now:      time.Now,
	}
}

func (s *bookingService) Create(ctx context.Context, req *CreateBookingRequest) (*domain.Booking, error) {
	ve := &domain.ValidationError{}

	if strings.TrimSpace(req.CustomerName) == "" {
		ve.Add("customer_name", "is required")
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		ve.Add("customer_phone", "is required")
	}
	if req.GarageRef == "" {
		ve.Add("garage_id", "is required")
	}

	category, ok := domain.ParseServiceCategory(req.Service)
	if !ok {
		ve.Add("service", "is not a recognized service category")
	}

	var schedDate time.Time
	if req.ScheduledDate == "" {
		ve.Add("scheduled_date", "is required")
	} else {
		var err error
		schedDate, err = time.ParseInLocation("2006-01-02", req.ScheduledDate, time.Local)
		if err != nil {
			ve.Add("scheduled_date", "must be in YYYY-MM-DD format")
		}
	}
	if req.ScheduledTime == "" {
		ve.Add("scheduled_time", "is required")
	} else if _, err := time.Parse("15:04", req.ScheduledTime); err != nil {
		ve.Add("scheduled_time", "must be in HH:MM format")
	}
	if ve.HasErrors() {
		return nil, ve
	}

	now := s.now()
	b := &domain.Booking{
		BookingID:     domain.NewBookingID(),
		Service:       category,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		CustomerEmail: domain.NormalizeEmail(req.CustomerEmail),
		ScheduledDate: schedDate,
		ScheduledTime: req.ScheduledTime,
		Notes:         strings.TrimSpace(req.Notes),
		Status:        domain.BookingPending,
		Vehicle:       req.Vehicle,
	}

	// Lead time check distinguishes a past date from a slot later today
	// that is simply too close.
	slot := b.ScheduledDateTime()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	if schedDate.Before(today) {
		return nil, domain.Validationf("scheduled_date", "has already passed")
	}
	if slot.Before(now.Add(domain.MinBookingLead)) {
		return nil, domain.Validationf("scheduled_time", "is too soon, please choose a time at least %d minutes from now", int(domain.MinBookingLead.Minutes()))
	}

	garage, err := s.garages.FindByRef(ctx, domain.NormalizeRefID(req.GarageRef))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validationf("garage_id", "does not match any garage")
		}
		return nil, err
	}
	if !garage.IsActive {
		return nil, domain.Validationf("garage_id", "garage is not accepting bookings")
	}
	b.GarageID = garage.ID

	b.StatusHistory = []domain.StatusEntry{{
		Status:    domain.BookingPending,
		Timestamp: now,
		UpdatedBy: domain.ActorUser,
		Note:      "booking created",
	}}

	if err := s.ensureUser(ctx, b); err != nil {
		logger.ErrorContext(ctx, "failed to upsert customer profile", "error", err, "phone", b.CustomerPhone)
	}

	if err := s.bookings.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	runHooks([]Hook{func(ctx context.Context) error {
		return s.bus.Publish(ctx, events.BookingCreated, events.BookingCreatedEvent{
			BookingID:     b.BookingID,
			Service:       string(b.Service),
			CustomerName:  b.CustomerName,
			CustomerPhone: b.CustomerPhone,
			CustomerEmail: b.CustomerEmail,
			GarageRef:     garage.GarageRef,
			GarageEmail:   garage.Email,
			GarageName:    garage.GarageName,
			ScheduledAt:   slot,
			Notes:         b.Notes,
			CreatedAt:     b.CreatedAt,
		})
	}})

	return b, nil
}

// ensureUser finds or creates the customer profile keyed by phone, and
// remembers the booking's vehicle when the profile has none.
func (s *bookingService) ensureUser(ctx context.Context, b *domain.Booking) error {
	u, err := s.users.FindByPhone(ctx, b.CustomerPhone)
	if errors.Is(err, domain.ErrNotFound) {
		u = &domain.User{
			UserRef: domain.NewUserRef(),
			Name:    b.CustomerName,
			Phone:   b.CustomerPhone,
			Email:   b.CustomerEmail,
			Prefs:   domain.NotificationPrefs{Email: true, SMS: true},
		}
		if b.Vehicle != nil {
			u.Vehicles = []domain.Vehicle{vehicleFromInfo(b.Vehicle, s.now())}
			u.NormalizeDefaultVehicle()
		}
		return s.users.Create(ctx, u)
	}
	if err != nil {
		return err
	}

	changed := false
	if b.CustomerEmail != "" && u.Email == "" {
		u.Email = b.CustomerEmail
		changed = true
	}
	if b.Vehicle != nil && len(u.Vehicles) == 0 {
		u.Vehicles = []domain.Vehicle{vehicleFromInfo(b.Vehicle, s.now())}
		u.NormalizeDefaultVehicle()
		changed = true
	}
	if changed {
		return s.users.Update(ctx, u)
	}
	return nil
}

func vehicleFromInfo(v *domain.VehicleInfo, now time.Time) domain.Vehicle {
	return domain.Vehicle{
		Make:         v.Make,
		Model:        v.Model,
		Year:         v.Year,
		LicensePlate: v.LicensePlate,
		Color:        v.Color,
		IsDefault:    true,
		AddedAt:      now,
	}
}

func (s *bookingService) Track(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.bookings.FindByBookingID(ctx, domain.NormalizeRefID(bookingID))
}

func (s *bookingService) ListByPhone(ctx context.Context, phone string, status string, page, limit int) (*BookingPage, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, domain.Validationf("phone", "is required")
	}
	f := postgres.BookingFilter{Phone: strings.TrimSpace(phone)}
	if err := applyStatusFilter(&f, status); err != nil {
		return nil, err
	}
	return s.page(ctx, f, page, limit)
}

func (s *bookingService) ListByGarage(ctx context.Context, garageID int64, status string, dateFrom, dateTo string, page, limit int) (*BookingPage, error) {
	f := postgres.BookingFilter{GarageID: garageID}
	if err := applyStatusFilter(&f, status); err != nil {
		return nil, err
	}
	if dateFrom != "" {
		t, err := time.ParseInLocation("2006-01-02", dateFrom, time.Local)
		if err != nil {
			return nil, domain.Validationf("date_from", "must be in YYYY-MM-DD format")
		}
		f.DateFrom = t
	}
	if dateTo != "" {
		t, err := time.ParseInLocation("2006-01-02", dateTo, time.Local)
		if err != nil {
			return nil, domain.Validationf("date_to", "must be in YYYY-MM-DD format")
		}
		f.DateTo = t
	}
	return s.page(ctx, f, page, limit)
}

func applyStatusFilter(f *postgres.BookingFilter, status string) error {
	if status == "" {
		return nil
	}
	st, ok := domain.ParseBookingStatus(status)
	if !ok {
		return domain.Validationf("status", "is not a valid booking status")
	}
	f.Status = st
	return nil
}

func (s *bookingService) page(ctx context.Context, f postgres.BookingFilter, page, limit int) (*BookingPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	f.Limit = limit
	f.Offset = (page - 1) * limit

	bookings, total, err := s.bookings.List(ctx, f)
	if err != nil {
		return nil, err
	}

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}
	return &BookingPage{
		Bookings: bookings,
		Pagination: domain.Pagination{
			CurrentPage:   page,
			TotalPages:    totalPages,
			TotalBookings: total,
			HasNextPage:   page < totalPages,
			HasPrevPage:   page > 1,
		},
	}, nil
}

// Cancel is the customer-side cancellation; ownership is proven by the
// phone number the booking was placed with.
func (s *bookingService) Cancel(ctx context.Context, bookingID, phone, reason string) (*domain.Booking, error) {
	b, err := s.bookings.FindByBookingID(ctx, domain.NormalizeRefID(bookingID))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(phone) == "" || b.CustomerPhone != strings.TrimSpace(phone) {
		return nil, domain.ErrForbidden
	}

	now := s.now()
	if !b.CanBeCancelled(now) {
		return nil, domain.ErrCancellationNotAllowed
	}
	if err := b.ApplyStatus(domain.BookingCancelled, domain.ActorUser, reason, now); err != nil {
		return nil, err
	}
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	runHooks([]Hook{func(ctx context.Context) error {
		return s.bus.Publish(ctx, events.BookingCancelled, events.BookingCancelledEvent{
			BookingID:     b.BookingID,
			CustomerEmail: b.CustomerEmail,
			Reason:        b.CancellationReason,
			CancelledAt:   now,
		})
	}})

	return b, nil
}

// UpdateStatus applies a garage's or admin's transition. A garage may
// only touch its own bookings; admins pass a nil garage.
func (s *bookingService) UpdateStatus(ctx context.Context, garage *domain.Garage, actor domain.ActorRole, bookingID string, req *UpdateStatusRequest) (*domain.Booking, error) {
	target, ok := domain.ParseBookingStatus(req.Status)
	if !ok {
		return nil, domain.Validationf("status", "is not a valid booking status")
	}

	b, err := s.bookings.FindByBookingID(ctx, domain.NormalizeRefID(bookingID))
	if err != nil {
		return nil, err
	}
	if garage != nil && b.GarageID != garage.ID {
		return nil, domain.ErrForbidden
	}

	oldStatus := b.Status
	now := s.now()
	if err := b.ApplyStatus(target, actor, req.Note, now); err != nil {
		return nil, err
	}
	if req.EstimatedCost != nil {
		b.EstimatedCost = req.EstimatedCost
	}
	if req.ActualCost != nil {
		b.ActualCost = req.ActualCost
	}

	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	if garage == nil {
		g, err := s.garages.FindByID(ctx, b.GarageID)
		if err == nil {
			garage = g
		}
	}

	ev := events.BookingStatusChangedEvent{
		BookingID:     b.BookingID,
		Service:       string(b.Service),
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		OldStatus:     string(oldStatus),
		NewStatus:     string(b.Status),
		Note:          req.Note,
		ChangedAt:     now,
	}
	if garage != nil {
		ev.GarageName = garage.GarageName
		ev.GaragePhone = garage.ContactNumber
	}
	runHooks([]Hook{func(ctx context.Context) error {
		return s.bus.Publish(ctx, events.BookingStatusChanged, ev)
	}})

	return b, nil
}

// SubmitFeedback records the one-time rating and folds it into the
// garage's aggregate.
func (s *bookingService) SubmitFeedback(ctx context.Context, bookingID, phone string, rating int, comment string) (*domain.Booking, error) {
	b, err := s.bookings.FindByBookingID(ctx, domain.NormalizeRefID(bookingID))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(phone) == "" || b.CustomerPhone != strings.TrimSpace(phone) {
		return nil, domain.ErrForbidden
	}

	now := s.now()
	if err := b.AttachFeedback(rating, strings.TrimSpace(comment), now); err != nil {
		return nil, err
	}
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}

	// The aggregate is recomputed from stored feedback rather than
	// adjusted incrementally, so a retry converges instead of drifting.
	var garageRef string
	avg, count, err := s.bookings.RatingByGarage(ctx, b.GarageID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to recompute garage rating", "error", err, "garage_id", b.GarageID)
	} else if err := s.garages.UpdateRating(ctx, b.GarageID, avg, count); err != nil {
		logger.ErrorContext(ctx, "failed to store garage rating", "error", err, "garage_id", b.GarageID)
	}
	if g, err := s.garages.FindByID(ctx, b.GarageID); err == nil {
		garageRef = g.GarageRef
	}

	runHooks([]Hook{func(ctx context.Context) error {
		return s.bus.Publish(ctx, events.FeedbackSubmitted, events.FeedbackSubmittedEvent{
			BookingID:   b.BookingID,
			GarageRef:   garageRef,
			Rating:      rating,
			SubmittedAt: now,
		})
	}})

	return b, nil
}

var _ BookingService = (*bookingService)(nil)
