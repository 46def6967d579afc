package domain

import (
	"time"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingInProgress, BookingCompleted, BookingCancelled:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// transitions is the fixed table of allowed status changes. completed
// and cancelled are terminal.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted, BookingCancelled},
	BookingCompleted:  {},
	BookingCancelled:  {},
}

type ActorRole string

const (
	ActorUser   ActorRole = "user"
	ActorGarage ActorRole = "garage"
	ActorAdmin  ActorRole = "admin"
	ActorSystem ActorRole = "system"
)

type ServiceCategory string

const (
	ServiceTowing        ServiceCategory = "Towing"
	ServiceOilChange     ServiceCategory = "Oil Change"
	ServiceBatteryChange ServiceCategory = "Battery Change"
	ServiceServicing     ServiceCategory = "Servicing"
	ServiceInspection    ServiceCategory = "Inspection"
	ServiceTireRepair    ServiceCategory = "Tire Repair"
	ServiceEngineRepair  ServiceCategory = "Engine Repair"
	ServiceBrakeService  ServiceCategory = "Brake Service"
)

func ServiceCategories() []ServiceCategory {
	return []ServiceCategory{
		ServiceTowing, ServiceOilChange, ServiceBatteryChange, ServiceServicing,
		ServiceInspection, ServiceTireRepair, ServiceEngineRepair, ServiceBrakeService,
	}
}

func ParseServiceCategory(s string) (ServiceCategory, bool) {
	for _, c := range ServiceCategories() {
		if ServiceCategory(s) == c {
			return c, true
		}
	}
	return "", false
}

// StatusEntry is one record in a booking's append-only status history.
type StatusEntry struct {
	Status    BookingStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	UpdatedBy ActorRole     `json:"updated_by"`
	Note      string        `json:"note,omitempty"`
}

type Cost struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type VehicleInfo struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         int    `json:"year,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
	Color        string `json:"color,omitempty"`
}

type Feedback struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// MinBookingLead is the minimum gap between submission time and the
// requested slot.
const MinBookingLead = 15 * time.Minute

type Booking struct {
	ID                 int64           `json:"-"`
	BookingID          string          `json:"booking_id"`
	Service            ServiceCategory `json:"service"`
	CustomerName       string          `json:"customer_name"`
	CustomerPhone      string          `json:"customer_phone"`
	CustomerEmail      string          `json:"customer_email,omitempty"`
	GarageID           int64           `json:"-"`
	ScheduledDate      time.Time       `json:"scheduled_date"`
	ScheduledTime      string          `json:"scheduled_time"` // HH:MM
	Notes              string          `json:"notes,omitempty"`
	Status             BookingStatus   `json:"status"`
	StatusHistory      []StatusEntry   `json:"status_history"`
	EstimatedCost      *Cost           `json:"estimated_cost,omitempty"`
	ActualCost         *Cost           `json:"actual_cost,omitempty"`
	Vehicle            *VehicleInfo    `json:"vehicle,omitempty"`
	Feedback           *Feedback       `json:"feedback,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ScheduledDateTime combines the date and the HH:MM slot into a single
// point in time, in the server's location.
func (b *Booking) ScheduledDateTime() time.Time {
	var hh, mm int
	if len(b.ScheduledTime) >= 5 {
		hh = int(b.ScheduledTime[0]-'0')*10 + int(b.ScheduledTime[1]-'0')
		mm = int(b.ScheduledTime[3]-'0')*10 + int(b.ScheduledTime[4]-'0')
	} else if len(b.ScheduledTime) == 4 { // H:MM
		hh = int(b.ScheduledTime[0] - '0')
		mm = int(b.ScheduledTime[2]-'0')*10 + int(b.ScheduledTime[3]-'0')
	}
	d := b.ScheduledDate
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, time.Local)
}

// CanTransitionTo reports whether the status change is in the table.
func (b *Booking) CanTransitionTo(target BookingStatus) bool {
	for _, next := range transitions[b.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// ApplyStatus performs a transition, appending to the status history
// and stamping completion/cancellation exactly once. The struct is left
// untouched when the transition is rejected.
func (b *Booking) ApplyStatus(target BookingStatus, actor ActorRole, note string, now time.Time) error {
	if !b.CanTransitionTo(target) {
		return &InvalidTransitionError{From: b.Status, To: target}
	}

	b.Status = target
	b.StatusHistory = append(b.StatusHistory, StatusEntry{
		Status:    target,
		Timestamp: now,
		UpdatedBy: actor,
		Note:      note,
	})

	switch target {
	case BookingCompleted:
		if b.CompletedAt == nil {
			t := now
			b.CompletedAt = &t
		}
	case BookingCancelled:
		if b.CancelledAt == nil {
			t := now
			b.CancelledAt = &t
		}
		if note != "" && b.CancellationReason == "" {
			b.CancellationReason = note
		}
	}
	b.UpdatedAt = now
	return nil
}

// CanBeCancelled is the customer-facing eligibility rule, distinct from
// the transition table: only pending or confirmed bookings whose slot is
// still in the future.
func (b *Booking) CanBeCancelled(now time.Time) bool {
	if b.Status != BookingPending && b.Status != BookingConfirmed {
		return false
	}
	return b.ScheduledDateTime().After(now)
}

// AttachFeedback records the one-time rating, permitted only on
// completed bookings.
func (b *Booking) AttachFeedback(rating int, comment string, now time.Time) error {
	if b.Status != BookingCompleted {
		return ErrFeedbackNotCompleted
	}
	if b.Feedback != nil {
		return ErrFeedbackAlreadySubmitted
	}
	if rating < 1 || rating > 5 {
		return Validationf("rating", "must be between 1 and 5")
	}
	b.Feedback = &Feedback{Rating: rating, Comment: comment, SubmittedAt: now}
	b.UpdatedAt = now
	return nil
}

// Booking statistics per status, used by garage and admin dashboards.
type BookingStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Confirmed  int `json:"confirmed"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalBookings int  `json:"totalBookings"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
}
