package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
)

// ---------- Mocks ----------

type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) published(subject string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

type mockBookingsRepo struct {
	byID      map[string]*domain.Booking
	rating    float64
	ratingN   int
	updateErr error
}

func newMockBookingsRepo() *mockBookingsRepo {
	return &mockBookingsRepo{byID: make(map[string]*domain.Booking)}
}

func (m *mockBookingsRepo) Create(_ context.Context, b *domain.Booking) error {
	b.ID = int64(len(m.byID) + 1)
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.byID[b.BookingID] = &cp
	return nil
}

func (m *mockBookingsRepo) FindByBookingID(_ context.Context, id string) (*domain.Booking, error) {
	b, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookingsRepo) Update(_ context.Context, b *domain.Booking) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *b
	m.byID[b.BookingID] = &cp
	return nil
}

func (m *mockBookingsRepo) List(_ context.Context, f postgres.BookingFilter) ([]domain.Booking, int, error) {
	var out []domain.Booking
	for _, b := range m.byID {
		if f.Phone != "" && b.CustomerPhone != f.Phone {
			continue
		}
		if f.GarageID != 0 && b.GarageID != f.GarageID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (m *mockBookingsRepo) StatsByGarage(context.Context, int64) (*domain.BookingStats, error) {
	return &domain.BookingStats{}, nil
}

func (m *mockBookingsRepo) Stats(context.Context) (*domain.BookingStats, error) {
	return &domain.BookingStats{}, nil
}

func (m *mockBookingsRepo) RatingByGarage(context.Context, int64) (float64, int, error) {
	return m.rating, m.ratingN, nil
}

type mockGaragesRepo struct {
	byRef        map[string]*domain.Garage
	ratedID      int64
	ratedAvg     float64
	ratedCount   int
	ratingStored bool
}

func newMockGaragesRepo(garages ...*domain.Garage) *mockGaragesRepo {
	m := &mockGaragesRepo{byRef: make(map[string]*domain.Garage)}
	for _, g := range garages {
		m.byRef[g.GarageRef] = g
	}
	return m
}

func (m *mockGaragesRepo) Create(context.Context, *domain.Garage) error { return nil }

func (m *mockGaragesRepo) FindByEmail(_ context.Context, email string) (*domain.Garage, error) {
	for _, g := range m.byRef {
		if g.Email == email {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockGaragesRepo) FindByRef(_ context.Context, ref string) (*domain.Garage, error) {
	g, ok := m.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

func (m *mockGaragesRepo) FindByID(_ context.Context, id int64) (*domain.Garage, error) {
	for _, g := range m.byRef {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockGaragesRepo) FindForClaim(_ context.Context, email, ref string) (*domain.Garage, error) {
	g, ok := m.byRef[ref]
	if !ok || g.Email != email || !g.IsActive {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

func (m *mockGaragesRepo) List(context.Context, postgres.GarageFilter) ([]domain.Garage, error) {
	return nil, nil
}

func (m *mockGaragesRepo) ListNearby(context.Context, float64, float64, float64, domain.ServiceCategory, int) ([]domain.Garage, error) {
	return nil, nil
}

func (m *mockGaragesRepo) UpdateProfile(context.Context, *domain.Garage) error { return nil }

func (m *mockGaragesRepo) Claim(_ context.Context, id int64, hash string) error {
	for _, g := range m.byRef {
		if g.ID == id {
			if g.IsClaimed {
				return domain.ErrAlreadyClaimed
			}
			g.PasswordHash = hash
			g.IsClaimed = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockGaragesRepo) ResetPassword(_ context.Context, id int64, hash string) error {
	for _, g := range m.byRef {
		if g.ID == id {
			g.PasswordHash = hash
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockGaragesRepo) UpdateRating(_ context.Context, id int64, avg float64, count int) error {
	m.ratedID, m.ratedAvg, m.ratedCount = id, avg, count
	m.ratingStored = true
	return nil
}

func (m *mockGaragesRepo) SetActive(context.Context, int64, bool) error { return nil }
func (m *mockGaragesRepo) TouchLogin(context.Context, int64) error      { return nil }
func (m *mockGaragesRepo) Count(context.Context, bool) (int64, error)   { return 0, nil }

type mockUsersRepo struct {
	byPhone map[string]*domain.User
}

func newMockUsersRepo() *mockUsersRepo {
	return &mockUsersRepo{byPhone: make(map[string]*domain.User)}
}

func (m *mockUsersRepo) Create(_ context.Context, u *domain.User) error {
	u.ID = int64(len(m.byPhone) + 1)
	m.byPhone[u.Phone] = u
	return nil
}

func (m *mockUsersRepo) FindByPhone(_ context.Context, phone string) (*domain.User, error) {
	u, ok := m.byPhone[phone]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (m *mockUsersRepo) FindByRef(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (m *mockUsersRepo) Update(_ context.Context, u *domain.User) error {
	m.byPhone[u.Phone] = u
	return nil
}

func (m *mockUsersRepo) Count(context.Context) (int64, error) { return 0, nil }

// ---------- Fixtures ----------

var testNow = time.Date(2030, 6, 15, 9, 0, 0, 0, time.Local)

func testGarage() *domain.Garage {
	return &domain.Garage{
		ID:            7,
		GarageRef:     "GAR_1700000000000_TESTGARAG",
		GarageName:    "Apex Auto Works",
		OwnerName:     "Ravi Kumar",
		Email:         "apex@example.com",
		ContactNumber: "9000000000",
		IsActive:      true,
	}
}

func newTestService(t *testing.T) (*bookingService, *mockBookingsRepo, *mockGaragesRepo, *mockUsersRepo, *mockPublisher) {
	t.Helper()
	bookings := newMockBookingsRepo()
	garages := newMockGaragesRepo(testGarage())
	users := newMockUsersRepo()
	bus := &mockPublisher{}

	svc := NewBookingService(bookings, garages, users, bus).(*bookingService)
	svc.now = func() time.Time { return testNow }
	return svc, bookings, garages, users, bus
}

func validCreateReq() *CreateBookingRequest {
	return &CreateBookingRequest{
		Service:       "Oil Change",
		CustomerName:  "Asha Rao",
		CustomerPhone: "9876543210",
		CustomerEmail: "asha@example.com",
		GarageRef:     "GAR_1700000000000_TESTGARAG",
		ScheduledDate: "2030-06-15",
		ScheduledTime: "10:30",
	}
}

// ---------- Tests ----------

func TestCreateBooking(t *testing.T) {
	svc, _, _, users, _ := newTestService(t)

	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != domain.BookingPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if b.GarageID != 7 {
		t.Errorf("garage id = %d, want 7", b.GarageID)
	}
	if len(b.StatusHistory) != 1 || b.StatusHistory[0].UpdatedBy != domain.ActorUser {
		t.Errorf("unexpected initial history: %+v", b.StatusHistory)
	}
	if b.BookingID == "" {
		t.Error("booking id not assigned")
	}

	u, err := users.FindByPhone(context.Background(), "9876543210")
	if err != nil {
		t.Fatal("customer profile was not created")
	}
	if u.Email != "asha@example.com" {
		t.Errorf("profile email = %q", u.Email)
	}
}

func TestCreateBookingPastDate(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	req := validCreateReq()
	req.ScheduledDate = "2030-06-14"
	_, err := svc.Create(context.Background(), req)

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if ve.Fields[0].Field != "scheduled_date" {
		t.Errorf("field = %q, want scheduled_date", ve.Fields[0].Field)
	}
}

func TestCreateBookingTooSoonToday(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	req := validCreateReq()
	req.ScheduledTime = "09:10" // 10 minutes after the fixed clock
	_, err := svc.Create(context.Background(), req)

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if ve.Fields[0].Field != "scheduled_time" {
		t.Errorf("field = %q, want scheduled_time (distinct from past-date)", ve.Fields[0].Field)
	}
}

func TestCreateBookingUnknownGarage(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	req := validCreateReq()
	req.GarageRef = "GAR_000_MISSING"
	_, err := svc.Create(context.Background(), req)

	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "garage_id" {
		t.Fatalf("err = %v, want garage_id validation error", err)
	}
}

func TestCancelRequiresMatchingPhone(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), b.BookingID, "1111111111", ""); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCancelHappyPath(t *testing.T) {
	svc, bookings, _, _, bus := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Cancel(context.Background(), b.BookingID, "9876543210", "plans changed")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != domain.BookingCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.CancellationReason != "plans changed" {
		t.Errorf("reason = %q", got.CancellationReason)
	}

	stored, _ := bookings.FindByBookingID(context.Background(), b.BookingID)
	if stored.Status != domain.BookingCancelled {
		t.Error("cancellation not persisted")
	}
	if !bus.published("booking.cancelled") {
		t.Error("booking.cancelled event not published")
	}
}

func TestCancelTerminalBooking(t *testing.T) {
	svc, bookings, _, _, _ := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stored := bookings.byID[b.BookingID]
	stored.Status = domain.BookingInProgress

	if _, err := svc.Cancel(context.Background(), b.BookingID, "9876543210", ""); !errors.Is(err, domain.ErrCancellationNotAllowed) {
		t.Fatalf("err = %v, want ErrCancellationNotAllowed", err)
	}
}

func TestUpdateStatusOwnership(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	other := testGarage()
	other.ID = 99
	_, err = svc.UpdateStatus(context.Background(), other, domain.ActorGarage, b.BookingID, &UpdateStatusRequest{Status: "confirmed"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), testGarage(), domain.ActorGarage, b.BookingID, &UpdateStatusRequest{Status: "completed"})
	var te *domain.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *InvalidTransitionError", err)
	}
}

func TestUpdateStatusPublishesEvent(t *testing.T) {
	svc, _, _, _, bus := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.UpdateStatus(context.Background(), testGarage(), domain.ActorGarage, b.BookingID, &UpdateStatusRequest{
		Status:        "confirmed",
		Note:          "slot confirmed",
		EstimatedCost: &domain.Cost{Amount: 1500, Currency: "INR"},
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.EstimatedCost == nil || got.EstimatedCost.Amount != 1500 {
		t.Errorf("estimated cost not stored: %+v", got.EstimatedCost)
	}
	if !bus.published("booking.status_changed") {
		t.Error("booking.status_changed event not published")
	}
}

func TestSubmitFeedbackRecomputesRating(t *testing.T) {
	svc, bookings, garages, _, bus := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stored := bookings.byID[b.BookingID]
	stored.Status = domain.BookingCompleted
	bookings.rating = 4.5
	bookings.ratingN = 2

	got, err := svc.SubmitFeedback(context.Background(), b.BookingID, "9876543210", 5, "excellent")
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if got.Feedback == nil || got.Feedback.Rating != 5 {
		t.Fatalf("feedback not stored: %+v", got.Feedback)
	}

	if !garages.ratingStored || garages.ratedID != 7 || garages.ratedAvg != 4.5 || garages.ratedCount != 2 {
		t.Errorf("rating not folded into garage: %+v", garages)
	}
	if !bus.published("booking.feedback") {
		t.Error("booking.feedback event not published")
	}
}

func TestSubmitFeedbackTwice(t *testing.T) {
	svc, bookings, _, _, _ := newTestService(t)
	b, err := svc.Create(context.Background(), validCreateReq())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	bookings.byID[b.BookingID].Status = domain.BookingCompleted

	if _, err := svc.SubmitFeedback(context.Background(), b.BookingID, "9876543210", 4, ""); err != nil {
		t.Fatalf("first feedback: %v", err)
	}
	if _, err := svc.SubmitFeedback(context.Background(), b.BookingID, "9876543210", 5, ""); !errors.Is(err, domain.ErrFeedbackAlreadySubmitted) {
		t.Fatalf("second feedback err = %v, want ErrFeedbackAlreadySubmitted", err)
	}
}

func TestListByPhonePagination(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	for i := 0; i < 3; i++ {
		req := validCreateReq()
		req.ScheduledTime = "10:3" + string(rune('0'+i))
		if _, err := svc.Create(context.Background(), req); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	page, err := svc.ListByPhone(context.Background(), "9876543210", "", 1, 10)
	if err != nil {
		t.Fatalf("ListByPhone: %v", err)
	}
	if page.Pagination.TotalBookings != 3 || page.Pagination.TotalPages != 1 {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if page.Pagination.HasNextPage || page.Pagination.HasPrevPage {
		t.Error("single page should have no next/prev")
	}
}
