package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/http/handlers"
	"github.com/servicepoint/garage-bookings/internal/http/middleware"
	"github.com/servicepoint/garage-bookings/internal/platform/auth"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/internal/service"
)

// ---------- Mocks ----------

type mockAdminsRepo struct {
	admins map[string]*domain.Admin // keyed by ref
	count  int64
}

func (m *mockAdminsRepo) Create(_ context.Context, a *domain.Admin) error {
	a.ID = int64(len(m.admins) + 1)
	if m.admins == nil {
		m.admins = map[string]*domain.Admin{}
	}
	m.admins[a.AdminRef] = a
	m.count++
	return nil
}

func (m *mockAdminsRepo) FindByEmail(_ context.Context, email string) (*domain.Admin, error) {
	for _, a := range m.admins {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockAdminsRepo) FindByRef(_ context.Context, ref string) (*domain.Admin, error) {
	a, ok := m.admins[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (m *mockAdminsRepo) Count(context.Context) (int64, error)        { return m.count, nil }
func (m *mockAdminsRepo) List(context.Context) ([]domain.Admin, error) { return nil, nil }
func (m *mockAdminsRepo) TouchLogin(context.Context, int64) error      { return nil }

type mockGaragesRepo struct {
	garages map[string]*domain.Garage
}

func (m *mockGaragesRepo) Create(context.Context, *domain.Garage) error { return nil }

func (m *mockGaragesRepo) FindByEmail(_ context.Context, email string) (*domain.Garage, error) {
	for _, g := range m.garages {
		if g.Email == email {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockGaragesRepo) FindByRef(_ context.Context, ref string) (*domain.Garage, error) {
	g, ok := m.garages[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

func (m *mockGaragesRepo) FindByID(_ context.Context, id int64) (*domain.Garage, error) {
	for _, g := range m.garages {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockGaragesRepo) FindForClaim(context.Context, string, string) (*domain.Garage, error) {
	return nil, domain.ErrNotFound
}

func (m *mockGaragesRepo) List(context.Context, postgres.GarageFilter) ([]domain.Garage, error) {
	return nil, nil
}

func (m *mockGaragesRepo) ListNearby(context.Context, float64, float64, float64, domain.ServiceCategory, int) ([]domain.Garage, error) {
	return nil, nil
}

func (m *mockGaragesRepo) UpdateProfile(context.Context, *domain.Garage) error     { return nil }
func (m *mockGaragesRepo) Claim(context.Context, int64, string) error              { return nil }
func (m *mockGaragesRepo) ResetPassword(context.Context, int64, string) error      { return nil }
func (m *mockGaragesRepo) UpdateRating(context.Context, int64, float64, int) error { return nil }
func (m *mockGaragesRepo) SetActive(context.Context, int64, bool) error            { return nil }
func (m *mockGaragesRepo) TouchLogin(context.Context, int64) error                 { return nil }
func (m *mockGaragesRepo) Count(context.Context, bool) (int64, error)              { return 0, nil }

type mockBookingSvc struct {
	byID map[string]*domain.Booking
}

func (m *mockBookingSvc) Create(_ context.Context, req *service.CreateBookingRequest) (*domain.Booking, error) {
	if req.CustomerPhone == "" {
		return nil, domain.Validationf("customer_phone", "is required")
	}
	b := &domain.Booking{
		BookingID:     domain.NewBookingID(),
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Status:        domain.BookingPending,
	}
	if m.byID == nil {
		m.byID = map[string]*domain.Booking{}
	}
	m.byID[b.BookingID] = b
	return b, nil
}

func (m *mockBookingSvc) Track(_ context.Context, id string) (*domain.Booking, error) {
	b, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *mockBookingSvc) ListByPhone(context.Context, string, string, int, int) (*service.BookingPage, error) {
	return &service.BookingPage{Pagination: domain.Pagination{CurrentPage: 1, TotalPages: 1}}, nil
}

func (m *mockBookingSvc) Cancel(_ context.Context, id, phone, _ string) (*domain.Booking, error) {
	b, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if b.CustomerPhone != phone {
		return nil, domain.ErrForbidden
	}
	b.Status = domain.BookingCancelled
	return b, nil
}

func (m *mockBookingSvc) UpdateStatus(context.Context, *domain.Garage, domain.ActorRole, string, *service.UpdateStatusRequest) (*domain.Booking, error) {
	return nil, domain.ErrNotFound
}

func (m *mockBookingSvc) SubmitFeedback(context.Context, string, string, int, string) (*domain.Booking, error) {
	return nil, domain.ErrNotFound
}

func (m *mockBookingSvc) ListByGarage(context.Context, int64, string, string, string, int, int) (*service.BookingPage, error) {
	return &service.BookingPage{Pagination: domain.Pagination{CurrentPage: 1, TotalPages: 1}}, nil
}

type mockBookingsRepo struct{}

func (mockBookingsRepo) Create(context.Context, *domain.Booking) error { return nil }
func (mockBookingsRepo) FindByBookingID(context.Context, string) (*domain.Booking, error) {
	return nil, domain.ErrNotFound
}
func (mockBookingsRepo) Update(context.Context, *domain.Booking) error { return nil }
func (mockBookingsRepo) List(context.Context, postgres.BookingFilter) ([]domain.Booking, int, error) {
	return nil, 0, nil
}
func (mockBookingsRepo) StatsByGarage(context.Context, int64) (*domain.BookingStats, error) {
	return &domain.BookingStats{}, nil
}
func (mockBookingsRepo) Stats(context.Context) (*domain.BookingStats, error) {
	return &domain.BookingStats{}, nil
}
func (mockBookingsRepo) RatingByGarage(context.Context, int64) (float64, int, error) {
	return 0, 0, nil
}

type mockGarageSvc struct{}

func (mockGarageSvc) Onboard(context.Context, int64, *service.OnboardGarageRequest) (*domain.Garage, error) {
	return nil, domain.ErrNotFound
}
func (mockGarageSvc) Claim(context.Context, string, string, string, string) (*domain.Garage, error) {
	return nil, domain.ErrUnauthorized
}
func (mockGarageSvc) ResetPassword(context.Context, string) (*domain.Garage, error) {
	return nil, domain.ErrNotFound
}

// ---------- Helpers ----------

type envelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	Data           json.RawMessage `json:"data"`
	Error          json.RawMessage `json:"error"`
	RequiresLogin  bool            `json:"requiresLogin"`
	SessionExpired bool            `json:"sessionExpired"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return env
}

func postJSON(t *testing.T, r chi.Router, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func newAuthFixture(t *testing.T) (*auth.TokenService, *mockAdminsRepo, *mockGaragesRepo, chi.Router) {
	t.Helper()
	tokens := auth.NewTokenService("test-secret", 2*time.Hour)

	admin := &domain.Admin{
		ID: 1, AdminRef: "ADMIN_1_TEST", Name: "Root", Email: "root@example.com",
		Role: domain.RoleMainAdmin, IsActive: true,
	}
	if err := admin.SetPassword("correct-horse"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	admins := &mockAdminsRepo{admins: map[string]*domain.Admin{admin.AdminRef: admin}, count: 1}

	garage := &domain.Garage{
		ID: 7, GarageRef: "GAR_1_TEST", GarageName: "Apex", OwnerName: "Ravi",
		Email: "apex@example.com", IsActive: true, IsClaimed: true,
	}
	if err := garage.SetPassword("garage-pass-1"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	garages := &mockGaragesRepo{garages: map[string]*domain.Garage{garage.GarageRef: garage}}

	authn := middleware.NewAuthenticator(tokens, admins, garages, 2*time.Hour)
	h := handlers.NewAuthHandler(tokens, admins, garages, mockGarageSvc{}, authn)

	r := chi.NewRouter()
	r.Mount("/api/auth", h.Routes())
	return tokens, admins, garages, r
}

// ---------- Auth tests ----------

func TestAdminLogin(t *testing.T) {
	_, _, _, r := newAuthFixture(t)

	rec := postJSON(t, r, "/api/auth/admin/login", map[string]string{
		"email": "root@example.com", "password": "correct-horse",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("success = false")
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Errorf("no token in response: %s", env.Data)
	}
}

func TestAdminLoginWrongPassword(t *testing.T) {
	_, _, _, r := newAuthFixture(t)

	rec := postJSON(t, r, "/api/auth/admin/login", map[string]string{
		"email": "root@example.com", "password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.RequiresLogin {
		t.Error("requiresLogin flag not set")
	}
	if env.SessionExpired {
		t.Error("sessionExpired should not be set for bad credentials")
	}
}

func TestAdminRegisterClosedAfterBootstrap(t *testing.T) {
	_, _, _, r := newAuthFixture(t) // fixture already has one admin

	rec := postJSON(t, r, "/api/auth/admin/register", map[string]string{
		"name": "Eve", "email": "eve@example.com", "password": "long-enough-pw",
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestVerifyExpiredSession(t *testing.T) {
	tokens, _, _, r := newAuthFixture(t)

	expired, err := tokens.IssueWithTTL("ADMIN_1_TEST", auth.TypeAdmin, "root@example.com", "main_admin", -time.Minute)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.SessionExpired {
		t.Error("sessionExpired flag not set for expired token")
	}
	if env.RequiresLogin {
		t.Error("requiresLogin should not be set for expiry")
	}
}

func TestVerifyDeactivatedAccount(t *testing.T) {
	tokens, _, garages, r := newAuthFixture(t)
	garages.garages["GAR_1_TEST"].IsActive = false

	token, err := tokens.Issue("GAR_1_TEST", auth.TypeGarage, "apex@example.com", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGarageLogin(t *testing.T) {
	_, _, _, r := newAuthFixture(t)

	rec := postJSON(t, r, "/api/auth/garage/login", map[string]string{
		"email": "apex@example.com", "password": "garage-pass-1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

// ---------- Booking handler tests ----------

func newBookingFixture(t *testing.T) (*mockBookingSvc, *auth.TokenService, *mockGaragesRepo, chi.Router) {
	t.Helper()
	tokens := auth.NewTokenService("test-secret", 2*time.Hour)

	garage := &domain.Garage{
		ID: 7, GarageRef: "GAR_1_TEST", GarageName: "Apex", Email: "apex@example.com",
		IsActive: true, IsClaimed: true,
	}
	garages := &mockGaragesRepo{garages: map[string]*domain.Garage{garage.GarageRef: garage}}

	authn := middleware.NewAuthenticator(tokens, &mockAdminsRepo{}, garages, 2*time.Hour)
	svc := &mockBookingSvc{}
	h := handlers.NewBookingHandler(svc, mockBookingsRepo{}, authn)

	r := chi.NewRouter()
	r.Mount("/api/bookings", h.Routes())
	return svc, tokens, garages, r
}

func TestCreateBookingEndpoint(t *testing.T) {
	_, _, _, r := newBookingFixture(t)

	rec := postJSON(t, r, "/api/bookings/", map[string]string{
		"service": "Oil Change", "customer_name": "Asha", "customer_phone": "9876543210",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("success = false")
	}
}

func TestCreateBookingValidationError(t *testing.T) {
	_, _, _, r := newBookingFixture(t)

	rec := postJSON(t, r, "/api/bookings/", map[string]string{"service": "Oil Change"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Error("success should be false")
	}
	var fields []domain.FieldError
	if err := json.Unmarshal(env.Error, &fields); err != nil || len(fields) == 0 {
		t.Errorf("expected field error list, got %s", env.Error)
	}
}

func TestTrackUnknownBooking(t *testing.T) {
	_, _, _, r := newBookingFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/track/BK_404_MISSING", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGarageBookingsRequireAuth(t *testing.T) {
	_, _, _, r := newBookingFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/garage/GAR_1_TEST", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.RequiresLogin {
		t.Error("requiresLogin flag not set")
	}
}

func TestGarageBookingsOwnershipEnforced(t *testing.T) {
	_, tokens, _, r := newBookingFixture(t)

	token, err := tokens.Issue("GAR_1_TEST", auth.TypeGarage, "apex@example.com", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/garage/GAR_2_OTHER", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGarageBookingsListOwn(t *testing.T) {
	_, tokens, _, r := newBookingFixture(t)

	token, err := tokens.Issue("GAR_1_TEST", auth.TypeGarage, "apex@example.com", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/garage/GAR_1_TEST", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCancelForbiddenForWrongPhone(t *testing.T) {
	svc, _, _, r := newBookingFixture(t)
	b, err := svc.Create(context.Background(), &service.CreateBookingRequest{
		CustomerName: "Asha", CustomerPhone: "9876543210",
	})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	raw, _ := json.Marshal(map[string]string{"phone": "1111111111"})
	req := httptest.NewRequest(http.MethodPut, "/api/bookings/"+b.BookingID+"/cancel", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
