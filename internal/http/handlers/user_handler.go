package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/internal/service"
)

// UserHandler serves the customer-side profile routes. Customers have
// no credential; the phone number is the lookup key, matching how
// bookings are placed.
type UserHandler struct {
	Users postgres.UsersRepo
	Svc   service.BookingService
}

func NewUserHandler(users postgres.UsersRepo, svc service.BookingService) *UserHandler {
	return &UserHandler{Users: users, Svc: svc}
}

func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/dashboard/{phone}", h.dashboard)
	r.Post("/profile", h.upsertProfile)
	r.Get("/profile/{phone}", h.getProfile)
	r.Post("/vehicles", h.addVehicle)
	r.Put("/vehicles/default", h.setDefaultVehicle)
	r.Delete("/{phone}/vehicles/{index}", h.removeVehicle)
	return r
}

func (h *UserHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(chi.URLParam(r, "phone"))

	u, err := h.Users.FindByPhone(r.Context(), phone)
	if err != nil {
		response.FromError(w, err)
		return
	}

	recent, err := h.Svc.ListByPhone(r.Context(), phone, "", 1, 50)
	if err != nil {
		response.FromError(w, err)
		return
	}

	stats := domain.BookingStats{Total: recent.Pagination.TotalBookings}
	for _, b := range recent.Bookings {
		switch b.Status {
		case domain.BookingPending:
			stats.Pending++
		case domain.BookingConfirmed:
			stats.Confirmed++
		case domain.BookingInProgress:
			stats.InProgress++
		case domain.BookingCompleted:
			stats.Completed++
		case domain.BookingCancelled:
			stats.Cancelled++
		}
	}

	bookings := recent.Bookings
	if len(bookings) > 5 {
		bookings = bookings[:5]
	}
	response.OK(w, "", map[string]any{
		"user":            u,
		"stats":           stats,
		"recent_bookings": bookings,
	})
}

func (h *UserHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.FindByPhone(r.Context(), strings.TrimSpace(chi.URLParam(r, "phone")))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "", map[string]any{"user": u})
}

func (h *UserHandler) upsertProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone string                    `json:"phone"`
		Name  string                    `json:"name"`
		Email string                    `json:"email"`
		Prefs *domain.NotificationPrefs `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Phone) == "" {
		response.BadRequest(w, "phone is required")
		return
	}
	phone := strings.TrimSpace(in.Phone)

	u, err := h.Users.FindByPhone(r.Context(), phone)
	if errors.Is(err, domain.ErrNotFound) {
		if strings.TrimSpace(in.Name) == "" {
			response.ValidationFailed(w, domain.Validationf("name", "is required for a new profile"))
			return
		}
		u = &domain.User{
			UserRef:  domain.NewUserRef(),
			Name:     strings.TrimSpace(in.Name),
			Phone:    phone,
			Email:    domain.NormalizeEmail(in.Email),
			Vehicles: []domain.Vehicle{},
			Prefs:    domain.NotificationPrefs{Email: true, SMS: true},
		}
		if in.Prefs != nil {
			u.Prefs = *in.Prefs
		}
		if err := h.Users.Create(r.Context(), u); err != nil {
			response.FromError(w, err)
			return
		}
		response.Created(w, "profile created", map[string]any{"user": u})
		return
	}
	if err != nil {
		response.InternalError(w, err)
		return
	}

	if strings.TrimSpace(in.Name) != "" {
		u.Name = strings.TrimSpace(in.Name)
	}
	if in.Email != "" {
		u.Email = domain.NormalizeEmail(in.Email)
	}
	if in.Prefs != nil {
		u.Prefs = *in.Prefs
	}
	if err := h.Users.Update(r.Context(), u); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "profile updated", map[string]any{"user": u})
}

func (h *UserHandler) addVehicle(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone   string         `json:"phone"`
		Vehicle domain.Vehicle `json:"vehicle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Phone) == "" {
		response.BadRequest(w, "phone and vehicle are required")
		return
	}
	if in.Vehicle.Make == "" && in.Vehicle.Model == "" && in.Vehicle.LicensePlate == "" {
		response.ValidationFailed(w, domain.Validationf("vehicle", "must have at least a make, model or license plate"))
		return
	}

	u, err := h.Users.FindByPhone(r.Context(), strings.TrimSpace(in.Phone))
	if err != nil {
		response.FromError(w, err)
		return
	}

	in.Vehicle.AddedAt = time.Now()
	u.Vehicles = append(u.Vehicles, in.Vehicle)
	u.NormalizeDefaultVehicle()

	if err := h.Users.Update(r.Context(), u); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "vehicle added", map[string]any{"user": u})
}

func (h *UserHandler) setDefaultVehicle(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone string `json:"phone"`
		Index int    `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Phone) == "" {
		response.BadRequest(w, "phone and index are required")
		return
	}

	u, err := h.Users.FindByPhone(r.Context(), strings.TrimSpace(in.Phone))
	if err != nil {
		response.FromError(w, err)
		return
	}
	if in.Index < 0 || in.Index >= len(u.Vehicles) {
		response.ValidationFailed(w, domain.Validationf("index", "does not match any vehicle"))
		return
	}

	for i := range u.Vehicles {
		u.Vehicles[i].IsDefault = i == in.Index
	}
	if err := h.Users.Update(r.Context(), u); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "default vehicle updated", map[string]any{"user": u})
}

func (h *UserHandler) removeVehicle(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		response.BadRequest(w, "vehicle index must be a number")
		return
	}

	u, err := h.Users.FindByPhone(r.Context(), strings.TrimSpace(chi.URLParam(r, "phone")))
	if err != nil {
		response.FromError(w, err)
		return
	}
	if idx < 0 || idx >= len(u.Vehicles) {
		response.ValidationFailed(w, domain.Validationf("index", "does not match any vehicle"))
		return
	}

	u.Vehicles = append(u.Vehicles[:idx], u.Vehicles[idx+1:]...)
	u.NormalizeDefaultVehicle()

	if err := h.Users.Update(r.Context(), u); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "vehicle removed", map[string]any{"user": u})
}
