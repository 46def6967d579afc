package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/http/middleware"
	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/internal/service"
)

type AdminHandler struct {
	Admins     postgres.AdminsRepo
	Garages    postgres.GaragesRepo
	Users      postgres.UsersRepo
	Bookings   postgres.BookingsRepo
	GarageSvc  service.GarageService
	BookingSvc service.BookingService
	Auth       *middleware.Authenticator
}

func NewAdminHandler(admins postgres.AdminsRepo, garages postgres.GaragesRepo, users postgres.UsersRepo, bookings postgres.BookingsRepo, garageSvc service.GarageService, bookingSvc service.BookingService, authn *middleware.Authenticator) *AdminHandler {
	return &AdminHandler{
		Admins: admins, Garages: garages, Users: users, Bookings: bookings,
		GarageSvc: garageSvc, BookingSvc: bookingSvc, Auth: authn,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.Auth.RequireAdmin)

	r.Get("/dashboard", h.dashboard)
	r.Post("/garages", h.onboardGarage)
	r.Get("/garages", h.listGarages)
	r.Get("/garages/{ref}", h.garageDetails)
	r.Put("/garages/{ref}", h.updateGarage)
	r.Delete("/garages/{ref}", h.deactivateGarage)
	r.Get("/bookings", h.listBookings)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireMainAdmin)
		r.Post("/admins", h.createAdmin)
		r.Get("/admins", h.listAdmins)
	})
	return r
}

func (h *AdminHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Bookings.Stats(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	totalGarages, err := h.Garages.Count(r.Context(), false)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	activeGarages, err := h.Garages.Count(r.Context(), true)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	totalUsers, err := h.Users.Count(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}

	response.OK(w, "", map[string]any{
		"bookings": stats,
		"garages": map[string]any{
			"total":  totalGarages,
			"active": activeGarages,
		},
		"users": map[string]any{"total": totalUsers},
	})
}

func (h *AdminHandler) onboardGarage(w http.ResponseWriter, r *http.Request) {
	admin := middleware.AdminFrom(r)

	var in service.OnboardGarageRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	g, err := h.GarageSvc.Onboard(r.Context(), admin.ID, &in)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, "garage added, welcome email sent to the owner", map[string]any{"garage": g})
}

func (h *AdminHandler) listGarages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := pageParams(r)

	f := postgres.GarageFilter{
		State:      strings.TrimSpace(q.Get("state")),
		City:       strings.TrimSpace(q.Get("city")),
		District:   strings.TrimSpace(q.Get("district")),
		Search:     strings.TrimSpace(q.Get("q")),
		ActiveOnly: q.Get("include_inactive") != "true",
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	garages, err := h.Garages.List(r.Context(), f)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, "", map[string]any{"garages": garages, "count": len(garages)})
}

func (h *AdminHandler) garageDetails(w http.ResponseWriter, r *http.Request) {
	g, err := h.Garages.FindByRef(r.Context(), domain.NormalizeRefID(chi.URLParam(r, "ref")))
	if err != nil {
		response.FromError(w, err)
		return
	}
	stats, err := h.Bookings.StatsByGarage(r.Context(), g.ID)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, "", map[string]any{"garage": g, "stats": stats})
}

func (h *AdminHandler) updateGarage(w http.ResponseWriter, r *http.Request) {
	g, err := h.Garages.FindByRef(r.Context(), domain.NormalizeRefID(chi.URLParam(r, "ref")))
	if err != nil {
		response.FromError(w, err)
		return
	}

	var in struct {
		GarageName    *string  `json:"garage_name"`
		OwnerName     *string  `json:"owner_name"`
		ContactNumber *string  `json:"contact_number"`
		Location      *string  `json:"location"`
		State         *string  `json:"state"`
		City          *string  `json:"city"`
		District      *string  `json:"district"`
		Latitude      *float64 `json:"latitude"`
		Longitude     *float64 `json:"longitude"`
		IsActive      *bool    `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if in.GarageName != nil {
		g.GarageName = strings.TrimSpace(*in.GarageName)
	}
	if in.OwnerName != nil {
		g.OwnerName = strings.TrimSpace(*in.OwnerName)
	}
	if in.ContactNumber != nil {
		g.ContactNumber = strings.TrimSpace(*in.ContactNumber)
	}
	if in.Location != nil {
		g.Location = strings.TrimSpace(*in.Location)
	}
	if in.State != nil {
		g.Hierarchy.State = strings.TrimSpace(*in.State)
	}
	if in.City != nil {
		g.Hierarchy.City = strings.TrimSpace(*in.City)
	}
	if in.District != nil {
		g.Hierarchy.District = strings.TrimSpace(*in.District)
	}
	if in.Latitude != nil {
		g.Coordinates.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		g.Coordinates.Longitude = *in.Longitude
	}
	if g.GarageName == "" || g.OwnerName == "" {
		response.ValidationFailed(w, domain.Validationf("garage_name", "and owner_name must not be empty"))
		return
	}

	if err := h.Garages.UpdateProfile(r.Context(), g); err != nil {
		response.FromError(w, err)
		return
	}
	if in.IsActive != nil && *in.IsActive != g.IsActive {
		if err := h.Garages.SetActive(r.Context(), g.ID, *in.IsActive); err != nil {
			response.FromError(w, err)
			return
		}
		g.IsActive = *in.IsActive
	}
	response.OK(w, "garage updated", map[string]any{"garage": g})
}

// deactivateGarage is a soft delete; booking history stays intact.
func (h *AdminHandler) deactivateGarage(w http.ResponseWriter, r *http.Request) {
	g, err := h.Garages.FindByRef(r.Context(), domain.NormalizeRefID(chi.URLParam(r, "ref")))
	if err != nil {
		response.FromError(w, err)
		return
	}
	if err := h.Garages.SetActive(r.Context(), g.ID, false); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "garage deactivated", nil)
}

func (h *AdminHandler) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := pageParams(r)

	var garageID int64
	if ref := q.Get("garage_id"); ref != "" {
		g, err := h.Garages.FindByRef(r.Context(), domain.NormalizeRefID(ref))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				response.ValidationFailed(w, domain.Validationf("garage_id", "does not match any garage"))
				return
			}
			response.InternalError(w, err)
			return
		}
		garageID = g.ID
	}

	result, err := h.BookingSvc.ListByGarage(r.Context(), garageID, q.Get("status"), q.Get("date_from"), q.Get("date_to"), page, limit)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "", result)
}

func (h *AdminHandler) createAdmin(w http.ResponseWriter, r *http.Request) {
	creator := middleware.AdminFrom(r)

	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.Email == "" {
		response.BadRequest(w, "name, email and password are required")
		return
	}
	if len(in.Password) < 8 {
		response.ValidationFailed(w, domain.Validationf("password", "must be at least 8 characters"))
		return
	}

	role := domain.RoleAdmin
	if in.Role != "" {
		parsed, ok := domain.ParseAdminRole(in.Role)
		if !ok {
			response.ValidationFailed(w, domain.Validationf("role", "must be admin or main_admin"))
			return
		}
		role = parsed
	}

	admin := &domain.Admin{
		AdminRef:  domain.NewAdminRef(),
		Name:      strings.TrimSpace(in.Name),
		Email:     domain.NormalizeEmail(in.Email),
		Role:      role,
		IsActive:  true,
		CreatedBy: &creator.ID,
	}
	if err := admin.SetPassword(in.Password); err != nil {
		response.InternalError(w, err)
		return
	}
	if err := h.Admins.Create(r.Context(), admin); err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, "administrator created", map[string]any{"admin": admin})
}

func (h *AdminHandler) listAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.Admins.List(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, "", map[string]any{"admins": admins})
}
