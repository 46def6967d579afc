package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/http/middleware"
	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
)

type GarageHandler struct {
	Garages  postgres.GaragesRepo
	Services postgres.ServicesRepo
	Bookings postgres.BookingsRepo
	Auth     *middleware.Authenticator
}

func NewGarageHandler(garages postgres.GaragesRepo, services postgres.ServicesRepo, bookings postgres.BookingsRepo, authn *middleware.Authenticator) *GarageHandler {
	return &GarageHandler{Garages: garages, Services: services, Bookings: bookings, Auth: authn}
}

func (h *GarageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search", h.search)
	r.Get("/categories", h.categories)

	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireGarage)
		r.Get("/profile", h.getProfile)
		r.Put("/profile", h.updateProfile)
		r.Get("/dashboard/stats", h.dashboardStats)
		r.Get("/services", h.listServices)
		r.Post("/services", h.createService)
		r.Put("/services/{ref}", h.updateService)
		r.Delete("/services/{ref}", h.deleteService)
	})

	r.Get("/{ref}", h.details)
	return r
}

// search supports two modes: location-hierarchy filters, or proximity
// when lat/lng are supplied.
func (h *GarageHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var category domain.ServiceCategory
	if c := q.Get("service"); c != "" {
		parsed, ok := domain.ParseServiceCategory(c)
		if !ok {
			response.ValidationFailed(w, domain.Validationf("service", "is not a recognized service category"))
			return
		}
		category = parsed
	}

	if q.Get("lat") != "" || q.Get("lng") != "" {
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
		if errLat != nil || errLng != nil {
			response.ValidationFailed(w, domain.Validationf("lat", "and lng must both be valid coordinates"))
			return
		}
		radius, _ := strconv.ParseFloat(q.Get("radius"), 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		garages, err := h.Garages.ListNearby(r.Context(), lat, lng, radius, category, limit)
		if err != nil {
			response.InternalError(w, err)
			return
		}
		response.OK(w, "", map[string]any{"garages": garages, "count": len(garages)})
		return
	}

	page, limit := pageParams(r)
	f := postgres.GarageFilter{
		State:      strings.TrimSpace(q.Get("state")),
		City:       strings.TrimSpace(q.Get("city")),
		District:   strings.TrimSpace(q.Get("district")),
		Category:   category,
		Search:     strings.TrimSpace(q.Get("q")),
		ActiveOnly: true,
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

func (h *GarageHandler) categories(w http.ResponseWriter, r *http.Request) {
	response.OK(w, "", map[string]any{"categories": domain.ServiceCategories()})
}

func (h *GarageHandler) details(w http.ResponseWriter, r *http.Request) {
	g, err := h.Garages.FindByRef(r.Context(), domain.NormalizeRefID(chi.URLParam(r, "ref")))
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !g.IsActive {
		response.NotFound(w, "resource not found")
		return
	}

	services, err := h.Services.ListByGarage(r.Context(), g.ID, true)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, "", map[string]any{"garage": g, "services": services})
}

func (h *GarageHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	response.OK(w, "", map[string]any{"garage": middleware.GarageFrom(r)})
}

func (h *GarageHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	g := middleware.GarageFrom(r)

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
	response.OK(w, "profile updated", map[string]any{"garage": g})
}

func (h *GarageHandler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	g := middleware.GarageFrom(r)

	stats, err := h.Bookings.StatsByGarage(r.Context(), g.ID)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, "", map[string]any{
		"stats":         stats,
		"rating":        g.Rating,
		"total_ratings": g.TotalRatings,
	})
}

func (h *GarageHandler) listServices(w http.ResponseWriter, r *http.Request) {
	g := middleware.GarageFrom(r)
	services, err := h.Services.ListByGarage(r.Context(), g.ID, false)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, "", map[string]any{"services": services})
}

type serviceInput struct {
	Name        string  `json:"service_name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Duration    string  `json:"estimated_duration"`
	IsActive    *bool   `json:"is_active"`
}

func (in *serviceInput) validate() (*domain.ValidationError, domain.ServiceCategory) {
	ve := &domain.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		ve.Add("service_name", "is required")
	}
	category, ok := domain.ParseServiceCategory(in.Category)
	if !ok {
		ve.Add("category", "is not a recognized service category")
	}
	if in.Price < 0 {
		ve.Add("price", "must not be negative")
	}
	return ve, category
}

func (h *GarageHandler) createService(w http.ResponseWriter, r *http.Request) {
	g := middleware.GarageFrom(r)

	var in serviceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	ve, category := in.validate()
	if ve.HasErrors() {
		response.ValidationFailed(w, ve)
		return
	}

	svc := &domain.Service{
		ServiceRef:  domain.NewServiceRef(),
		GarageID:    g.ID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		Price:       domain.Cost{Amount: in.Price, Currency: orCurrency(in.Currency)},
		Duration:    strings.TrimSpace(in.Duration),
		IsActive:    true,
		AddedBy:     domain.ActorGarage,
	}
	if in.IsActive != nil {
		svc.IsActive = *in.IsActive
	}

	if err := h.Services.Create(r.Context(), svc); err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, "service added", map[string]any{"service": svc})
}

func (h *GarageHandler) updateService(w http.ResponseWriter, r *http.Request) {
	g := middleware.GarageFrom(r)

	svc, err := h.Services.FindByRef(r.Context(), domain.NormalizeRefID(chi.URLParam(r, "ref")))
	if err != nil {
		response.FromError(w, err)
		return
	}
	if svc.GarageID != g.ID {
		response.Forbidden(w, "you can only manage your own services")
		return
	}

	var in serviceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	ve, category := in.validate()
	if ve.HasErrors() {
		response.ValidationFailed(w, ve)
		return
	}

	svc.Name = strings.TrimSpace(in.Name)
	svc.Description = strings.TrimSpace(in.Description)
	svc.Category = category
	svc.Price = domain.Cost{Amount: in.Price, Currency: orCurrency(in.Currency)}
	svc.Duration = strings.TrimSpace(in.Duration)
	if in.IsActive != nil {
		svc.IsActive = *in.IsActive
	}

	if err := h.Services.Update(r.Context(), svc); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "service updated", map[string]any{"service": svc})
}

func (h *GarageHandler) deleteService(w http.ResponseWriter, r *http.Request) {
	g := middleware.GarageFrom(r)
	if err := h.Services.Delete(r.Context(), g.ID, domain.NormalizeRefID(chi.URLParam(r, "ref"))); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "service removed", nil)
}

func orCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return "USD"
	}
	return c
}
