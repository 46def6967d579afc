package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/http/middleware"
	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/internal/service"
)

type BookingHandler struct {
	Svc      service.BookingService
	Bookings postgres.BookingsRepo
	Auth     *middleware.Authenticator
}

func NewBookingHandler(svc service.BookingService, bookings postgres.BookingsRepo, authn *middleware.Authenticator) *BookingHandler {
	return &BookingHandler{Svc: svc, Bookings: bookings, Auth: authn}
}

func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/track/{bookingID}", h.track)
	r.Get("/user/{phone}", h.listByPhone)
	r.Put("/{bookingID}/cancel", h.cancel)
	r.Post("/{bookingID}/feedback", h.feedback)

	r.Group(func(r chi.Router) {
		r.Use(h.Auth.RequireGarage)
		r.With(middleware.RequireGarageOwnership("garageRef")).Get("/garage/{garageRef}", h.listForGarage)
		r.Put("/{bookingID}/status", h.updateStatus)
	})
	return r
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	b, err := h.Svc.Create(r.Context(), &in)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, "booking created", map[string]any{"booking": b})
}

func (h *BookingHandler) track(w http.ResponseWriter, r *http.Request) {
	b, err := h.Svc.Track(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "", map[string]any{"booking": b})
}

func (h *BookingHandler) listByPhone(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := h.Svc.ListByPhone(r.Context(), chi.URLParam(r, "phone"), r.URL.Query().Get("status"), page, limit)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "", result)
}

func (h *BookingHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone  string `json:"phone"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Phone == "" {
		response.BadRequest(w, "phone is required")
		return
	}

	b, err := h.Svc.Cancel(r.Context(), chi.URLParam(r, "bookingID"), in.Phone, in.Reason)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "booking cancelled", map[string]any{"booking": b})
}

func (h *BookingHandler) feedback(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone   string `json:"phone"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Phone == "" {
		response.BadRequest(w, "phone and rating are required")
		return
	}

	b, err := h.Svc.SubmitFeedback(r.Context(), chi.URLParam(r, "bookingID"), in.Phone, in.Rating, in.Comment)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "thank you for your feedback", map[string]any{"booking": b})
}

func (h *BookingHandler) listForGarage(w http.ResponseWriter, r *http.Request) {
	garage := middleware.GarageFrom(r)
	page, limit := pageParams(r)
	q := r.URL.Query()

	result, err := h.Svc.ListByGarage(r.Context(), garage.ID, q.Get("status"), q.Get("date_from"), q.Get("date_to"), page, limit)
	if err != nil {
		response.FromError(w, err)
		return
	}

	stats, err := h.Bookings.StatsByGarage(r.Context(), garage.ID)
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.OK(w, "", map[string]any{
		"bookings":   result.Bookings,
		"pagination": result.Pagination,
		"stats":      stats,
	})
}

func (h *BookingHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Status == "" {
		response.BadRequest(w, "status is required")
		return
	}
	if (in.EstimatedCost != nil && in.EstimatedCost.Amount < 0) ||
		(in.ActualCost != nil && in.ActualCost.Amount < 0) {
		response.ValidationFailed(w, domain.Validationf("cost", "must not be negative"))
		return
	}

	b, err := h.Svc.UpdateStatus(r.Context(), middleware.GarageFrom(r), domain.ActorGarage, chi.URLParam(r, "bookingID"), &in)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "booking status updated", map[string]any{"booking": b})
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return page, limit
}
