package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/http/middleware"
	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/platform/auth"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/internal/service"
	"github.com/servicepoint/garage-bookings/pkg/logger"
)

type AuthHandler struct {
	Tokens    *auth.TokenService
	Admins    postgres.AdminsRepo
	Garages   postgres.GaragesRepo
	GarageSvc service.GarageService
	Auth      *middleware.Authenticator
}

func NewAuthHandler(tokens *auth.TokenService, admins postgres.AdminsRepo, garages postgres.GaragesRepo, garageSvc service.GarageService, authn *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{Tokens: tokens, Admins: admins, Garages: garages, GarageSvc: garageSvc, Auth: authn}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/admin/login", h.adminLogin)
	r.Post("/admin/register", h.adminRegister)
	r.Post("/garage/login", h.garageLogin)
	r.Post("/garage/register", h.garageClaim)
	r.With(h.Auth.RequireAdmin).Post("/garage/reset-password", h.garageResetPassword)
	r.Post("/logout", h.logout)
	r.Get("/verify", h.verify)
	return r
}

func (h *AuthHandler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		response.BadRequest(w, "email and password are required")
		return
	}

	admin, err := h.Admins.FindByEmail(r.Context(), domain.NormalizeEmail(in.Email))
	if err != nil || !admin.IsActive || !admin.VerifyPassword(in.Password) {
		response.Unauthorized(w, "invalid email or password", response.AuthFlags{RequiresLogin: true})
		return
	}

	token, err := h.Tokens.Issue(admin.AdminRef, auth.TypeAdmin, admin.Email, string(admin.Role))
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if err := h.Admins.TouchLogin(r.Context(), admin.ID); err != nil {
		logger.ErrorContext(r.Context(), "failed to record admin login", "error", err, "admin", admin.AdminRef)
	}

	setSessionCookie(w, "admin_token", token, int(h.Tokens.TTL().Seconds()))
	response.OK(w, "login successful", map[string]any{
		"token": token,
		"admin": admin,
	})
}

// adminRegister bootstraps the very first administrator. Once any admin
// exists, new admins come only from the main admin's invite endpoint.
func (h *AuthHandler) adminRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" || in.Email == "" {
		response.BadRequest(w, "name, email and password are required")
		return
	}
	if len(in.Password) < 8 {
		response.ValidationFailed(w, domain.Validationf("password", "must be at least 8 characters"))
		return
	}

	n, err := h.Admins.Count(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if n > 0 {
		response.FromError(w, domain.ErrRegistrationClosed)
		return
	}

	admin := &domain.Admin{
		AdminRef: domain.NewAdminRef(),
		Name:     in.Name,
		Email:    domain.NormalizeEmail(in.Email),
		Role:     domain.RoleMainAdmin,
		IsActive: true,
	}
	if err := admin.SetPassword(in.Password); err != nil {
		response.InternalError(w, err)
		return
	}
	if err := h.Admins.Create(r.Context(), admin); err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, "administrator account created", map[string]any{"admin": admin})
}

func (h *AuthHandler) garageLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		response.BadRequest(w, "email and password are required")
		return
	}

	g, err := h.Garages.FindByEmail(r.Context(), domain.NormalizeEmail(in.Email))
	if err != nil || !g.IsActive || !g.VerifyPassword(in.Password) {
		response.Unauthorized(w, "invalid email or password", response.AuthFlags{RequiresLogin: true})
		return
	}

	token, err := h.Tokens.Issue(g.GarageRef, auth.TypeGarage, g.Email, "")
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if err := h.Garages.TouchLogin(r.Context(), g.ID); err != nil {
		logger.ErrorContext(r.Context(), "failed to record garage login", "error", err, "garage", g.GarageRef)
	}

	setSessionCookie(w, "garage_token", token, int(h.Tokens.TTL().Seconds()))
	response.OK(w, "login successful", map[string]any{
		"token":  token,
		"garage": g,
	})
}

// garageClaim completes a garage's registration using the temporary
// password from the onboarding email.
func (h *AuthHandler) garageClaim(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email        string `json:"email"`
		GarageID     string `json:"garage_id"`
		TempPassword string `json:"temp_password"`
		NewPassword  string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil ||
		in.Email == "" || in.GarageID == "" || in.TempPassword == "" || in.NewPassword == "" {
		response.BadRequest(w, "email, garage_id, temp_password and new_password are required")
		return
	}

	g, err := h.GarageSvc.Claim(r.Context(), in.Email, in.GarageID, in.TempPassword, in.NewPassword)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			response.Unauthorized(w, "garage details or temporary password are incorrect", response.AuthFlags{})
			return
		}
		response.FromError(w, err)
		return
	}

	token, err := h.Tokens.Issue(g.GarageRef, auth.TypeGarage, g.Email, "")
	if err != nil {
		response.InternalError(w, err)
		return
	}
	setSessionCookie(w, "garage_token", token, int(h.Tokens.TTL().Seconds()))
	response.OK(w, "registration completed", map[string]any{
		"token":  token,
		"garage": g,
	})
}

func (h *AuthHandler) garageResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		GarageID string `json:"garage_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.GarageID == "" {
		response.BadRequest(w, "garage_id is required")
		return
	}

	g, err := h.GarageSvc.ResetPassword(r.Context(), in.GarageID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, "a temporary password has been emailed to the garage owner", map[string]any{
		"garage_id": g.GarageRef,
	})
}

// logout clears session cookies. Tokens are stateless so the bearer
// copy stays valid until expiry.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	setSessionCookie(w, "admin_token", "", -1)
	setSessionCookie(w, "garage_token", "", -1)
	setSessionCookie(w, "token", "", -1)
	response.OK(w, "logged out", nil)
}

// verify reports who the presented token belongs to, reloading the
// identity so deactivated accounts read as invalid.
func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request) {
	raw := middleware.ExtractToken(r)
	if raw == "" {
		response.Unauthorized(w, "authentication required", response.AuthFlags{RequiresLogin: true})
		return
	}
	claims, err := h.Tokens.Verify(raw)
	if err != nil {
		if auth.IsExpiry(err) {
			response.Unauthorized(w, "your session has expired, please log in again", response.AuthFlags{SessionExpired: true})
		} else {
			response.Unauthorized(w, "invalid authentication token", response.AuthFlags{RequiresLogin: true})
		}
		return
	}

	switch claims.Type {
	case auth.TypeAdmin:
		admin, err := h.Admins.FindByRef(r.Context(), claims.Sub)
		if err != nil || !admin.IsActive {
			response.Unauthorized(w, "account not found or deactivated", response.AuthFlags{RequiresLogin: true})
			return
		}
		response.OK(w, "", map[string]any{"type": claims.Type, "admin": admin})
	case auth.TypeGarage:
		g, err := h.Garages.FindByRef(r.Context(), claims.Sub)
		if err != nil || !g.IsActive {
			response.Unauthorized(w, "account not found or deactivated", response.AuthFlags{RequiresLogin: true})
			return
		}
		response.OK(w, "", map[string]any{"type": claims.Type, "garage": g})
	default:
		response.Unauthorized(w, "invalid authentication token", response.AuthFlags{RequiresLogin: true})
	}
}

func setSessionCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
