package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/platform/auth"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
)

type ctxKey string

const (
	CtxClaims ctxKey = "claims"
	CtxAdmin  ctxKey = "admin"
	CtxGarage ctxKey = "garage"
)

// ExtractToken looks for a bearer credential in the places clients are
// allowed to put one, in priority order: Authorization header, cookie,
// JSON body, query string. A token found in the body is read
// non-destructively; the body is restored for the handler.
func ExtractToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}

	for _, name := range []string{"admin_token", "garage_token", "token"} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}

	if r.Body != nil && r.Header.Get("Content-Type") == "application/json" {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(raw))
			var in struct {
				Token string `json:"token"`
			}
			if json.Unmarshal(raw, &in) == nil && in.Token != "" {
				return in.Token
			}
		}
	}

	return r.URL.Query().Get("token")
}

// Authenticator verifies tokens and reloads the identity they refer to,
// so deactivated accounts lose access immediately despite stateless
// sessions.
type Authenticator struct {
	Tokens        *auth.TokenService
	Admins        postgres.AdminsRepo
	Garages       postgres.GaragesRepo
	SessionMaxAge time.Duration
}

func NewAuthenticator(tokens *auth.TokenService, admins postgres.AdminsRepo, garages postgres.GaragesRepo, sessionMaxAge time.Duration) *Authenticator {
	return &Authenticator{Tokens: tokens, Admins: admins, Garages: garages, SessionMaxAge: sessionMaxAge}
}

func (a *Authenticator) verify(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	raw := ExtractToken(r)
	if raw == "" {
		response.Unauthorized(w, "authentication required", response.AuthFlags{RequiresLogin: true})
		return nil, false
	}

	claims, err := a.Tokens.Verify(raw)
	if err != nil {
		if auth.IsExpiry(err) {
			response.Unauthorized(w, "your session has expired, please log in again", response.AuthFlags{SessionExpired: true})
		} else {
			response.Unauthorized(w, "invalid authentication token", response.AuthFlags{RequiresLogin: true})
		}
		return nil, false
	}

	// The staleness guard runs before identity lookup. exp normally
	// trips first; this catches tokens whose exp was issued longer than
	// the configured session age.
	if a.SessionMaxAge > 0 && claims.IssuedAt != nil &&
		time.Since(claims.IssuedAt.Time) > a.SessionMaxAge {
		response.Unauthorized(w, "your session has expired, please log in again", response.AuthFlags{SessionExpired: true})
		return nil, false
	}

	return claims, true
}

// RequireAdmin authenticates an admin token and loads the admin record
// into the request context.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.verify(w, r)
		if !ok {
			return
		}
		if claims.Type != auth.TypeAdmin {
			response.Forbidden(w, "admin access required")
			return
		}

		admin, err := a.Admins.FindByRef(r.Context(), claims.Sub)
		if err != nil || !admin.IsActive {
			response.Unauthorized(w, "account not found or deactivated", response.AuthFlags{RequiresLogin: true})
			return
		}

		ctx := context.WithValue(r.Context(), CtxClaims, claims)
		ctx = context.WithValue(ctx, CtxAdmin, admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireGarage authenticates a garage token and loads the garage
// record into the request context.
func (a *Authenticator) RequireGarage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.verify(w, r)
		if !ok {
			return
		}
		if claims.Type != auth.TypeGarage {
			response.Forbidden(w, "garage access required")
			return
		}

		garage, err := a.Garages.FindByRef(r.Context(), claims.Sub)
		if err != nil || !garage.IsActive {
			response.Unauthorized(w, "account not found or deactivated", response.AuthFlags{RequiresLogin: true})
			return
		}

		ctx := context.WithValue(r.Context(), CtxClaims, claims)
		ctx = context.WithValue(ctx, CtxGarage, garage)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates admin routes by role, after RequireAdmin has run.
func RequireRole(roles ...domain.AdminRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin := AdminFrom(r)
			if admin == nil {
				response.Unauthorized(w, "authentication required", response.AuthFlags{RequiresLogin: true})
				return
			}
			for _, role := range roles {
				if admin.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "insufficient privileges")
		})
	}
}

// RequireMainAdmin restricts a route to the main administrator.
func RequireMainAdmin(next http.Handler) http.Handler {
	return RequireRole(domain.RoleMainAdmin)(next)
}

// RequireGarageOwnership rejects garage routes addressing a garage ref
// other than the authenticated one's.
func RequireGarageOwnership(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			garage := GarageFrom(r)
			if garage == nil {
				response.Unauthorized(w, "authentication required", response.AuthFlags{RequiresLogin: true})
				return
			}
			ref := domain.NormalizeRefID(chi.URLParam(r, param))
			if ref != "" && ref != garage.GarageRef {
				response.Forbidden(w, "you can only manage your own garage")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFrom(r *http.Request) *auth.Claims {
	v, _ := r.Context().Value(CtxClaims).(*auth.Claims)
	return v
}

func AdminFrom(r *http.Request) *domain.Admin {
	v, _ := r.Context().Value(CtxAdmin).(*domain.Admin)
	return v
}

func GarageFrom(r *http.Request) *domain.Garage {
	v, _ := r.Context().Value(CtxGarage).(*domain.Garage)
	return v
}
