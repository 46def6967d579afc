package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/servicepoint/garage-bookings/internal/domain"
	"github.com/servicepoint/garage-bookings/internal/platform/mailer"
	"github.com/servicepoint/garage-bookings/internal/repo/postgres"
	"github.com/servicepoint/garage-bookings/pkg/events"
)

// OnboardGarageRequest is the admin form for adding a garage to the
// platform on the owner's behalf.
type OnboardGarageRequest struct {
	GarageName    string  `json:"garage_name"`
	OwnerName     string  `json:"owner_name"`
	Email         string  `json:"email"`
	ContactNumber string  `json:"contact_number"`
	Location      string  `json:"location"`
	Country       string  `json:"country"`
	State         string  `json:"state"`
	City          string  `json:"city"`
	District      string  `json:"district"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

func (r *OnboardGarageRequest) validate() error {
	ve := &domain.ValidationError{}
	for field, val := range map[string]string{
		"garage_name":    r.GarageName,
		"owner_name":     r.OwnerName,
		"email":          r.Email,
		"contact_number": r.ContactNumber,
		"location":       r.Location,
		"state":          r.State,
		"city":           r.City,
		"district":       r.District,
	} {
		if strings.TrimSpace(val) == "" {
			ve.Add(field, "is required")
		}
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		ve.Add("latitude", "must be between -90 and 90")
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		ve.Add("longitude", "must be between -180 and 180")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

type GarageService interface {
	Onboard(ctx context.Context, adminID int64, req *OnboardGarageRequest) (*domain.Garage, error)
	Claim(ctx context.Context, email, garageRef, tempPassword, newPassword string) (*domain.Garage, error)
	ResetPassword(ctx context.Context, garageRef string) (*domain.Garage, error)
}

type garageService struct {
	garages postgres.GaragesRepo
	email   mailer.Service
	bus     events.Publisher
	now     func() time.Time
}

func NewGarageService(garages postgres.GaragesRepo, email mailer.Service, bus events.Publisher) GarageService {
	return &garageService{garages: garages, email: email, bus: bus, now: time.Now}
}

// Onboard creates the garage with a generated temporary password. The
// password travels only by email, never over the event bus.
func (s *garageService) Onboard(ctx context.Context, adminID int64, req *OnboardGarageRequest) (*domain.Garage, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tempPass, err := generateTempPassword()
	if err != nil {
		return nil, fmt.Errorf("generate temporary password: %w", err)
	}

	g := &domain.Garage{
		GarageRef:     domain.NewGarageRef(),
		GarageName:    strings.TrimSpace(req.GarageName),
		OwnerName:     strings.TrimSpace(req.OwnerName),
		Email:         domain.NormalizeEmail(req.Email),
		ContactNumber: strings.TrimSpace(req.ContactNumber),
		Location:      strings.TrimSpace(req.Location),
		Hierarchy: domain.LocationHierarchy{
			Country:  orDefault(req.Country, "India"),
			State:    strings.TrimSpace(req.State),
			City:     strings.TrimSpace(req.City),
			District: strings.TrimSpace(req.District),
		},
		Coordinates: domain.Coordinates{Latitude: req.Latitude, Longitude: req.Longitude},
		CreatedBy:   adminID,
	}
	if err := g.SetPassword(tempPass); err != nil {
		return nil, fmt.Errorf("hash temporary password: %w", err)
	}

	if err := s.garages.Create(ctx, g); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Validationf("email", "is already registered to another garage")
		}
		return nil, err
	}

	ev := events.GarageOnboardedEvent{
		GarageRef:  g.GarageRef,
		GarageName: g.GarageName,
		OwnerName:  g.OwnerName,
		Email:      g.Email,
		TempPass:   tempPass,
		CreatedAt:  g.CreatedAt,
	}
	runHooks([]Hook{
		func(ctx context.Context) error {
			msg := mailer.GarageWelcome(&ev)
			_, err := s.email.Send(g.Email, g.OwnerName, msg.Subject, msg.Text, msg.HTML)
			return err
		},
		func(ctx context.Context) error {
			return s.bus.Publish(ctx, events.GarageOnboarded, ev)
		},
	})

	return g, nil
}

// Claim completes registration: the owner proves possession of the
// temporary password and replaces it with one of their own.
func (s *garageService) Claim(ctx context.Context, email, garageRef, tempPassword, newPassword string) (*domain.Garage, error) {
	if len(newPassword) < 8 {
		return nil, domain.Validationf("new_password", "must be at least 8 characters")
	}

	g, err := s.garages.FindForClaim(ctx, domain.NormalizeEmail(email), domain.NormalizeRefID(garageRef))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if g.IsClaimed {
		return nil, domain.ErrAlreadyClaimed
	}
	if !g.VerifyPassword(tempPassword) {
		return nil, domain.ErrUnauthorized
	}

	if err := g.SetPassword(newPassword); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.garages.Claim(ctx, g.ID, g.PasswordHash); err != nil {
		return nil, err
	}

	g.IsClaimed = true
	now := s.now()
	g.RegisteredAt = &now
	return g, nil
}

// ResetPassword issues a fresh temporary password and emails it to the
// owner. Triggered by an admin; the garage stays claimed.
func (s *garageService) ResetPassword(ctx context.Context, garageRef string) (*domain.Garage, error) {
	g, err := s.garages.FindByRef(ctx, domain.NormalizeRefID(garageRef))
	if err != nil {
		return nil, err
	}

	tempPass, err := generateTempPassword()
	if err != nil {
		return nil, fmt.Errorf("generate temporary password: %w", err)
	}
	if err := g.SetPassword(tempPass); err != nil {
		return nil, fmt.Errorf("hash temporary password: %w", err)
	}
	if err := s.garages.ResetPassword(ctx, g.ID, g.PasswordHash); err != nil {
		return nil, err
	}

	runHooks([]Hook{func(ctx context.Context) error {
		msg := mailer.GaragePasswordReset(g.GarageName, g.OwnerName, tempPass)
		_, err := s.email.Send(g.Email, g.OwnerName, msg.Subject, msg.Text, msg.HTML)
		return err
	}})

	return g, nil
}

const tempPassAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateTempPassword() (string, error) {
	out := make([]byte, 12)
	max := big.NewInt(int64(len(tempPassAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = tempPassAlphabet[n.Int64()]
	}
	return string(out), nil
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

var _ GarageService = (*garageService)(nil)
