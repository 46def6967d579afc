package domain

import (
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
)

// Credential is the shared password capability for admin and garage
// identities: one-way adaptive hash on write, constant-time verify on
// read, never externalized.
type Credential struct {
	PasswordHash string `json:"-"`
}

func (c *Credential) SetPassword(plain string) error {
	hash, err := argon2id.CreateHash(plain, argon2id.DefaultParams)
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	return nil
}

func (c *Credential) VerifyPassword(plain string) bool {
	ok, err := argon2id.ComparePasswordAndHash(plain, c.PasswordHash)
	return err == nil && ok
}

type AdminRole string

const (
	RoleMainAdmin AdminRole = "main_admin"
	RoleAdmin     AdminRole = "admin"
)

func ParseAdminRole(s string) (AdminRole, bool) {
	switch AdminRole(s) {
	case RoleMainAdmin, RoleAdmin:
		return AdminRole(s), true
	default:
		return "", false
	}
}

type Admin struct {
	ID        int64     `json:"-"`
	AdminRef  string    `json:"admin_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      AdminRole `json:"role"`
	IsActive  bool      `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedBy *int64    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Credential
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocationHierarchy struct {
	Country  string `json:"country"`
	State    string `json:"state"`
	City     string `json:"city"`
	District string `json:"district"`
}

type Garage struct {
	ID            int64             `json:"-"`
	GarageRef     string            `json:"garage_id"`
	GarageName    string            `json:"garage_name"`
	OwnerName     string            `json:"owner_name"`
	Email         string            `json:"email"`
	ContactNumber string            `json:"contact_number"`
	Location      string            `json:"location"`
	Hierarchy     LocationHierarchy `json:"location_hierarchy"`
	Coordinates   Coordinates       `json:"coordinates"`
	Rating        float64           `json:"rating"`
	TotalRatings  int               `json:"total_ratings"`
	IsActive      bool              `json:"is_active"`
	IsClaimed     bool              `json:"is_registered"`
	RegisteredAt  *time.Time        `json:"registration_date,omitempty"`
	LastLogin     *time.Time        `json:"last_login,omitempty"`
	CreatedBy     int64             `json:"-"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Credential
}

type Vehicle struct {
	Make         string    `json:"make,omitempty"`
	Model        string    `json:"model,omitempty"`
	Year         int       `json:"year,omitempty"`
	LicensePlate string    `json:"license_plate,omitempty"`
	Color        string    `json:"color,omitempty"`
	IsDefault    bool      `json:"is_default"`
	AddedAt      time.Time `json:"added_at"`
}

type NotificationPrefs struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

// User is the customer identity. Users carry no credential; they are
// found or created by phone number when a booking is placed.
type User struct {
	ID        int64             `json:"-"`
	UserRef   string            `json:"user_id"`
	Name      string            `json:"name"`
	Phone     string            `json:"phone"`
	Email     string            `json:"email,omitempty"`
	Vehicles  []Vehicle         `json:"vehicles"`
	Prefs     NotificationPrefs `json:"preferences"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DefaultVehicle returns the user's default vehicle, or the first one.
func (u *User) DefaultVehicle() *Vehicle {
	for i := range u.Vehicles {
		if u.Vehicles[i].IsDefault {
			return &u.Vehicles[i]
		}
	}
	if len(u.Vehicles) > 0 {
		return &u.Vehicles[0]
	}
	return nil
}

// NormalizeDefaultVehicle keeps the single-default invariant: at most
// one default, and the first vehicle becomes default when none is set.
func (u *User) NormalizeDefaultVehicle() {
	seen := false
	for i := range u.Vehicles {
		if u.Vehicles[i].IsDefault {
			if seen {
				u.Vehicles[i].IsDefault = false
			}
			seen = true
		}
	}
	if !seen && len(u.Vehicles) > 0 {
		u.Vehicles[0].IsDefault = true
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
