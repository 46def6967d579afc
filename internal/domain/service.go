package domain

import "time"

// Service is one service line offered by a garage. The name is unique
// per garage, case-insensitively.
type Service struct {
	ID          int64           `json:"-"`
	ServiceRef  string          `json:"service_id"`
	GarageID    int64           `json:"-"`
	Name        string          `json:"service_name"`
	Description string          `json:"description,omitempty"`
	Category    ServiceCategory `json:"category"`
	Price       Cost            `json:"price"`
	Duration    string          `json:"estimated_duration,omitempty"`
	IsActive    bool            `json:"is_active"`
	AddedBy     ActorRole       `json:"added_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
