package catalog

import (
	"errors"
	"time"

	"attendance/internal/geofence"
)

// DefaultRadiusMeters applies when a location is created without a radius.
const DefaultRadiusMeters = 100

var (
	// ErrNotFound covers unknown as well as inactive entries.
	ErrNotFound = errors.New("not found")
	// ErrCodeTaken is returned when a course or credential code already exists.
	ErrCodeTaken = errors.New("code already exists")
	// ErrInvalid is returned for admin input that fails validation.
	ErrInvalid = errors.New("invalid input")
)

// Course groups attendance records.
type Course struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Credential is a scannable QR token. Its code never changes once issued.
type Credential struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	LocationID *string   `json:"location_id,omitempty"`
	ImageURL   *string   `json:"image_url,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Location is an organization site with a circular geofence.
type Location struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
	Active       bool    `json:"active"`
}

// Region converts the location to a geofence region.
func (l Location) Region() geofence.Region {
	return geofence.Region{
		ID:           l.ID,
		Name:         l.Name,
		Center:       geofence.Point{Latitude: l.Latitude, Longitude: l.Longitude},
		RadiusMeters: l.RadiusMeters,
	}
}

// CredentialIssued is published after a credential is created so its
// printable image can be rendered out of band.
type CredentialIssued struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// MessageCredentialIssued is the queue message type for CredentialIssued.
const MessageCredentialIssued = "credential.issued"
