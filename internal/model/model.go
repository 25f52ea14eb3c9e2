// Package model holds the persisted gallery entities shared by the store,
// the ingestion pipeline and the route cascade.
package model

import "time"

// Coordinates is a WGS84 point. Altitude is optional.
type Coordinates struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// Valid reports whether the point lies inside WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// LocationInfo is the result of one reverse-geocoding lookup. It is always
// applied to a photo or stop as a whole.
type LocationInfo struct {
	LocationName string `json:"location_name"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	Landmark     string `json:"landmark"`
}

// Enrichment is the nullable, persisted form of LocationInfo.
type Enrichment struct {
	LocationName *string `json:"location_name,omitempty"`
	City         *string `json:"city,omitempty"`
	State        *string `json:"state,omitempty"`
	Country      *string `json:"country,omitempty"`
	CountryCode  *string `json:"country_code,omitempty"`
	Landmark     *string `json:"landmark,omitempty"`
}

// ApplyLocation replaces every enrichment field from info. A nil info clears
// them all, so a failed lookup never leaves a partially filled set.
func (e *Enrichment) ApplyLocation(info *LocationInfo) {
	if info == nil {
		e.ClearLocation()
		return
	}
	e.LocationName = optional(info.LocationName)
	e.City = optional(info.City)
	e.State = optional(info.State)
	e.Country = optional(info.Country)
	e.CountryCode = optional(info.CountryCode)
	e.Landmark = optional(info.Landmark)
}

// ClearLocation empties all enrichment fields.
func (e *Enrichment) ClearLocation() {
	*e = Enrichment{}
}

// HasLocation reports whether any enrichment field is set.
func (e Enrichment) HasLocation() bool {
	return e.LocationName != nil || e.City != nil || e.State != nil ||
		e.Country != nil || e.CountryCode != nil || e.Landmark != nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Trip groups photos and routes.
type Trip struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Camera holds capture device and exposure metadata.
type Camera struct {
	Make         *string  `json:"camera_make,omitempty"`
	Model        *string  `json:"camera_model,omitempty"`
	Lens         *string  `json:"lens_model,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	Aperture     *float64 `json:"aperture,omitempty"`
	ExposureTime *string  `json:"exposure_time,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
}

// Photo is one ingested image with its derived files.
type Photo struct {
	ID               string     `json:"id"`
	TripID           string     `json:"trip_id"`
	Filename         string     `json:"filename"`
	ThumbnailName    string     `json:"thumbnail_filename"`
	OriginalFilename string     `json:"original_filename"`
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Altitude         *float64   `json:"altitude,omitempty"`
	TakenAt          *time.Time `json:"taken_at,omitempty"`
	Camera
	Enrichment
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	FileSize  int64     `json:"file_size"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Coordinates returns the photo position, if any.
func (p Photo) Coordinates() (Coordinates, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: *p.Latitude, Longitude: *p.Longitude, Altitude: p.Altitude}, true
}

// Route is an ordered list of stops with cached directions output.
// Geometry, TotalDistance and TotalDuration are derived from the stop set
// and are nil whenever the route has fewer than two stops or has not been
// recomputed since the last stop change.
type Route struct {
	ID            string      `json:"id"`
	TripID        string      `json:"trip_id"`
	Title         string      `json:"title"`
	Description   *string     `json:"description,omitempty"`
	Profile       string      `json:"transport_profile"`
	Geometry      *string     `json:"geometry"`
	TotalDistance *float64    `json:"total_distance"`
	TotalDuration *float64    `json:"total_duration"`
	Stops         []RouteStop `json:"stops,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// RouteStop is a waypoint of a route. OrderIndex is zero-based and dense.
type RouteStop struct {
	ID          string  `json:"id"`
	RouteID     string  `json:"route_id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	OrderIndex  int     `json:"order_index"`
	Enrichment
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Coordinates returns the stop position.
func (s RouteStop) Coordinates() Coordinates {
	return Coordinates{Latitude: s.Latitude, Longitude: s.Longitude}
}

// RouteDerived carries the directions output persisted on a route.
type RouteDerived struct {
	Geometry      *string
	TotalDistance *float64
	TotalDuration *float64
}
