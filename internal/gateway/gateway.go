package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jo-hoe/travelgallery/internal/metrics"
	"github.com/jo-hoe/travelgallery/internal/model"
)

var (
	ErrNotConfigured     = errors.New("directions service not configured")
	ErrTooFewCoordinates = errors.New("at least two coordinates are required")
	ErrNoRoute           = errors.New("no route found")
)

const (
	ServiceGeocoding  = "geocoding"
	ServiceDirections = "directions"
)

// Geocoder resolves coordinates into a place description. Implementations
// return an error on any transport or parse failure; the Gateway turns that
// into a nil result.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*model.LocationInfo, error)
}

// Directions computes a route through an ordered list of coordinates.
type Directions interface {
	GetDirections(ctx context.Context, req Request) (*Result, error)
}

// Request is a directions query. Coordinates are visited in slice order.
type Request struct {
	Coordinates  []model.Coordinates
	Profile      string
	Geometry     bool
	Instructions bool
}

// Result mirrors the provider response shape.
type Result struct {
	Routes []Route `json:"routes"`
}

type Route struct {
	Summary  Summary   `json:"summary"`
	Geometry string    `json:"geometry,omitempty"` // encoded polyline
	Segments []Segment `json:"segments,omitempty"`
}

// Summary holds meters and seconds.
type Summary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

type Segment struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Steps    []Step  `json:"steps,omitempty"`
}

type Step struct {
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Instruction string  `json:"instruction"`
	Name        string  `json:"name"`
}

// Options configures the per-service minimum delay between call starts.
type Options struct {
	GeocodeDelay    time.Duration
	DirectionsDelay time.Duration
}

// Gateway is the single serialization point in front of the external
// services. Each service has its own throttle so geocoding never waits on
// directions and vice versa.
type Gateway struct {
	log         *slog.Logger
	geocoder    Geocoder
	directions  Directions
	geoThrottle *Throttle
	dirThrottle *Throttle
	metrics     *metrics.Metrics
}

// New wires the providers. A nil geocoder disables enrichment; a nil
// directions provider makes GetDirections fail with ErrNotConfigured.
func New(log *slog.Logger, geocoder Geocoder, directions Directions, opts Options, m *metrics.Metrics) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		log:         log,
		geocoder:    geocoder,
		directions:  directions,
		geoThrottle: NewThrottle(opts.GeocodeDelay),
		dirThrottle: NewThrottle(opts.DirectionsDelay),
		metrics:     m,
	}
}

// Close stops the throttle workers. Pending callers receive ErrThrottleClosed.
func (g *Gateway) Close() {
	g.geoThrottle.Close()
	g.dirThrottle.Close()
}

// ReverseGeocode returns the place at (lat, lon), or nil on any failure.
// It never returns an error.
func (g *Gateway) ReverseGeocode(ctx context.Context, lat, lon float64) *model.LocationInfo {
	if g.geocoder == nil {
		return nil
	}
	if !(model.Coordinates{Latitude: lat, Longitude: lon}).Valid() {
		g.log.Warn("reverse geocode skipped, invalid coordinates", "lat", lat, "lon", lon)
		return nil
	}
	if err := g.wait(ctx, g.geoThrottle, ServiceGeocoding); err != nil {
		g.log.Warn("reverse geocode not attempted", "err", err)
		return nil
	}
	info, err := g.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		g.metrics.GatewayCall(ServiceGeocoding, metrics.ResultError)
		g.log.Warn("reverse geocode failed", "lat", lat, "lon", lon, "err", err)
		return nil
	}
	g.metrics.GatewayCall(ServiceGeocoding, metrics.ResultOK)
	return info
}

// BulkReverseGeocode geocodes each coordinate in order, one at a time. The
// result has one entry per input; failed lookups are nil.
func (g *Gateway) BulkReverseGeocode(ctx context.Context, coords []model.Coordinates) []*model.LocationInfo {
	out := make([]*model.LocationInfo, len(coords))
	for i, c := range coords {
		out[i] = g.ReverseGeocode(ctx, c.Latitude, c.Longitude)
	}
	return out
}

// GetDirections forwards req to the directions provider. Errors propagate.
func (g *Gateway) GetDirections(ctx context.Context, req Request) (*Result, error) {
	if g.directions == nil {
		return nil, ErrNotConfigured
	}
	if len(req.Coordinates) < 2 {
		return nil, ErrTooFewCoordinates
	}
	if err := g.wait(ctx, g.dirThrottle, ServiceDirections); err != nil {
		return nil, err
	}
	res, err := g.directions.GetDirections(ctx, req)
	if err != nil {
		g.metrics.GatewayCall(ServiceDirections, metrics.ResultError)
		return nil, err
	}
	if res == nil || len(res.Routes) == 0 {
		g.metrics.GatewayCall(ServiceDirections, metrics.ResultError)
		return nil, ErrNoRoute
	}
	g.metrics.GatewayCall(ServiceDirections, metrics.ResultOK)
	return res, nil
}

func (g *Gateway) wait(ctx context.Context, t *Throttle, service string) error {
	start := time.Now()
	err := t.Wait(ctx)
	g.metrics.ThrottleWait(service, time.Since(start).Seconds())
	return err
}
