// Package routes keeps a route's derived geometry in step with its stops.
// Every stop mutation is followed by a recompute through the directions
// gateway, and mutations of one route are serialized.
package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/jo-hoe/travelgallery/internal/gateway"
	"github.com/jo-hoe/travelgallery/internal/metrics"
	"github.com/jo-hoe/travelgallery/internal/model"
	"github.com/jo-hoe/travelgallery/internal/store"
	"github.com/jo-hoe/travelgallery/internal/util"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidOrder       = errors.New("order must list every stop of the route exactly once")
	ErrTitleRequired      = errors.New("title is required")
)

// RecomputeError reports that the mutation was stored but the derived
// geometry could not be refreshed. The route keeps its previous geometry when
// the stops did not change and has none otherwise.
type RecomputeError struct {
	RouteID string
	Err     error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("recompute route %s: %v", e.RouteID, e.Err)
}

func (e *RecomputeError) Unwrap() error { return e.Err }

// Directions is the hard-failing directions capability.
type Directions interface {
	GetDirections(ctx context.Context, req gateway.Request) (*gateway.Result, error)
}

// Geocoder is the soft-failing reverse geocoder used to enrich stops.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) *model.LocationInfo
}

// StopInput describes a new stop. A non-nil LocationName skips geocoding.
type StopInput struct {
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	LocationName *string `json:"location_name,omitempty"`
}

// StopPatch changes selected fields of a stop. Nil fields are left alone.
type StopPatch struct {
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	LocationName *string  `json:"location_name,omitempty"`
}

// RouteInput describes a new route with its initial stops.
type RouteInput struct {
	TripID      string      `json:"-"`
	Title       string      `json:"title"`
	Description *string     `json:"description,omitempty"`
	Profile     string      `json:"transport_profile,omitempty"`
	Stops       []StopInput `json:"stops,omitempty"`
}

// Service implements the route mutation cascade.
type Service struct {
	log            *slog.Logger
	store          store.Store
	directions     Directions
	geocoder       Geocoder
	metrics        *metrics.Metrics
	defaultProfile string
	locks          *keyedMutex
}

func New(log *slog.Logger, st store.Store, dir Directions, geo Geocoder, defaultProfile string, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		log:            log,
		store:          st,
		directions:     dir,
		geocoder:       geo,
		metrics:        m,
		defaultProfile: defaultProfile,
		locks:          newKeyedMutex(),
	}
}

// CreateRoute stores the route and its stops in input order, then computes
// its geometry. On a *RecomputeError the route is returned alongside it. When
// a stop cannot be stored the route is deleted again.
func (s *Service) CreateRoute(ctx context.Context, in RouteInput) (*model.Route, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	for i, st := range in.Stops {
		if err := validateStop(st); err != nil {
			return nil, fmt.Errorf("stop %d: %w", i, err)
		}
	}
	if _, err := s.store.GetTrip(ctx, in.TripID); err != nil {
		return nil, err
	}
	profile := strings.TrimSpace(in.Profile)
	if profile == "" {
		profile = s.defaultProfile
	}

	route := &model.Route{
		ID:          util.NewID(),
		TripID:      in.TripID,
		Title:       in.Title,
		Description: in.Description,
		Profile:     profile,
	}
	unlock := s.locks.Lock(route.ID)
	defer unlock()

	if err := s.store.CreateRoute(ctx, route); err != nil {
		return nil, err
	}
	for i, st := range in.Stops {
		if _, err := s.insertStop(ctx, route.ID, i, st); err != nil {
			if delErr := s.store.DeleteRoute(ctx, route.ID); delErr != nil {
				s.log.Warn("remove partially created route", "route_id", route.ID, "err", delErr)
			}
			return nil, fmt.Errorf("stop %d: %w", i, err)
		}
	}
	return s.recompute(ctx, route.ID, true)
}

// GetRoute returns the route with its stops in order.
func (s *Service) GetRoute(ctx context.Context, id string) (*model.Route, error) {
	route, err := s.store.GetRoute(ctx, id)
	if err != nil {
		return nil, err
	}
	stops, err := s.orderedStops(ctx, id)
	if err != nil {
		return nil, err
	}
	route.Stops = stops
	return route, nil
}

// CreateStop appends a stop and recomputes the route.
func (s *Service) CreateStop(ctx context.Context, routeID string, in StopInput) (*model.RouteStop, error) {
	if err := validateStop(in); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(routeID)
	defer unlock()

	if _, err := s.store.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	n, err := s.store.CountStops(ctx, routeID)
	if err != nil {
		return nil, err
	}
	stop, err := s.insertStop(ctx, routeID, n, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.recompute(ctx, routeID, true); err != nil {
		return stop, err
	}
	return stop, nil
}

// UpdateStop applies patch and recomputes the route. Moving a stop without
// naming it re-geocodes the merged position.
func (s *Service) UpdateStop(ctx context.Context, stopID string, patch StopPatch) (*model.RouteStop, error) {
	existing, err := s.store.GetStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	routeID := existing.RouteID
	unlock := s.locks.Lock(routeID)
	defer unlock()

	// Re-read under the lock; the stop may have changed meanwhile.
	stop, err := s.store.GetStop(ctx, stopID)
	if err != nil {
		return nil, err
	}

	moved := false
	if patch.Latitude != nil && *patch.Latitude != stop.Latitude {
		stop.Latitude, moved = *patch.Latitude, true
	}
	if patch.Longitude != nil && *patch.Longitude != stop.Longitude {
		stop.Longitude, moved = *patch.Longitude, true
	}
	if !stop.Coordinates().Valid() {
		return nil, ErrInvalidCoordinates
	}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, ErrTitleRequired
		}
		stop.Title = *patch.Title
	}
	if patch.Description != nil {
		stop.Description = patch.Description
	}
	switch {
	case patch.LocationName != nil:
		stop.LocationName = patch.LocationName
	case moved:
		stop.ApplyLocation(s.geocoder.ReverseGeocode(ctx, stop.Latitude, stop.Longitude))
	}

	updated, err := s.store.UpdateStop(ctx, stop)
	if err != nil {
		return nil, err
	}
	if _, err := s.recompute(ctx, routeID, moved); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteStop removes a stop, closes the gap in order_index and recomputes.
func (s *Service) DeleteStop(ctx context.Context, stopID string) error {
	existing, err := s.store.GetStop(ctx, stopID)
	if err != nil {
		return err
	}
	routeID := existing.RouteID
	unlock := s.locks.Lock(routeID)
	defer unlock()

	if err := s.store.DeleteStop(ctx, stopID); err != nil {
		return err
	}
	remaining, err := s.orderedStops(ctx, routeID)
	if err != nil {
		return err
	}
	if err := s.store.SetStopOrder(ctx, routeID, stopIDs(remaining)); err != nil {
		return err
	}
	_, err = s.recompute(ctx, routeID, true)
	return err
}

// ReorderStops sets order_index to each stop's position in ids and recomputes.
func (s *Service) ReorderStops(ctx context.Context, routeID string, ids []string) (*model.Route, error) {
	unlock := s.locks.Lock(routeID)
	defer unlock()

	current, err := s.orderedStops(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if !samePermutation(stopIDs(current), ids) {
		return nil, ErrInvalidOrder
	}
	changed := !slices.Equal(stopIDs(current), ids)
	if changed {
		if err := s.store.SetStopOrder(ctx, routeID, ids); err != nil {
			return nil, err
		}
	}
	return s.recompute(ctx, routeID, changed)
}

// Recompute refreshes the derived geometry of a route from its stops.
func (s *Service) Recompute(ctx context.Context, routeID string) (*model.Route, error) {
	unlock := s.locks.Lock(routeID)
	defer unlock()
	return s.recompute(ctx, routeID, false)
}

// recompute must be called with the route lock held. When stopsChanged is set
// the derived fields are cleared before directions are requested, so a failure
// leaves no geometry that disagrees with the stops. Otherwise the stored
// geometry still matches and survives a failed request.
func (s *Service) recompute(ctx context.Context, routeID string, stopsChanged bool) (*model.Route, error) {
	log := s.log.With("route_id", routeID)
	route, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	stops, err := s.orderedStops(ctx, routeID)
	if err != nil {
		return nil, err
	}

	if stopsChanged || len(stops) < 2 {
		if route, err = s.store.UpdateRouteDerived(ctx, routeID, model.RouteDerived{}); err != nil {
			return nil, err
		}
	}
	route.Stops = stops
	if len(stops) < 2 {
		s.metrics.Recompute(metrics.ResultCleared)
		log.Debug("route has fewer than two stops, geometry cleared", "stops", len(stops))
		return route, nil
	}

	coords := make([]model.Coordinates, len(stops))
	for i, st := range stops {
		coords[i] = st.Coordinates()
	}
	profile := route.Profile
	if profile == "" {
		profile = s.defaultProfile
	}
	res, err := s.directions.GetDirections(ctx, gateway.Request{
		Coordinates: coords,
		Profile:     profile,
		Geometry:    true,
	})
	if err != nil {
		s.metrics.Recompute(metrics.ResultError)
		log.Warn("recompute failed", "stops", len(stops), "err", err)
		return route, &RecomputeError{RouteID: routeID, Err: err}
	}

	best := res.Routes[0]
	derived := model.RouteDerived{
		TotalDistance: &best.Summary.Distance,
		TotalDuration: &best.Summary.Duration,
	}
	if best.Geometry != "" {
		derived.Geometry = &best.Geometry
	}
	updated, err := s.store.UpdateRouteDerived(ctx, routeID, derived)
	if err != nil {
		return nil, err
	}
	updated.Stops = stops
	s.metrics.Recompute(metrics.ResultOK)
	log.Debug("route recomputed", "stops", len(stops), "distance_m", best.Summary.Distance)
	return updated, nil
}

func (s *Service) insertStop(ctx context.Context, routeID string, index int, in StopInput) (*model.RouteStop, error) {
	stop := &model.RouteStop{
		ID:          util.NewID(),
		RouteID:     routeID,
		Title:       in.Title,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		OrderIndex:  index,
	}
	if in.LocationName != nil {
		stop.LocationName = in.LocationName
	} else {
		stop.ApplyLocation(s.geocoder.ReverseGeocode(ctx, in.Latitude, in.Longitude))
	}
	if err := s.store.CreateStop(ctx, stop); err != nil {
		return nil, err
	}
	return stop, nil
}

// orderedStops sorts by order_index regardless of the store's ordering.
// Gaps and duplicates are kept as they are.
func (s *Service) orderedStops(ctx context.Context, routeID string) ([]model.RouteStop, error) {
	stops, err := s.store.ListStops(ctx, routeID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].OrderIndex < stops[j].OrderIndex })
	return stops, nil
}

func validateStop(in StopInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if !(model.Coordinates{Latitude: in.Latitude, Longitude: in.Longitude}).Valid() {
		return ErrInvalidCoordinates
	}
	return nil
}

func stopIDs(stops []model.RouteStop) []string {
	ids := make([]string, len(stops))
	for i, st := range stops {
		ids[i] = st.ID
	}
	return ids
}

func samePermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}
