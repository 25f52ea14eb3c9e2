// Package store persists trips, photos, routes and route stops.
package store

import (
	"context"
	"errors"

	"github.com/jo-hoe/travelgallery/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence collaborator used by the ingestion pipeline and
// the route cascade. Update methods return the row as re-read after writing.
type Store interface {
	CreateTrip(ctx context.Context, trip *model.Trip) error
	GetTrip(ctx context.Context, id string) (*model.Trip, error)

	CreatePhoto(ctx context.Context, photo *model.Photo) error
	GetPhoto(ctx context.Context, id string) (*model.Photo, error)
	ListPhotosByTrip(ctx context.Context, tripID string) ([]model.Photo, error)
	UpdatePhotoLocation(ctx context.Context, id string, loc model.Enrichment) (*model.Photo, error)
	DeletePhoto(ctx context.Context, id string) error

	CreateRoute(ctx context.Context, route *model.Route) error
	GetRoute(ctx context.Context, id string) (*model.Route, error)
	UpdateRouteDerived(ctx context.Context, id string, derived model.RouteDerived) (*model.Route, error)
	// DeleteRoute removes a route together with its stops.
	DeleteRoute(ctx context.Context, id string) error

	CreateStop(ctx context.Context, stop *model.RouteStop) error
	GetStop(ctx context.Context, id string) (*model.RouteStop, error)
	UpdateStop(ctx context.Context, stop *model.RouteStop) (*model.RouteStop, error)
	DeleteStop(ctx context.Context, id string) error
	ListStops(ctx context.Context, routeID string) ([]model.RouteStop, error)
	CountStops(ctx context.Context, routeID string) (int, error)
	// SetStopOrder assigns order_index = position in ids for the given stops of a route.
	SetStopOrder(ctx context.Context, routeID string, ids []string) error

	Close() error
}
