// Package store defines the persistence interfaces the engine reads
// from, with an in-memory implementation used by default and an
// optional Postgres-backed one.
package store

import (
	"context"
	"errors"

	"campusbus/internal/domain"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// PositionStore records telemetry. Append must make the sample
// visible to Latest/Since before it returns.
type PositionStore interface {
	Append(ctx context.Context, p domain.Position) error
	// Latest returns the sample with the maximum timestamp for the
	// vehicle, or ErrNotFound when none was ever recorded.
	Latest(ctx context.Context, vehicleID string) (*domain.Position, error)
	// Since returns samples with ts >= sinceTS, ordered ascending by
	// timestamp, or descending when desc is set.
	Since(ctx context.Context, vehicleID string, sinceTS int64, desc bool) ([]domain.Position, error)
}

// RouteStore serves route and stop geometry.
type RouteStore interface {
	GetRoute(ctx context.Context, routeID string) (*domain.Route, error)
	GetStop(ctx context.Context, stopID string) (*domain.Stop, error)
	ListRoutes(ctx context.Context) ([]*domain.Route, error)
	ListStops(ctx context.Context, routeID string) ([]*domain.Stop, error)
	UpsertRoute(ctx context.Context, r *domain.Route) error
	UpsertStop(ctx context.Context, s *domain.Stop) error
	// SetPolyline replaces a route's geometry. Callers must invalidate
	// derived geometry caches afterwards.
	SetPolyline(ctx context.Context, routeID string, polyline []domain.LatLng, loop bool) error
}

// VehicleStore is the shuttle registry.
type VehicleStore interface {
	GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
	ListVehicles(ctx context.Context) ([]*domain.Vehicle, error)
	UpsertVehicle(ctx context.Context, v *domain.Vehicle) error
	// Touch records the last time telemetry arrived for the vehicle.
	Touch(ctx context.Context, vehicleID string, ts int64) error
}
