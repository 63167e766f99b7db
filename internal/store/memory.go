package store

import (
	"context"
	"sort"
	"sync"

	"campusbus/internal/domain"
)

// Memory is the default store: all entities in process memory behind a
// single RWMutex, copy-on-read so callers never share slices with the
// store. Positions are kept per vehicle sorted by timestamp.
type Memory struct {
	mu        sync.RWMutex
	positions map[string][]domain.Position
	routes    map[string]*domain.Route
	stops     map[string]*domain.Stop
	vehicles  map[string]*domain.Vehicle

	maxPositionsPerVehicle int
}

// NewMemory creates an empty in-memory store. maxPositions bounds the
// per-vehicle history; oldest samples are dropped past it. Zero means
// unbounded.
func NewMemory(maxPositions int) *Memory {
	return &Memory{
		positions:              make(map[string][]domain.Position),
		routes:                 make(map[string]*domain.Route),
		stops:                  make(map[string]*domain.Stop),
		vehicles:               make(map[string]*domain.Vehicle),
		maxPositionsPerVehicle: maxPositions,
	}
}

func (m *Memory) Append(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.positions[p.VehicleID]
	list = append(list, p)
	// telemetry almost always arrives in order; fix up when it doesn't
	if n := len(list); n > 1 && list[n-1].TS < list[n-2].TS {
		sort.SliceStable(list, func(i, j int) bool { return list[i].TS < list[j].TS })
	}
	if m.maxPositionsPerVehicle > 0 && len(list) > m.maxPositionsPerVehicle {
		list = list[len(list)-m.maxPositionsPerVehicle:]
	}
	m.positions[p.VehicleID] = list
	return nil
}

func (m *Memory) Latest(_ context.Context, vehicleID string) (*domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.positions[vehicleID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	p := list[len(list)-1]
	return &p, nil
}

func (m *Memory) Since(_ context.Context, vehicleID string, sinceTS int64, desc bool) ([]domain.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.positions[vehicleID]
	// first index with ts >= sinceTS
	i := sort.Search(len(list), func(i int) bool { return list[i].TS >= sinceTS })
	tail := list[i:]

	result := make([]domain.Position, len(tail))
	if desc {
		for j, p := range tail {
			result[len(tail)-1-j] = p
		}
	} else {
		copy(result, tail)
	}
	return result, nil
}

func (m *Memory) GetRoute(_ context.Context, routeID string) (*domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.routes[routeID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRoute(r), nil
}

func (m *Memory) GetStop(_ context.Context, stopID string) (*domain.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stops[stopID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *s
	return &copy, nil
}

func (m *Memory) ListRoutes(_ context.Context) ([]*domain.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Route, 0, len(m.routes))
	for _, r := range m.routes {
		result = append(result, copyRoute(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) ListStops(_ context.Context, routeID string) ([]*domain.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*domain.Stop
	for _, s := range m.stops {
		if s.RouteID == routeID {
			copy := *s
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (m *Memory) UpsertRoute(_ context.Context, r *domain.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[r.ID] = copyRoute(r)
	return nil
}

func (m *Memory) UpsertStop(_ context.Context, s *domain.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *s
	m.stops[s.ID] = &copy
	return nil
}

func (m *Memory) SetPolyline(_ context.Context, routeID string, polyline []domain.LatLng, loop bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.routes[routeID]
	if !ok {
		return ErrNotFound
	}
	r.Polyline = make([]domain.LatLng, len(polyline))
	copy(r.Polyline, polyline)
	r.Loop = loop
	return nil
}

func (m *Memory) GetVehicle(_ context.Context, vehicleID string) (*domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vehicles[vehicleID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *v
	return &copy, nil
}

func (m *Memory) ListVehicles(_ context.Context) ([]*domain.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		copy := *v
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertVehicle(_ context.Context, v *domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *v
	m.vehicles[v.ID] = &copy
	return nil
}

func (m *Memory) Touch(_ context.Context, vehicleID string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[vehicleID]
	if !ok {
		return ErrNotFound
	}
	if ts > v.LastSeenTS {
		v.LastSeenTS = ts
	}
	return nil
}

func copyRoute(r *domain.Route) *domain.Route {
	c := *r
	c.Polyline = make([]domain.LatLng, len(r.Polyline))
	copy(c.Polyline, r.Polyline)
	return &c
}
