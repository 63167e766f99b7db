package routegeom

import (
	"sync"

	"campusbus/internal/domain"
)

// Cache keeps one derived Geometry per route, keyed by route id and
// validated against the polyline fingerprint so edited geometry is
// never reused.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Geometry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Geometry)}
}

// Get returns the cached geometry for the route, rebuilding it when
// absent or when the route's polyline changed since the entry was
// built.
func (c *Cache) Get(r *domain.Route) (*Geometry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r == nil {
		return nil, ErrInvalidGeometry
	}
	if g, ok := c.entries[r.ID]; ok && g.Fingerprint == Fingerprint(r.Polyline) {
		return g, nil
	}

	g, err := Build(r)
	if err != nil {
		return nil, err
	}
	c.entries[r.ID] = g
	return g, nil
}

// Invalidate drops the cached entry for a route id.
func (c *Cache) Invalidate(routeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, routeID)
}

// Len reports the number of cached geometries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
