// Package routegeom builds and caches derived geometry for route
// polylines: per-segment lengths, cumulative along-route distances,
// map-matching of raw GPS fixes, and loop-aware distance queries.
package routegeom

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"

	"campusbus/internal/domain"
	"campusbus/internal/geo"
)

// ErrInvalidGeometry marks a polyline too short to form a path.
var ErrInvalidGeometry = errors.New("route polyline needs at least 2 points")

// Geometry is the derived record for one route's polyline.
// Cum[0] = 0 and Cum[i] = Cum[i-1] + SegLens[i-1], so Cum[len-1]
// equals TotalLenM.
type Geometry struct {
	RouteID     string
	Points      []domain.LatLng
	SegLens     []float64
	Cum         []float64
	TotalLenM   float64
	LoopCloseM  float64 // last vertex back to first; used only when Loop
	Loop        bool
	Fingerprint string
}

// Match is the result of projecting a coordinate onto the polyline.
type Match struct {
	Segment  int
	Fraction float64
	LateralM float64
}

// Build derives geometry for a route. Fails when the polyline has
// fewer than two points.
func Build(route *domain.Route) (*Geometry, error) {
	if route == nil || len(route.Polyline) < 2 {
		return nil, ErrInvalidGeometry
	}

	pts := make([]domain.LatLng, len(route.Polyline))
	copy(pts, route.Polyline)

	segLens := make([]float64, len(pts)-1)
	cum := make([]float64, len(pts))
	for i := 0; i < len(pts)-1; i++ {
		segLens[i] = geo.HaversineM(pts[i].Lat, pts[i].Lon, pts[i+1].Lat, pts[i+1].Lon)
		cum[i+1] = cum[i] + segLens[i]
	}

	last := pts[len(pts)-1]
	return &Geometry{
		RouteID:     route.ID,
		Points:      pts,
		SegLens:     segLens,
		Cum:         cum,
		TotalLenM:   cum[len(cum)-1],
		LoopCloseM:  geo.HaversineM(last.Lat, last.Lon, pts[0].Lat, pts[0].Lon),
		Loop:        route.Loop,
		Fingerprint: Fingerprint(route.Polyline),
	}, nil
}

// Fingerprint hashes polyline content so any edit to a route's
// geometry produces a different cache key.
func Fingerprint(points []domain.LatLng) string {
	h := sha256.New()
	var buf [16]byte
	for _, p := range points {
		binary.BigEndian.PutUint64(buf[:8], math.Float64bits(p.Lat))
		binary.BigEndian.PutUint64(buf[8:], math.Float64bits(p.Lon))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// MapMatch projects a coordinate onto the closest polyline segment.
// Every segment is tried; ties go to the lowest index.
func (g *Geometry) MapMatch(lat, lon float64) Match {
	best := Match{Segment: 0, LateralM: math.Inf(1)}
	for i := 0; i < len(g.Points)-1; i++ {
		a, b := g.Points[i], g.Points[i+1]
		t, lateral, _ := geo.ProjectOnSegment(a.Lat, a.Lon, b.Lat, b.Lon, lat, lon)
		if lateral < best.LateralM {
			best = Match{Segment: i, Fraction: t, LateralM: lateral}
		}
	}
	return best
}

// AlongRoute returns the along-route distance s from the route start
// to the projection of the given coordinate, plus the lateral offset
// of the fix from the path.
func (g *Geometry) AlongRoute(lat, lon float64) (s, lateralM float64) {
	m := g.MapMatch(lat, lon)
	s = g.Cum[m.Segment] + m.Fraction*g.SegLens[m.Segment]
	return s, m.LateralM
}

// DistanceBetween returns the forward along-route distance from
// position currS to targetS. On loop routes a target behind the
// vehicle wraps through the closure segment. On non-loop routes a
// passed target reports 0 with passed=true; the caller decides how to
// present that.
func (g *Geometry) DistanceBetween(currS, targetS float64) (meters float64, passed bool) {
	if targetS >= currS {
		return targetS - currS, false
	}
	if g.Loop {
		return (g.TotalLenM - currS) + g.LoopCloseM + targetS, false
	}
	return 0, true
}
