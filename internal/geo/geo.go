// Package geo holds the small amount of spherical and planar geometry
// the rest of the system builds on: great-circle distance and
// short-range segment projection in a local tangent plane.
package geo

import "math"

const earthRadiusM = 6371000.0

// HaversineM returns the great-circle distance between two WGS84
// coordinates in meters.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1.0, math.Sqrt(h)))
}

// MetersPerDegree returns the approximate meters spanned by one degree
// of latitude and longitude at the given latitude.
func MetersPerDegree(latDeg float64) (mPerDegLat, mPerDegLon float64) {
	mPerDegLat = 111320.0
	mPerDegLon = 111320.0 * math.Cos(latDeg*math.Pi/180)
	return
}

// toXY flattens a coordinate into meters east/north of a reference
// point. Only valid for short ranges around the reference.
func toXY(lat, lon, refLat, refLon float64) (x, y float64) {
	mLat, mLon := MetersPerDegree(refLat)
	x = (lon - refLon) * mLon
	y = (lat - refLat) * mLat
	return
}

// ProjectOnSegment projects point p onto the segment a->b using a
// local tangent plane centered on the segment midpoint. It returns the
// projection parameter clamped to [0,1], the perpendicular distance
// from p to the projected point in meters, and the segment length in
// meters (measured great-circle, not planar).
func ProjectOnSegment(aLat, aLon, bLat, bLon, pLat, pLon float64) (t, lateralM, segLenM float64) {
	refLat := (aLat + bLat) * 0.5
	refLon := (aLon + bLon) * 0.5
	ax, ay := toXY(aLat, aLon, refLat, refLon)
	bx, by := toXY(bLat, bLon, refLat, refLon)
	px, py := toXY(pLat, pLon, refLat, refLon)

	ex, ey := bx-ax, by-ay
	vx, vy := px-ax, py-ay
	denom := ex*ex + ey*ey
	if denom > 0 {
		t = (vx*ex + vy*ey) / denom
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	projX, projY := ax+t*ex, ay+t*ey
	dx, dy := px-projX, py-projY
	lateralM = math.Sqrt(dx*dx + dy*dy)

	segLenM = HaversineM(aLat, aLon, bLat, bLon)
	return
}
