package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineZeroForSamePoint(t *testing.T) {
	assert.Equal(t, 0.0, HaversineM(37.45, 126.65, 37.45, 126.65))
}

func TestHaversineKnownDistance(t *testing.T) {
	// One degree of latitude is very close to 111.2 km.
	d := HaversineM(37.0, 126.65, 38.0, 126.65)
	assert.InDelta(t, 111195, d, 200)
}

func TestHaversineShortDistance(t *testing.T) {
	// ~100m north at mid latitudes
	d := HaversineM(37.450000, 126.650000, 37.450899, 126.650000)
	assert.InDelta(t, 100, d, 1)
}

func TestProjectOnSegmentMidpoint(t *testing.T) {
	// p sits exactly on the segment midpoint
	aLat, aLon := 37.4500, 126.6500
	bLat, bLon := 37.4500, 126.6520
	pLat, pLon := 37.4500, 126.6510

	tFrac, lateral, segLen := ProjectOnSegment(aLat, aLon, bLat, bLon, pLat, pLon)
	assert.InDelta(t, 0.5, tFrac, 0.001)
	assert.InDelta(t, 0.0, lateral, 0.5)
	assert.Greater(t, segLen, 0.0)
}

func TestProjectOnSegmentClampsBeyondEnds(t *testing.T) {
	aLat, aLon := 37.4500, 126.6500
	bLat, bLon := 37.4500, 126.6510

	// west of a
	tFrac, _, _ := ProjectOnSegment(aLat, aLon, bLat, bLon, 37.4500, 126.6490)
	assert.Equal(t, 0.0, tFrac)

	// east of b
	tFrac, _, _ = ProjectOnSegment(aLat, aLon, bLat, bLon, 37.4500, 126.6520)
	assert.Equal(t, 1.0, tFrac)
}

func TestProjectOnSegmentLateralOffset(t *testing.T) {
	// Segment runs east-west; point is ~50m north of its midpoint.
	aLat, aLon := 37.4500, 126.6500
	bLat, bLon := 37.4500, 126.6520
	pLat := 37.4500 + 50.0/111320.0

	tFrac, lateral, _ := ProjectOnSegment(aLat, aLon, bLat, bLon, pLat, 126.6510)
	assert.InDelta(t, 0.5, tFrac, 0.001)
	assert.InDelta(t, 50, lateral, 1)
}

func TestMetersPerDegreeShrinksWithLatitude(t *testing.T) {
	_, lonEquator := MetersPerDegree(0)
	_, lonMid := MetersPerDegree(60)
	assert.InDelta(t, 111320.0, lonEquator, 0.01)
	assert.InDelta(t, 55660.0, lonMid, 10)
}
