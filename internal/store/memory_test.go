package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusbus/internal/domain"
)

func pos(vehicleID string, ts int64, lat, lon float64) domain.Position {
	return domain.Position{VehicleID: vehicleID, TS: ts, Lat: lat, Lon: lon}
}

func TestMemoryLatestAbsent(t *testing.T) {
	m := NewMemory(0)
	_, err := m.Latest(context.Background(), "shuttle-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAppendAndLatest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	require.NoError(t, m.Append(ctx, pos("shuttle-1", 100, 37.45, 126.65)))
	require.NoError(t, m.Append(ctx, pos("shuttle-1", 110, 37.46, 126.65)))

	latest, err := m.Latest(ctx, "shuttle-1")
	require.NoError(t, err)
	assert.Equal(t, int64(110), latest.TS)
	assert.Equal(t, 37.46, latest.Lat)
}

func TestMemoryAppendOutOfOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	require.NoError(t, m.Append(ctx, pos("shuttle-1", 110, 1, 1)))
	require.NoError(t, m.Append(ctx, pos("shuttle-1", 100, 2, 2)))

	latest, err := m.Latest(ctx, "shuttle-1")
	require.NoError(t, err)
	assert.Equal(t, int64(110), latest.TS)
}

func TestMemorySinceOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	for _, ts := range []int64{100, 110, 120, 130} {
		require.NoError(t, m.Append(ctx, pos("shuttle-1", ts, 0, 0)))
	}

	asc, err := m.Since(ctx, "shuttle-1", 110, false)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, int64(110), asc[0].TS)
	assert.Equal(t, int64(130), asc[2].TS)

	desc, err := m.Since(ctx, "shuttle-1", 110, true)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, int64(130), desc[0].TS)
	assert.Equal(t, int64(110), desc[2].TS)
}

func TestMemoryPositionCap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)
	for _, ts := range []int64{1, 2, 3, 4, 5} {
		require.NoError(t, m.Append(ctx, pos("shuttle-1", ts, 0, 0)))
	}

	all, err := m.Since(ctx, "shuttle-1", 0, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].TS)
}

func TestMemoryRoutesAndStops(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	r := &domain.Route{ID: "r1", Name: "loop", Polyline: []domain.LatLng{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}, Loop: true}
	require.NoError(t, m.UpsertRoute(ctx, r))
	require.NoError(t, m.UpsertStop(ctx, &domain.Stop{ID: "s2", RouteID: "r1", Seq: 2}))
	require.NoError(t, m.UpsertStop(ctx, &domain.Stop{ID: "s1", RouteID: "r1", Seq: 1}))

	got, err := m.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "loop", got.Name)

	// mutating the returned copy must not affect the store
	got.Polyline[0].Lat = 99
	again, err := m.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Polyline[0].Lat)

	stops, err := m.ListStops(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stops, 2)
	assert.Equal(t, "s1", stops[0].ID)
}

func TestMemorySetPolyline(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	require.NoError(t, m.UpsertRoute(ctx, &domain.Route{ID: "r1", Polyline: []domain.LatLng{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}}))

	newLine := []domain.LatLng{{Lat: 3, Lon: 3}, {Lat: 4, Lon: 4}, {Lat: 5, Lon: 5}}
	require.NoError(t, m.SetPolyline(ctx, "r1", newLine, true))

	r, err := m.GetRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, r.Polyline, 3)
	assert.True(t, r.Loop)

	assert.ErrorIs(t, m.SetPolyline(ctx, "missing", newLine, false), ErrNotFound)
}

func TestMemoryVehicleTouch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	require.NoError(t, m.UpsertVehicle(ctx, &domain.Vehicle{ID: "shuttle-1", RouteID: "r1"}))

	require.NoError(t, m.Touch(ctx, "shuttle-1", 500))
	require.NoError(t, m.Touch(ctx, "shuttle-1", 400)) // older ts must not move the clock back

	v, err := m.GetVehicle(ctx, "shuttle-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), v.LastSeenTS)
}
