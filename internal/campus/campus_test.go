package campus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusbus/internal/domain"
	"campusbus/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory(0)
	ctx := context.Background()

	require.NoError(t, mem.UpsertRoute(ctx, &domain.Route{
		ID: "loop-a", Name: "Campus Loop A",
		Polyline: []domain.LatLng{{Lat: 37.4500, Lon: 126.6500}, {Lat: 37.4540, Lon: 126.6500}},
	}))
	require.NoError(t, mem.UpsertStop(ctx, &domain.Stop{
		ID: "stop-gate", RouteID: "loop-a", Name: "Main Gate", Lat: 37.4500, Lon: 126.6500, Seq: 1,
	}))
	require.NoError(t, mem.UpsertStop(ctx, &domain.Stop{
		ID: "stop-lib", RouteID: "loop-a", Name: "Library", Lat: 37.4520, Lon: 126.6500, Seq: 2,
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(mem, logger), mem
}

func TestGuideLookupByIDNameAndAlias(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetBuildings([]Building{
		{ID: "b6", Name: "Hall 6", Lat: 37.4520, Lon: 126.6500, StopID: "stop-lib", Aliases: []string{"library hall"}},
	})

	ctx := context.Background()
	for _, token := range []string{"b6", "Hall 6", "  LIBRARY HALL  "} {
		g, err := svc.Guide(ctx, token)
		require.NoError(t, err, "token %q", token)
		assert.Equal(t, "b6", g.BuildingID)
		assert.Equal(t, "stop-lib", g.RecommendedStop.ID)
	}

	_, err := svc.Guide(ctx, "nope")
	assert.ErrorIs(t, err, ErrBuildingNotFound)
}

func TestGuideWalkEstimate(t *testing.T) {
	svc, _ := newTestService(t)
	// 100 m north of the library stop
	svc.SetBuildings([]Building{
		{ID: "b1", Name: "Annex", Lat: 37.4520 + 100.0/111320.0, Lon: 126.6500, StopID: "stop-lib"},
	})

	g, err := svc.Guide(context.Background(), "b1")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, g.WalkDistanceM, 0.5)
	// 100 m at 1.35 m/s is about 1.2 minutes
	assert.InDelta(t, 1.2, g.EstimatedWalkMinutes, 0.1)
}

func TestGuideAliasesSortedAndDeduplicated(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetBuildings([]Building{
		{ID: "b1", Name: "Annex", Lat: 37.4520, Lon: 126.6500, StopID: "stop-lib",
			Aliases: []string{"annex east", "", "Annex", "annex east"}},
	})

	g, err := svc.Guide(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Annex", "annex east"}, g.Aliases)
}

func TestGuideFirstBuildingWinsSharedAlias(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetBuildings([]Building{
		{ID: "b1", Name: "North Hall", Lat: 37.4520, Lon: 126.6500, StopID: "stop-lib", Aliases: []string{"hall"}},
		{ID: "b2", Name: "South Hall", Lat: 37.4500, Lon: 126.6500, StopID: "stop-gate", Aliases: []string{"hall"}},
	})

	g, err := svc.Guide(context.Background(), "hall")
	require.NoError(t, err)
	assert.Equal(t, "b1", g.BuildingID)
}

func TestListFiltersAndSortsByName(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetBuildings([]Building{
		{ID: "b2", Name: "Zeta Lab", Lat: 37.4500, Lon: 126.6500, StopID: "stop-gate", Aliases: []string{"lab"}},
		{ID: "b1", Name: "Alpha Lab", Lat: 37.4520, Lon: 126.6500, StopID: "stop-lib", Aliases: []string{"lab"}},
		{ID: "b3", Name: "Dorm", Lat: 37.4500, Lon: 126.6500, StopID: "stop-gate"},
	})
	ctx := context.Background()

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alpha Lab", all[0].BuildingName)
	assert.Equal(t, "Dorm", all[1].BuildingName)
	assert.Equal(t, "Zeta Lab", all[2].BuildingName)

	labs, err := svc.List(ctx, "LAB")
	require.NoError(t, err)
	require.Len(t, labs, 2)
	assert.Equal(t, "Alpha Lab", labs[0].BuildingName)
	assert.Equal(t, "Zeta Lab", labs[1].BuildingName)
}

func TestListSkipsBuildingWithMissingStop(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetBuildings([]Building{
		{ID: "b1", Name: "Annex", Lat: 37.4520, Lon: 126.6500, StopID: "stop-lib"},
		{ID: "b2", Name: "Orphan", Lat: 37.4500, Lon: 126.6500, StopID: "stop-gone"},
	})

	guides, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, guides, 1)
	assert.Equal(t, "b1", guides[0].BuildingID)

	_, err = svc.Guide(context.Background(), "b2")
	assert.ErrorIs(t, err, ErrBuildingNotFound)
}

func TestDefaultBoardStop(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.DefaultBoardStop(context.Background())
	assert.ErrorIs(t, err, ErrNoBoardStop)

	svc.SetDefaultBoardStop("stop-gate")
	stop, err := svc.DefaultBoardStop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Main Gate", stop.Name)
}
