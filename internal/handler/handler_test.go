package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusbus/internal/auth"
	"campusbus/internal/campus"
	"campusbus/internal/domain"
	"campusbus/internal/eta"
	"campusbus/internal/monitor"
	"campusbus/internal/routegeom"
	"campusbus/internal/store"
)

type recordingSink struct {
	topics []string
}

func (r *recordingSink) Publish(topic string, _ any) {
	r.topics = append(r.topics, topic)
}

type fixedSpeed struct{ mps float64 }

func (f fixedSpeed) EffectiveSpeed(context.Context, string, int64) float64 { return f.mps }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedFixture(t *testing.T, mem *store.Memory) {
	t.Helper()
	ctx := context.Background()

	const lat0 = 37.45
	const dLat100 = 100.0 / 111320.0

	require.NoError(t, mem.UpsertRoute(ctx, &domain.Route{
		ID:   "loop-a",
		Name: "Campus Loop A",
		Polyline: []domain.LatLng{
			{Lat: lat0, Lon: 126.65},
			{Lat: lat0 + 4*dLat100, Lon: 126.65},
		},
	}))
	require.NoError(t, mem.UpsertStop(ctx, &domain.Stop{
		ID: "stop-main", RouteID: "loop-a", Name: "Main Gate",
		Lat: lat0 + 3*dLat100, Lon: 126.65, Seq: 1,
	}))
	require.NoError(t, mem.UpsertVehicle(ctx, &domain.Vehicle{
		ID: "bus-1", Name: "Shuttle 1", RouteID: "loop-a", Secret: "device-secret",
	}))
	require.NoError(t, mem.Append(ctx, domain.Position{
		VehicleID: "bus-1", TS: time.Now().Unix(),
		Lat: lat0 + dLat100, Lon: 126.65,
	}))
}

func newETAService(mem *store.Memory) *eta.Service {
	return eta.NewService(mem, mem, routegeom.NewCache(), fixedSpeed{5.0}, nil,
		eta.Calculator{ArrivalRadiusM: 8, DwellSec: 12, MinETASec: 5},
		eta.Config{
			CacheTTL:          3 * time.Second,
			SmoothWindow:      5,
			ArriveNearM:       40,
			NearCapSec:        10,
			ProviderAbsSec:    90,
			ProviderFactor:    2.0,
			FarRejectM:        150,
			ConfidenceBandSec: 45,
			ProviderTimeout:   time.Second,
			LateralLowConfM:   30,
			FarMidConfM:       500,
		},
		discardLogger(), nil)
}

func TestIngestAcceptsValidTelemetry(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	sink := &recordingSink{}
	h := NewIngestHandler(mem, mem, sink, false, discardLogger(), nil)

	body := []byte(`{"vehicle_id":"bus-1","ts":2000,"lat":37.4502,"lon":126.65,"speed_mps":4.2}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, sink.topics, "vehicle:bus-1")

	pos, err := mem.Latest(context.Background(), "bus-1")
	require.NoError(t, err)
	assert.Equal(t, 4.2, pos.Speed())
}

func TestIngestRejectsInvalidPayload(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := NewIngestHandler(mem, mem, &recordingSink{}, false, discardLogger(), nil)

	cases := map[string]string{
		"bad json":    `{`,
		"bad lat":     `{"vehicle_id":"bus-1","ts":2000,"lat":95.0,"lon":126.65}`,
		"zero ts":     `{"vehicle_id":"bus-1","ts":0,"lat":37.45,"lon":126.65}`,
		"bad heading": `{"vehicle_id":"bus-1","ts":2000,"lat":37.45,"lon":126.65,"heading":360}`,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		h.Ingest(rec, req)
		assert.True(t, rec.Code == http.StatusBadRequest || rec.Code == http.StatusUnprocessableEntity,
			"%s: got %d", name, rec.Code)
	}
}

func TestIngestUnknownVehicle(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := NewIngestHandler(mem, mem, &recordingSink{}, false, discardLogger(), nil)

	body := []byte(`{"vehicle_id":"ghost","ts":2000,"lat":37.45,"lon":126.65}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestSignature(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := NewIngestHandler(mem, mem, &recordingSink{}, true, discardLogger(), nil)

	body := []byte(`{"vehicle_id":"bus-1","ts":2000,"lat":37.4502,"lon":126.65}`)

	// missing signature
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// valid signature
	req = httptest.NewRequest(http.MethodPost, "/v1/ingest", bytes.NewReader(body))
	req.Header.Set("X-Device-Signature", auth.SignBody("device-secret", body))
	rec = httptest.NewRecorder()
	h.Ingest(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestETAEndpoints(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := NewETAHandler(newETAService(mem), discardLogger(), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/eta/ensemble?vehicle_id=bus-1&stop_id=stop-main", nil)
	rec := httptest.NewRecorder()
	h.Ensemble(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res eta.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 52, res.ETASeconds)
	assert.Equal(t, "bus-1", res.VehicleID)

	// missing params
	rec = httptest.NewRecorder()
	h.Ensemble(rec, httptest.NewRequest(http.MethodGet, "/v1/eta/ensemble?vehicle_id=bus-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown stop
	rec = httptest.NewRecorder()
	h.Baseline(rec, httptest.NewRequest(http.MethodGet, "/v1/eta/baseline?vehicle_id=bus-1&stop_id=ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// bad toggle value
	rec = httptest.NewRecorder()
	h.Ensemble(rec, httptest.NewRequest(http.MethodGet, "/v1/eta/ensemble?vehicle_id=bus-1&stop_id=stop-main&use_tmap=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVehicleStatusEndpoint(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	classifier := monitor.NewClassifier(mem, mem, monitor.Config{
		NoSignalSec: 120, LookbackSec: 600, StallSec: 180,
		StallRadiusM: 20, CongestionSpeedMps: 1.5,
	}, discardLogger())
	h := NewVehicleHandler(mem, mem, classifier, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/v1/vehicles/bus-1/status", nil)
	req.SetPathValue("id", "bus-1")
	rec := httptest.NewRecorder()
	h.Status(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status domain.VehicleStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "bus-1", status.VehicleID)
	assert.NotEmpty(t, status.State)

	req = httptest.NewRequest(http.MethodGet, "/v1/vehicles/ghost/status", nil)
	req.SetPathValue("id", "ghost")
	rec = httptest.NewRecorder()
	h.Status(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePolylineInvalidatesGeometry(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	geometry := routegeom.NewCache()
	sink := &recordingSink{}
	h := NewRouteHandler(mem, geometry, nil, time.Hour, sink, discardLogger())

	// prime the geometry cache
	route, err := mem.GetRoute(context.Background(), "loop-a")
	require.NoError(t, err)
	_, err = geometry.Get(route)
	require.NoError(t, err)
	require.Equal(t, 1, geometry.Len())

	body := []byte(`{"polyline":[[37.45,126.65],[37.46,126.65],[37.46,126.66]],"loop":false}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/routes/loop-a/polyline", bytes.NewReader(body))
	req.SetPathValue("id", "loop-a")
	rec := httptest.NewRecorder()
	h.UpdatePolyline(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, geometry.Len())
	assert.Contains(t, sink.topics, "route:loop-a")

	updated, err := mem.GetRoute(context.Background(), "loop-a")
	require.NoError(t, err)
	assert.Len(t, updated.Polyline, 3)
}

func TestUpdatePolylineRejectsShort(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := NewRouteHandler(mem, routegeom.NewCache(), nil, time.Hour, &recordingSink{}, discardLogger())

	body := []byte(`{"polyline":[[37.45,126.65]]}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/routes/loop-a/polyline", bytes.NewReader(body))
	req.SetPathValue("id", "loop-a")
	rec := httptest.NewRecorder()
	h.UpdatePolyline(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAuthLoginAndGuard(t *testing.T) {
	tokens := auth.NewTokenStore([]auth.Credential{{Username: "ops", Password: "hunter2"}}, time.Hour)
	h := NewAuthHandler(tokens, discardLogger())

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		bytes.NewReader([]byte(`{"username":"ops","password":"hunter2"}`))))
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)

	guarded := h.RequireToken(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPut, "/guarded", nil)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		bytes.NewReader([]byte(`{"username":"ops","password":"wrong"}`))))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSurveySubmitAndList(t *testing.T) {
	surveys := store.NewSurveyStore()
	h := NewSurveyHandler(surveys, discardLogger())

	body := []byte(`{
		"vehicle_id": "bus-1",
		"board_stop": "stop-main",
		"board_time": "2026-08-30T08:00:00Z",
		"arrival_time": "2026-08-30T08:12:00Z",
		"travel_time_min": 12
	}`)
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/survey", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/surveys", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res SurveysResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "bus-1", res.Surveys[0].VehicleID)
	assert.False(t, res.Surveys[0].CreatedAt.IsZero())
}

func TestSurveyRejectsArrivalBeforeBoarding(t *testing.T) {
	h := NewSurveyHandler(store.NewSurveyStore(), discardLogger())

	body := []byte(`{
		"vehicle_id": "bus-1",
		"board_stop": "stop-main",
		"board_time": "2026-08-30T08:12:00Z",
		"arrival_time": "2026-08-30T08:00:00Z"
	}`)
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/v1/survey", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := NewHealthHandler(mem, mem)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.True(t, ready.Ready)
	assert.Equal(t, 1, ready.RouteCount)
	assert.Equal(t, 1, ready.VehicleCount)
}

func newCampusHandler(t *testing.T, mem *store.Memory) *CampusHandler {
	t.Helper()
	svc := campus.NewService(mem, discardLogger())
	svc.SetBuildings([]campus.Building{
		{ID: "b6", Name: "Library", Lat: 37.45 + 3.2*100.0/111320.0, Lon: 126.65,
			StopID: "stop-main", Aliases: []string{"lib"}},
		{ID: "b8", Name: "Engineering Hall", Lat: 37.45 + 2*100.0/111320.0, Lon: 126.65,
			StopID: "stop-main", Aliases: []string{"eng"}},
	})
	svc.SetDefaultBoardStop("stop-main")
	return NewCampusHandler(svc, discardLogger())
}

func TestCampusBoardingStop(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := newCampusHandler(t, mem)

	rec := httptest.NewRecorder()
	h.BoardingStop(rec, httptest.NewRequest(http.MethodGet, "/v1/campus/boarding-stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stop domain.Stop
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stop))
	assert.Equal(t, "stop-main", stop.ID)
}

func TestCampusBoardingStopUnconfigured(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := NewCampusHandler(campus.NewService(mem, discardLogger()), discardLogger())

	rec := httptest.NewRecorder()
	h.BoardingStop(rec, httptest.NewRequest(http.MethodGet, "/v1/campus/boarding-stop", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCampusDropoffGuides(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := newCampusHandler(t, mem)

	rec := httptest.NewRecorder()
	h.ListGuides(rec, httptest.NewRequest(http.MethodGet, "/v1/campus/dropoff-guides", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GuidesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.DefaultBoardStop)
	assert.Equal(t, "stop-main", resp.DefaultBoardStop.ID)
	require.Len(t, resp.DropoffGuides, 2)
	assert.Equal(t, "Engineering Hall", resp.DropoffGuides[0].BuildingName)
	assert.Equal(t, "Library", resp.DropoffGuides[1].BuildingName)

	rec = httptest.NewRecorder()
	h.ListGuides(rec, httptest.NewRequest(http.MethodGet, "/v1/campus/dropoff-guides?q=lib", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = GuidesResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.DropoffGuides, 1)
	assert.Equal(t, "b6", resp.DropoffGuides[0].BuildingID)
	assert.Greater(t, resp.DropoffGuides[0].WalkDistanceM, 0.0)
	assert.Greater(t, resp.DropoffGuides[0].EstimatedWalkMinutes, 0.0)
}

func TestCampusGuideByAliasAndNotFound(t *testing.T) {
	mem := store.NewMemory(0)
	seedFixture(t, mem)
	h := newCampusHandler(t, mem)

	req := httptest.NewRequest(http.MethodGet, "/v1/campus/dropoff-guides/eng", nil)
	req.SetPathValue("id", "eng")
	rec := httptest.NewRecorder()
	h.GetGuide(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var guide campus.Guide
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &guide))
	assert.Equal(t, "b8", guide.BuildingID)
	require.NotNil(t, guide.RecommendedStop)
	assert.Equal(t, "stop-main", guide.RecommendedStop.ID)

	req = httptest.NewRequest(http.MethodGet, "/v1/campus/dropoff-guides/ghost", nil)
	req.SetPathValue("id", "ghost")
	rec = httptest.NewRecorder()
	h.GetGuide(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
