package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTmapUnavailableWithoutKey(t *testing.T) {
	p := NewTmap("", "")
	_, _, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTmapParsesTopLevelSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("appKey"))
		w.Write([]byte(`{"distance": 1234.5, "duration": 300}`))
	}))
	defer srv.Close()

	p := NewTmap(srv.URL, "test-key")
	dist, dur, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, dist)
	assert.Equal(t, 300, dur)
}

func TestTmapParsesFeatureTotals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": [{"properties": {"totalDistance": 900, "totalTime": 120}}]}`))
	}))
	defer srv.Close()

	p := NewTmap(srv.URL, "test-key")
	dist, dur, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	require.NoError(t, err)
	assert.Equal(t, 900.0, dist)
	assert.Equal(t, 120, dur)
}

func TestTmapBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewTmap(srv.URL, "test-key")
	_, _, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestTmapMissingSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	p := NewTmap(srv.URL, "test-key")
	_, _, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestKakaoUnavailableWithoutKey(t *testing.T) {
	p := NewKakao("", "")
	_, _, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestKakaoParsesSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "KakaoAK test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("summary"))
		w.Write([]byte(`{"routes": [{"summary": {"distance": 800, "duration": 240}}]}`))
	}))
	defer srv.Close()

	p := NewKakao(srv.URL, "test-key")
	dist, dur, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	require.NoError(t, err)
	assert.Equal(t, 800.0, dist)
	assert.Equal(t, 240, dur)
}

func TestKakaoEmptyRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"routes": []}`))
	}))
	defer srv.Close()

	p := NewKakao(srv.URL, "test-key")
	_, _, err := p.DistanceDuration(context.Background(), 37.45, 126.65, 37.46, 126.66)
	assert.ErrorIs(t, err, ErrBadResponse)
}
