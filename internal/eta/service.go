package eta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"campusbus/internal/domain"
	"campusbus/internal/provider"
	"campusbus/internal/routegeom"
	"campusbus/internal/speed"
	"campusbus/internal/store"
)

// Failures that surface to the caller. Provider failures never do;
// they only reduce candidate count and confidence.
var (
	ErrNoPosition      = errors.New("no position recorded for vehicle")
	ErrNoStop          = errors.New("stop not found")
	ErrNoRouteGeometry = errors.New("route geometry unavailable")
)

// Confidence levels for an ETA result.
const (
	ConfidenceLow  = "low"
	ConfidenceMid  = "mid"
	ConfidenceHigh = "high"
)

// Config tunes the ensemble pipeline. Zero values are not usable;
// construct via config defaults.
type Config struct {
	CacheTTL     time.Duration
	SmoothWindow int

	// ArriveNearM: within this remaining distance the raw ETA is
	// overridden with a direct distance/speed figure capped at
	// NearCapSec, regardless of candidate disagreement.
	ArriveNearM float64
	NearCapSec  int

	// Plausibility gate: a provider candidate is accepted when within
	// ProviderAbsSec of baseline, or within a /ProviderFactor ..
	// *ProviderFactor band around it.
	ProviderAbsSec int
	ProviderFactor float64
	// Candidates under 10s are rejected outright when the remaining
	// route distance exceeds FarRejectM.
	FarRejectM float64

	// ConfidenceBandSec: accepted candidates must all sit this close
	// to baseline for "high".
	ConfidenceBandSec int

	ProviderTimeout time.Duration

	// Baseline-only confidence shaping. SpeedMinMps/SpeedMaxMps are
	// the estimator's clamp band; an effective speed sitting on either
	// bound means the raw telemetry was implausible, so the baseline
	// reports low confidence. Zero bounds disable the check.
	LateralLowConfM float64
	FarMidConfM     float64
	SpeedMinMps     float64
	SpeedMaxMps     float64
}

// ProviderBreakdown records one candidate source's raw values and
// whether it survived the gate.
type ProviderBreakdown struct {
	OK               bool    `json:"ok"`
	RemainingM       float64 `json:"remaining_m,omitempty"`
	EffSpeedMps      float64 `json:"eff_speed_mps,omitempty"`
	ETASeconds       int     `json:"eta_s,omitempty"`
	LateralM         float64 `json:"lateral_m,omitempty"`
	DistanceM        float64 `json:"distance_m,omitempty"`
	ETAFromDistanceS int     `json:"eta_from_distance_s,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Progress describes where the vehicle sits on the route.
type Progress struct {
	SNowM      float64 `json:"s_now_m"`
	SStopM     float64 `json:"s_stop_m"`
	RemainingM float64 `json:"remaining_m"`
	LateralM   float64 `json:"lateral_m"`
	Passed     bool    `json:"passed"`
}

// Smoothing exposes the trailing-median state behind the final value.
type Smoothing struct {
	Window    int   `json:"window"`
	History   []int `json:"history"`
	ETARaw    int   `json:"eta_raw"`
	ETAMedian int   `json:"eta_median"`
}

// Debug carries every intermediate value for observability.
type Debug struct {
	LatestTS    int64     `json:"latest_ts"`
	TotalLenM   float64   `json:"total_len_m"`
	Progress    Progress  `json:"progress"`
	EffSpeedMps float64   `json:"eff_speed_mps"`
	CacheTTLSec float64   `json:"cache_ttl_s"`
	Smoothing   Smoothing `json:"smoothing"`
}

// Result is a full ensemble ETA answer.
type Result struct {
	VehicleID  string                       `json:"vehicle_id"`
	RouteID    string                       `json:"route_id"`
	StopID     string                       `json:"stop_id"`
	ETASeconds int                          `json:"eta_seconds"`
	Confidence string                       `json:"confidence"`
	Providers  map[string]ProviderBreakdown `json:"providers"`
	Method     string                       `json:"method"`
	Debug      Debug                        `json:"debug_details"`
}

// BaselineResult is the simpler single-source answer.
type BaselineResult struct {
	VehicleID  string        `json:"vehicle_id"`
	RouteID    string        `json:"route_id"`
	StopID     string        `json:"stop_id"`
	ETASeconds int           `json:"eta_seconds"`
	Confidence string        `json:"confidence"`
	Debug      BaselineDebug `json:"debug"`
}

type BaselineDebug struct {
	RemainingM   float64 `json:"remaining_m"`
	EffSpeedMps  float64 `json:"eff_speed_mps"`
	LateralM     float64 `json:"lateral_m"`
	Passed       bool    `json:"passed"`
	SpeedClamped bool    `json:"speed_clamped"`
}

// Metrics is the optional instrumentation hook the service reports to.
type Metrics interface {
	ETACacheHit()
	ETACacheMiss()
	ProviderFailure(name string)
	ProviderRejected(name string)
	ObserveProviderLatency(name string, d time.Duration)
}

type smoothKey struct {
	VehicleID string
	StopID    string
}

// Service computes baseline and ensemble ETAs. The result cache and
// smoothing histories are the only mutable state; each sits behind its
// own mutex, and neither is held while a provider call is in flight.
type Service struct {
	positions store.PositionStore
	routes    store.RouteStore
	geometry  *routegeom.Cache
	speed     speed.Estimator
	providers []provider.Provider
	calc      Calculator
	cfg       Config
	logger    *slog.Logger
	metrics   Metrics

	cache *resultCache

	smoothMu sync.Mutex
	smooth   map[smoothKey]*history
}

func NewService(
	positions store.PositionStore,
	routes store.RouteStore,
	geometry *routegeom.Cache,
	estimator speed.Estimator,
	providers []provider.Provider,
	calc Calculator,
	cfg Config,
	logger *slog.Logger,
	metrics Metrics,
) *Service {
	return &Service{
		positions: positions,
		routes:    routes,
		geometry:  geometry,
		speed:     estimator,
		providers: providers,
		calc:      calc,
		cfg:       cfg,
		logger:    logger.With("component", "eta"),
		metrics:   metrics,
		cache:     newResultCache(cfg.CacheTTL),
		smooth:    make(map[smoothKey]*history),
	}
}

// resolve loads the latest position, the stop and the route geometry,
// mapping store errors onto the package's failure taxonomy.
func (s *Service) resolve(ctx context.Context, vehicleID, stopID string) (*domain.Position, *domain.Stop, *routegeom.Geometry, error) {
	p, err := s.positions.Latest(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrNoPosition, vehicleID)
		}
		return nil, nil, nil, err
	}

	st, err := s.routes.GetStop(ctx, stopID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrNoStop, stopID)
		}
		return nil, nil, nil, err
	}

	route, err := s.routes.GetRoute(ctx, st.RouteID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: route %s: %v", ErrNoRouteGeometry, st.RouteID, err)
	}
	geom, err := s.geometry.Get(route)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: route %s: %v", ErrNoRouteGeometry, st.RouteID, err)
	}
	return p, st, geom, nil
}

// ComputeBaseline answers with the internal distance/speed estimate
// only.
func (s *Service) ComputeBaseline(ctx context.Context, vehicleID, stopID string) (*BaselineResult, error) {
	pos, stop, g, err := s.resolve(ctx, vehicleID, stopID)
	if err != nil {
		return nil, err
	}

	sNow, lateral := g.AlongRoute(pos.Lat, pos.Lon)
	sStop, _ := g.AlongRoute(stop.Lat, stop.Lon)
	remaining, passed := g.DistanceBetween(sNow, sStop)

	v := s.speed.EffectiveSpeed(ctx, vehicleID, pos.TS)
	sec := s.calc.Seconds(remaining, v)
	clamped := s.speedClamped(v)

	conf := ConfidenceHigh
	switch {
	case passed, lateral > s.cfg.LateralLowConfM, clamped:
		conf = ConfidenceLow
	case remaining > s.cfg.FarMidConfM:
		conf = ConfidenceMid
	}

	return &BaselineResult{
		VehicleID:  vehicleID,
		RouteID:    stop.RouteID,
		StopID:     stopID,
		ETASeconds: sec,
		Confidence: conf,
		Debug: BaselineDebug{
			RemainingM:   round1(remaining),
			EffSpeedMps:  round2(v),
			LateralM:     round1(lateral),
			Passed:       passed,
			SpeedClamped: clamped,
		},
	}, nil
}

// speedClamped reports whether the effective speed sits on the
// estimator's clamp band, meaning the underlying telemetry was out of
// the plausible range.
func (s *Service) speedClamped(v float64) bool {
	if s.cfg.SpeedMinMps > 0 && v <= s.cfg.SpeedMinMps {
		return true
	}
	if s.cfg.SpeedMaxMps > 0 && v >= s.cfg.SpeedMaxMps {
		return true
	}
	return false
}

// ComputeEnsemble merges the baseline with every enabled provider's
// candidate under a plausibility gate, smooths the result with a
// trailing median, and caches it against the latest telemetry
// timestamp. toggles may disable individual providers by name; absent
// names default to enabled.
func (s *Service) ComputeEnsemble(ctx context.Context, vehicleID, stopID string, toggles map[string]bool) (*Result, error) {
	pos, stop, g, err := s.resolve(ctx, vehicleID, stopID)
	if err != nil {
		return nil, err
	}

	key := cacheKey{VehicleID: vehicleID, StopID: stopID, TS: pos.TS}
	if cached, ok := s.cache.get(key); ok {
		if s.metrics != nil {
			s.metrics.ETACacheHit()
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.ETACacheMiss()
	}

	sNow, lateral := g.AlongRoute(pos.Lat, pos.Lon)
	sStop, _ := g.AlongRoute(stop.Lat, stop.Lon)
	remaining, passed := g.DistanceBetween(sNow, sStop)

	v := s.speed.EffectiveSpeed(ctx, vehicleID, pos.TS)
	baselineSec := s.calc.Seconds(remaining, v)

	providers := map[string]ProviderBreakdown{
		"baseline": {
			OK:          true,
			RemainingM:  round1(remaining),
			EffSpeedMps: round2(v),
			ETASeconds:  baselineSec,
			LateralM:    round1(lateral),
		},
	}
	candidates := []int{baselineSec}
	methodParts := []string{"baseline"}

	// Provider calls happen here with no shared lock held; each is
	// individually time-bounded and any failure degrades to
	// baseline-only.
	for _, p := range s.providers {
		if enabled, ok := toggles[p.Name()]; ok && !enabled {
			continue
		}
		dist, err := s.callProvider(ctx, p, pos.Lat, pos.Lon, stop.Lat, stop.Lon)
		if err != nil {
			if s.metrics != nil {
				s.metrics.ProviderFailure(p.Name())
			}
			s.logger.Debug("provider call failed", "provider", p.Name(), "error", err)
			providers[p.Name()] = ProviderBreakdown{OK: false, Error: err.Error()}
			continue
		}

		// providers contribute distance only; duration comes from our
		// own speed model
		candSec := int(math.Ceil(dist / math.Max(v, speedEpsilon)))
		accepted := s.acceptCandidate(candSec, baselineSec, remaining)
		providers[p.Name()] = ProviderBreakdown{
			OK:               accepted,
			DistanceM:        round1(dist),
			ETAFromDistanceS: candSec,
		}
		if accepted {
			candidates = append(candidates, candSec)
			methodParts = append(methodParts, p.Name()+"_distance")
		} else if s.metrics != nil {
			s.metrics.ProviderRejected(p.Name())
		}
	}

	rawSec := meanInt(candidates)
	if remaining <= s.cfg.ArriveNearM {
		direct := int(math.Ceil(remaining / math.Max(v, speedEpsilon)))
		if direct < 0 {
			direct = 0
		}
		if direct > s.cfg.NearCapSec {
			direct = s.cfg.NearCapSec
		}
		rawSec = direct
	}

	smoothed, window := s.smoothPush(smoothKey{VehicleID: vehicleID, StopID: stopID}, rawSec)

	conf := s.confidence(providers, baselineSec)
	if passed {
		// stop already passed on a non-loop route: the 0 we report is
		// a policy, not a measurement
		conf = ConfidenceLow
	}

	result := &Result{
		VehicleID:  vehicleID,
		RouteID:    stop.RouteID,
		StopID:     stopID,
		ETASeconds: smoothed,
		Confidence: conf,
		Providers:  providers,
		Method:     "mean(" + strings.Join(methodParts, ",") + ")",
		Debug: Debug{
			LatestTS:    pos.TS,
			TotalLenM:   round1(g.TotalLenM),
			EffSpeedMps: round2(v),
			CacheTTLSec: s.cfg.CacheTTL.Seconds(),
			Progress: Progress{
				SNowM:      round1(sNow),
				SStopM:     round1(sStop),
				RemainingM: round1(remaining),
				LateralM:   round1(lateral),
				Passed:     passed,
			},
			Smoothing: Smoothing{
				Window:    s.cfg.SmoothWindow,
				History:   window,
				ETARaw:    rawSec,
				ETAMedian: smoothed,
			},
		},
	}

	s.cache.set(key, result)
	return result, nil
}

// callProvider runs one adapter under its own deadline. A panic in an
// adapter is downgraded to an ordinary failure so a bad provider can
// never take the request down once the baseline exists.
func (s *Service) callProvider(ctx context.Context, p provider.Provider, oLat, oLon, dLat, dLon float64) (dist float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	dist, _, err = p.DistanceDuration(callCtx, oLat, oLon, dLat, dLon)
	if s.metrics != nil {
		s.metrics.ObserveProviderLatency(p.Name(), time.Since(start))
	}
	return dist, err
}

// acceptCandidate is the plausibility gate for provider-derived ETAs.
func (s *Service) acceptCandidate(candSec, baselineSec int, remainingM float64) bool {
	if candSec <= 0 {
		return false
	}
	if remainingM > s.cfg.FarRejectM && candSec < 10 {
		return false
	}
	if baselineSec <= 0 {
		return true
	}
	diff := candSec - baselineSec
	if diff < 0 {
		diff = -diff
	}
	if diff <= s.cfg.ProviderAbsSec {
		return true
	}
	lo := float64(baselineSec) / s.cfg.ProviderFactor
	hi := float64(baselineSec) * s.cfg.ProviderFactor
	return float64(candSec) >= lo && float64(candSec) <= hi
}

func (s *Service) smoothPush(key smoothKey, raw int) (median int, window []int) {
	s.smoothMu.Lock()
	defer s.smoothMu.Unlock()

	h, ok := s.smooth[key]
	if !ok {
		h = newHistory(s.cfg.SmoothWindow)
		s.smooth[key] = h
	}
	h.push(raw)
	return h.median(), h.snapshot()
}

// confidence classifies agreement between baseline and accepted
// provider candidates.
func (s *Service) confidence(providers map[string]ProviderBreakdown, baselineSec int) string {
	var accepted []int
	for name, b := range providers {
		if name == "baseline" || !b.OK {
			continue
		}
		accepted = append(accepted, b.ETAFromDistanceS)
	}
	if len(accepted) == 0 {
		return ConfidenceLow
	}
	for _, c := range accepted {
		diff := c - baselineSec
		if diff < 0 {
			diff = -diff
		}
		if diff > s.cfg.ConfidenceBandSec {
			return ConfidenceMid
		}
	}
	return ConfidenceHigh
}

func meanInt(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(vals))))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
