// Package speed derives a smoothed, clamped effective vehicle speed
// from recent telemetry. Two estimators exist: WindowEstimator
// measures distance over elapsed time in a trailing window, and
// EMAEstimator exponentially smooths recent instantaneous readings
// (the legacy path). Both clamp to the same plausibility band.
package speed

import (
	"context"
	"log/slog"

	"campusbus/internal/domain"
	"campusbus/internal/geo"
)

// PositionSource is the slice of the position store the estimators
// need.
type PositionSource interface {
	Since(ctx context.Context, vehicleID string, sinceTS int64, desc bool) ([]domain.Position, error)
}

// Estimator returns a positive effective speed in m/s for a vehicle
// at a reference time. Implementations never return zero; callers can
// divide by the result.
type Estimator interface {
	EffectiveSpeed(ctx context.Context, vehicleID string, refTS int64) float64
}

// Config bounds every estimator. Raw speed is noisy at low sample
// counts and near stops; the clamp band keeps ETAs finite and sane.
type Config struct {
	LookbackSec   int64
	MinMps        float64
	MaxMps        float64
	DefaultMps    float64
	Alpha         float64 // EMA decay factor
	NoiseFloorMps float64 // EMA input filter; readings at or below are dropped
}

func (c Config) clamp(v float64) float64 {
	if v < c.MinMps {
		return c.MinMps
	}
	if v > c.MaxMps {
		return c.MaxMps
	}
	return v
}

// WindowEstimator sums great-circle distance between consecutive
// samples in the lookback window and divides by elapsed time.
type WindowEstimator struct {
	positions PositionSource
	cfg       Config
	logger    *slog.Logger
}

func NewWindowEstimator(positions PositionSource, cfg Config, logger *slog.Logger) *WindowEstimator {
	return &WindowEstimator{positions: positions, cfg: cfg, logger: logger.With("component", "speed_window")}
}

func (e *WindowEstimator) EffectiveSpeed(ctx context.Context, vehicleID string, refTS int64) float64 {
	samples, err := e.positions.Since(ctx, vehicleID, refTS-e.cfg.LookbackSec, false)
	if err != nil {
		e.logger.Warn("position lookup failed, using default speed", "vehicle_id", vehicleID, "error", err)
		return e.cfg.clamp(e.cfg.DefaultMps)
	}

	// drop anything newer than the reference time
	usable := samples[:0:0]
	for _, s := range samples {
		if s.TS <= refTS {
			usable = append(usable, s)
		}
	}
	if len(usable) < 2 {
		return e.cfg.clamp(e.cfg.DefaultMps)
	}

	var totalM float64
	var totalSec int64
	for i := 1; i < len(usable); i++ {
		a, b := usable[i-1], usable[i]
		totalM += geo.HaversineM(a.Lat, a.Lon, b.Lat, b.Lon)
		gap := b.TS - a.TS
		if gap < 1 {
			gap = 1
		}
		totalSec += gap
	}
	return e.cfg.clamp(totalM / float64(totalSec))
}

// EMAEstimator smooths recent instantaneous speed readings with a
// fixed decay factor. Readings at or below the noise floor are
// excluded so idling at a stop does not drag the estimate to zero.
type EMAEstimator struct {
	positions PositionSource
	cfg       Config
	logger    *slog.Logger
}

func NewEMAEstimator(positions PositionSource, cfg Config, logger *slog.Logger) *EMAEstimator {
	return &EMAEstimator{positions: positions, cfg: cfg, logger: logger.With("component", "speed_ema")}
}

func (e *EMAEstimator) EffectiveSpeed(ctx context.Context, vehicleID string, refTS int64) float64 {
	samples, err := e.positions.Since(ctx, vehicleID, refTS-e.cfg.LookbackSec, false)
	if err != nil {
		e.logger.Warn("position lookup failed, using default speed", "vehicle_id", vehicleID, "error", err)
		return e.cfg.clamp(e.cfg.DefaultMps)
	}

	var speeds []float64
	for _, s := range samples {
		if s.TS > refTS || s.SpeedMps == nil {
			continue
		}
		if v := *s.SpeedMps; v > e.cfg.NoiseFloorMps {
			speeds = append(speeds, v)
		}
	}
	if len(speeds) == 0 {
		return e.cfg.clamp(e.cfg.DefaultMps)
	}

	v := speeds[0]
	for _, s := range speeds[1:] {
		v = e.cfg.Alpha*s + (1-e.cfg.Alpha)*v
	}
	return e.cfg.clamp(v)
}
