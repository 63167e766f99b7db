package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campusbus/internal/domain"
	"campusbus/internal/geo"
	"campusbus/internal/store"
)

// Config holds the classification thresholds. All of them come from
// configuration so operators can tune without a rebuild.
type Config struct {
	NoSignalSec        int64
	LookbackSec        int64
	StallSec           int64
	StallRadiusM       float64
	CongestionSpeedMps float64
}

// Classifier derives a vehicle's operating state from raw position
// history on every call. Nothing is persisted between invocations.
type Classifier struct {
	positions store.PositionStore
	vehicles  store.VehicleStore
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewClassifier(positions store.PositionStore, vehicles store.VehicleStore, cfg Config, logger *slog.Logger) *Classifier {
	return &Classifier{
		positions: positions,
		vehicles:  vehicles,
		cfg:       cfg,
		logger:    logger.With("component", "monitor"),
		now:       time.Now,
	}
}

// Classify computes the current state for one vehicle.
func (c *Classifier) Classify(ctx context.Context, vehicleID string) (*domain.VehicleStatus, error) {
	now := c.now().Unix()

	latest, err := c.positions.Latest(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &domain.VehicleStatus{
				VehicleID: vehicleID,
				State:     domain.StateNoSignal,
				Reason:    "no telemetry ever recorded",
			}, nil
		}
		return nil, err
	}

	// device clocks can run ahead of the server; never report a
	// negative staleness
	since := now - latest.TS
	if since < 0 {
		since = 0
	}
	status := &domain.VehicleStatus{
		VehicleID:          vehicleID,
		LatestTS:           &latest.TS,
		SecondsSinceUpdate: &since,
	}

	if since >= c.cfg.NoSignalSec {
		status.State = domain.StateNoSignal
		status.Reason = fmt.Sprintf("last update %ds ago", since)
		return status, nil
	}

	window, err := c.positions.Since(ctx, vehicleID, now-c.cfg.LookbackSec, false)
	if err != nil {
		return nil, err
	}
	status.Metrics = domain.StatusMetrics{
		Samples:     len(window),
		LookbackSec: c.cfg.LookbackSec,
	}

	if len(window) < 2 {
		status.State = domain.StateMoving
		status.Reason = "insufficient history, assuming healthy"
		return status, nil
	}

	var totalM float64
	for i := 1; i < len(window); i++ {
		totalM += geo.HaversineM(window[i-1].Lat, window[i-1].Lon, window[i].Lat, window[i].Lon)
	}
	elapsed := window[len(window)-1].TS - window[0].TS
	avgMps := 0.0
	if elapsed > 0 {
		avgMps = totalM / float64(elapsed)
	}
	status.Metrics.TotalDistanceM = totalM
	status.Metrics.AvgSpeedMps = avgMps
	status.Metrics.StallRadiusM = c.cfg.StallRadiusM

	newest := window[len(window)-1]

	// Walk backward for the most recent sample that shows real motion:
	// displaced beyond the stall radius from the latest fix, or carrying
	// a speed reading above the congestion threshold.
	motionIdx := -1
	for i := len(window) - 2; i >= 0; i-- {
		d := geo.HaversineM(window[i].Lat, window[i].Lon, newest.Lat, newest.Lon)
		if d > c.cfg.StallRadiusM || window[i].Speed() > c.cfg.CongestionSpeedMps {
			motionIdx = i
			break
		}
	}

	if motionIdx == -1 {
		stopped := newest.TS - window[0].TS
		status.Metrics.StoppedDurationSec = stopped
		if stopped >= c.cfg.StallSec {
			status.State = domain.StateStalledSensor
			status.Reason = fmt.Sprintf("position frozen for %ds despite updates", stopped)
			return status, nil
		}
		status.State = domain.StateMoving
		status.Reason = "normal movement"
		return status, nil
	}

	stopped := newest.TS - window[motionIdx].TS
	status.Metrics.StoppedDurationSec = stopped
	if stopped >= c.cfg.StallSec {
		status.State = domain.StateCongestionStop
		status.Reason = fmt.Sprintf("no movement in last %ds after earlier motion", stopped)
		return status, nil
	}

	status.State = domain.StateMoving
	status.Reason = "normal movement"
	return status, nil
}

// ClassifyAll classifies every registered vehicle. A failure on one
// vehicle does not abort the sweep; that vehicle is reported as
// no_signal with the error in the reason.
func (c *Classifier) ClassifyAll(ctx context.Context) ([]domain.VehicleStatus, error) {
	vehicles, err := c.vehicles.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]domain.VehicleStatus, 0, len(vehicles))
	for _, v := range vehicles {
		st, err := c.Classify(ctx, v.ID)
		if err != nil {
			c.logger.Warn("classification failed", "vehicle_id", v.ID, "error", err)
			statuses = append(statuses, domain.VehicleStatus{
				VehicleID: v.ID,
				State:     domain.StateNoSignal,
				Reason:    "classification error: " + err.Error(),
			})
			continue
		}
		statuses = append(statuses, *st)
	}
	return statuses, nil
}
