package domain

// Position is a single GPS telemetry sample. Samples are append-only
// per vehicle and ordered by timestamp.
type Position struct {
	VehicleID string   `json:"vehicle_id"`
	TS        int64    `json:"ts"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	SpeedMps  *float64 `json:"speed_mps,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

// Speed returns the recorded instantaneous speed, or 0 if the sample
// carried none.
func (p Position) Speed() float64 {
	if p.SpeedMps == nil {
		return 0
	}
	return *p.SpeedMps
}

// Vehicle is a registered shuttle. Secret is the per-device HMAC key
// for signed telemetry ingest and never appears in API responses.
type Vehicle struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RouteID    string `json:"route_id"`
	Secret     string `json:"-"`
	LastSeenTS int64  `json:"last_seen_ts,omitempty"`
}

// VehicleState classifies a vehicle's operating condition
type VehicleState string

const (
	StateNoSignal       VehicleState = "no_signal"
	StateMoving         VehicleState = "moving"
	StateStalledSensor  VehicleState = "stalled_sensor"
	StateCongestionStop VehicleState = "congestion_stop"
)

// StatusMetrics carries the measurements behind a classification
type StatusMetrics struct {
	Samples            int     `json:"samples,omitempty"`
	LookbackSec        int64   `json:"lookback_sec,omitempty"`
	AvgSpeedMps        float64 `json:"avg_speed_mps,omitempty"`
	TotalDistanceM     float64 `json:"total_distance_m,omitempty"`
	StoppedDurationSec int64   `json:"stopped_duration_sec,omitempty"`
	StallRadiusM       float64 `json:"stall_radius_m,omitempty"`
}

// VehicleStatus is the derived operating state of a vehicle. It is
// recomputed from position history on every request, never persisted.
type VehicleStatus struct {
	VehicleID          string        `json:"vehicle_id"`
	State              VehicleState  `json:"state"`
	Reason             string        `json:"reason"`
	LatestTS           *int64        `json:"latest_ts"`
	SecondsSinceUpdate *int64        `json:"seconds_since_update"`
	Metrics            StatusMetrics `json:"metrics"`
}
