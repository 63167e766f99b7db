package domain

import "time"

// RideSurvey is rider feedback about one shuttle trip, used to
// calibrate dwell and arrival padding offline.
type RideSurvey struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id,omitempty"`
	VehicleID     string    `json:"vehicle_id"`
	BoardStop     string    `json:"board_stop"`
	BoardTime     time.Time `json:"board_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	TravelTimeMin int       `json:"travel_time_min"`
	EarlyMin      int       `json:"early_min"`
	LateMin       int       `json:"late_min"`
	CreatedAt     time.Time `json:"created_at"`
}
