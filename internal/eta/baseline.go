// Package eta turns along-route progress and effective speed into
// arrival estimates, and reconciles the internal baseline with
// external routing providers.
package eta

import "math"

// speedEpsilon keeps division by effective speed safe; estimators
// already clamp above this, but the calculator must not trust that.
const speedEpsilon = 0.1

// Calculator is the baseline distance/speed ETA policy.
type Calculator struct {
	// ArrivalRadiusM: within this distance the vehicle counts as
	// arrived and the ETA is 0.
	ArrivalRadiusM float64
	// DwellSec pads the geometric estimate for expected stop delay.
	DwellSec int
	// MinETASec floors every non-zero estimate; tiny non-zero ETAs are
	// noise, not information.
	MinETASec int
}

// Seconds computes the baseline ETA. It is non-decreasing in distance
// at fixed speed and non-increasing in speed at fixed distance.
func (c Calculator) Seconds(remainingM, effSpeedMps float64) int {
	if remainingM <= c.ArrivalRadiusM {
		return 0
	}
	if effSpeedMps < speedEpsilon {
		effSpeedMps = speedEpsilon
	}
	sec := int(math.Ceil(remainingM/effSpeedMps)) + c.DwellSec
	if sec < c.MinETASec {
		sec = c.MinETASec
	}
	return sec
}
