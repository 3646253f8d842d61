package traffic

import "math"

// Airborne detection thresholds.
const (
	airborneSpeedMps   = 4 * mpsPerKnot // ~2.06 m/s ground speed
	airborneClimbMps   = 200.0 / 196.85 // 200 fpm
	airborneClimbHold  = 5000           // ms the climb must persist
	airborneBaroDeltaM = 30.0
)

// AirborneEstimator decides whether the own aircraft is flying, from
// ground speed, sustained climb and pressure altitude departure from a
// ground baseline.
type AirborneEstimator struct {
	climbSinceMs int64
	baselineAltM float64
	haveBaseline bool
}

// Update refreshes t.Airborne. pressureAltM is optional; pass havePressure
// false when no barometer is attached.
func (a *AirborneEstimator) Update(t *Track, pressureAltM float64, havePressure bool, nowMs int64) {
	airborne := t.SpeedMps > airborneSpeedMps

	if math.Abs(t.VSMps) > airborneClimbMps {
		if a.climbSinceMs == 0 {
			a.climbSinceMs = nowMs
		}
		if nowMs-a.climbSinceMs >= airborneClimbHold {
			airborne = true
		}
	} else {
		a.climbSinceMs = 0
	}

	if havePressure {
		if a.haveBaseline && math.Abs(pressureAltM-a.baselineAltM) > airborneBaroDeltaM {
			airborne = true
		}
		if !airborne {
			a.baselineAltM = pressureAltM
			a.haveBaseline = true
		}
	}

	t.Airborne = airborne
}
