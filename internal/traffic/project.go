package traffic

import (
	"math"

	"flarm-ng/internal/geom"
)

// projectionTimes are the sample offsets in seconds the radio protocol
// expects: one slightly in the past, three in the future.
var projectionTimes = [4]float64{-1.5, 2.0, 5.5, 9.0}

type projection struct {
	NS [4]int16
	EW [4]int16
}

// Project returns the four (north, east) velocity samples in quarter
// m/s, stepping the heading by the current turn rate. The result is
// ground-referenced; wind is deliberately not applied. Recomputes only
// when the cache is older than ProjectionCache.
func (t *Track) Project(nowMs int64) ([4]int16, [4]int16) {
	if t.projTimeMs != 0 && nowMs >= t.projTimeMs &&
		nowMs-t.projTimeMs < ProjectionCache.Milliseconds() {
		return t.proj.NS, t.proj.EW
	}

	speedQ := t.SpeedMps * 4
	for i, dt := range projectionTimes {
		hdg := t.CourseDeg + t.TurnRateDps*dt
		t.proj.NS[i] = clampSample(math.Round(speedQ * geom.CosDeg(hdg)))
		t.proj.EW[i] = clampSample(math.Round(speedQ * geom.SinDeg(hdg)))
	}
	t.projTimeMs = nowMs
	return t.proj.NS, t.proj.EW
}

// InvalidateProjection forces the next Project call to recompute, used
// when a new position fix lands inside the cache window.
func (t *Track) InvalidateProjection() {
	t.projTimeMs = 0
}

func clampSample(v float64) int16 {
	if v > 1023 {
		return 1023
	}
	if v < -1023 {
		return -1023
	}
	return int16(v)
}
