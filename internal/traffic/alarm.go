package traffic

import (
	"fmt"
	"math"

	"flarm-ng/internal/geom"
)

// AlarmMethod selects the threat scoring algorithm.
type AlarmMethod string

const (
	AlarmMethodNone     AlarmMethod = "none"
	AlarmMethodDistance AlarmMethod = "distance"
	AlarmMethodVector   AlarmMethod = "vector"
	AlarmMethodLegacy   AlarmMethod = "legacy"
)

// Scorer computes the alarm level of fo as seen from self. Both tracks
// must have current relative geometry.
type Scorer func(self, fo *Track) AlarmLevel

// NewScorer returns the scorer for a configured method.
func NewScorer(method AlarmMethod) (Scorer, error) {
	switch method {
	case AlarmMethodNone:
		return alarmNone, nil
	case AlarmMethodVector:
		return alarmVector, nil
	case AlarmMethodLegacy:
		return alarmLegacy, nil
	case AlarmMethodDistance, "":
		return alarmDistance, nil
	}
	return nil, fmt.Errorf("traffic: unknown alarm method %q", method)
}

// alarmNone leaves threat assessment to downstream flight software.
func alarmNone(self, fo *Track) AlarmLevel {
	return AlarmNone
}

// AdjAltDiff adjusts the altitude difference for relative vertical
// speed, moving only toward zero (a higher alarm), then applies a
// dead-band so fuzzy GNSS altitudes do not suppress real threats.
func AdjAltDiff(self, fo *Track) float64 {
	altDiff := fo.AltDiffM
	vsr := fo.VSMps - self.VSMps
	if math.Abs(vsr) > 5 {
		vsr = 0 // implausible
	}
	altChange := vsr * 10 // expected change in 10 seconds

	if altDiff > 0 && altChange < 0 {
		altDiff += altChange
		if altDiff < 0 {
			return 0
		}
	} else if altDiff < 0 && altChange > 0 {
		altDiff += altChange
		if altDiff > 0 {
			return 0
		}
	}

	if altDiff > 0 {
		if altDiff < VerticalSlack {
			return 0
		}
		return altDiff - VerticalSlack
	}
	if -altDiff < VerticalSlack {
		return 0
	}
	return altDiff + VerticalSlack
}

// AdjDistance is the horizontal distance inflated by the vertical
// offset penalty, used for replacement and export ordering.
func AdjDistance(self, fo *Track) float64 {
	return fo.DistanceM + VerticalSlope*math.Abs(AdjAltDiff(self, fo))
}

// alarmDistance assigns a level purely from the adjusted distance.
func alarmDistance(self, fo *Track) AlarmLevel {
	if self.PrevSeenMs == 0 {
		return AlarmNone
	}
	if fo.DistanceM > 2*ZoneClose || math.Abs(fo.AltDiffM) > 2*VerticalSeparation {
		return AlarmNone
	}

	absAdj := math.Abs(AdjAltDiff(self, fo))
	if absAdj >= VerticalSeparation {
		return AlarmNone
	}

	dist := fo.DistanceM + VerticalSlope*absAdj
	switch {
	case dist < ZoneUrgent:
		return AlarmUrgent
	case dist < ZoneImportant:
		return AlarmImportant
	case dist < ZoneLow:
		return AlarmLow
	case dist < ZoneClose:
		return AlarmClose
	}
	return AlarmNone
}

// alarmVector predicts a linear collision from course and ground speed.
// Falls back to alarmDistance when either aircraft is circling, since
// straight-line extrapolation is useless in a thermal.
func alarmVector(self, fo *Track) AlarmLevel {
	if self.PrevSeenMs == 0 || fo.SeenMs-fo.PrevSeenMs > 3000 {
		return AlarmNone
	}
	if fo.DistanceM > 2*ZoneClose || math.Abs(fo.AltDiffM) > 2*VerticalSeparation {
		return AlarmNone
	}
	if combined := self.SpeedMps + fo.SpeedMps; combined <= 0 ||
		fo.DistanceM/combined > TimeClose {
		return AlarmNone
	}

	if math.Abs(self.TurnRateDps) > 3 || math.Abs(fo.TurnRateDps) > 3 {
		return alarmDistance(self, fo)
	}

	absAdj := math.Abs(AdjAltDiff(self, fo))
	if absAdj >= VerticalSeparation {
		return AlarmNone
	}

	relNS := self.SpeedMps*geom.CosDeg(self.CourseDeg) - fo.SpeedMps*geom.CosDeg(fo.CourseDeg)
	relEW := self.SpeedMps*geom.SinDeg(self.CourseDeg) - fo.SpeedMps*geom.SinDeg(fo.CourseDeg)

	relSpeed := geom.Hypot(relEW, relNS)
	if relSpeed <= VectorSpeed {
		return AlarmNone
	}
	// direction the target is approached from
	relDir := geom.Atan2Deg(relNS, relEW)

	t := (fo.DistanceM + VerticalSlope*absAdj) / relSpeed
	relAngle := math.Abs(relDir - fo.BearingDeg)

	switch {
	case relAngle < VectorAngle:
		switch {
		case t < TimeUrgent:
			return AlarmUrgent
		case t < TimeImportant:
			return AlarmImportant
		case t < TimeLow:
			return AlarmLow
		case t < TimeClose:
			return AlarmClose
		}
	case relAngle < 2*VectorAngle:
		switch {
		case t < TimeUrgent:
			return AlarmImportant
		case t < TimeImportant:
			return AlarmLow
		case t < TimeLow:
			return AlarmClose
		}
	case relAngle < 3*VectorAngle:
		switch {
		case t < TimeUrgent:
			return AlarmLow
		case t < TimeImportant:
			return AlarmClose
		}
	}
	return AlarmNone
}

// alarmLegacy will score threats from the four broadcast velocity
// samples directly. Not implemented; placeholder keeps the selector
// stable for configurations that name it.
func alarmLegacy(self, fo *Track) AlarmLevel {
	return AlarmNone
}
