// Package nmea renders the FLARM dataport sentences from the tracking
// table and parses the configuration sentences a client sends back.
package nmea

import (
	"fmt"
	"sort"

	"flarm-ng/internal/geom"
	"flarm-ng/internal/traffic"
)

// MaxObjects bounds the PFLAA burst per export cycle.
const MaxObjects = 12

const (
	// Targets older than this are not exported even while they still
	// occupy a table slot.
	exportExpirationSec = 5

	// A silent target is reported only inside this vertical band.
	visibilityRangeM = 500.0

	// Stealth targets outside this envelope are withheld entirely
	// while no meaningful alarm is active.
	stealthDistanceM = 8000.0
	stealthVerticalM = 300.0
)

// PFLAU status field codes.
const (
	txOff = 0
	txOn  = 1

	gnssNone   = 0
	gnssGround = 1
	gnssMoving = 2

	powerBad  = 0
	powerGood = 1

	alarmTypeAircraft = 2
)

// Checksum is the XOR of the sentence body, the bytes between "$" and "*".
func Checksum(body string) byte {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

// Sentence frames a body into a complete dataport line.
func Sentence(body string) string {
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}

// Status carries the transceiver state reported through PFLAU and the
// PSRFH heartbeat.
type Status struct {
	TXEnabled bool
	HasFix    bool
	PowerGood bool
	RxPackets uint32
	TxPackets uint32

	// Battery in centivolts, 0 when unknown.
	BatteryCV int
}

// Exporter builds the per-cycle traffic report: up to MaxObjects PFLAA
// sentences plus exactly one PFLAU, with a PSRFH heartbeat folded in
// every tenth cycle.
type Exporter struct {
	FollowID uint32

	beatCount int
}

type candidate struct {
	tr      *traffic.Track
	stealth bool
	adjDist float64
}

// Export renders one report cycle. tracks is the live table view; the
// self track supplies the reference course and the reciprocal stealth
// flag.
func (e *Exporter) Export(self *traffic.Track, tracks []*traffic.Track, st Status, nowSec int64) []string {
	var out []string
	var cands []candidate

	if st.HasFix {
		for _, tr := range tracks {
			if tr.Addr == 0 || nowSec-tr.Timestamp > exportExpirationSec {
				continue
			}
			stealth := tr.Stealth || self.Stealth

			if stealth && tr.Alarm <= traffic.AlarmClose &&
				(tr.DistanceM > stealthDistanceM || absF(tr.AltDiffM) > stealthVerticalM) {
				continue
			}

			if tr.Alarm > traffic.AlarmNone ||
				(tr.DistanceM < traffic.ZoneNone && absF(traffic.AdjAltDiff(self, tr)) < visibilityRangeM) ||
				(e.FollowID != 0 && tr.Addr == e.FollowID) {
				cands = append(cands, candidate{tr, stealth, traffic.AdjDistance(self, tr)})
			}
		}

		sort.Slice(cands, func(i, j int) bool {
			a, b := cands[i], cands[j]
			if e.FollowID != 0 {
				af, bf := a.tr.Addr == e.FollowID, b.tr.Addr == e.FollowID
				if af != bf {
					return af
				}
			}
			if a.tr.Alarm != b.tr.Alarm {
				return a.tr.Alarm > b.tr.Alarm
			}
			return a.adjDist < b.adjDist
		})

		for i, c := range cands {
			if i >= MaxObjects {
				break
			}
			// With a full burst the leader is already carried by PFLAU.
			if len(cands) >= MaxObjects && i == 0 {
				continue
			}
			out = append(out, pflaa(c, i))
		}
	}

	out = append(out, e.pflau(self, cands, st))

	e.beatCount++
	if e.beatCount >= 10 {
		e.beatCount = 0
		out = append(out, Sentence(fmt.Sprintf("PSRFH,%06X,%d,%d,%d,%d",
			self.Addr, 0, st.RxPackets, st.TxPackets, st.BatteryCV)))
	}
	return out
}

func pflaa(c candidate, index int) string {
	tr := c.tr

	alarm := int(tr.Alarm)
	if alarm > 0 {
		alarm--
	}

	dy := int(tr.DistanceM * geom.CosDeg(tr.BearingDeg))
	dx := int(tr.DistanceM * geom.SinDeg(tr.BearingDeg))
	altDiff := int(tr.AltDiffM)

	addrType := tr.AddrType
	if addrType > 3 {
		addrType = 3
	}
	id := tr.Addr

	course := int(tr.CourseDeg)
	speed := int(tr.SpeedMps)
	climb := fmt.Sprintf("%.1f", clampF(tr.VSMps, -32.7, 32.7))

	if c.stealth {
		id = 0xFFFFF0 + uint32(index)
		addrType = 3
		altDiff = (altDiff &^ 0xFF) + 128
		course = 0
		speed = 0
		climb = ""
	}

	return Sentence(fmt.Sprintf("PFLAA,%d,%d,%d,%d,%d,%06X!FLR_%06X,%d,,%d,%s,%d",
		alarm, dy, dx, altDiff, addrType, id, id, course, speed, climb, tr.AircraftType))
}

func (e *Exporter) pflau(self *traffic.Track, cands []candidate, st Status) string {
	tx := txOff
	if st.TXEnabled && st.HasFix {
		tx = txOn
	}
	pwr := powerBad
	if st.PowerGood {
		pwr = powerGood
	}

	if len(cands) == 0 {
		gnss := gnssNone
		if st.HasFix {
			gnss = gnssMoving
		}
		return Sentence(fmt.Sprintf("PFLAU,0,%d,%d,%d,0,,0,,,", tx, gnss, pwr))
	}

	hp := cands[0]
	gnss := gnssGround
	if self.Airborne {
		gnss = gnssMoving
	}

	alarm := int(hp.tr.Alarm)
	if alarm > 0 {
		alarm--
	}
	altDiff := int(hp.tr.AltDiffM)
	addr := hp.tr.Addr
	if hp.stealth {
		addr = 0xFFFFF0
		altDiff = (altDiff &^ 0xFF) + 128
	}

	relBearing := int(hp.tr.BearingDeg - self.CourseDeg)
	if relBearing < -180 {
		relBearing += 360
	} else if relBearing > 180 {
		relBearing -= 360
	}

	return Sentence(fmt.Sprintf("PFLAU,%d,%d,%d,%d,%d,%d,%d,%d,%d,%06X",
		len(cands), tx, gnss, pwr, alarm, relBearing,
		alarmTypeAircraft, altDiff, int(hp.tr.DistanceM), addr))
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
