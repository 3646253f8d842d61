package nmea

import (
	"encoding/hex"
	"fmt"
	"strings"

	"flarm-ng/internal/traffic"
)

const feetPerMeter = 3.2808399

// PGRMZ reports the pressure altitude in feet, sent at 1 Hz while a
// barometer is present.
func PGRMZ(pressureAltM float64, valid3D bool) string {
	alt := int(pressureAltM * feetPerMeter)
	if alt < -1000 {
		alt = -1000
	}
	if alt > 60000 {
		alt = 60000
	}
	fix := '1'
	if valid3D {
		fix = '3'
	}
	return Sentence(fmt.Sprintf("PGRMZ,%d,f,%c", alt, fix))
}

// Handshake paces the PFLAE/PFLAV pair that identifies the unit to
// FLARM-aware clients.
type Handshake struct {
	Ident   string
	Version string

	nextMs int64
}

const (
	handshakeFirstMs  = 28000
	handshakePeriodMs = 73000
)

func NewHandshake(ident, version string) *Handshake {
	return &Handshake{Ident: ident, Version: version, nextMs: handshakeFirstMs}
}

// Emit returns the handshake pair when it is time to send one, nil
// otherwise.
func (h *Handshake) Emit(nowMs int64) []string {
	if nowMs < h.nextMs {
		return nil
	}
	h.nextMs = nowMs + handshakePeriodMs
	return []string{
		Sentence("PFLAE,A,0,0"),
		Sentence(fmt.Sprintf("PFLAV,A,2.4,7.20,%s-%s", h.Ident, h.Version)),
	}
}

// PSRFI dumps one raw reception for protocol debugging.
func PSRFI(nowSec int64, raw []byte, rssi int) string {
	return Sentence(fmt.Sprintf("PSRFI,%d,%s,%d",
		nowSec, strings.ToUpper(hex.EncodeToString(raw)), rssi))
}

// PSRFL dumps one decoded reception for protocol debugging.
func PSRFL(tr *traffic.Track) string {
	airborne := 0
	if tr.Airborne {
		airborne = 1
	}
	return Sentence(fmt.Sprintf("PSRFL,%06X,%d,%d,%.5f,%.5f,%.1f,%.1f,%.1f,%d,%d,%d,%d",
		tr.Addr, tr.SeenMs, airborne, tr.Lat, tr.Lon, tr.AltMeters,
		tr.CourseDeg, tr.VSMps, tr.NS[0], tr.NS[1], tr.EW[0], tr.EW[1]))
}

// PSRFE reports a protocol-level fault to the debug stream.
func PSRFE(msg string) string {
	return Sentence("PSRFE," + msg)
}
