// Package tx builds and rate-gates our own position broadcasts.
package tx

import (
	"math/rand"

	"flarm-ng/internal/legacy"
	"flarm-ng/internal/traffic"
)

// Transmit interval bounds in milliseconds. The jitter keeps two units
// from colliding on the same slot forever.
const (
	intervalMinMs = 800
	intervalMaxMs = 1200
)

// Pipeline decides when to transmit and produces the encoded frame.
type Pipeline struct {
	lastTxMs    int64
	nextDelayMs int64
	lastPayload []byte
	count       uint32
	rng         *rand.Rand
}

func New(seed int64) *Pipeline {
	p := &Pipeline{rng: rand.New(rand.NewSource(seed))}
	p.nextDelayMs = p.jitter()
	return p
}

func (p *Pipeline) jitter() int64 {
	return intervalMinMs + p.rng.Int63n(intervalMaxMs-intervalMinMs+1)
}

// Due reports whether the rate gate permits a transmission now. The
// radio transports send at once; no slot timing is added on top of this.
func (p *Pipeline) Due(nowMs int64) bool {
	return nowMs-p.lastTxMs >= p.nextDelayMs
}

// Encode projects the own track and builds the on-air frame. nowSec is
// the GNSS UTC second, which both sides feed into the cipher key.
func (p *Pipeline) Encode(self *traffic.Track, nowSec, nowMs int64) ([]byte, error) {
	ns, ew := self.Project(nowMs)

	pkt := legacy.Packet{
		Addr:         self.Addr,
		AddrType:     self.AddrType,
		AircraftType: self.AircraftType,
		Stealth:      self.Stealth,
		NoTrack:      self.NoTrack,
		Airborne:     self.Airborne,
		Lat:          self.Lat,
		Lon:          self.Lon,
		AltMeters:    int(self.AltMeters + self.GeoidSep),
		VSMps:        self.VSMps,
		SpeedMps:     self.SpeedMps,
		NS:           ns,
		EW:           ew,
	}

	raw, err := legacy.Encode(&pkt, uint32(nowSec))
	if err != nil {
		return nil, err
	}

	p.lastTxMs = nowMs
	p.nextDelayMs = p.jitter()
	p.lastPayload = raw
	p.count++
	return raw, nil
}

// LastPayload is the most recent frame handed to the radio, used by the
// receive side as its loopback reference.
func (p *Pipeline) LastPayload() []byte { return p.lastPayload }

// Count is the number of frames encoded since start, reported in the
// heartbeat sentence.
func (p *Pipeline) Count() uint32 { return p.count }
