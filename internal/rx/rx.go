// Package rx turns raw radio payloads into tracking table entries:
// loopback and duplicate rejection, decryption, address filtering.
package rx

import (
	"bytes"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"flarm-ng/internal/legacy"
	"flarm-ng/internal/traffic"
)

var (
	// ErrLoopback means the payload is our own last transmission
	// reflected back by the radio front end.
	ErrLoopback = errors.New("rx: RF loopback detected")
	// ErrDuplicate means the identical ciphertext was already
	// processed inside the dedupe window.
	ErrDuplicate = errors.New("rx: duplicate payload")
	// ErrIgnored means the address is filtered by configuration.
	ErrIgnored = errors.New("rx: ignored address")
	// ErrOwnAddress means a third party transmits with our address;
	// the caller must adopt a random anonymous address.
	ErrOwnAddress = errors.New("rx: own address received")
)

// dedupeWindowMs is shorter than the 0.8 s minimum transmit interval,
// so two airings of the same aircraft never collapse into one.
const dedupeWindowMs = 700

type Config struct {
	IgnoreID   uint32
	DedupeSize int
}

// Pipeline processes received payloads for one table.
type Pipeline struct {
	table    *traffic.Table
	ignoreID uint32
	seen     *lru.Cache[string, int64]
}

func New(cfg Config, table *traffic.Table) (*Pipeline, error) {
	size := cfg.DedupeSize
	if size <= 0 {
		size = 64
	}
	seen, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("rx: dedupe cache: %w", err)
	}
	return &Pipeline{
		table:    table,
		ignoreID: cfg.IgnoreID,
		seen:     seen,
	}, nil
}

// Process validates, decodes and files one payload. lastTX is the most
// recent transmitted payload for the loopback guard (nil when we have
// not transmitted yet). On success the freshly stored target is
// returned; every rejection comes back as one of the sentinel errors or
// a decode error from the codec.
func (p *Pipeline) Process(self *traffic.Track, payload, lastTX []byte, rssi int, nowSec, nowMs int64) (*traffic.Track, error) {
	if len(lastTX) > 0 && bytes.Equal(payload, lastTX) {
		return nil, ErrLoopback
	}

	key := string(payload)
	if seenMs, ok := p.seen.Get(key); ok && nowMs-seenMs < dedupeWindowMs {
		return nil, ErrDuplicate
	}
	p.seen.Add(key, nowMs)

	pkt, err := legacy.Decode(payload, self.Lat, self.Lon, uint32(nowSec))
	if err != nil {
		return nil, err
	}

	if pkt.Addr == p.ignoreID && p.ignoreID != 0 {
		return nil, ErrIgnored
	}
	if pkt.Addr == self.Addr {
		return nil, ErrOwnAddress
	}

	fo := traffic.Track{
		Addr:         pkt.Addr,
		AddrType:     pkt.AddrType,
		AircraftType: pkt.AircraftType,
		Stealth:      pkt.Stealth,
		NoTrack:      pkt.NoTrack,
		Airborne:     pkt.Airborne,
		Lat:          pkt.Lat,
		Lon:          pkt.Lon,
		AltMeters:    float64(pkt.AltMeters) - self.GeoidSep,
		SpeedMps:     pkt.SpeedMps,
		CourseDeg:    pkt.CourseDeg,
		TurnRateDps:  pkt.TurnRateDps,
		VSMps:        pkt.VSMps,
		NS:           [2]int16{pkt.NS[0], pkt.NS[1]},
		EW:           [2]int16{pkt.EW[0], pkt.EW[1]},
		RSSI:         rssi,
		Timestamp:    nowSec,
		SeenMs:       nowMs,
	}

	if err := p.table.Insert(self, fo); err != nil {
		return nil, err
	}

	// Insert may have refreshed an existing slot; hand back the live one.
	for _, tr := range p.table.Live() {
		if tr.Addr == fo.Addr {
			return tr, nil
		}
	}
	return nil, nil
}
