// Package engine drives the transceiver: one cooperative 100 ms tick
// that refreshes the own track from GNSS, drains the radio, sweeps the
// tracking table, exports the dataport sentences and rate-gates the
// transmitter.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"flarm-ng/internal/config"
	"flarm-ng/internal/gps"
	"flarm-ng/internal/legacy"
	"flarm-ng/internal/nmea"
	"flarm-ng/internal/radio"
	"flarm-ng/internal/rx"
	"flarm-ng/internal/sound"
	"flarm-ng/internal/traffic"
	"flarm-ng/internal/tx"
)

// TickInterval is the cadence of the cooperative main loop.
const TickInterval = 100 * time.Millisecond

// ticksPerExport paces the dataport report at 1 Hz.
const ticksPerExport = 10

const (
	addrTypeFlarm     = 2
	addrTypeAnonymous = 3
)

// GNSS is the position source collaborator.
type GNSS interface {
	Snapshot() gps.Snapshot
}

// Baro supplies pressure altitude when a sensor is attached.
type Baro interface {
	PressureAltM() (float64, bool)
}

// Deps are the engine collaborators. Sound, Wind, Baro, Out and Metrics
// may be left nil for sensible defaults.
type Deps struct {
	Radio   radio.Transport
	GNSS    GNSS
	Sound   sound.Notifier
	Wind    Wind
	Baro    Baro
	Out     func(sentence string)
	Metrics *Metrics
}

// TargetStatus is one tracked aircraft in the status snapshot, nearest
// first.
type TargetStatus struct {
	Addr       string  `json:"addr"`
	DistanceM  float64 `json:"distance_m"`
	BearingDeg float64 `json:"bearing_deg"`
	AltDiffM   float64 `json:"alt_diff_m"`
	Alarm      string  `json:"alarm"`
}

// Status is the engine state published once per export cycle.
type Status struct {
	Addr     string `json:"addr"`
	AddrType uint8  `json:"addr_type"`
	Airborne bool   `json:"airborne"`

	Tracked   int    `json:"tracked"`
	Capacity  int    `json:"capacity"`
	RxPackets uint32 `json:"rx_packets"`
	TxPackets uint32 `json:"tx_packets"`

	GNSS gps.Snapshot `json:"gnss"`

	WindNSMps *float64 `json:"wind_ns_mps,omitempty"`
	WindEWMps *float64 `json:"wind_ew_mps,omitempty"`

	Targets []TargetStatus `json:"targets,omitempty"`
}

type Engine struct {
	cfg config.Config

	self     traffic.Track
	table    *traffic.Table
	rxp      *rx.Pipeline
	txp      *tx.Pipeline
	airborne traffic.AirborneEstimator

	radioT  radio.Transport
	gnss    GNSS
	sound   sound.Notifier
	wind    Wind
	baro    Baro
	out     func(string)
	metrics *Metrics

	exporter  *nmea.Exporter
	handshake *nmea.Handshake

	txEnabled bool
	rxCount   uint32
	ticks     int
	rxClosed  bool

	// The cipher keys on the GNSS second; the host clock is steered by
	// the receiver time through this offset.
	gnssOffset time.Duration
	lastFixRef string
	prevAltM   float64
	prevAltMs  int64

	status atomic.Value // Status
}

func New(cfg config.Config, deps Deps) (*Engine, error) {
	if deps.Radio == nil {
		return nil, fmt.Errorf("engine: radio transport is required")
	}
	if deps.GNSS == nil {
		return nil, fmt.Errorf("engine: gnss source is required")
	}

	scorer, err := traffic.NewScorer(traffic.AlarmMethod(cfg.Traffic.AlarmMethod))
	if err != nil {
		return nil, err
	}
	table := traffic.NewTable(traffic.TableConfig{Capacity: cfg.Traffic.Capacity}, scorer)

	var ignoreID uint32
	if cfg.Traffic.IgnoreID != "" {
		if ignoreID, err = config.ParseID(cfg.Traffic.IgnoreID); err != nil {
			return nil, err
		}
	}
	var followID uint32
	if cfg.Traffic.FollowID != "" {
		if followID, err = config.ParseID(cfg.Traffic.FollowID); err != nil {
			return nil, err
		}
	}

	rxp, err := rx.New(rx.Config{IgnoreID: ignoreID}, table)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		table:     table,
		rxp:       rxp,
		txp:       tx.New(time.Now().UnixNano()),
		radioT:    deps.Radio,
		gnss:      deps.GNSS,
		sound:     deps.Sound,
		wind:      deps.Wind,
		baro:      deps.Baro,
		out:       deps.Out,
		metrics:   deps.Metrics,
		exporter:  &nmea.Exporter{FollowID: followID},
		handshake: nmea.NewHandshake("SRF", "NG"),
		txEnabled: cfg.Radio.TxPower != "off",
	}
	if e.sound == nil {
		e.sound = sound.Silent{}
	}
	if e.wind == nil {
		e.wind = NoWind{}
	}
	if e.out == nil {
		e.out = func(string) {}
	}
	if e.metrics == nil {
		e.metrics = NewMetrics()
	}

	switch cfg.Aircraft.IDMethod {
	case "random":
		e.self.Addr = RandomID(time.Now().UnixMilli(), true)
		e.self.AddrType = addrTypeAnonymous
	default:
		addr, err := config.ParseID(cfg.Aircraft.ID)
		if err != nil {
			return nil, err
		}
		e.self.Addr = addr
		e.self.AddrType = addrTypeFlarm
	}
	e.self.AircraftType = uint8(cfg.Aircraft.Type)
	e.self.Stealth = cfg.Aircraft.Stealth
	e.self.NoTrack = cfg.Aircraft.NoTrack

	e.status.Store(Status{Addr: fmt.Sprintf("%06X", e.self.Addr), AddrType: e.self.AddrType, Capacity: table.Capacity()})
	return e, nil
}

// RandomID derives a fresh 20-bit address from a millisecond clock
// sample. random selects the startup-anonymous prefix; the adopted
// prefix marks an address abandoned after an on-air collision.
func RandomID(nowMs int64, random bool) uint32 {
	id := uint32(nowMs)
	id = (id ^ id<<5 ^ id>>5) & 0x000FFFFF
	if random {
		id |= 0x00E00000
	} else {
		id |= 0x00F00000
	}
	return id
}

// Addr is the current on-air address; it changes when a collision
// forces anonymisation.
func (e *Engine) Addr() uint32 { return e.self.Addr }

// Status returns the last published snapshot. Safe from any goroutine.
func (e *Engine) Status() Status {
	v := e.status.Load()
	if v == nil {
		return Status{}
	}
	return v.(Status)
}

// Run drives Tick until the context ends.
func (e *Engine) Run(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	log.Printf("engine started addr=%06X alarm=%s capacity=%d",
		e.self.Addr, e.cfg.Traffic.AlarmMethod, e.table.Capacity())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			nowMs := now.Sub(start).Milliseconds()
			e.Tick(nowMs, now.Add(e.gnssOffset).Unix())
		}
	}
}

// Tick runs one 100 ms cycle. nowMs is a monotonic millisecond clock,
// nowSec the GNSS-steered UTC second.
func (e *Engine) Tick(nowMs, nowSec int64) {
	snap := e.gnss.Snapshot()

	e.updateSelf(snap, nowMs, nowSec)
	e.drainRadio(nowMs, nowSec)
	e.sweep(nowSec)

	e.ticks++
	if e.ticks%ticksPerExport == 0 {
		e.export(snap, nowMs, nowSec)
	}

	e.transmit(snap, nowMs, nowSec)
}

func (e *Engine) updateSelf(snap gps.Snapshot, nowMs, nowSec int64) {
	havePressure := false
	pressureAltM := 0.0
	if e.baro != nil {
		pressureAltM, havePressure = e.baro.PressureAltM()
	}

	if !snap.Valid {
		e.airborne.Update(&e.self, pressureAltM, havePressure, nowMs)
		return
	}

	newFix := snap.LastFixUTC != e.lastFixRef
	e.lastFixRef = snap.LastFixUTC

	e.self.Lat = snap.LatDeg
	e.self.Lon = snap.LonDeg
	if snap.GeoidSepM != nil {
		e.self.GeoidSep = *snap.GeoidSepM
	}
	if snap.SpeedMps != nil {
		e.self.SpeedMps = *snap.SpeedMps
	}
	if snap.CourseDeg != nil && newFix {
		e.self.ObserveCourse(*snap.CourseDeg, nowMs)
	}

	if snap.AltMeters != nil {
		alt := *snap.AltMeters
		if snap.ClimbMps != nil {
			e.self.VSMps = *snap.ClimbMps
		} else if newFix && e.prevAltMs != 0 && nowMs > e.prevAltMs {
			vs := (alt - e.prevAltM) * 1000 / float64(nowMs-e.prevAltMs)
			if vs > 10 {
				vs = 10
			}
			if vs < -10 {
				vs = -10
			}
			e.self.VSMps = vs
		}
		if newFix {
			e.prevAltM = alt
			e.prevAltMs = nowMs
		}
		e.self.AltMeters = alt
	}

	if newFix {
		e.self.Timestamp = nowSec
		e.self.SeenMs = nowMs
		e.self.InvalidateProjection()
		if !snap.TimeUTC.IsZero() {
			e.gnssOffset = time.Until(snap.TimeUTC)
		}
	}

	e.airborne.Update(&e.self, pressureAltM, havePressure, nowMs)
}

func (e *Engine) drainRadio(nowMs, nowSec int64) {
	if e.rxClosed {
		return
	}
	for {
		select {
		case f, ok := <-e.radioT.Frames():
			if !ok {
				e.rxClosed = true
				return
			}
			e.receive(f, nowMs, nowSec)
		default:
			return
		}
	}
}

func (e *Engine) receive(f radio.Frame, nowMs, nowSec int64) {
	if e.cfg.NMEA.DebugRaw {
		e.out(nmea.PSRFI(nowSec, f.Data, f.RSSI))
	}

	tr, err := e.rxp.Process(&e.self, f.Data, e.txp.LastPayload(), f.RSSI, nowSec, nowMs)
	switch {
	case err == nil:
		e.rxCount++
		e.metrics.RxPackets.Inc()
		if tr != nil && e.cfg.NMEA.DebugDecoded {
			e.out(nmea.PSRFL(tr))
		}
	case errors.Is(err, rx.ErrLoopback):
		e.metrics.RxLoopbackRejects.Inc()
		e.out(nmea.PSRFE("RF loopback is detected"))
	case errors.Is(err, rx.ErrDuplicate):
		e.metrics.RxDuplicates.Inc()
	case errors.Is(err, rx.ErrIgnored):
	case errors.Is(err, rx.ErrOwnAddress):
		old := e.self.Addr
		e.self.Addr = RandomID(nowMs, false)
		e.self.AddrType = addrTypeAnonymous
		log.Printf("own address %06X heard on air, adopted %06X", old, e.self.Addr)
	case errors.Is(err, legacy.ErrParity):
		e.metrics.RxParityRejects.Inc()
		e.out(nmea.PSRFE("bad parity of decoded packet"))
	case errors.Is(err, traffic.ErrFull):
		e.metrics.TableDrops.Inc()
	default:
		log.Printf("rx decode failed: %v", err)
	}
}

func (e *Engine) sweep(nowSec int64) {
	level, loudest := e.table.Sweep(&e.self, nowSec)
	if loudest == nil {
		return
	}
	e.sound.Alert(level, loudest.Addr, loudest.DistanceM)
	loudest.MarkAlerted()
	e.metrics.AlertsFired.Inc()
}

func (e *Engine) export(snap gps.Snapshot, nowMs, nowSec int64) {
	st := nmea.Status{
		TXEnabled: e.txEnabled,
		HasFix:    snap.Valid,
		PowerGood: true,
		RxPackets: e.rxCount,
		TxPackets: e.txp.Count(),
	}
	for _, s := range e.exporter.Export(&e.self, e.table.Live(), st, nowSec) {
		e.out(s)
	}
	if e.baro != nil {
		if alt, ok := e.baro.PressureAltM(); ok {
			e.out(nmea.PGRMZ(alt, snap.Valid))
		}
	}
	for _, s := range e.handshake.Emit(nowMs) {
		e.out(s)
	}

	e.publishStatus(snap)
}

func (e *Engine) publishStatus(snap gps.Snapshot) {
	st := Status{
		Addr:      fmt.Sprintf("%06X", e.self.Addr),
		AddrType:  e.self.AddrType,
		Airborne:  e.self.Airborne,
		Tracked:   e.table.Count(),
		Capacity:  e.table.Capacity(),
		RxPackets: e.rxCount,
		TxPackets: e.txp.Count(),
		GNSS:      snap,
	}
	if ns, ew, ok := e.wind.Best(); ok {
		st.WindNSMps = &ns
		st.WindEWMps = &ew
	}
	for _, tr := range e.table.ByDistance() {
		st.Targets = append(st.Targets, TargetStatus{
			Addr:       fmt.Sprintf("%06X", tr.Addr),
			DistanceM:  tr.DistanceM,
			BearingDeg: tr.BearingDeg,
			AltDiffM:   tr.AltDiffM,
			Alarm:      tr.Alarm.String(),
		})
	}
	e.status.Store(st)
}

func (e *Engine) transmit(snap gps.Snapshot, nowMs, nowSec int64) {
	if !e.txEnabled || !snap.Valid {
		return
	}
	if !e.txp.Due(nowMs) {
		return
	}
	raw, err := e.txp.Encode(&e.self, nowSec, nowMs)
	if err != nil {
		log.Printf("tx encode failed: %v", err)
		return
	}
	if err := e.radioT.Send(raw); err != nil {
		log.Printf("radio send failed: %v", err)
		return
	}
	e.metrics.TxPackets.Inc()
}
