// Package sound annunciates collision alerts on the host desktop. The
// real transceiver drives a piezo; on a bench the best available
// equivalent is a system notification plus a beep.
package sound

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"flarm-ng/internal/traffic"
)

// Notifier receives alarm transitions from the tracking table.
type Notifier interface {
	Alert(level traffic.AlarmLevel, addr uint32, distanceM float64)
}

// repeatInterval suppresses re-announcing the same target at the same
// level in quick succession.
const repeatInterval = 4 * time.Second

type lastAlert struct {
	level traffic.AlarmLevel
	at    time.Time
}

// Desktop plays alerts through the freedesktop/dbus notification
// daemon. Failures are recorded, never fatal.
type Desktop struct {
	mu      sync.Mutex
	seen    map[uint32]lastAlert
	now     func() time.Time
	notify  func(title, message string, icon any) error
	beep    func(freq float64, duration int) error
	lastErr error
}

func NewDesktop(appName string) *Desktop {
	beeep.AppName = appName
	return &Desktop{
		seen:   make(map[uint32]lastAlert),
		now:    time.Now,
		notify: beeep.Notify,
		beep:   beeep.Beep,
	}
}

func (d *Desktop) Alert(level traffic.AlarmLevel, addr uint32, distanceM float64) {
	if level < traffic.AlarmLow {
		return
	}

	d.mu.Lock()
	prev, ok := d.seen[addr]
	now := d.now()
	if ok && prev.level >= level && now.Sub(prev.at) < repeatInterval {
		d.mu.Unlock()
		return
	}
	d.seen[addr] = lastAlert{level: level, at: now}
	d.mu.Unlock()

	title := "Traffic"
	freq := beeep.DefaultFreq
	switch level {
	case traffic.AlarmImportant:
		title = "Traffic - Important"
		freq = 880.0
	case traffic.AlarmUrgent:
		title = "Traffic - Urgent"
		freq = 1760.0
	}
	body := fmt.Sprintf("%06X at %.0f m", addr, distanceM)

	if err := d.notify(title, body, ""); err != nil {
		d.setErr(err)
	}
	if err := d.beep(freq, beeep.DefaultDuration); err != nil {
		d.setErr(err)
	}
}

func (d *Desktop) setErr(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

// LastError reports the most recent annunciation failure.
func (d *Desktop) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Silent discards all alerts.
type Silent struct{}

func (Silent) Alert(traffic.AlarmLevel, uint32, float64) {}
