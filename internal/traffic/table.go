package traffic

import (
	"errors"
	"sort"
)

// ErrFull means no replacement policy admitted the incoming target.
var ErrFull = errors.New("traffic: table full")

// TableConfig sizes the tracking table.
type TableConfig struct {
	Capacity int
}

// Table is the fixed-capacity directory of tracked aircraft. An empty
// slot has address 0. The table is owned by the main loop and is not
// safe for concurrent use; callers needing cross-goroutine views copy
// under their own lock.
type Table struct {
	slots  []Track
	scorer Scorer
}

func NewTable(cfg TableConfig, scorer Scorer) *Table {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &Table{
		slots:  make([]Track, capacity),
		scorer: scorer,
	}
}

func (tb *Table) Capacity() int { return len(tb.slots) }

// Count returns the number of occupied slots.
func (tb *Table) Count() int {
	n := 0
	for i := range tb.slots {
		if tb.slots[i].Addr != 0 {
			n++
		}
	}
	return n
}

// Insert files a freshly decoded target. fo.Timestamp must carry the
// current UTC second. Replacement order when the address is new and the
// table is full: expired slot, then any lower-alarm slot, then the
// farthest slot if the incoming target is closer and at least as urgent.
func (tb *Table) Insert(self *Track, fo Track) error {
	UpdateRelative(self, &fo, tb.scorer)

	expiry := int64(EntryExpiration.Seconds())

	// Refresh a tracked target in place, preserving alert state and
	// the course history that feeds turn rate estimation.
	for i := range tb.slots {
		s := &tb.slots[i]
		if s.Addr != 0 && s.Addr == fo.Addr {
			prevCourse := s.CourseDeg
			prevSeen := s.SeenMs
			alerted := s.Alerted
			level := s.AlertLevel
			*s = fo
			s.PrevCourseDeg = prevCourse
			s.PrevSeenMs = prevSeen
			s.Alerted = alerted
			s.AlertLevel = level
			return nil
		}
	}

	for i := range tb.slots {
		if fo.Timestamp-tb.slots[i].Timestamp > expiry {
			tb.slots[i] = fo
			return nil
		}
	}

	for i := range tb.slots {
		if fo.Alarm > tb.slots[i].Alarm {
			tb.slots[i] = fo
			return nil
		}
	}

	maxIdx := 0
	maxAdj := 0.0
	for i := range tb.slots {
		if adj := AdjDistance(self, &tb.slots[i]); adj > maxAdj {
			maxIdx = i
			maxAdj = adj
		}
	}
	if AdjDistance(self, &fo) < maxAdj && fo.Alarm >= tb.slots[maxIdx].Alarm {
		tb.slots[maxIdx] = fo
		return nil
	}

	return ErrFull
}

// Sweep ages the table: expired slots are zeroed, stale relative
// geometry is recomputed, and the loudest track whose alarm has climbed
// past its alert level (and past the advisory tier) is returned for the
// sound collaborator. Call MarkAlerted on it once the sound fired.
func (tb *Table) Sweep(self *Track, nowSec int64) (AlarmLevel, *Track) {
	expiry := int64(EntryExpiration.Seconds())
	updateAge := int64(UpdateInterval.Seconds())

	maxLevel := AlarmNone
	var loudest *Track

	for i := range tb.slots {
		fop := &tb.slots[i]
		if fop.Addr == 0 {
			continue
		}
		if nowSec-fop.Timestamp > expiry {
			*fop = Track{}
			continue
		}
		if nowSec-fop.Timestamp >= updateAge {
			UpdateRelative(self, fop, tb.scorer)
		}
		if fop.Alarm > fop.AlertLevel && fop.Alarm > AlarmClose &&
			fop.Alarm > maxLevel {
			maxLevel = fop.Alarm
			loudest = fop
		}
	}

	return maxLevel, loudest
}

// MarkAlerted records that a sound fired for this track and raises the
// re-alert threshold one level above the current alarm.
func (t *Track) MarkAlerted() {
	t.AlertLevel = t.Alarm + 1
	t.Alerted = true
}

// Live returns pointers to the occupied slots. The slice is rebuilt on
// every call; the pointers stay valid until the next table mutation.
func (tb *Table) Live() []*Track {
	out := make([]*Track, 0, len(tb.slots))
	for i := range tb.slots {
		if tb.slots[i].Addr != 0 {
			out = append(out, &tb.slots[i])
		}
	}
	return out
}

// ByDistance returns the occupied slots ordered by raw horizontal
// distance, nearest first. Used for status export and displays, which
// want geometric rather than threat order.
func (tb *Table) ByDistance() []*Track {
	out := tb.Live()
	sort.Slice(out, func(i, j int) bool {
		return out[i].DistanceM < out[j].DistanceM
	})
	return out
}

// Snapshot copies the occupied slots for use outside the main loop.
func (tb *Table) Snapshot() []Track {
	out := make([]Track, 0, len(tb.slots))
	for i := range tb.slots {
		if tb.slots[i].Addr != 0 {
			out = append(out, tb.slots[i])
		}
	}
	return out
}
