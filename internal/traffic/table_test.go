package traffic

import (
	"testing"
)

func fixedScorer(level AlarmLevel) Scorer {
	return func(self, fo *Track) AlarmLevel { return level }
}

// addrScorer scores targets by address so tests can pin levels per slot.
func addrScorer(levels map[uint32]AlarmLevel) Scorer {
	return func(self, fo *Track) AlarmLevel { return levels[fo.Addr] }
}

func tableSelf() *Track {
	s := testSelf()
	s.Timestamp = 1000
	return s
}

func incoming(addr uint32, lonOffset float64, ts int64) Track {
	return Track{
		Addr:      addr,
		Lat:       48.0,
		Lon:       8.0 + lonOffset,
		AltMeters: 1000,
		Timestamp: ts,
		SeenMs:    ts * 1000,
	}
}

func TestInsertAndCount(t *testing.T) {
	tb := NewTable(TableConfig{Capacity: 4}, fixedScorer(AlarmNone))
	self := tableSelf()

	for i := 0; i < 3; i++ {
		if err := tb.Insert(self, incoming(uint32(0x100+i), 0.01, 1000)); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}
	if got := tb.Count(); got != 3 {
		t.Fatalf("Count = %d, want 3", got)
	}
}

func TestInsertRefreshPreservesHistory(t *testing.T) {
	tb := NewTable(TableConfig{Capacity: 4}, fixedScorer(AlarmNone))
	self := tableSelf()

	first := incoming(0x123456, 0.01, 1000)
	first.CourseDeg = 90
	if err := tb.Insert(self, first); err != nil {
		t.Fatal(err)
	}

	// Simulate alert state accumulated between receptions.
	slot := tb.Live()[0]
	slot.AlertLevel = AlarmImportant
	slot.Alerted = true

	second := incoming(0x123456, 0.011, 1002)
	second.CourseDeg = 95
	if err := tb.Insert(self, second); err != nil {
		t.Fatal(err)
	}

	if got := tb.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1 after refresh", got)
	}
	slot = tb.Live()[0]
	if slot.CourseDeg != 95 {
		t.Errorf("CourseDeg = %v, want refreshed 95", slot.CourseDeg)
	}
	if slot.PrevCourseDeg != 90 {
		t.Errorf("PrevCourseDeg = %v, want 90 from the previous fix", slot.PrevCourseDeg)
	}
	if slot.PrevSeenMs != 1000*1000 {
		t.Errorf("PrevSeenMs = %v, want the previous SeenMs", slot.PrevSeenMs)
	}
	if slot.AlertLevel != AlarmImportant || !slot.Alerted {
		t.Error("alert state was not preserved across refresh")
	}
}

func TestInsertReplacesExpired(t *testing.T) {
	tb := NewTable(TableConfig{Capacity: 2}, fixedScorer(AlarmNone))
	self := tableSelf()

	if err := tb.Insert(self, incoming(0xA, 0.01, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := tb.Insert(self, incoming(0xB, 0.01, 1030)); err != nil {
		t.Fatal(err)
	}

	// 0xA is now 31 s old and should give up its slot.
	if err := tb.Insert(self, incoming(0xC, 0.01, 1031)); err != nil {
		t.Fatalf("Insert into expired slot: %v", err)
	}

	addrs := map[uint32]bool{}
	for _, tr := range tb.Live() {
		addrs[tr.Addr] = true
	}
	if addrs[0xA] || !addrs[0xB] || !addrs[0xC] {
		t.Fatalf("retained set = %v, want B and C", addrs)
	}
}

func TestInsertReplacesLowerAlarm(t *testing.T) {
	levels := map[uint32]AlarmLevel{0xA: AlarmNone, 0xB: AlarmClose, 0xC: AlarmImportant}
	tb := NewTable(TableConfig{Capacity: 2}, addrScorer(levels))
	self := tableSelf()

	tb.Insert(self, incoming(0xA, 0.01, 1000))
	tb.Insert(self, incoming(0xB, 0.02, 1000))

	if err := tb.Insert(self, incoming(0xC, 0.03, 1001)); err != nil {
		t.Fatalf("higher alarm target was not admitted: %v", err)
	}

	addrs := map[uint32]bool{}
	for _, tr := range tb.Live() {
		addrs[tr.Addr] = true
	}
	if !addrs[0xC] || !addrs[0xB] || addrs[0xA] {
		t.Fatalf("retained set = %v, want the lowest-alarm slot replaced", addrs)
	}
}

func TestInsertReplacesFarthest(t *testing.T) {
	tb := NewTable(TableConfig{Capacity: 2}, fixedScorer(AlarmNone))
	self := tableSelf()

	tb.Insert(self, incoming(0xA, 0.02, 1000)) // ~1.5 km
	tb.Insert(self, incoming(0xB, 0.08, 1000)) // ~6 km, farthest

	// Closer than the farthest and same alarm level: admitted.
	if err := tb.Insert(self, incoming(0xC, 0.01, 1001)); err != nil {
		t.Fatalf("closer target rejected: %v", err)
	}
	addrs := map[uint32]bool{}
	for _, tr := range tb.Live() {
		addrs[tr.Addr] = true
	}
	if addrs[0xB] || !addrs[0xA] || !addrs[0xC] {
		t.Fatalf("retained set = %v, want farthest replaced", addrs)
	}

	// Farther than everything already tracked: dropped.
	if err := tb.Insert(self, incoming(0xD, 0.30, 1002)); err != ErrFull {
		t.Fatalf("err = %v, want ErrFull", err)
	}
}

func TestOverflowKeepsBound(t *testing.T) {
	tb := NewTable(TableConfig{}, fixedScorer(AlarmNone))
	self := tableSelf()

	for i := 0; i < 9; i++ {
		tb.Insert(self, incoming(uint32(0x200+i), 0.01+float64(i)*0.001, 1000))
	}

	if got := tb.Count(); got > DefaultCapacity {
		t.Fatalf("Count = %d exceeds capacity %d", got, DefaultCapacity)
	}

	seen := map[uint32]int{}
	for _, tr := range tb.Live() {
		seen[tr.Addr]++
	}
	for addr, n := range seen {
		if n > 1 {
			t.Fatalf("address %06X tracked %d times", addr, n)
		}
	}
}

func TestSweepExpires(t *testing.T) {
	tb := NewTable(TableConfig{Capacity: 4}, fixedScorer(AlarmNone))
	self := tableSelf()

	tb.Insert(self, incoming(0xA, 0.01, 1000))
	tb.Insert(self, incoming(0xB, 0.01, 1020))

	tb.Sweep(self, 1031)
	if got := tb.Count(); got != 1 {
		t.Fatalf("Count = %d after sweep, want 1", got)
	}
	if tb.Live()[0].Addr != 0xB {
		t.Fatal("wrong track expired")
	}
}

func TestSweepSoundsTwiceAcrossCycle(t *testing.T) {
	// A target that closes, recedes and closes again: the first and the
	// final approach sound, the intermediate return does not.
	level := AlarmLow
	tb := NewTable(TableConfig{Capacity: 4}, func(self, fo *Track) AlarmLevel { return level })
	self := tableSelf()

	sounds := 0
	sweep := func(nowSec int64) {
		if _, loudest := tb.Sweep(self, nowSec); loudest != nil {
			sounds++
			loudest.MarkAlerted()
		}
	}

	tb.Insert(self, incoming(0xA, 0.005, 1000))
	sweep(1001) // low, first alert

	level = AlarmClose
	sweep(1003)

	level = AlarmLow
	sweep(1005) // back to low: hysteresis keeps it quiet

	level = AlarmImportant
	sweep(1007) // one tier higher: alert again

	if sounds != 2 {
		t.Fatalf("sounds = %d, want 2", sounds)
	}
}

func TestByDistanceOrder(t *testing.T) {
	tb := NewTable(TableConfig{Capacity: 4}, fixedScorer(AlarmNone))
	self := tableSelf()

	tb.Insert(self, incoming(0xA, 0.03, 1000))
	tb.Insert(self, incoming(0xB, 0.01, 1000))
	tb.Insert(self, incoming(0xC, 0.02, 1000))

	got := tb.ByDistance()
	want := []uint32{0xB, 0xC, 0xA}
	for i, tr := range got {
		if tr.Addr != want[i] {
			t.Fatalf("order[%d] = %X, want %X", i, tr.Addr, want[i])
		}
	}
}
