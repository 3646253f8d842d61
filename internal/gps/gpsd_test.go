package gps

import (
	"math"
	"testing"
	"time"
)

func TestGPSDState_TPVUpdatesFix(t *testing.T) {
	now := time.Date(2025, 12, 22, 12, 0, 0, 0, time.UTC)
	st := newGPSDState("127.0.0.1:2947")

	// scaled=true reports speed/climb in m/s and altitude in meters.
	line := `{"class":"TPV","mode":3,"time":"2025-12-22T12:00:00.000Z","lat":45.5,"lon":-122.9,"altMSL":100.0,"speed":50.0,"track":270.0,"climb":1.0}`
	updated, err := st.applyLine(now, line)
	if err != nil {
		t.Fatalf("applyLine err: %v", err)
	}
	if !updated {
		t.Fatalf("expected updated")
	}

	snap := st.snapshot()
	if !snap.Valid {
		t.Fatalf("expected valid")
	}
	if math.Abs(snap.LatDeg-45.5) > 1e-9 {
		t.Fatalf("lat=%v", snap.LatDeg)
	}
	if math.Abs(snap.LonDeg-(-122.9)) > 1e-9 {
		t.Fatalf("lon=%v", snap.LonDeg)
	}
	if snap.SpeedMps == nil || math.Abs(*snap.SpeedMps-50.0) > 1e-9 {
		t.Fatalf("speed_mps=%v", snap.SpeedMps)
	}
	if snap.CourseDeg == nil || math.Abs(*snap.CourseDeg-270.0) > 1e-9 {
		t.Fatalf("course=%v", snap.CourseDeg)
	}
	if snap.AltMeters == nil || math.Abs(*snap.AltMeters-100.0) > 1e-9 {
		t.Fatalf("alt_m=%v", snap.AltMeters)
	}
	if snap.ClimbMps == nil || math.Abs(*snap.ClimbMps-1.0) > 1e-9 {
		t.Fatalf("climb_mps=%v", snap.ClimbMps)
	}
	if snap.FixMode == nil || *snap.FixMode != 3 {
		t.Fatalf("fix_mode=%v", snap.FixMode)
	}
	if !snap.TimeUTC.Equal(now) {
		t.Fatalf("time_utc=%v want %v", snap.TimeUTC, now)
	}
	if snap.LastFixUTC == "" {
		t.Fatalf("expected last_fix_utc")
	}
}

func TestGPSDState_SKYUpdatesSatsAndHDOP(t *testing.T) {
	st := newGPSDState("127.0.0.1:2947")
	line := `{"class":"SKY","hdop":0.9,"satellites":[{"used":true},{"used":false},{"used":true}]}`
	updated, err := st.applyLine(time.Now().UTC(), line)
	if err != nil {
		t.Fatalf("applyLine err: %v", err)
	}
	if !updated {
		t.Fatalf("expected updated")
	}
	snap := st.snapshot()
	if snap.Satellites == nil || *snap.Satellites != 2 {
		t.Fatalf("satellites=%v", snap.Satellites)
	}
	if snap.HDOP == nil || math.Abs(*snap.HDOP-0.9) > 1e-9 {
		t.Fatalf("hdop=%v", snap.HDOP)
	}
}
