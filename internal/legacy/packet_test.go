package legacy

import (
	"math"
	"testing"
)

func near(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tol %v)", name, got, want, tol)
	}
}

func TestFoldCoordinate(t *testing.T) {
	negFold := int32(-3671875)
	tests := []struct {
		deg  float64
		want uint32
	}{
		{47.0, 3671875},               // (470000000+64)>>7
		{-47.0, uint32(negFold)},      // symmetric fold
		{0, 0},
		{47.123456, 3681520},
	}
	for _, tc := range tests {
		if got := foldCoordinate(tc.deg); got != tc.want {
			t.Errorf("foldCoordinate(%v) = %d, want %d", tc.deg, got, tc.want)
		}
	}
}

func TestUnfoldCoordinate(t *testing.T) {
	// The wire carries only the low bits; reconstruction near the
	// reference must land back on the original grid point.
	for _, deg := range []float64{47.123456, -33.871234, 0.001, 151.21, -151.21} {
		wireMask := uint32(0x7FFFF)
		width := uint(19)
		if deg > 90 || deg < -90 {
			wireMask = 0xFFFFF
			width = 20
		}
		wire := foldCoordinate(deg) & wireMask
		got := unfoldCoordinate(wire, deg+0.01, width)
		if math.Abs(got-deg) > 2e-5 {
			t.Errorf("unfold(%v) = %v", deg, got)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	const ts = 0x12345678

	tests := []struct {
		name string
		pkt  Packet
	}{
		{
			name: "glider eastbound",
			pkt: Packet{
				Addr:         0xDD8F12,
				AddrType:     AddrTypeFlarm,
				AircraftType: 1,
				Airborne:     true,
				Lat:          47.123456,
				Lon:          8.654321,
				AltMeters:    1234,
				VSMps:        2.4,
				SpeedMps:     25, // speed4=100, smult=0
				NS:           [4]int16{0, 0, 0, 0},
				EW:           [4]int16{100, 100, 100, 100},
			},
		},
		{
			name: "fast northbound",
			pkt: Packet{
				Addr:         0x4B3C2D,
				AddrType:     AddrTypeICAO,
				AircraftType: 9,
				Airborne:     true,
				Lat:          -33.871234,
				Lon:          151.213456,
				AltMeters:    3200,
				VSMps:        -4.8,
				SpeedMps:     150, // speed4=600, smult=3
				NS:           [4]int16{600, 600, 600, 600},
				EW:           [4]int16{0, 0, 0, 0},
			},
		},
		{
			name: "stealth parked",
			pkt: Packet{
				Addr:         0xE01234,
				AddrType:     AddrTypeAnon,
				AircraftType: 1,
				Stealth:      true,
				NoTrack:      true,
				Lat:          46.5,
				Lon:          6.5,
				AltMeters:    500,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Encode(&tc.pkt, ts)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(raw) != PacketSize {
				t.Fatalf("len = %d, want %d", len(raw), PacketSize)
			}

			got, err := Decode(raw, tc.pkt.Lat+0.01, tc.pkt.Lon-0.01, ts)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if got.Addr != tc.pkt.Addr {
				t.Errorf("Addr = %06X, want %06X", got.Addr, tc.pkt.Addr)
			}
			if got.AddrType != tc.pkt.AddrType {
				t.Errorf("AddrType = %d, want %d", got.AddrType, tc.pkt.AddrType)
			}
			if got.AircraftType != tc.pkt.AircraftType {
				t.Errorf("AircraftType = %d, want %d", got.AircraftType, tc.pkt.AircraftType)
			}
			if got.Stealth != tc.pkt.Stealth || got.NoTrack != tc.pkt.NoTrack || got.Airborne != tc.pkt.Airborne {
				t.Errorf("flags = %v/%v/%v, want %v/%v/%v",
					got.Stealth, got.NoTrack, got.Airborne,
					tc.pkt.Stealth, tc.pkt.NoTrack, tc.pkt.Airborne)
			}
			if got.AltMeters != tc.pkt.AltMeters {
				t.Errorf("AltMeters = %d, want %d", got.AltMeters, tc.pkt.AltMeters)
			}

			near(t, "Lat", got.Lat, tc.pkt.Lat, 2e-5)
			near(t, "Lon", got.Lon, tc.pkt.Lon, 2e-5)
			near(t, "VSMps", got.VSMps, tc.pkt.VSMps, 0.9)
			near(t, "SpeedMps", got.SpeedMps, tc.pkt.SpeedMps, 1.0)

			for i := 0; i < 4; i++ {
				if d := int(got.NS[i]) - int(tc.pkt.NS[i]); d < -8 || d > 8 {
					t.Errorf("NS[%d] = %d, want %d", i, got.NS[i], tc.pkt.NS[i])
				}
				if d := int(got.EW[i]) - int(tc.pkt.EW[i]); d < -8 || d > 8 {
					t.Errorf("EW[%d] = %d, want %d", i, got.EW[i], tc.pkt.EW[i])
				}
			}
		})
	}
}

func TestDecodeCourse(t *testing.T) {
	pkt := Packet{
		Addr:      0x111111,
		AddrType:  AddrTypeFlarm,
		Airborne:  true,
		Lat:       47,
		Lon:       8,
		AltMeters: 1000,
		SpeedMps:  25,
		NS:        [4]int16{71, 71, 71, 71}, // ~45 deg at 25 m/s
		EW:        [4]int16{71, 71, 71, 71},
	}
	raw, err := Encode(&pkt, 5000)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(raw, 47, 8, 5000)
	if err != nil {
		t.Fatal(err)
	}
	near(t, "CourseDeg", got.CourseDeg, 45, 2)
	near(t, "TurnRateDps", got.TurnRateDps, 0, 0.5)
}

func TestDecodeTurnRate(t *testing.T) {
	// Course swings from 0 to ~18 deg between the first two samples,
	// which the 3 second spacing maps to ~6 deg/s.
	pkt := Packet{
		Addr:      0x222222,
		AddrType:  AddrTypeFlarm,
		Airborne:  true,
		Lat:       47,
		Lon:       8,
		AltMeters: 1000,
		SpeedMps:  25,
		NS:        [4]int16{100, 95, 81, 59},
		EW:        [4]int16{0, 31, 59, 81},
	}
	raw, err := Encode(&pkt, 5000)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(raw, 47, 8, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if got.TurnRateDps < 4 || got.TurnRateDps > 8 {
		t.Errorf("TurnRateDps = %v, want ~6", got.TurnRateDps)
	}
}

func TestDecodeShort(t *testing.T) {
	if _, err := Decode(make([]byte, 10), 47, 8, 0); err != ErrShort {
		t.Fatalf("err = %v, want ErrShort", err)
	}
}

func TestDecodeBadParity(t *testing.T) {
	// Build a block with deliberately wrong parity, encrypt it the way a
	// transmitter would, and check the decoder rejects it.
	var r rawPacket
	r[0] = 0x123456
	r[1] = 0x00010001
	r[2] = 42
	if r.bitParity() == 0 {
		r[2] ^= 1 // force odd parity
	}
	key := makeKey(777, (r[0]<<8)&0xFFFFFF)
	bteaEncrypt(r[1:], &key)

	_, err := Decode(r.marshal(), 47, 8, 777)
	if err != ErrParity {
		t.Fatalf("err = %v, want ErrParity", err)
	}
}

func TestDecodeWrongWindow(t *testing.T) {
	pkt := Packet{
		Addr: 0x333333, AddrType: AddrTypeFlarm, Airborne: true,
		Lat: 47, Lon: 8, AltMeters: 1000, SpeedMps: 20,
		NS: [4]int16{80, 80, 80, 80},
	}
	raw, err := Encode(&pkt, 640000)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(raw, 47, 8, 640000+64)
	if err == nil && got.AltMeters == pkt.AltMeters && math.Abs(got.Lat-47) < 1e-3 {
		t.Fatal("decode with the wrong key window reproduced the packet")
	}
}
