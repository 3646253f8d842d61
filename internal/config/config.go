// Package config loads, validates and persists the transceiver
// settings. The NMEA configuration sentences rewrite the same file and
// rely on Save for the read-modify-write cycle.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"flarm-ng/internal/nmea"
)

type Config struct {
	Aircraft AircraftConfig `yaml:"aircraft"`
	Traffic  TrafficConfig  `yaml:"traffic"`
	Radio    RadioConfig    `yaml:"radio"`
	GPS      GPSConfig      `yaml:"gps"`
	NMEA     NMEAConfig     `yaml:"nmea"`
	Sound    SoundConfig    `yaml:"sound"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type AircraftConfig struct {
	// IDMethod selects how the on-air address is derived: "device"
	// uses ID below, "random" generates a fresh anonymous address at
	// every startup.
	IDMethod string `yaml:"id_method"`
	ID       string `yaml:"id"` // hex, 24 bit
	Type     int    `yaml:"type"`
	Stealth  bool   `yaml:"stealth"`
	NoTrack  bool   `yaml:"no_track"`
}

type TrafficConfig struct {
	AlarmMethod string `yaml:"alarm_method"`
	Capacity    int    `yaml:"capacity"`
	IgnoreID    string `yaml:"ignore_id"`
	FollowID    string `yaml:"follow_id"`
}

type RadioConfig struct {
	// Mode "udp" bridges the air interface over datagrams for bench
	// work, "loop" keeps everything in-process.
	Mode    string `yaml:"mode"`
	Listen  string `yaml:"listen"`
	Dest    string `yaml:"dest"`
	TxPower string `yaml:"tx_power"` // "full" or "off"
}

type GPSConfig struct {
	// Source "nmea" reads a serial receiver directly, "gpsd" attaches
	// to a running daemon.
	Source   string `yaml:"source"`
	GPSDAddr string `yaml:"gpsd_addr"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
}

type NMEAConfig struct {
	Dest         string `yaml:"dest"`
	DebugRaw     bool   `yaml:"debug_raw"`
	DebugDecoded bool   `yaml:"debug_decoded"`
}

type SoundConfig struct {
	Enable bool `yaml:"enable"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

const psrfVersion = 1

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fills defaults and rejects inconsistent settings. It is
// called both on load and before persisting a rewritten configuration.
func (c *Config) Validate() error {
	if c.Aircraft.IDMethod == "" {
		c.Aircraft.IDMethod = "device"
	}
	switch c.Aircraft.IDMethod {
	case "device":
		if _, err := ParseID(c.Aircraft.ID); err != nil {
			return fmt.Errorf("aircraft.id: %w", err)
		}
	case "random":
	default:
		return fmt.Errorf("aircraft.id_method %q is not device or random", c.Aircraft.IDMethod)
	}
	if c.Aircraft.Type < 0 || c.Aircraft.Type > 15 {
		return fmt.Errorf("aircraft.type %d out of range", c.Aircraft.Type)
	}

	if c.Traffic.AlarmMethod == "" {
		c.Traffic.AlarmMethod = "vector"
	}
	if c.Traffic.Capacity == 0 {
		c.Traffic.Capacity = 8
	}
	if c.Traffic.IgnoreID != "" {
		if _, err := ParseID(c.Traffic.IgnoreID); err != nil {
			return fmt.Errorf("traffic.ignore_id: %w", err)
		}
	}
	if c.Traffic.FollowID != "" {
		if _, err := ParseID(c.Traffic.FollowID); err != nil {
			return fmt.Errorf("traffic.follow_id: %w", err)
		}
	}

	if c.Radio.Mode == "" {
		c.Radio.Mode = "udp"
	}
	switch c.Radio.Mode {
	case "udp":
		if c.Radio.Dest == "" {
			return fmt.Errorf("radio.dest is required with radio.mode=udp")
		}
		if c.Radio.Listen == "" {
			c.Radio.Listen = ":4353"
		}
	case "loop":
	default:
		return fmt.Errorf("radio.mode %q is not udp or loop", c.Radio.Mode)
	}
	if c.Radio.TxPower == "" {
		c.Radio.TxPower = "full"
	}
	if c.Radio.TxPower != "full" && c.Radio.TxPower != "off" {
		return fmt.Errorf("radio.tx_power %q is not full or off", c.Radio.TxPower)
	}

	if c.GPS.Source == "" {
		c.GPS.Source = "nmea"
	}
	switch c.GPS.Source {
	case "nmea":
	case "gpsd":
		if c.GPS.GPSDAddr == "" {
			c.GPS.GPSDAddr = "127.0.0.1:2947"
		}
	default:
		return fmt.Errorf("gps.source %q is not nmea or gpsd", c.GPS.Source)
	}
	if c.GPS.Baud == 0 {
		c.GPS.Baud = 38400
	}

	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	return nil
}

// Save persists the configuration atomically via a sibling temp file.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ParseID parses a 24-bit hex aircraft address.
func ParseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("address %q is not hex", s)
	}
	if v > 0xFFFFFF {
		return 0, fmt.Errorf("address %06X exceeds 24 bits", v)
	}
	return uint32(v), nil
}

// ApplyCommand folds a parsed PSRFC/PSRFD sentence into the settings.
// It returns true when anything changed; the caller is expected to
// Save and restart. Field positions that this build has no use for are
// skipped without complaint so a stock configurator stays usable.
func (c *Config) ApplyCommand(cmd *nmea.Command) (bool, error) {
	if cmd.Query {
		return false, nil
	}
	if cmd.Version != psrfVersion {
		return false, fmt.Errorf("config: sentence version %d, want %d", cmd.Version, psrfVersion)
	}

	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	setBool := func(dst *bool, v string) {
		if v == "" {
			return
		}
		b := v != "0"
		if *dst != b {
			*dst = b
			changed = true
		}
	}

	field := func(i int) string {
		if i < len(cmd.Fields) {
			return cmd.Fields[i]
		}
		return ""
	}

	switch cmd.Kind {
	case nmea.CommandConfig:
		if v := field(3); v != "" {
			t, err := strconv.Atoi(v)
			if err != nil || t < 0 || t > 15 {
				return changed, fmt.Errorf("config: aircraft type %q", v)
			}
			if c.Aircraft.Type != t {
				c.Aircraft.Type = t
				changed = true
			}
		}
		if v := field(4); v != "" {
			method, err := alarmMethodCode(v)
			if err != nil {
				return changed, err
			}
			set(&c.Traffic.AlarmMethod, method)
		}
		if v := field(5); v != "" {
			power := "full"
			if v == "0" {
				power = "off"
			}
			set(&c.Radio.TxPower, power)
		}
		setBool(&c.Aircraft.Stealth, field(16))
		setBool(&c.Aircraft.NoTrack, field(17))

	case nmea.CommandDiag:
		if v := field(0); v != "" {
			method := "device"
			if v == "1" {
				method = "random"
			}
			set(&c.Aircraft.IDMethod, method)
		}
		if v := field(1); v != "" {
			if _, err := ParseID(v); err != nil {
				return changed, err
			}
			set(&c.Aircraft.ID, v)
		}
		if v := field(2); v != "" {
			if _, err := ParseID(v); err != nil {
				return changed, err
			}
			set(&c.Traffic.IgnoreID, v)
		}
		if v := field(3); v != "" {
			if _, err := ParseID(v); err != nil {
				return changed, err
			}
			set(&c.Traffic.FollowID, v)
		}
		setBool(&c.NMEA.DebugRaw, field(6))
		setBool(&c.NMEA.DebugDecoded, field(7))

	case nmea.CommandSecurity:
		// Key material is not configurable on this hardware.
	}
	return changed, nil
}

func alarmMethodCode(v string) (string, error) {
	switch v {
	case "0":
		return "none", nil
	case "1":
		return "distance", nil
	case "2":
		return "vector", nil
	case "3":
		return "legacy", nil
	}
	return "", fmt.Errorf("config: alarm method %q", v)
}
