package traffic

import "time"

// Alarm zone radii in meters. The effective distance a zone is compared
// against includes a penalty for vertical offset, see AdjAltDiff.
const (
	ZoneNone      = 10000.0
	ZoneClose     = 2000.0
	ZoneLow       = 700.0
	ZoneImportant = 400.0
	ZoneUrgent    = 250.0
)

// Time-to-impact thresholds in seconds for the vector alarm.
const (
	TimeClose     = 30.0
	TimeLow       = 18.0
	TimeImportant = 9.0
	TimeUrgent    = 8.0
)

const (
	// VectorAngle is the collision-course tolerance in degrees; alarm
	// levels degrade in bands of this width.
	VectorAngle = 10.0
	// VectorSpeed is the minimum closing speed in m/s for the vector
	// alarm to consider a target at all.
	VectorSpeed = 2.0
)

const (
	// VerticalSeparation above or below which no alarm is raised.
	VerticalSeparation = 300.0
	// VerticalSlack is the altitude difference treated as zero to
	// absorb GNSS altitude noise.
	VerticalSlack = 60.0
	// VerticalSlope converts residual altitude difference into an
	// equivalent horizontal distance penalty.
	VerticalSlope = 5.0
)

const (
	// DefaultCapacity is the tracking table size unless configured.
	DefaultCapacity = 8
	// MaxCapacity bounds the configurable table size.
	MaxCapacity = 60
)

const (
	// EntryExpiration is how long a target survives without updates.
	EntryExpiration = 30 * time.Second
	// UpdateInterval is the relative-geometry refresh period.
	UpdateInterval = 2 * time.Second
	// ProjectionCache is how long projected velocity samples stay valid.
	ProjectionCache = 400 * time.Millisecond
)

const mpsPerKnot = 0.514444
