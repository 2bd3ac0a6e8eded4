package validation

import (
	"github.com/ukydev/fleet-telemetry/internal/models"
)

// Class groups rules by the kind of damage they detect.
type Class string

const (
	ClassCritical Class = "critical"
	ClassPhysics  Class = "physics"
)

// Violation codes recorded on quarantined packets.
const (
	CodeMissingKey       = "missing_key"
	CodeSpeedOutOfRange  = "speed_out_of_range"
	CodeNegativeRPM      = "negative_rpm"
	maxPlausibleSpeedKmh = 250.0
)

// Rule flags a packet when Check returns true.
type Rule struct {
	Code  string
	Class Class
	Check func(p *models.TelemetryPacket) bool
}

var DefaultRules = []Rule{
	{
		Code:  CodeMissingKey,
		Class: ClassCritical,
		Check: func(p *models.TelemetryPacket) bool {
			return p.VehicleID == "" || p.Timestamp.IsZero()
		},
	},
	{
		Code:  CodeSpeedOutOfRange,
		Class: ClassPhysics,
		Check: func(p *models.TelemetryPacket) bool {
			return p.SpeedKmph < 0 || p.SpeedKmph > maxPlausibleSpeedKmh
		},
	},
	{
		Code:  CodeNegativeRPM,
		Class: ClassPhysics,
		Check: func(p *models.TelemetryPacket) bool {
			return p.RPM < 0
		},
	},
}
