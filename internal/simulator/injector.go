package simulator

import (
	"math/rand/v2"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

// Injector corrupts a freshly snapshotted packet. Implementations must be safe for
// concurrent use; all randomness comes from the per-vehicle stream passed in.
type Injector interface {
	Inject(p *models.TelemetryPacket, rng *rand.Rand) models.Fault
}

// faultBands are cumulative upper bounds on the roll; the first match wins.
var faultBands = []struct {
	upper float64
	fault models.Fault
}{
	{0.01, models.FaultDataIntegrity},
	{0.03, models.FaultThermal},
	{0.05, models.FaultElectrical},
	{0.08, models.FaultHighIdle},
}

// BandFor returns the single fault selected by roll, or FaultNone.
func BandFor(roll float64) models.Fault {
	for _, b := range faultBands {
		if roll < b.upper {
			return b.fault
		}
	}
	return models.FaultNone
}

// AnomalyInjector applies at most one fault per packet using a single uniform roll.
type AnomalyInjector struct{}

// Inject implements Injector.
func (AnomalyInjector) Inject(p *models.TelemetryPacket, rng *rand.Rand) models.Fault {
	return InjectWithRoll(p, rng.Float64(), rng)
}

// InjectWithRoll applies the band selected by roll. rng is only consulted for the
// value drawn inside the selected band. vehicle_id, timestamp, lat and lon are never touched.
func InjectWithRoll(p *models.TelemetryPacket, roll float64, rng *rand.Rand) models.Fault {
	fault := BandFor(roll)
	switch fault {
	case models.FaultDataIntegrity:
		if rng.Float64() < 0.5 {
			p.SpeedKmph = -10
		} else {
			p.SpeedKmph = 300
		}
	case models.FaultThermal:
		p.EngineTempC = 115 + rng.Float64()*10
	case models.FaultElectrical:
		p.BatteryVoltage = 9.5 + rng.Float64()*2
	case models.FaultHighIdle:
		p.SpeedKmph = 0
		p.RPM = 2500
		p.FuelRateLPerHr = 5.0
	}
	return fault
}

// NoopInjector passes every packet through untouched.
type NoopInjector struct{}

// Inject implements Injector.
func (NoopInjector) Inject(*models.TelemetryPacket, *rand.Rand) models.Fault {
	return models.FaultNone
}
