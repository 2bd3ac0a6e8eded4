package simulator

import (
	"math/rand/v2"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

// Params are the per-profile biases applied by the update rule.
type Params struct {
	AccelBias   float64
	AccelStdDev float64
	SpeedCap    float64
	RPMRatio    float64
	FuelFactor  float64
}

const (
	defaultSpeedCap = 220.0
	ecoSpeedCap     = 120.0
)

var profileParams = map[models.VehicleProfile]Params{
	models.ProfileNormal:         {AccelBias: 0, AccelStdDev: 2, SpeedCap: defaultSpeedCap, RPMRatio: 30, FuelFactor: 1.5},
	models.ProfileAggressive:     {AccelBias: 0.5, AccelStdDev: 4, SpeedCap: defaultSpeedCap, RPMRatio: 40, FuelFactor: 2.2},
	models.ProfileEco:            {AccelBias: -0.1, AccelStdDev: 1, SpeedCap: ecoSpeedCap, RPMRatio: 30, FuelFactor: 1.5},
	models.ProfileMalfunctioning: {AccelBias: 0, AccelStdDev: 2, SpeedCap: defaultSpeedCap, RPMRatio: 30, FuelFactor: 1.5},
}

// ParamsFor looks up the parameters of a profile. Unknown profiles behave as Normal.
func ParamsFor(p models.VehicleProfile) Params {
	if !models.IsValidProfile(p) {
		p = models.ProfileNormal
	}
	return profileParams[p]
}

// forcedProfiles are pinned to the first vehicle ids of fleets with at least
// forcedFleetSize vehicles so demo runs always show every archetype.
var forcedProfiles = []models.VehicleProfile{
	models.ProfileAggressive,
	models.ProfileEco,
	models.ProfileMalfunctioning,
}

const forcedFleetSize = 4

// AssignProfiles maps every vehicle id to a profile. The remaining ids are drawn
// uniformly from models.Profiles using rng.
func AssignProfiles(ids []string, rng *rand.Rand) map[string]models.VehicleProfile {
	out := make(map[string]models.VehicleProfile, len(ids))
	for i, id := range ids {
		if len(ids) >= forcedFleetSize && i < len(forcedProfiles) {
			out[id] = forcedProfiles[i]
			continue
		}
		out[id] = models.Profiles[rng.IntN(len(models.Profiles))]
	}
	return out
}
