package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

var (
	ErrEmptyFleet       = errors.New("vehicle list is empty")
	ErrUnknownVehicle   = errors.New("unknown vehicle")
	ErrDuplicateVehicle = errors.New("duplicate vehicle id")
)

const (
	idleRPMMin = 600.0
	idleRPMMax = 1000.0

	engineTempMin = 20.0
	engineTempMax = 120.0

	revSpikeProb  = 0.3
	brownoutProb  = 0.1
	gpsDriftSigma = 0.0001
)

// vehicleEntry is the arena slot owned by exactly one vehicle for the run.
type vehicleEntry struct {
	id      string
	profile models.VehicleProfile
	params  Params
	state   models.VehicleState
	rng     *rand.Rand
}

// Simulator owns one VehicleState per vehicle id and advances them one step at a time.
// A Simulator is not safe for concurrent use, except that distinct vehicles may be
// stepped from distinct goroutines (see Generator).
type Simulator struct {
	seed    uint64
	ids     []string
	index   map[string]int
	entries []vehicleEntry
}

// New binds a vehicle id list to fresh default state. Every vehicle draws from its own
// random stream derived from seed and its position in ids.
func New(ids []string, seed uint64) (*Simulator, error) {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVehicle, id)
		}
		index[id] = i
	}

	profiles := AssignProfiles(ids, assignmentRand(seed))
	entries := make([]vehicleEntry, len(ids))
	for i, id := range ids {
		entries[i] = vehicleEntry{
			id:      id,
			profile: profiles[id],
			params:  ParamsFor(profiles[id]),
			state:   models.DefaultVehicleState(),
			rng:     vehicleRand(seed, i),
		}
	}

	return &Simulator{
		seed:    seed,
		ids:     append([]string(nil), ids...),
		index:   index,
		entries: entries,
	}, nil
}

// Seed returns the master seed the simulator was built with.
func (s *Simulator) Seed() uint64 { return s.seed }

// VehicleIDs returns the vehicle ids in iteration order.
func (s *Simulator) VehicleIDs() []string {
	return append([]string(nil), s.ids...)
}

// Profiles returns a copy of the vehicle id to profile mapping.
func (s *Simulator) Profiles() map[string]models.VehicleProfile {
	out := make(map[string]models.VehicleProfile, len(s.entries))
	for _, e := range s.entries {
		out[e.id] = e.profile
	}
	return out
}

// Profile returns the profile assigned to id.
func (s *Simulator) Profile(id string) (models.VehicleProfile, bool) {
	i, ok := s.index[id]
	if !ok {
		return "", false
	}
	return s.entries[i].profile, true
}

// State returns the current state of id.
func (s *Simulator) State(id string) (models.VehicleState, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.VehicleState{}, false
	}
	return s.entries[i].state, true
}

// Step advances id by one time-step and returns its new state.
func (s *Simulator) Step(id string) (models.VehicleState, error) {
	i, ok := s.index[id]
	if !ok {
		return models.VehicleState{}, fmt.Errorf("%w: %q", ErrUnknownVehicle, id)
	}
	return s.stepIndex(i), nil
}

func (s *Simulator) stepIndex(i int) models.VehicleState {
	e := &s.entries[i]
	e.state = advance(e.state, e.profile, e.params, e.rng)
	return e.state
}

// advance applies the profile-biased update rule. Draw order is fixed so that a given
// stream always yields the same trajectory.
func advance(prev models.VehicleState, profile models.VehicleProfile, p Params, rng *rand.Rand) models.VehicleState {
	next := prev
	malfunctioning := profile == models.ProfileMalfunctioning

	accel := normal(rng, p.AccelBias, p.AccelStdDev)
	next.SpeedKmph = clamp(prev.SpeedKmph+accel, 0, p.SpeedCap)

	if next.SpeedKmph == 0 {
		if malfunctioning && rng.Float64() < revSpikeProb {
			next.RPM = normal(rng, 1500, 200)
		} else {
			next.RPM = clamp(prev.RPM+normal(rng, 0, 20), idleRPMMin, idleRPMMax)
		}
	} else {
		next.RPM = next.SpeedKmph*p.RPMRatio + normal(rng, 0, 100)
	}

	switch {
	case malfunctioning:
		next.EngineTempC += normal(rng, 0.2, 0.1)
	case next.SpeedKmph > 0:
		next.EngineTempC += normal(rng, 0.1, 0.05)
	default:
		next.EngineTempC -= 0.1
	}
	next.EngineTempC = clamp(next.EngineTempC, engineTempMin, engineTempMax)

	// may dip below zero under noise; left as is
	next.FuelRateLPerHr = (next.RPM/2000)*p.FuelFactor + normal(rng, 0, 0.1)

	if malfunctioning && rng.Float64() < brownoutProb {
		next.BatteryVoltageV = normal(rng, 12.0, 0.5)
	} else {
		next.BatteryVoltageV = normal(rng, 13.5, 0.1)
	}

	next.Lat += normal(rng, 0, gpsDriftSigma)
	next.Lon += normal(rng, 0, gpsDriftSigma)

	return next
}

// Snapshot rounds a state into an immutable packet stamped with ts.
func Snapshot(id string, st models.VehicleState, ts time.Time) models.TelemetryPacket {
	return models.TelemetryPacket{
		VehicleID:      id,
		Timestamp:      ts,
		SpeedKmph:      round(st.SpeedKmph, 2),
		RPM:            int64(st.RPM),
		EngineTempC:    round(st.EngineTempC, 1),
		FuelRateLPerHr: round(st.FuelRateLPerHr, 2),
		BatteryVoltage: round(st.BatteryVoltageV, 2),
		Lat:            st.Lat,
		Lon:            st.Lon,
	}
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
