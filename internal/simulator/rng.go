package simulator

import (
	"math"
	"math/rand/v2"
)

// assignmentStream is the PCG stream reserved for profile assignment so it never
// collides with a vehicle index.
const assignmentStream = math.MaxUint64

// vehicleRand returns the independent random stream for the vehicle at index i.
func vehicleRand(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)))
}

func assignmentRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, assignmentStream))
}

// RandomSeed draws a master seed for runs that did not ask for one. The value
// always fits in a signed 64-bit integer so it round-trips through BSON.
func RandomSeed() uint64 {
	return uint64(rand.Int64())
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// normal draws from N(mean, stddev) on the given stream.
func normal(rng *rand.Rand, mean, stddev float64) float64 {
	return mean + stddev*rng.NormFloat64()
}
