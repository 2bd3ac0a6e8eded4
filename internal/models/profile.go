package models

// VehicleProfile is the behavioural archetype that biases a vehicle's physics update.
type VehicleProfile string

const (
	ProfileNormal         VehicleProfile = "normal"
	ProfileAggressive     VehicleProfile = "aggressive"
	ProfileEco            VehicleProfile = "eco"
	ProfileMalfunctioning VehicleProfile = "malfunctioning"
)

// Profiles lists every profile in the order used for uniform draws.
var Profiles = []VehicleProfile{
	ProfileNormal,
	ProfileAggressive,
	ProfileEco,
	ProfileMalfunctioning,
}

// IsValidProfile checks if a profile is one of the known archetypes
func IsValidProfile(p VehicleProfile) bool {
	switch p {
	case ProfileNormal, ProfileAggressive, ProfileEco, ProfileMalfunctioning:
		return true
	default:
		return false
	}
}
