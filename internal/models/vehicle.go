package models

// VehicleState is the mutable physical state the simulator keeps for one vehicle.
type VehicleState struct {
	SpeedKmph       float64 `json:"speed_kmph"`
	RPM             float64 `json:"rpm"`
	EngineTempC     float64 `json:"engine_temp_c"`
	FuelRateLPerHr  float64 `json:"fuel_rate_l_per_hr"`
	BatteryVoltageV float64 `json:"battery_voltage_v"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	// OdometerKm is carried unchanged by the update rule.
	OdometerKm float64 `json:"odometer_km"`
}

// DefaultVehicleState returns the state every vehicle starts a run with.
func DefaultVehicleState() VehicleState {
	return VehicleState{
		SpeedKmph:       0,
		RPM:             800,
		EngineTempC:     70,
		FuelRateLPerHr:  2.0,
		BatteryVoltageV: 13.5,
		Lat:             37.7749, // San Francisco
		Lon:             -122.4194,
		OdometerKm:      10000,
	}
}
