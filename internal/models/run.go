package models

import (
	"time"
)

// VehicleInsight summarises the business risks found in one vehicle's valid packets.
type VehicleInsight struct {
	VehicleID       string   `bson:"vehicle_id" json:"vehicle_id"`
	Risks           []string `bson:"risks" json:"risks"`
	ActionItems     []string `bson:"action_items" json:"action_items"`
	IdlePct         float64  `bson:"idle_pct" json:"idle_pct"`
	AvgVoltage      float64  `bson:"avg_voltage" json:"avg_voltage"`
	OverspeedEvents int      `bson:"overspeed_events" json:"overspeed_events"`
	FuelRisk        bool     `bson:"fuel_risk" json:"fuel_risk"`
	BatteryRisk     bool     `bson:"battery_risk" json:"battery_risk"`
	SafetyRisk      bool     `bson:"safety_risk" json:"safety_risk"`
	HealthScore     int      `bson:"health_score" json:"health_score"`
}

// RunReport describes one ingestion run end to end.
type RunReport struct {
	RunID          string                    `bson:"run_id" json:"run_id"`
	StartedAt      time.Time                 `bson:"started_at" json:"started_at"`
	FinishedAt     time.Time                 `bson:"finished_at" json:"finished_at"`
	Seed           uint64                    `bson:"seed" json:"seed"`
	VehicleIDs     []string                  `bson:"vehicle_ids" json:"vehicle_ids"`
	Profiles       map[string]VehicleProfile `bson:"profiles" json:"profiles"`
	SimStart       time.Time                 `bson:"sim_start" json:"sim_start"`
	Requested      int                       `bson:"requested" json:"requested"`
	Generated      int                       `bson:"generated" json:"generated"`
	Valid          int                       `bson:"valid" json:"valid"`
	Quarantined    int                       `bson:"quarantined" json:"quarantined"`
	Faults         map[string]int            `bson:"faults" json:"faults"`
	Violations     map[string]int            `bson:"violations" json:"violations"`
	TrustedPath    string                    `bson:"trusted_path,omitempty" json:"trusted_path,omitempty"`
	QuarantinePath string                    `bson:"quarantine_path,omitempty" json:"quarantine_path,omitempty"`
	Insights       []VehicleInsight          `bson:"insights" json:"insights"`
	HookErrors     []string                  `bson:"hook_errors,omitempty" json:"hook_errors,omitempty"`
}

// RunRef identifies a run to the stores writing its output.
type RunRef struct {
	ID        string
	StartedAt time.Time
}

// ShortID is the first eight characters of the run id, used in file names.
func (r RunRef) ShortID() string {
	if len(r.ID) <= 8 {
		return r.ID
	}
	return r.ID[:8]
}
