// Package insights turns a run's trusted packets into per-vehicle business risks.
package insights

import (
	"fmt"
	"math"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

const (
	idleShareLimit      = 0.15
	lowVoltageLimit     = 12.8
	overspeedKmph       = 120.0
	overspeedEventLimit = 5

	safetyPenalty  = 20
	batteryPenalty = 10
	fuelPenalty    = 15
)

const (
	RiskFuelWaste = "High Fuel Waste"
	RiskBattery   = "Battery Failure Imminent"
	RiskSafety    = "Safety Compliance Violation"
)

// HealthScore starts at 100 and deducts a fixed penalty per risk, floored at 0.
func HealthScore(in models.VehicleInsight) int {
	score := 100
	if in.SafetyRisk {
		score -= safetyPenalty
	}
	if in.BatteryRisk {
		score -= batteryPenalty
	}
	if in.FuelRisk {
		score -= fuelPenalty
	}
	return max(0, score)
}

// ForVehicle analyses one vehicle's packets. An empty slice yields a clean bill of health.
func ForVehicle(id string, packets []models.TelemetryPacket) models.VehicleInsight {
	in := models.VehicleInsight{
		VehicleID:   id,
		Risks:       []string{},
		ActionItems: []string{},
	}
	if len(packets) == 0 {
		in.HealthScore = HealthScore(in)
		return in
	}

	var idle int
	var voltage float64
	for _, p := range packets {
		if p.SpeedKmph == 0 && p.RPM > 0 {
			idle++
		}
		if p.SpeedKmph > overspeedKmph {
			in.OverspeedEvents++
		}
		voltage += p.BatteryVoltage
	}
	share := float64(idle) / float64(len(packets))
	in.IdlePct = math.Round(share*1000) / 10
	in.AvgVoltage = voltage / float64(len(packets))

	if share > idleShareLimit {
		in.FuelRisk = true
		in.Risks = append(in.Risks, RiskFuelWaste)
		in.ActionItems = append(in.ActionItems, fmt.Sprintf("Driver coaching needed: %.1f%% idle time detected.", in.IdlePct))
	}
	if in.AvgVoltage < lowVoltageLimit {
		in.BatteryRisk = true
		in.Risks = append(in.Risks, RiskBattery)
		in.ActionItems = append(in.ActionItems, "Schedule battery replacement.")
	}
	if in.OverspeedEvents > overspeedEventLimit {
		in.SafetyRisk = true
		in.Risks = append(in.Risks, RiskSafety)
		in.ActionItems = append(in.ActionItems, "Flag for safety review.")
	}

	in.HealthScore = HealthScore(in)
	return in
}

// FleetSummary groups packets by vehicle, in first-seen order, and analyses each group.
func FleetSummary(packets []models.TelemetryPacket) []models.VehicleInsight {
	var order []string
	groups := make(map[string][]models.TelemetryPacket)
	for _, p := range packets {
		if _, ok := groups[p.VehicleID]; !ok {
			order = append(order, p.VehicleID)
		}
		groups[p.VehicleID] = append(groups[p.VehicleID], p)
	}

	out := make([]models.VehicleInsight, 0, len(order))
	for _, id := range order {
		out = append(out, ForVehicle(id, groups[id]))
	}
	return out
}
