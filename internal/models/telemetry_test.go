package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultVehicleState(t *testing.T) {
	s := DefaultVehicleState()
	assert.Equal(t, 0.0, s.SpeedKmph)
	assert.Equal(t, 800.0, s.RPM)
	assert.Equal(t, 70.0, s.EngineTempC)
	assert.Equal(t, 13.5, s.BatteryVoltageV)
	assert.Equal(t, 10000.0, s.OdometerKm)
}

func TestQuarantineColumns(t *testing.T) {
	assert.Len(t, QuarantineColumns, len(TelemetryColumns)+1)
	assert.Equal(t, "rejection_reason", QuarantineColumns[len(QuarantineColumns)-1])
	// appending must not alias the telemetry column slice
	assert.Equal(t, "lon", TelemetryColumns[len(TelemetryColumns)-1])
}
