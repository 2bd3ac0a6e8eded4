package simulator

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

func basePacket() models.TelemetryPacket {
	return models.TelemetryPacket{
		VehicleID:      "V001",
		Timestamp:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SpeedKmph:      60,
		RPM:            1800,
		EngineTempC:    90,
		FuelRateLPerHr: 1.35,
		BatteryVoltage: 13.5,
		Lat:            37.7749,
		Lon:            -122.4194,
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		roll float64
		want models.Fault
	}{
		{0, models.FaultDataIntegrity},
		{0.0099, models.FaultDataIntegrity},
		{0.01, models.FaultThermal},
		{0.0299, models.FaultThermal},
		{0.03, models.FaultElectrical},
		{0.0499, models.FaultElectrical},
		{0.05, models.FaultHighIdle},
		{0.0799, models.FaultHighIdle},
		{0.08, models.FaultNone},
		{0.5, models.FaultNone},
		{0.9999, models.FaultNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.roll), "roll %v", tt.roll)
	}
}

func TestInjectWithRoll_Effects(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))

	t.Run("data integrity", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			p := basePacket()
			f := InjectWithRoll(&p, 0.005, rng)
			assert.Equal(t, models.FaultDataIntegrity, f)
			assert.Contains(t, []float64{-10, 300}, p.SpeedKmph)
			assert.Equal(t, int64(1800), p.RPM)
		}
	})

	t.Run("thermal", func(t *testing.T) {
		p := basePacket()
		f := InjectWithRoll(&p, 0.02, rng)
		assert.Equal(t, models.FaultThermal, f)
		assert.GreaterOrEqual(t, p.EngineTempC, 115.0)
		assert.Less(t, p.EngineTempC, 125.0)
		assert.Equal(t, 60.0, p.SpeedKmph)
	})

	t.Run("electrical", func(t *testing.T) {
		p := basePacket()
		f := InjectWithRoll(&p, 0.04, rng)
		assert.Equal(t, models.FaultElectrical, f)
		assert.GreaterOrEqual(t, p.BatteryVoltage, 9.5)
		assert.Less(t, p.BatteryVoltage, 11.5)
	})

	t.Run("high idle", func(t *testing.T) {
		p := basePacket()
		f := InjectWithRoll(&p, 0.06, rng)
		assert.Equal(t, models.FaultHighIdle, f)
		assert.Equal(t, 0.0, p.SpeedKmph)
		assert.Equal(t, int64(2500), p.RPM)
		assert.Equal(t, 5.0, p.FuelRateLPerHr)
	})

	t.Run("clean", func(t *testing.T) {
		p := basePacket()
		f := InjectWithRoll(&p, 0.5, rng)
		assert.Equal(t, models.FaultNone, f)
		assert.Equal(t, basePacket(), p)
	})
}

func TestInjectWithRoll_AtMostOneFault(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	for roll := 0.0; roll < 1.0; roll += 0.0005 {
		p := basePacket()
		InjectWithRoll(&p, roll, rng)

		signatures := 0
		if p.SpeedKmph == -10 || p.SpeedKmph == 300 {
			signatures++
		}
		if p.EngineTempC >= 115 {
			signatures++
		}
		if p.BatteryVoltage < 11.5 {
			signatures++
		}
		if p.RPM == 2500 {
			signatures++
		}
		assert.LessOrEqual(t, signatures, 1, "roll %v", roll)

		assert.Equal(t, "V001", p.VehicleID)
		assert.Equal(t, basePacket().Timestamp, p.Timestamp)
		assert.Equal(t, basePacket().Lat, p.Lat)
		assert.Equal(t, basePacket().Lon, p.Lon)
	}
}

func TestAnomalyInjector_Rate(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	inj := AnomalyInjector{}

	faulty := 0
	const n = 20000
	for i := 0; i < n; i++ {
		p := basePacket()
		if inj.Inject(&p, rng) != models.FaultNone {
			faulty++
		}
	}
	// 8% expected
	assert.InDelta(t, 0.08, float64(faulty)/n, 0.01)
}

func TestNoopInjector(t *testing.T) {
	p := basePacket()
	f := NoopInjector{}.Inject(&p, rand.New(rand.NewPCG(0, 0)))
	assert.Equal(t, models.FaultNone, f)
	assert.Equal(t, basePacket(), p)
}
