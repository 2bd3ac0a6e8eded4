package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

const defaultStateTTL = time.Hour

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// StateCache publishes the latest trusted reading of each vehicle after a run.
type StateCache struct {
	client  redis.Cmdable
	fleetID string
	ttl     time.Duration
}

func NewStateCache(client redis.Cmdable, fleetID string, ttl time.Duration) *StateCache {
	if fleetID == "" {
		fleetID = "default"
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateCache{client: client, fleetID: fleetID, ttl: ttl}
}

// Name implements pipeline.Hook.
func (c *StateCache) Name() string { return "redis" }

// RunSummary is the message published on the fleet runs channel.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Generated   int    `json:"generated"`
	Valid       int    `json:"valid"`
	Quarantined int    `json:"quarantined"`
}

// AfterRun writes vehicle:<id>:state hashes, the fleet geo set and a run summary.
func (c *StateCache) AfterRun(ctx context.Context, report *models.RunReport, valid []models.TelemetryPacket) error {
	payload, err := json.Marshal(RunSummary{
		RunID:       report.RunID,
		Generated:   report.Generated,
		Valid:       report.Valid,
		Quarantined: report.Quarantined,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	health := make(map[string]int, len(report.Insights))
	for _, in := range report.Insights {
		health[in.VehicleID] = in.HealthScore
	}

	geoKey := fmt.Sprintf("fleet:%s:geo", c.fleetID)
	pipe := c.client.Pipeline()
	for _, p := range latestPerVehicle(valid) {
		key := fmt.Sprintf("vehicle:%s:state", p.VehicleID)
		fields := stateFields(c.fleetID, report.RunID, p)
		if score, ok := health[p.VehicleID]; ok {
			fields["health_score"] = score
		}
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, c.ttl)
		pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      p.VehicleID,
			Longitude: p.Lon,
			Latitude:  p.Lat,
		})
	}
	pipe.Publish(ctx, fmt.Sprintf("fleet:%s:runs", c.fleetID), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func stateFields(fleetID, runID string, p models.TelemetryPacket) map[string]interface{} {
	return map[string]interface{}{
		"vehicle_id":  p.VehicleID,
		"fleet_id":    fleetID,
		"run_id":      runID,
		"lat":         p.Lat,
		"lng":         p.Lon,
		"speed_kmph":  p.SpeedKmph,
		"rpm":         p.RPM,
		"engine_temp": p.EngineTempC,
		"fuel_rate":   p.FuelRateLPerHr,
		"battery":     p.BatteryVoltage,
		"timestamp":   p.Timestamp.Unix(),
	}
}

// latestPerVehicle keeps the last packet of each vehicle, in first-seen order.
func latestPerVehicle(packets []models.TelemetryPacket) []models.TelemetryPacket {
	index := make(map[string]int)
	var out []models.TelemetryPacket
	for _, p := range packets {
		if i, ok := index[p.VehicleID]; ok {
			out[i] = p
			continue
		}
		index[p.VehicleID] = len(out)
		out = append(out, p)
	}
	return out
}
