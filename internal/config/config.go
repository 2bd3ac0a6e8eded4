package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ukydev/fleet-telemetry/internal/logging"
	"github.com/ukydev/fleet-telemetry/internal/observability"
)

type Config struct {
	// Run defaults
	VehicleIDs []string
	NumRecords int
	Seed       *uint64
	StartTime  time.Time
	Workers    int
	DataDir    string

	Log logging.Config

	// HTTP
	Port string

	// MongoDB
	MongoURI string
	MongoDB  string

	// TimescaleDB
	TimescaleURL string

	// Redis
	RedisURL string
	FleetID  string
	StateTTL time.Duration

	// MQTT
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	// Auth
	JWTSecret            string
	JWTExpiry            time.Duration
	OperatorUsername     string
	OperatorPasswordHash string
	OperatorRole         string

	Tracing observability.TracingConfig
}

var defaultVehicleIDs = "V001,V002,V003,V004,V005"

// Load reads .env when present and then the environment. Malformed values for
// seed, start time and durations are reported rather than silently replaced.
func Load() (*Config, error) {
	_ = godotenv.Load()

	seed, err := ParseSeed(os.Getenv("SIM_SEED"))
	if err != nil {
		return nil, err
	}
	var start time.Time
	if raw := os.Getenv("START_TIME"); raw != "" {
		if start, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, fmt.Errorf("invalid START_TIME %q: %w", raw, err)
		}
	}
	jwtExpiry, err := getEnvDuration("JWT_EXPIRY", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	stateTTL, err := getEnvDuration("STATE_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		VehicleIDs: ParseVehicleIDs(getEnv("VEHICLE_IDS", defaultVehicleIDs)),
		NumRecords: getEnvInt("NUM_RECORDS", 1000),
		Seed:       seed,
		StartTime:  start,
		Workers:    getEnvInt("SIM_WORKERS", 1),
		DataDir:    getEnv("DATA_DIR", "data"),
		Log: logging.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   os.Getenv("LOG_FILE"),
		},
		Port:                 getEnv("PORT", "8080"),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDB:              getEnv("MONGO_DB", "fleet"),
		TimescaleURL:         os.Getenv("TIMESCALE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		FleetID:              getEnv("FLEET_ID", "default"),
		StateTTL:             stateTTL,
		MQTTBroker:           os.Getenv("MQTT_BROKER"),
		MQTTTopic:            getEnv("MQTT_TOPIC", "fleet/ingestion/runs"),
		MQTTClientID:         os.Getenv("MQTT_CLIENT_ID"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTExpiry:            jwtExpiry,
		OperatorUsername:     getEnv("OPERATOR_USERNAME", "operator"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
		OperatorRole:         getEnv("OPERATOR_ROLE", "operator"),
		Tracing: observability.TracingConfig{
			Enabled:     strings.EqualFold(os.Getenv("TRACING_ENABLED"), "true"),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "fleet-telemetry"),
			Exporter:    strings.ToLower(getEnv("TRACING_EXPORTER", "stdout")),
			Endpoint:    os.Getenv("OTLP_ENDPOINT"),
		},
	}, nil
}

// ParseVehicleIDs splits a comma separated list, dropping blanks.
func ParseVehicleIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ParseSeed parses an optional seed. Seeds are limited to the signed 64-bit range.
func ParseSeed(raw string) (*uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || seed > math.MaxInt64 {
		return nil, fmt.Errorf("invalid seed %q: want an integer in [0, %d]", raw, int64(math.MaxInt64))
	}
	return &seed, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
