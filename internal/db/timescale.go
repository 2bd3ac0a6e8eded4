package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

const telemetryTable = "vehicle_telemetry"

// pgExecutor is the part of *pgxpool.Pool the store uses.
type pgExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// TimescaleStore mirrors trusted packets into a TimescaleDB hypertable.
type TimescaleStore struct {
	pool pgExecutor
	// closer is nil when the store wraps a caller-owned executor.
	closer func()
}

// NewTimescaleStore opens a pool for url and pings it.
func NewTimescaleStore(ctx context.Context, url string) (*TimescaleStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &TimescaleStore{pool: pool, closer: pool.Close}, nil
}

func newTimescaleStoreWith(exec pgExecutor) *TimescaleStore {
	return &TimescaleStore{pool: exec}
}

func (s *TimescaleStore) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// EnsureSchema creates the telemetry table and its lookup index.
func (s *TimescaleStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vehicle_telemetry (
			timestamp       TIMESTAMPTZ      NOT NULL,
			vehicle_id      TEXT             NOT NULL,
			run_id          TEXT             NOT NULL,
			speed_kmph      DOUBLE PRECISION NOT NULL,
			rpm             BIGINT           NOT NULL,
			engine_temp     DOUBLE PRECISION NOT NULL,
			fuel_rate       DOUBLE PRECISION NOT NULL,
			battery_voltage DOUBLE PRECISION NOT NULL,
			lat             DOUBLE PRECISION NOT NULL,
			lon             DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vehicle_telemetry_vehicle_time
			ON vehicle_telemetry (vehicle_id, timestamp DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// EnableHypertable converts the table into a hypertable. It fails on plain
// PostgreSQL, where the table still works as a regular table.
func (s *TimescaleStore) EnableHypertable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `SELECT create_hypertable('vehicle_telemetry', 'timestamp', if_not_exists => TRUE)`)
	if err != nil {
		return fmt.Errorf("create hypertable: %w", err)
	}
	return nil
}

var telemetryColumns = []string{
	"timestamp",
	"vehicle_id",
	"run_id",
	"speed_kmph",
	"rpm",
	"engine_temp",
	"fuel_rate",
	"battery_voltage",
	"lat",
	"lon",
}

func telemetryRows(runID string, packets []models.TelemetryPacket) [][]interface{} {
	rows := make([][]interface{}, len(packets))
	for i, p := range packets {
		rows[i] = []interface{}{
			p.Timestamp,
			p.VehicleID,
			runID,
			p.SpeedKmph,
			p.RPM,
			p.EngineTempC,
			p.FuelRateLPerHr,
			p.BatteryVoltage,
			p.Lat,
			p.Lon,
		}
	}
	return rows
}

// WriteTrusted implements pipeline.TrustedStore with a single COPY.
func (s *TimescaleStore) WriteTrusted(ctx context.Context, run models.RunRef, packets []models.TelemetryPacket) (string, error) {
	if len(packets) == 0 {
		return "", nil
	}

	n, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{telemetryTable},
		telemetryColumns,
		pgx.CopyFromRows(telemetryRows(run.ID, packets)),
	)
	if err != nil {
		return "", fmt.Errorf("CopyFrom failed for batch of %d: %w", len(packets), err)
	}
	if int(n) != len(packets) {
		return "", fmt.Errorf("CopyFrom wrote %d of %d rows", n, len(packets))
	}
	return "timescale:" + telemetryTable, nil
}
