// Package app wires the ingestion pipeline to the stores and hooks enabled in
// the configuration. Both binaries build on it.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-telemetry/internal/auth"
	"github.com/ukydev/fleet-telemetry/internal/config"
	"github.com/ukydev/fleet-telemetry/internal/db"
	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/notify"
	"github.com/ukydev/fleet-telemetry/internal/observability"
	"github.com/ukydev/fleet-telemetry/internal/pipeline"
	"github.com/ukydev/fleet-telemetry/internal/storage"
)

// App holds the wired pipeline and the optional backends it talks to.
type App struct {
	Pipeline  *pipeline.Pipeline
	Collector *observability.Collector
	Parquet   *storage.ParquetStore
	// Ledger is nil unless MongoDB is configured.
	Ledger *db.RunLedger

	closers []func()
}

// Build opens every backend named in cfg and assembles the pipeline. Local
// parquet and CSV stores are always primary; TimescaleDB and MongoDB mirror
// them, while Redis, MQTT and the run ledger are post-run hooks.
func Build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, log logrus.FieldLogger) (_ *App, err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Collector, err = observability.NewCollector(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	if a.Parquet, err = storage.NewParquetStore(cfg.DataDir); err != nil {
		return nil, err
	}
	csvStore, err := storage.NewCSVStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	var (
		trustedMirrors    []pipeline.TrustedStore
		quarantineMirrors []pipeline.QuarantineStore
		hooks             []pipeline.Hook
	)

	if cfg.TimescaleURL != "" {
		ts, err := db.NewTimescaleStore(ctx, cfg.TimescaleURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ts.Close)
		if err := ts.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		if err := ts.EnableHypertable(ctx); err != nil {
			log.WithError(err).Warn("TimescaleDB extension unavailable; using a plain table")
		}
		trustedMirrors = append(trustedMirrors, ts)
		log.Info("Mirroring trusted packets to TimescaleDB")
	}

	if cfg.MongoURI != "" {
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		database := client.Database(cfg.MongoDB)
		a.Ledger = db.NewRunLedger(&db.MongoCollection{Collection: database.Collection(db.RunsCollectionName)})
		hooks = append(hooks, a.Ledger)
		quarantineMirrors = append(quarantineMirrors, &db.QuarantineMirror{
			Records: &db.MongoCollection{Collection: database.Collection(db.QuarantineCollectionName)},
		})
		log.WithField("database", cfg.MongoDB).Info("Recording runs in MongoDB")
	}

	if cfg.RedisURL != "" {
		client, err := db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		hooks = append(hooks, db.NewStateCache(client, cfg.FleetID, cfg.StateTTL))
		log.WithField("fleet_id", cfg.FleetID).Info("Caching vehicle state in Redis")
	}

	if cfg.MQTTBroker != "" {
		client, err := notify.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Disconnect(250) })
		hooks = append(hooks, notify.NewMQTTNotifier(client, cfg.MQTTTopic))
		log.WithField("topic", cfg.MQTTTopic).Info("Announcing runs over MQTT")
	}

	a.Pipeline, err = pipeline.New(
		pipeline.Config{
			VehicleIDs: cfg.VehicleIDs,
			NumRecords: cfg.NumRecords,
			Seed:       cfg.Seed,
			Workers:    cfg.Workers,
		},
		pipeline.TeeTrusted(a.Parquet, trustedMirrors...),
		pipeline.TeeQuarantine(csvStore, quarantineMirrors...),
		pipeline.WithLogger(log),
		pipeline.WithRecorder(a.Collector),
		pipeline.WithHooks(hooks...),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewAuthService builds the auth service for the operator configured in cfg.
// Without a password hash no operator can log in.
func NewAuthService(cfg *config.Config, log logrus.FieldLogger) (*auth.Service, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	var operators []models.Operator
	if cfg.OperatorPasswordHash != "" {
		operators = append(operators, models.Operator{
			Username:     cfg.OperatorUsername,
			PasswordHash: cfg.OperatorPasswordHash,
			Role:         models.Role(cfg.OperatorRole),
		})
	} else {
		log.Warn("OPERATOR_PASSWORD_HASH not set; login is disabled")
	}

	svc, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry, operators...)
	if err != nil {
		return nil, err
	}
	if svc.UsesDefaultSecret() {
		log.Warn("JWT_SECRET not set; using the built-in development secret")
	}
	return svc, nil
}
