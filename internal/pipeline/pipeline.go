// Package pipeline generates a batch of simulated telemetry, validates it and routes
// the two halves to their stores.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ukydev/fleet-telemetry/internal/insights"
	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/observability"
	"github.com/ukydev/fleet-telemetry/internal/simulator"
	"github.com/ukydev/fleet-telemetry/internal/validation"
)

// DefaultVehicleIDs is the fleet used when none is configured.
var DefaultVehicleIDs = []string{"V001", "V002", "V003", "V004", "V005"}

const DefaultNumRecords = 1000

// Config holds the run defaults. RunRequest fields override them per run.
type Config struct {
	VehicleIDs []string
	NumRecords int
	Seed       *uint64
	Workers    int
}

// RunRequest carries per-run overrides. Zero values fall back to Config.
type RunRequest struct {
	VehicleIDs []string
	NumRecords int
	Seed       *uint64
	StartTime  time.Time
}

// Recorder receives run metrics. *observability.Collector implements it.
type Recorder interface {
	RecordRun(report *models.RunReport, status string)
	ObserveStage(stage string, d time.Duration)
	HookFailed(hook string)
}

type Pipeline struct {
	cfg        Config
	trusted    TrustedStore
	quarantine QuarantineStore
	validator  *validation.Validator
	hooks      []Hook
	recorder   Recorder
	log        logrus.FieldLogger
	now        func() time.Time
	newID      func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = log }
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithHooks appends post-run hooks, run in the order given.
func WithHooks(hooks ...Hook) Option {
	return func(p *Pipeline) { p.hooks = append(p.hooks, hooks...) }
}

func WithValidator(v *validation.Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator replaces the uuid run id source.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New validates cfg and binds the two stores.
func New(cfg Config, trusted TrustedStore, quarantine QuarantineStore, opts ...Option) (*Pipeline, error) {
	if trusted == nil || quarantine == nil {
		return nil, fmt.Errorf("%w: both stores are required", ErrInvalidConfig)
	}
	if cfg.NumRecords < 0 {
		return nil, fmt.Errorf("%w: num records %d", ErrInvalidConfig, cfg.NumRecords)
	}
	if len(cfg.VehicleIDs) == 0 {
		cfg.VehicleIDs = DefaultVehicleIDs
	}
	if cfg.NumRecords == 0 {
		cfg.NumRecords = DefaultNumRecords
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	p := &Pipeline{
		cfg:        cfg,
		trusted:    trusted,
		quarantine: quarantine,
		validator:  validation.New(),
		log:        logrus.StandardLogger(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the effective defaults.
func (p *Pipeline) Config() Config { return p.cfg }

// Run executes one ingestion run. A config error returns a nil report. A store
// failure returns a *PersistenceError carrying the partial report.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*models.RunReport, error) {
	ids := req.VehicleIDs
	if len(ids) == 0 {
		ids = p.cfg.VehicleIDs
	}
	n := req.NumRecords
	if n == 0 {
		n = p.cfg.NumRecords
	}
	if n < 0 {
		p.record(nil, observability.StatusConfigError)
		return nil, fmt.Errorf("%w: num records %d", ErrInvalidConfig, n)
	}
	seed := p.resolveSeed(req.Seed)
	startedAt := p.now().UTC()
	simStart := req.StartTime
	if simStart.IsZero() {
		simStart = startedAt
	}

	report := &models.RunReport{
		RunID:      p.newID(),
		StartedAt:  startedAt,
		Seed:       seed,
		VehicleIDs: append([]string(nil), ids...),
		SimStart:   simStart,
		Requested:  n,
	}
	run := models.RunRef{ID: report.RunID, StartedAt: startedAt}
	log := p.log.WithField("run_id", report.RunID)

	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.String("run.id", report.RunID),
		attribute.Int("run.vehicles", len(ids)),
		attribute.Int("run.requested", n),
	)
	defer span.End()

	log.WithFields(logrus.Fields{
		"vehicles":  len(ids),
		"requested": n,
		"seed":      seed,
	}).Info("Starting ingestion run")

	batch, err := p.generate(ctx, ids, seed, simStart, n, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		log.WithError(err).Error("Generation failed")
		p.record(nil, observability.StatusConfigError)
		return nil, err
	}

	res := p.validate(ctx, batch, report)
	for i := range res.Invalid {
		res.Invalid[i].RunID = report.RunID
	}
	log.WithFields(logrus.Fields{
		"generated":   report.Generated,
		"valid":       report.Valid,
		"quarantined": report.Quarantined,
		"faults":      report.Faults,
	}).Info("Batch validated")

	if err := p.persist(ctx, run, res, report, log); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		report.FinishedAt = p.now().UTC()
		p.record(report, observability.StatusPersistenceError)
		return report, err
	}

	report.Insights = insights.FleetSummary(res.Valid)
	report.FinishedAt = p.now().UTC()
	p.runHooks(ctx, report, res.Valid, log)

	p.record(report, observability.StatusSuccess)
	log.WithField("duration", report.FinishedAt.Sub(report.StartedAt)).Info("Ingestion complete")
	return report, nil
}

func (p *Pipeline) resolveSeed(seed *uint64) uint64 {
	switch {
	case seed != nil:
		return *seed
	case p.cfg.Seed != nil:
		return *p.cfg.Seed
	default:
		return simulator.RandomSeed()
	}
}

func (p *Pipeline) generate(ctx context.Context, ids []string, seed uint64, start time.Time, n int, report *models.RunReport) (simulator.Batch, error) {
	_, span := observability.StartSpan(ctx, "pipeline.generate")
	defer span.End()
	began := time.Now()

	sim, err := simulator.New(ids, seed)
	if err != nil {
		return simulator.Batch{}, err
	}
	report.Profiles = sim.Profiles()

	batch, err := simulator.NewGenerator(sim, simulator.WithWorkers(p.cfg.Workers)).Generate(start, n)
	if err != nil {
		return simulator.Batch{}, err
	}

	report.Generated = batch.Len()
	report.Faults = make(map[string]int)
	for fault, count := range batch.FaultCounts() {
		report.Faults[string(fault)] = count
	}
	span.SetAttributes(attribute.Int("batch.packets", batch.Len()))
	p.observe("generate", time.Since(began))
	return batch, nil
}

func (p *Pipeline) validate(ctx context.Context, batch simulator.Batch, report *models.RunReport) validation.Result {
	_, span := observability.StartSpan(ctx, "pipeline.validate")
	defer span.End()
	began := time.Now()

	res := p.validator.Validate(batch.Packets)
	report.Valid = len(res.Valid)
	report.Quarantined = len(res.Invalid)
	report.Violations = res.ViolationCounts()

	span.SetAttributes(
		attribute.Int("batch.valid", report.Valid),
		attribute.Int("batch.quarantined", report.Quarantined),
	)
	p.observe("validate", time.Since(began))
	return res
}

// persist writes trusted first, then quarantine. Empty subsets are skipped.
func (p *Pipeline) persist(ctx context.Context, run models.RunRef, res validation.Result, report *models.RunReport, log logrus.FieldLogger) error {
	ctx, span := observability.StartSpan(ctx, "pipeline.persist")
	defer span.End()
	began := time.Now()
	defer func() { p.observe("persist", time.Since(began)) }()

	if len(res.Valid) > 0 {
		loc, err := p.trusted.WriteTrusted(ctx, run, res.Valid)
		report.TrustedPath = loc
		if err != nil {
			log.WithError(err).Error("Failed to write trusted stream")
			return &PersistenceError{Stream: StreamTrusted, Report: report, Err: err}
		}
		log.WithField("path", loc).Infof("Saved %d valid records", len(res.Valid))
	}

	if len(res.Invalid) > 0 {
		loc, err := p.quarantine.WriteQuarantine(ctx, run, res.Invalid)
		report.QuarantinePath = loc
		if err != nil {
			log.WithError(err).Error("Failed to write quarantine stream")
			return &PersistenceError{Stream: StreamQuarantine, Report: report, Err: err}
		}
		log.WithField("path", loc).Warnf("Quarantined %d records", len(res.Invalid))
	}
	return nil
}

func (p *Pipeline) runHooks(ctx context.Context, report *models.RunReport, valid []models.TelemetryPacket, log logrus.FieldLogger) {
	for _, h := range p.hooks {
		if err := h.AfterRun(ctx, report, valid); err != nil {
			log.WithError(err).WithField("hook", h.Name()).Warn("Post-run hook failed")
			report.HookErrors = append(report.HookErrors, fmt.Sprintf("%s: %v", h.Name(), err))
			if p.recorder != nil {
				p.recorder.HookFailed(h.Name())
			}
		}
	}
}

func (p *Pipeline) record(report *models.RunReport, status string) {
	if p.recorder != nil {
		p.recorder.RecordRun(report, status)
	}
}

func (p *Pipeline) observe(stage string, d time.Duration) {
	if p.recorder != nil {
		p.recorder.ObserveStage(stage, d)
	}
}
