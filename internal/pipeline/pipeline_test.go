package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-telemetry/internal/logging"
	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/observability"
	"github.com/ukydev/fleet-telemetry/internal/simulator"
	"github.com/ukydev/fleet-telemetry/internal/validation"
)

// MockTrustedStore is a mock implementation of TrustedStore
type MockTrustedStore struct {
	mock.Mock
}

func (m *MockTrustedStore) WriteTrusted(ctx context.Context, run models.RunRef, packets []models.TelemetryPacket) (string, error) {
	args := m.Called(ctx, run, packets)
	return args.String(0), args.Error(1)
}

// MockQuarantineStore is a mock implementation of QuarantineStore
type MockQuarantineStore struct {
	mock.Mock
}

func (m *MockQuarantineStore) WriteQuarantine(ctx context.Context, run models.RunRef, records []models.QuarantineRecord) (string, error) {
	args := m.Called(ctx, run, records)
	return args.String(0), args.Error(1)
}

// MockRecorder is a mock implementation of Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordRun(report *models.RunReport, status string) {
	m.Called(report, status)
}

func (m *MockRecorder) ObserveStage(stage string, d time.Duration) {
	m.Called(stage, d)
}

func (m *MockRecorder) HookFailed(hook string) {
	m.Called(hook)
}

type fakeHook struct {
	name   string
	err    error
	calls  int
	valid  int
	report *models.RunReport
}

func (h *fakeHook) Name() string { return h.name }

func (h *fakeHook) AfterRun(_ context.Context, report *models.RunReport, valid []models.TelemetryPacket) error {
	h.calls++
	h.valid = len(valid)
	h.report = report
	return h.err
}

var (
	fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	simStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	demoIDs  = []string{"V001", "V002", "V003", "V004"}
)

func seed(v uint64) *uint64 { return &v }

func newTestPipeline(t *testing.T, trusted TrustedStore, quarantine QuarantineStore, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "run-0001-abcdef" }),
	}
	p, err := New(Config{VehicleIDs: demoIDs, NumRecords: 400, Seed: seed(42)}, trusted, quarantine, append(base, opts...)...)
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	t.Run("missing stores", func(t *testing.T) {
		_, err := New(Config{}, nil, new(MockQuarantineStore))
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("negative records", func(t *testing.T) {
		_, err := New(Config{NumRecords: -1}, new(MockTrustedStore), new(MockQuarantineStore))
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("defaults", func(t *testing.T) {
		p, err := New(Config{}, new(MockTrustedStore), new(MockQuarantineStore))
		require.NoError(t, err)
		assert.Equal(t, DefaultVehicleIDs, p.Config().VehicleIDs)
		assert.Equal(t, DefaultNumRecords, p.Config().NumRecords)
		assert.Equal(t, 1, p.Config().Workers)
	})
}

func TestRun_Success(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)
	run := models.RunRef{ID: "run-0001-abcdef", StartedAt: fixedNow}

	var valid []models.TelemetryPacket
	var invalid []models.QuarantineRecord
	trusted.On("WriteTrusted", mock.Anything, run, mock.Anything).
		Run(func(args mock.Arguments) { valid = args.Get(2).([]models.TelemetryPacket) }).
		Return("data/telemetry_valid.parquet", nil)
	quarantine.On("WriteQuarantine", mock.Anything, run, mock.Anything).
		Run(func(args mock.Arguments) { invalid = args.Get(2).([]models.QuarantineRecord) }).
		Return("data/quarantine.csv", nil).Maybe()

	hook := &fakeHook{name: "ledger"}
	p := newTestPipeline(t, trusted, quarantine, WithHooks(hook))

	report, err := p.Run(context.Background(), RunRequest{StartTime: simStart})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "run-0001-abcdef", report.RunID)
	assert.Equal(t, uint64(42), report.Seed)
	assert.Equal(t, 400, report.Requested)
	assert.Equal(t, 400, report.Generated)
	assert.Equal(t, report.Generated, report.Valid+report.Quarantined)
	assert.Equal(t, len(valid), report.Valid)
	assert.Equal(t, len(invalid), report.Quarantined)
	assert.Equal(t, "data/telemetry_valid.parquet", report.TrustedPath)
	assert.Equal(t, simStart, report.SimStart)
	assert.Equal(t, models.ProfileAggressive, report.Profiles["V001"])
	assert.Len(t, report.Insights, 4)
	assert.Empty(t, report.HookErrors)

	if report.Quarantined > 0 {
		assert.Equal(t, "data/quarantine.csv", report.QuarantinePath)
		for _, rec := range invalid {
			assert.Equal(t, "run-0001-abcdef", rec.RunID)
			assert.Equal(t, models.RejectionReason, rec.RejectionReason)
		}
	}

	assert.Equal(t, 1, hook.calls)
	assert.Equal(t, report.Valid, hook.valid)
	assert.Same(t, report, hook.report)
	trusted.AssertExpectations(t)
	quarantine.AssertExpectations(t)
}

func TestRun_Deterministic(t *testing.T) {
	collect := func() []models.TelemetryPacket {
		trusted := new(MockTrustedStore)
		quarantine := new(MockQuarantineStore)
		var got []models.TelemetryPacket
		trusted.On("WriteTrusted", mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { got = args.Get(2).([]models.TelemetryPacket) }).
			Return("t", nil)
		quarantine.On("WriteQuarantine", mock.Anything, mock.Anything, mock.Anything).Return("q", nil).Maybe()

		_, err := newTestPipeline(t, trusted, quarantine).Run(context.Background(), RunRequest{StartTime: simStart})
		require.NoError(t, err)
		return got
	}
	assert.Equal(t, collect(), collect())
}

func TestRun_RequestOverrides(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)
	trusted.On("WriteTrusted", mock.Anything, mock.Anything, mock.Anything).Return("t", nil).Maybe()
	quarantine.On("WriteQuarantine", mock.Anything, mock.Anything, mock.Anything).Return("q", nil).Maybe()

	p := newTestPipeline(t, trusted, quarantine)
	report, err := p.Run(context.Background(), RunRequest{
		VehicleIDs: []string{"V1", "V2", "V3"},
		NumRecords: 100,
		Seed:       seed(7),
		StartTime:  simStart,
	})
	require.NoError(t, err)

	assert.Equal(t, 99, report.Generated)
	assert.Equal(t, uint64(7), report.Seed)
	assert.Equal(t, []string{"V1", "V2", "V3"}, report.VehicleIDs)
}

func TestRun_DefaultsSimStartToStartedAt(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)
	trusted.On("WriteTrusted", mock.Anything, mock.Anything, mock.Anything).Return("t", nil).Maybe()
	quarantine.On("WriteQuarantine", mock.Anything, mock.Anything, mock.Anything).Return("q", nil).Maybe()

	report, err := newTestPipeline(t, trusted, quarantine).Run(context.Background(), RunRequest{NumRecords: 8})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, report.SimStart)
}

func TestRun_ConfigErrors(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)
	recorder := new(MockRecorder)
	recorder.On("RecordRun", (*models.RunReport)(nil), observability.StatusConfigError).Return()
	recorder.On("ObserveStage", mock.Anything, mock.Anything).Return().Maybe()

	p := newTestPipeline(t, trusted, quarantine, WithRecorder(recorder))

	t.Run("duplicate vehicle", func(t *testing.T) {
		report, err := p.Run(context.Background(), RunRequest{VehicleIDs: []string{"V1", "V1"}})
		assert.Nil(t, report)
		assert.True(t, errors.Is(err, simulator.ErrDuplicateVehicle))
		assert.True(t, IsConfigError(err))
	})

	t.Run("negative records", func(t *testing.T) {
		report, err := p.Run(context.Background(), RunRequest{NumRecords: -3})
		assert.Nil(t, report)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
		assert.True(t, IsConfigError(err))
	})

	trusted.AssertNotCalled(t, "WriteTrusted", mock.Anything, mock.Anything, mock.Anything)
	quarantine.AssertNotCalled(t, "WriteQuarantine", mock.Anything, mock.Anything, mock.Anything)
	recorder.AssertNumberOfCalls(t, "RecordRun", 2)
}

func TestRun_TrustedFailure(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)
	diskFull := errors.New("no space left on device")
	trusted.On("WriteTrusted", mock.Anything, mock.Anything, mock.Anything).Return("", diskFull)

	hook := &fakeHook{name: "ledger"}
	p := newTestPipeline(t, trusted, quarantine, WithHooks(hook))

	report, err := p.Run(context.Background(), RunRequest{StartTime: simStart})
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StreamTrusted, perr.Stream)
	assert.True(t, errors.Is(err, diskFull))
	assert.Same(t, report, perr.Report)
	assert.Empty(t, report.TrustedPath)
	assert.Equal(t, 400, report.Generated)
	assert.False(t, IsConfigError(err))

	quarantine.AssertNotCalled(t, "WriteQuarantine", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, hook.calls)
}

func TestRun_QuarantineFailureAfterTrustedWrite(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)
	trusted.On("WriteTrusted", mock.Anything, mock.Anything, mock.Anything).Return("data/valid.parquet", nil)
	quarantine.On("WriteQuarantine", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("permission denied"))

	rejectV002 := validation.Rule{
		Code:  "blocked_vehicle",
		Class: validation.ClassCritical,
		Check: func(p *models.TelemetryPacket) bool { return p.VehicleID == "V002" },
	}
	p := newTestPipeline(t, trusted, quarantine, WithValidator(validation.New(rejectV002)))

	report, err := p.Run(context.Background(), RunRequest{StartTime: simStart, NumRecords: 40})
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StreamQuarantine, perr.Stream)
	assert.Equal(t, "data/valid.parquet", report.TrustedPath)
	assert.Contains(t, err.Error(), "trusted stream already written to data/valid.parquet")
	assert.Equal(t, 10, report.Quarantined)
	assert.Equal(t, map[string]int{"blocked_vehicle": 10}, report.Violations)
}

func TestRun_EmptySubsetsSkipStores(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)

	p := newTestPipeline(t, trusted, quarantine)
	report, err := p.Run(context.Background(), RunRequest{VehicleIDs: []string{"V1", "V2", "V3", "V4", "V5"}, NumRecords: 4})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Generated)
	assert.Empty(t, report.TrustedPath)
	assert.Empty(t, report.QuarantinePath)
	trusted.AssertNotCalled(t, "WriteTrusted", mock.Anything, mock.Anything, mock.Anything)
	quarantine.AssertNotCalled(t, "WriteQuarantine", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_HookFailureDoesNotFailRun(t *testing.T) {
	trusted := new(MockTrustedStore)
	quarantine := new(MockQuarantineStore)
	trusted.On("WriteTrusted", mock.Anything, mock.Anything, mock.Anything).Return("t", nil).Maybe()
	quarantine.On("WriteQuarantine", mock.Anything, mock.Anything, mock.Anything).Return("q", nil).Maybe()

	recorder := new(MockRecorder)
	recorder.On("ObserveStage", mock.Anything, mock.Anything).Return()
	recorder.On("HookFailed", "mqtt").Return().Once()
	recorder.On("RecordRun", mock.AnythingOfType("*models.RunReport"), observability.StatusSuccess).Return().Once()

	broken := &fakeHook{name: "mqtt", err: errors.New("broker unreachable")}
	after := &fakeHook{name: "ledger"}
	p := newTestPipeline(t, trusted, quarantine, WithRecorder(recorder), WithHooks(broken, after))

	report, err := p.Run(context.Background(), RunRequest{StartTime: simStart})
	require.NoError(t, err)

	assert.Equal(t, []string{"mqtt: broker unreachable"}, report.HookErrors)
	assert.Equal(t, 1, after.calls)
	recorder.AssertExpectations(t)
	recorder.AssertCalled(t, "ObserveStage", "generate", mock.Anything)
	recorder.AssertCalled(t, "ObserveStage", "validate", mock.Anything)
	recorder.AssertCalled(t, "ObserveStage", "persist", mock.Anything)
}

func TestPersistenceError_Message(t *testing.T) {
	err := &PersistenceError{Stream: StreamTrusted, Err: errors.New("boom")}
	assert.Equal(t, "persist trusted stream: boom", err.Error())
}
