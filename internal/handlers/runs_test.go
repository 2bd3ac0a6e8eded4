package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/pipeline"
	"github.com/ukydev/fleet-telemetry/internal/simulator"
)

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, req pipeline.RunRequest) (*models.RunReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RunReport), args.Error(1)
}

// MockRunLister is a mock implementation of RunLister
type MockRunLister struct {
	mock.Mock
}

func (m *MockRunLister) Latest(ctx context.Context, limit int) ([]models.RunReport, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RunReport), args.Error(1)
}

func postRun(h *RunHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/runs", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.Trigger(w, req)
	return w
}

func TestRunHandler_Trigger(t *testing.T) {
	t.Run("overrides are passed through", func(t *testing.T) {
		runner := new(MockRunner)
		seed := uint64(42)
		start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		want := pipeline.RunRequest{
			VehicleIDs: []string{"V001", "V002"},
			NumRecords: 10,
			Seed:       &seed,
			StartTime:  start,
		}
		report := &models.RunReport{RunID: "run-1", Seed: 42, Generated: 10, Valid: 9, Quarantined: 1}
		runner.On("Run", mock.Anything, want).Return(report, nil)

		w := postRun(NewRunHandler(runner, nil),
			`{"vehicle_ids":["V001","V002"],"num_records":10,"seed":42,"start_time":"2025-03-01T08:00:00Z"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		var got models.RunReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, 9, got.Valid)
		runner.AssertExpectations(t)
	})

	t.Run("empty body uses defaults", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, pipeline.RunRequest{}).Return(&models.RunReport{RunID: "run-2"}, nil)

		w := postRun(NewRunHandler(runner, nil), "")
		assert.Equal(t, http.StatusCreated, w.Code)
		runner.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		runner := new(MockRunner)
		w := postRun(NewRunHandler(runner, nil), `{"num_records":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("negative records", func(t *testing.T) {
		runner := new(MockRunner)
		w := postRun(NewRunHandler(runner, nil), `{"num_records":-5}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("seed beyond int64", func(t *testing.T) {
		runner := new(MockRunner)
		w := postRun(NewRunHandler(runner, nil), `{"seed":18446744073709551615}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("largest int64 seed is accepted", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, mock.Anything).Return(&models.RunReport{RunID: "run-max"}, nil)
		w := postRun(NewRunHandler(runner, nil), `{"seed":9223372036854775807}`)
		assert.Equal(t, http.StatusCreated, w.Code)
		runner.AssertExpectations(t)
	})

	t.Run("config error", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, mock.Anything).
			Return(nil, simulator.ErrDuplicateVehicle)

		w := postRun(NewRunHandler(runner, nil), `{"vehicle_ids":["V001","V001"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var got ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Contains(t, got.Error, simulator.ErrDuplicateVehicle.Error())
	})

	t.Run("persistence error carries stream and partial report", func(t *testing.T) {
		runner := new(MockRunner)
		partial := &models.RunReport{RunID: "run-3", TrustedPath: "data/trusted.parquet"}
		perr := &pipeline.PersistenceError{Stream: pipeline.StreamQuarantine, Report: partial, Err: errors.New("disk full")}
		runner.On("Run", mock.Anything, mock.Anything).Return(partial, perr)

		w := postRun(NewRunHandler(runner, nil), `{}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var got ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, pipeline.StreamQuarantine, got.Stream)
		require.NotNil(t, got.Report)
		assert.Equal(t, "data/trusted.parquet", got.Report.TrustedPath)
	})

	t.Run("unexpected error", func(t *testing.T) {
		runner := new(MockRunner)
		runner.On("Run", mock.Anything, mock.Anything).Return(nil, context.Canceled)

		w := postRun(NewRunHandler(runner, nil), `{}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/runs", nil)
		w := httptest.NewRecorder()
		NewRunHandler(new(MockRunner), nil).Trigger(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestRunHandler_List(t *testing.T) {
	get := func(h *RunHandler, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", target, nil)
		w := httptest.NewRecorder()
		h.List(w, req)
		return w
	}

	t.Run("default limit", func(t *testing.T) {
		lister := new(MockRunLister)
		lister.On("Latest", mock.Anything, defaultRunsLimit).
			Return([]models.RunReport{{RunID: "b"}, {RunID: "a"}}, nil)

		w := get(NewRunHandler(new(MockRunner), lister), "/api/runs")
		assert.Equal(t, http.StatusOK, w.Code)

		var got []models.RunReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].RunID)
		lister.AssertExpectations(t)
	})

	t.Run("explicit limit and empty ledger", func(t *testing.T) {
		lister := new(MockRunLister)
		lister.On("Latest", mock.Anything, 5).Return(nil, nil)

		w := get(NewRunHandler(new(MockRunner), lister), "/api/runs?limit=5")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"abc", "0", "-1"} {
			w := get(NewRunHandler(new(MockRunner), new(MockRunLister)), "/api/runs?limit="+q)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("ledger error", func(t *testing.T) {
		lister := new(MockRunLister)
		lister.On("Latest", mock.Anything, defaultRunsLimit).Return(nil, errors.New("mongo down"))

		w := get(NewRunHandler(new(MockRunner), lister), "/api/runs")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("no ledger configured", func(t *testing.T) {
		w := get(NewRunHandler(new(MockRunner), nil), "/api/runs")
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
