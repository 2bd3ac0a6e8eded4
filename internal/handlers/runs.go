package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-telemetry/internal/middleware"
	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/pipeline"
)

const defaultRunsLimit = 20

// Runner executes an ingestion run. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*models.RunReport, error)
}

// RunLister returns the most recent run reports. *db.RunLedger implements it.
type RunLister interface {
	Latest(ctx context.Context, limit int) ([]models.RunReport, error)
}

// RunRequestBody is the JSON body of POST /api/runs. Omitted fields use the
// server defaults.
type RunRequestBody struct {
	VehicleIDs []string   `json:"vehicle_ids,omitempty"`
	NumRecords int        `json:"num_records,omitempty"`
	Seed       *uint64    `json:"seed,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
}

// ErrorResponse is returned for failed runs.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Stream string            `json:"stream,omitempty"`
	Report *models.RunReport `json:"report,omitempty"`
}

// RunHandler triggers ingestion runs and lists past ones
type RunHandler struct {
	runner Runner
	runs   RunLister
}

// NewRunHandler creates a run handler. runs may be nil when no ledger is configured.
func NewRunHandler(runner Runner, runs RunLister) *RunHandler {
	return &RunHandler{runner: runner, runs: runs}
}

// Trigger handles POST /api/runs
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body RunRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if body.NumRecords < 0 {
		http.Error(w, "num_records must not be negative", http.StatusBadRequest)
		return
	}
	// Seeds are stored as BSON int64 in the run ledger.
	if body.Seed != nil && *body.Seed > math.MaxInt64 {
		http.Error(w, "seed must be in [0, 9223372036854775807]", http.StatusBadRequest)
		return
	}

	req := pipeline.RunRequest{
		VehicleIDs: body.VehicleIDs,
		NumRecords: body.NumRecords,
		Seed:       body.Seed,
	}
	if body.StartTime != nil {
		req.StartTime = body.StartTime.UTC()
	}

	entry := log.WithField("path", r.URL.Path)
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok {
		entry = entry.WithField("operator", claims.Username)
	}

	report, err := h.runner.Run(r.Context(), req)
	if err != nil {
		var perr *pipeline.PersistenceError
		switch {
		case pipeline.IsConfigError(err):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.As(err, &perr):
			entry.WithError(err).Error("Run failed to persist")
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:  err.Error(),
				Stream: perr.Stream,
				Report: perr.Report,
			})
		default:
			entry.WithError(err).Error("Run failed")
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	entry.WithField("run_id", report.RunID).Info("Run triggered over API")
	writeJSON(w, http.StatusCreated, report)
}

// List handles GET /api/runs?limit=N
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.runs == nil {
		http.Error(w, "Run ledger not configured", http.StatusNotImplemented)
		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	reports, err := h.runs.Latest(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []models.RunReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
