package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

const maxRunsPage = 100

// RunLedger records every completed run and lists recent ones.
type RunLedger struct {
	Runs RunCollection
}

func NewRunLedger(runs RunCollection) *RunLedger {
	return &RunLedger{Runs: runs}
}

// Name implements pipeline.Hook.
func (l *RunLedger) Name() string { return "ledger" }

// AfterRun stores the report.
func (l *RunLedger) AfterRun(ctx context.Context, report *models.RunReport, _ []models.TelemetryPacket) error {
	if report == nil {
		return fmt.Errorf("nil run report")
	}
	if err := l.Runs.InsertRun(ctx, *report); err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}
	return nil
}

// Latest returns up to limit runs, newest first. limit is clamped to [1, 100].
func (l *RunLedger) Latest(ctx context.Context, limit int) ([]models.RunReport, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxRunsPage {
		limit = maxRunsPage
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := l.Runs.FindRuns(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find runs: %w", err)
	}
	defer cursor.Close(ctx)

	runs := []models.RunReport{}
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return runs, nil
}

// QuarantineMirror copies quarantined packets into MongoDB next to the CSV file,
// keeping the per-rule violation codes the CSV leaves out.
type QuarantineMirror struct {
	Records QuarantineCollection
}

// WriteQuarantine implements pipeline.QuarantineStore.
func (m *QuarantineMirror) WriteQuarantine(ctx context.Context, run models.RunRef, records []models.QuarantineRecord) (string, error) {
	if err := m.Records.InsertQuarantine(ctx, records); err != nil {
		return "", fmt.Errorf("mirror %d quarantined records for run %s: %w", len(records), run.ID, err)
	}
	return "mongodb:" + QuarantineCollectionName, nil
}
