package db

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

// RunCollection defines the interface for run ledger operations.
type RunCollection interface {
	InsertRun(ctx context.Context, report models.RunReport) error
	FindRuns(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (RunCursor, error)
}

// RunCursor defines the interface for run cursor operations.
type RunCursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}

// QuarantineCollection defines the interface for quarantine mirror operations.
type QuarantineCollection interface {
	InsertQuarantine(ctx context.Context, records []models.QuarantineRecord) error
}
