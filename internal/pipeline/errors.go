package pipeline

import (
	"errors"
	"fmt"

	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/simulator"
)

// Output streams of a run.
const (
	StreamTrusted    = "trusted"
	StreamQuarantine = "quarantine"
)

var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// PersistenceError reports a failed store write. Report reflects everything done
// before the failure, so a non-empty Report.TrustedPath on a quarantine failure
// means the trusted stream was written.
type PersistenceError struct {
	Stream string
	Report *models.RunReport
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Stream == StreamQuarantine && e.Report != nil && e.Report.TrustedPath != "" {
		return fmt.Sprintf("persist %s stream (trusted stream already written to %s): %v", e.Stream, e.Report.TrustedPath, e.Err)
	}
	return fmt.Sprintf("persist %s stream: %v", e.Stream, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsConfigError reports whether err was caused by the run's parameters rather than
// by a store.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, simulator.ErrEmptyFleet) ||
		errors.Is(err, simulator.ErrDuplicateVehicle)
}
