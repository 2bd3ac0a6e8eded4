package pipeline

import (
	"context"
	"fmt"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

// TrustedStore persists the valid subset of a run and returns where it went.
type TrustedStore interface {
	WriteTrusted(ctx context.Context, run models.RunRef, packets []models.TelemetryPacket) (string, error)
}

// QuarantineStore persists the invalid subset of a run and returns where it went.
type QuarantineStore interface {
	WriteQuarantine(ctx context.Context, run models.RunRef, records []models.QuarantineRecord) (string, error)
}

// Hook runs after both streams are persisted. Failures never fail the run.
type Hook interface {
	Name() string
	AfterRun(ctx context.Context, report *models.RunReport, valid []models.TelemetryPacket) error
}

type teeTrusted struct {
	primary TrustedStore
	mirrors []TrustedStore
}

// TeeTrusted writes to primary and then to every mirror, stopping at the first
// failure. The location reported is the primary's.
func TeeTrusted(primary TrustedStore, mirrors ...TrustedStore) TrustedStore {
	if len(mirrors) == 0 {
		return primary
	}
	return &teeTrusted{primary: primary, mirrors: mirrors}
}

func (t *teeTrusted) WriteTrusted(ctx context.Context, run models.RunRef, packets []models.TelemetryPacket) (string, error) {
	loc, err := t.primary.WriteTrusted(ctx, run, packets)
	if err != nil {
		return "", err
	}
	for _, m := range t.mirrors {
		if _, err := m.WriteTrusted(ctx, run, packets); err != nil {
			return loc, fmt.Errorf("mirror after %s: %w", loc, err)
		}
	}
	return loc, nil
}

type teeQuarantine struct {
	primary QuarantineStore
	mirrors []QuarantineStore
}

// TeeQuarantine is TeeTrusted for the quarantine stream.
func TeeQuarantine(primary QuarantineStore, mirrors ...QuarantineStore) QuarantineStore {
	if len(mirrors) == 0 {
		return primary
	}
	return &teeQuarantine{primary: primary, mirrors: mirrors}
}

func (t *teeQuarantine) WriteQuarantine(ctx context.Context, run models.RunRef, records []models.QuarantineRecord) (string, error) {
	loc, err := t.primary.WriteQuarantine(ctx, run, records)
	if err != nil {
		return "", err
	}
	for _, m := range t.mirrors {
		if _, err := m.WriteQuarantine(ctx, run, records); err != nil {
			return loc, fmt.Errorf("mirror after %s: %w", loc, err)
		}
	}
	return loc, nil
}
