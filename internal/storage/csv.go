package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

const csvTimeLayout = "2006-01-02 15:04:05.999999"

// CSVStore writes quarantined packets as one row-oriented file per run under Dir.
type CSVStore struct {
	Dir string
}

func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &CSVStore{Dir: dir}, nil
}

// QuarantinePath returns the file WriteQuarantine would produce for run.
func (s *CSVStore) QuarantinePath(run models.RunRef) string {
	name := fmt.Sprintf("quarantine_%s_%s.csv", run.StartedAt.Format(fileStamp), run.ShortID())
	return filepath.Join(s.Dir, name)
}

// WriteQuarantine writes records with the rejection_reason column and returns the path.
func (s *CSVStore) WriteQuarantine(ctx context.Context, run models.RunRef, records []models.QuarantineRecord) (path string, err error) {
	if len(records) == 0 {
		return "", ErrNoRows
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path = s.QuarantinePath(run)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(models.QuarantineColumns); err != nil {
		return path, fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(quarantineRow(rec)); err != nil {
			return path, fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return path, fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return path, nil
}

func quarantineRow(rec models.QuarantineRecord) []string {
	p := rec.TelemetryPacket
	return []string{
		p.VehicleID,
		formatTime(p.Timestamp),
		formatFloat(p.SpeedKmph),
		strconv.FormatInt(p.RPM, 10),
		formatFloat(p.EngineTempC),
		formatFloat(p.FuelRateLPerHr),
		formatFloat(p.BatteryVoltage),
		formatFloat(p.Lat),
		formatFloat(p.Lon),
		rec.RejectionReason,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(csvTimeLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadQuarantine parses a file written by WriteQuarantine. Violations are not
// part of the file and come back empty.
func ReadQuarantine(path string) ([]models.QuarantineRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(models.QuarantineColumns)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header", path)
	}

	out := make([]models.QuarantineRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec, err := parseQuarantineRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, n+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseQuarantineRow(row []string) (models.QuarantineRecord, error) {
	var (
		rec models.QuarantineRecord
		err error
	)
	p := &rec.TelemetryPacket
	p.VehicleID = row[0]
	if row[1] != "" {
		if p.Timestamp, err = time.Parse(csvTimeLayout, row[1]); err != nil {
			return rec, err
		}
	}
	floats := []struct {
		dst *float64
		src string
	}{
		{&p.SpeedKmph, row[2]},
		{&p.EngineTempC, row[4]},
		{&p.FuelRateLPerHr, row[5]},
		{&p.BatteryVoltage, row[6]},
		{&p.Lat, row[7]},
		{&p.Lon, row[8]},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(f.src, 64); err != nil {
			return rec, err
		}
	}
	if p.RPM, err = strconv.ParseInt(row[3], 10, 64); err != nil {
		return rec, err
	}
	rec.RejectionReason = row[9]
	return rec, nil
}
