package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

// fileStamp matches the %Y%m%d_%H%M%S stamp used in output file names.
const fileStamp = "20060102_150405"

var ErrNoRows = errors.New("no rows to write")

// ParquetStore writes trusted packets as one columnar file per run under Dir.
type ParquetStore struct {
	Dir string
}

// NewParquetStore creates dir if needed.
func NewParquetStore(dir string) (*ParquetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &ParquetStore{Dir: dir}, nil
}

// TrustedPath returns the file WriteTrusted would produce for run.
func (s *ParquetStore) TrustedPath(run models.RunRef) string {
	name := fmt.Sprintf("telemetry_valid_%s_%s.parquet", run.StartedAt.Format(fileStamp), run.ShortID())
	return filepath.Join(s.Dir, name)
}

// WriteTrusted writes packets to the run's trusted file and returns its path.
func (s *ParquetStore) WriteTrusted(ctx context.Context, run models.RunRef, packets []models.TelemetryPacket) (string, error) {
	if len(packets) == 0 {
		return "", ErrNoRows
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := s.TrustedPath(run)
	if err := writeParquet(path, packets); err != nil {
		return "", err
	}
	return path, nil
}

// WriteChunk writes one unvalidated chunk of a bulk generation as telemetry_large_part_<i>.parquet.
func (s *ParquetStore) WriteChunk(i int, packets []models.TelemetryPacket) (string, error) {
	path := filepath.Join(s.Dir, fmt.Sprintf("telemetry_large_part_%d.parquet", i))
	if err := writeParquet(path, packets); err != nil {
		return "", err
	}
	return path, nil
}

// ReadTrusted loads every row of a trusted or chunk file.
func ReadTrusted(path string) ([]models.TelemetryPacket, error) {
	rows, err := parquet.ReadFile[models.TelemetryPacket](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// ReadTrustedGlob unions every file matching pattern, in lexical file order.
func ReadTrustedGlob(pattern string) ([]models.TelemetryPacket, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var out []models.TelemetryPacket
	for _, p := range paths {
		rows, err := ReadTrusted(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func writeParquet(path string, packets []models.TelemetryPacket) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := parquet.NewGenericWriter[models.TelemetryPacket](f)
	if _, err := w.Write(packets); err != nil {
		return fmt.Errorf("failed to write rows to %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}
