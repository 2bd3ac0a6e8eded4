package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-telemetry/internal/app"
	"github.com/ukydev/fleet-telemetry/internal/auth"
	"github.com/ukydev/fleet-telemetry/internal/config"
	"github.com/ukydev/fleet-telemetry/internal/handlers"
	"github.com/ukydev/fleet-telemetry/internal/logging"
	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/observability"
	"github.com/ukydev/fleet-telemetry/internal/pipeline"
	"github.com/ukydev/fleet-telemetry/internal/simulator"
	"github.com/ukydev/fleet-telemetry/internal/storage"
)

// options are the command line settings layered over the environment config.
type options struct {
	cfg          *config.Config
	chunks       int
	chunkSize    int
	hashPassword string
	remoteURL    string
	authToken    string
}

func parseFlags(args []string, cfg *config.Config) (*options, error) {
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	vehicles := fs.String("vehicles", strings.Join(cfg.VehicleIDs, ","), "comma separated vehicle ids")
	records := fs.Int("records", cfg.NumRecords, "packets to generate, must be positive")
	seed := fs.String("seed", "", "simulation seed (random when empty)")
	start := fs.String("start", "", "simulation start time, RFC3339 (now when empty)")
	workers := fs.Int("workers", cfg.Workers, "goroutines used for generation")
	dataDir := fs.String("data-dir", cfg.DataDir, "directory for parquet and csv output")
	chunks := fs.Int("chunks", 0, "generate this many unvalidated parquet chunks instead of a run")
	chunkSize := fs.Int("chunk-size", 100000, "packets per chunk")
	hash := fs.String("hash-password", "", "print the bcrypt hash of a password and exit")
	remote := fs.String("remote", "", "trigger the run on a fleet-telemetry API at this base URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	out := *cfg
	out.VehicleIDs = config.ParseVehicleIDs(*vehicles)
	out.NumRecords = *records
	out.Workers = *workers
	out.DataDir = *dataDir
	if *seed != "" {
		s, err := config.ParseSeed(*seed)
		if err != nil {
			return nil, err
		}
		out.Seed = s
	}
	if *start != "" {
		t, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return nil, fmt.Errorf("invalid -start %q: %w", *start, err)
		}
		out.StartTime = t.UTC()
	}
	if *records < 0 {
		return nil, errors.New("-records must not be negative")
	}
	// The pipeline reads 0 as "use the default", so an explicit 0 is refused.
	explicitZero := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "records" && *records == 0 {
			explicitZero = true
		}
	})
	if explicitZero {
		return nil, errors.New("-records must be positive")
	}
	if *chunks < 0 || *chunkSize <= 0 {
		return nil, errors.New("-chunks must be >= 0 and -chunk-size > 0")
	}

	return &options{
		cfg:          &out,
		chunks:       *chunks,
		chunkSize:    *chunkSize,
		hashPassword: *hash,
		remoteURL:    strings.TrimRight(*remote, "/"),
		authToken:    os.Getenv("SIM_AUTH_TOKEN"),
	}, nil
}

type chunkWriter interface {
	WriteChunk(i int, packets []models.TelemetryPacket) (string, error)
}

// generateChunks drives one generator through n chunks so vehicle state and
// timestamps continue from chunk to chunk. Chunks are not validated.
func generateChunks(ctx context.Context, gen *simulator.Generator, w chunkWriter, start time.Time, n, size int) ([]string, error) {
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		batch, err := gen.Generate(start, size)
		if err != nil {
			return paths, err
		}
		if batch.Len() == 0 {
			return paths, fmt.Errorf("chunk size %d is smaller than the fleet", size)
		}
		path, err := w.WriteChunk(i, batch.Packets)
		if err != nil {
			return paths, err
		}
		log.WithFields(log.Fields{
			"chunk":   i,
			"packets": batch.Len(),
			"path":    path,
		}).Info("Chunk written")
		paths = append(paths, path)
		start = start.Add(time.Duration(batch.Steps) * time.Second)
	}
	return paths, nil
}

// triggerRemote asks a running API server to perform the run.
func triggerRemote(ctx context.Context, client *http.Client, baseURL, token string, body handlers.RunRequestBody) (*models.RunReport, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/runs", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to trigger run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("run request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var report models.RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	return &report, nil
}

func remoteBody(cfg *config.Config) handlers.RunRequestBody {
	body := handlers.RunRequestBody{
		VehicleIDs: cfg.VehicleIDs,
		NumRecords: cfg.NumRecords,
		Seed:       cfg.Seed,
	}
	if !cfg.StartTime.IsZero() {
		start := cfg.StartTime
		body.StartTime = &start
	}
	return body
}

func printReport(w io.Writer, report *models.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func run(ctx context.Context, opts *options, stdout io.Writer) error {
	cfg := opts.cfg

	if opts.hashPassword != "" {
		hash, err := auth.HashPassword(opts.hashPassword)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, hash)
		return err
	}

	if opts.remoteURL != "" {
		client := &http.Client{Timeout: 5 * time.Minute}
		report, err := triggerRemote(ctx, client, opts.remoteURL, opts.authToken, remoteBody(cfg))
		if err != nil {
			return err
		}
		return printReport(stdout, report)
	}

	if opts.chunks > 0 {
		seed := simulator.RandomSeed()
		if cfg.Seed != nil {
			seed = *cfg.Seed
		}
		sim, err := simulator.New(cfg.VehicleIDs, seed)
		if err != nil {
			return err
		}
		store, err := storage.NewParquetStore(cfg.DataDir)
		if err != nil {
			return err
		}
		start := cfg.StartTime
		if start.IsZero() {
			start = time.Now().UTC()
		}
		log.WithFields(log.Fields{
			"chunks":     opts.chunks,
			"chunk_size": opts.chunkSize,
			"seed":       seed,
		}).Info("Generating bulk telemetry")
		_, err = generateChunks(ctx, simulator.NewGenerator(sim, simulator.WithWorkers(cfg.Workers)), store, start, opts.chunks, opts.chunkSize)
		return err
	}

	a, err := app.Build(ctx, cfg, nil, log.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Pipeline.Run(ctx, pipeline.RunRequest{StartTime: cfg.StartTime})
	if err != nil {
		var perr *pipeline.PersistenceError
		if errors.As(err, &perr) && perr.Report != nil {
			_ = printReport(stdout, perr.Report)
		}
		return err
	}
	return printReport(stdout, report)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "usage: simulator [-vehicles ids] [-records n] [-seed s] [-start rfc3339] [-workers n] [-data-dir dir] [-chunks n -chunk-size m] [-remote url] [-hash-password pw]")
			os.Exit(0)
		}
		log.Fatalf("Invalid arguments: %v", err)
	}
	// stdout carries the report; logs go to stderr.
	closeLog, err := logging.SetupWriter(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log.StandardLogger())
	if err != nil {
		log.Fatalf("Failed to initialise tracing: %v", err)
	}

	err = run(ctx, opts, os.Stdout)
	if err != nil {
		log.WithError(err).Error("Simulation failed")
	}
	stop()
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log.StandardLogger())
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}
