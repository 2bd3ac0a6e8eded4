package simulator

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

// Batch is an ordered sequence of packets, step-major then vehicle order.
// Faults[i] records which fault, if any, was injected into Packets[i].
type Batch struct {
	Packets []models.TelemetryPacket
	Faults  []models.Fault
	Steps   int
}

// Len returns the number of packets in the batch.
func (b Batch) Len() int { return len(b.Packets) }

// FaultCounts tallies injected faults by kind. Clean packets are not counted.
func (b Batch) FaultCounts() map[models.Fault]int {
	counts := make(map[models.Fault]int)
	for _, f := range b.Faults {
		if f != models.FaultNone {
			counts[f]++
		}
	}
	return counts
}

// Generator drives a Simulator and an Injector across all vehicles for a number of steps.
type Generator struct {
	sim      *Simulator
	injector Injector
	workers  int
	interval time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithInjector replaces the default AnomalyInjector.
func WithInjector(inj Injector) Option {
	return func(g *Generator) { g.injector = inj }
}

// WithWorkers spreads vehicles across n goroutines. Output is identical to n == 1.
func WithWorkers(n int) Option {
	return func(g *Generator) { g.workers = n }
}

// NewGenerator creates a generator sampling once per second.
func NewGenerator(sim *Simulator, opts ...Option) *Generator {
	g := &Generator{
		sim:      sim,
		injector: AnomalyInjector{},
		workers:  1,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces n // len(vehicles) steps of one packet per vehicle, all vehicles in
// a step sharing the step's timestamp. A request that is not a multiple of the fleet
// size silently yields fewer than n packets. Calling Generate again continues from
// the simulator's current state.
func (g *Generator) Generate(start time.Time, n int) (Batch, error) {
	vehicles := len(g.sim.entries)
	if n <= 0 {
		return Batch{}, nil
	}
	if vehicles == 0 {
		return Batch{}, fmt.Errorf("%w: cannot generate %d records", ErrEmptyFleet, n)
	}

	steps := n / vehicles
	batch := Batch{
		Packets: make([]models.TelemetryPacket, steps*vehicles),
		Faults:  make([]models.Fault, steps*vehicles),
		Steps:   steps,
	}

	if g.workers <= 1 {
		for step := 0; step < steps; step++ {
			ts := start.Add(time.Duration(step) * g.interval)
			for i := 0; i < vehicles; i++ {
				g.emit(&batch, step, i, ts)
			}
		}
		return batch, nil
	}

	// Each goroutine owns one vehicle for the whole run and writes only its own slots.
	var eg errgroup.Group
	eg.SetLimit(g.workers)
	for i := 0; i < vehicles; i++ {
		eg.Go(func() error {
			for step := 0; step < steps; step++ {
				g.emit(&batch, step, i, start.Add(time.Duration(step)*g.interval))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Batch{}, err
	}
	return batch, nil
}

func (g *Generator) emit(b *Batch, step, i int, ts time.Time) {
	vehicles := len(g.sim.entries)
	st := g.sim.stepIndex(i)
	e := &g.sim.entries[i]
	pkt := Snapshot(e.id, st, ts)
	fault := g.injector.Inject(&pkt, e.rng)

	slot := step*vehicles + i
	b.Packets[slot] = pkt
	b.Faults[slot] = fault
}
