package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rdpso/simulator/internal/logging"
	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/pso"
	"rdpso/simulator/internal/replay"
	"rdpso/simulator/internal/report"
	"rdpso/simulator/internal/simulator"
	"rdpso/simulator/internal/space"
	"rdpso/simulator/internal/store"
)

// subscriberBuffer sizes per-subscriber snapshot channels; full channels drop.
const subscriberBuffer = 16

// SnapshotPublisher receives every snapshot together with its JSON encoding.
type SnapshotPublisher interface {
	Publish(snapshot networking.Snapshot, payload []byte)
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithEngineLogger overrides the engine logger.
func WithEngineLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithEngineClock injects the time source used for snapshots and bundles.
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithPublisher attaches a snapshot fan-out target such as the websocket hub.
func WithPublisher(publisher SnapshotPublisher) EngineOption {
	return func(e *Engine) {
		if publisher != nil {
			e.publishers = append(e.publishers, publisher)
		}
	}
}

// WithReplayRoot records every run as a replay bundle under root.
func WithReplayRoot(root string) EngineOption {
	return func(e *Engine) { e.replayRoot = root }
}

// WithStore records run history into the SQLite store.
func WithStore(st *store.Store) EngineOption {
	return func(e *Engine) { e.store = st }
}

// WithConvergence samples swarm statistics for convergence plots.
func WithConvergence(c *report.Convergence) EngineOption {
	return func(e *Engine) { e.convergence = c }
}

// WithRunIDs overrides run identifier generation.
func WithRunIDs(next func() string) EngineOption {
	return func(e *Engine) {
		if next != nil {
			e.newRunID = next
		}
	}
}

// Engine serialises access to the simulator and fans its snapshots out to
// viewers, gRPC subscribers, replay bundles and the run store.
type Engine struct {
	log         *logging.Logger
	clock       func() time.Time
	newRunID    func() string
	encoder     *networking.SnapshotEncoder
	publishers  []SnapshotPublisher
	replayRoot  string
	store       *store.Store
	convergence *report.Convergence

	mu     sync.Mutex
	sim    *simulator.Simulator
	runID  string
	latest networking.Snapshot
	writer *replay.Writer
	closed bool

	subMu       sync.Mutex
	subscribers map[uint64]chan networking.Snapshot
	subsClosed  bool
	nextSubID   uint64
	// activeDir mirrors writer.Directory() for the replay cleaner.
	activeDir atomic.Value
}

// NewEngine wraps sim and opens the first run.
func NewEngine(sim *simulator.Simulator, opts ...EngineOption) (*Engine, error) {
	if sim == nil {
		return nil, errors.New("simulator is nil")
	}
	e := &Engine{
		log:         logging.L(),
		clock:       time.Now,
		newRunID:    uuid.NewString,
		encoder:     networking.NewSnapshotEncoder(),
		sim:         sim,
		subscribers: make(map[uint64]chan networking.Snapshot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.activeDir.Store("")

	//1.- Open the first run and publish the deployment snapshot.
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beginRunLocked(context.Background())
	e.publishLocked(e.captureLocked())
	return e, nil
}

// RunID returns the identifier of the active run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// Tick advances one iteration; it is the fixed-rate loop step.
func (e *Engine) Tick(ctx context.Context) error {
	_, err := e.Step(ctx, 1)
	return err
}

// Step advances count iterations and returns the last snapshot.
func (e *Engine) Step(ctx context.Context, count int) (networking.Snapshot, error) {
	if count < 1 {
		return networking.Snapshot{}, fmt.Errorf("%w: step count must be >= 1", simulator.ErrInvalidConfig)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return networking.Snapshot{}, errors.New("engine closed")
	}
	for i := 0; i < count; i++ {
		//1.- Stop between iterations when the caller gives up.
		if err := ctx.Err(); err != nil {
			return e.latest, err
		}
		//2.- Advance the swarm and remember the best it started from.
		previous := e.sim.HistoricBest()
		if err := e.sim.Step(); err != nil {
			e.log.Error("simulation step failed",
				logging.String("run_id", e.runID),
				logging.Uint64("iteration", e.sim.Iteration()),
				logging.Error(err),
			)
			return e.latest, fmt.Errorf("step: %w", err)
		}
		//3.- Record improvements, then fan the snapshot out.
		snapshot := e.captureLocked()
		if snapshot.HistoricBest != previous {
			e.recordImprovementLocked(ctx, snapshot)
		}
		e.publishLocked(snapshot)
	}
	return e.latest, nil
}

// Reset closes the active run, redeploys the swarm and opens a new run.
// A staged config takes effect here.
func (e *Engine) Reset(ctx context.Context) (networking.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return networking.Snapshot{}, errors.New("engine closed")
	}
	//1.- Redeploy before closing the old run so a failed reset keeps it open.
	staged := e.sim.Pending()
	if err := e.sim.Reset(); err != nil {
		return e.latest, fmt.Errorf("reset: %w", err)
	}
	//2.- Rotate the run record and replay bundle.
	e.endRunLocked(ctx)
	e.beginRunLocked(ctx)
	e.log.Info("swarm reset",
		logging.String("run_id", e.runID),
		logging.Bool("config_applied", staged),
		logging.Uint64("seed", e.sim.Config().Seed),
	)
	snapshot := e.captureLocked()
	e.publishLocked(snapshot)
	return snapshot, nil
}

// SetConfig validates raw JSON and stages it for the next reset.
func (e *Engine) SetConfig(raw string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sim.SetConfig(raw); err != nil {
		return err
	}
	e.appendEventLocked(replay.EventConfig, map[string]string{"status": "staged"})
	e.log.Info("simulation config staged", logging.String("run_id", e.runID))
	return nil
}

// UpdateParams swaps the PSO coefficients of the running swarm.
func (e *Engine) UpdateParams(params pso.ParameterSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.sim.UpdateParams(params); err != nil {
		return err
	}
	e.appendEventLocked(replay.EventParams, params)
	e.log.Info("swarm parameters updated",
		logging.String("run_id", e.runID),
		logging.Float64("w", params.W),
		logging.Float64("c1", params.C1),
		logging.Float64("c2", params.C2),
		logging.Float64("c3", params.C3),
		logging.Float64("max_velocity", params.MaxVelocity),
	)
	return nil
}

// Snapshot returns the most recent snapshot.
func (e *Engine) Snapshot() networking.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}

// DumpConfig renders the active simulation config.
func (e *Engine) DumpConfig() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.DumpConfig()
}

// TerrainHeight samples the active terrain.
func (e *Engine) TerrainHeight(x, z float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.TerrainHeight(x, z)
}

// TerrainPoint maps parametric coordinates onto the terrain surface.
func (e *Engine) TerrainPoint(u, v float64) (space.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.ParametricTerrainEval(u, v)
}

// ParticlePosition returns the position of one particle.
func (e *Engine) ParticlePosition(idx int) (space.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.ParticlePositionByIdx(idx)
}

// ReplayFrames reports frames written to the active bundle.
func (e *Engine) ReplayFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writer.Frames()
}

// ActiveReplayDir names the bundle the cleaner must keep.
func (e *Engine) ActiveReplayDir() string {
	dir, _ := e.activeDir.Load().(string)
	return dir
}

// Close finishes the active run and closes every subscriber.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.endRunLocked(ctx)
	e.mu.Unlock()

	e.CloseSubscribers()
	return nil
}

// CloseSubscribers ends every snapshot subscription and refuses new ones.
func (e *Engine) CloseSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subsClosed = true
	for id, ch := range e.subscribers {
		delete(e.subscribers, id)
		close(ch)
	}
}

func (e *Engine) captureLocked() networking.Snapshot {
	cfg := e.sim.Config()
	swarm := e.sim.Swarm()
	snapshot := networking.Snapshot{
		RunID:        e.runID,
		Iteration:    e.sim.Iteration(),
		CapturedAt:   e.clock().UTC(),
		Goal:         cfg.Ctx.Goal,
		Strategy:     cfg.Ctx.Strategy,
		Best:         e.sim.Best(),
		HistoricBest: e.sim.HistoricBest(),
		Stats:        swarm.Stats(),
		Particles:    swarm.Particles(),
	}
	e.latest = snapshot
	return snapshot
}

func (e *Engine) publishLocked(snapshot networking.Snapshot) {
	//1.- Feed the convergence chart and the replay bundle.
	e.convergence.Record(snapshot.Stats)

	if e.writer != nil {
		if frame, err := e.encoder.Binary(snapshot); err != nil {
			e.log.Warn("encode replay frame failed", logging.Error(err))
		} else if err := e.writer.AppendFrame(snapshot.Iteration, frame); err != nil {
			e.log.Warn("append replay frame failed", logging.String("run_id", e.runID), logging.Error(err))
		}
	}

	//2.- Encode once for every JSON publisher.
	if len(e.publishers) > 0 {
		payload, err := e.encoder.JSON(snapshot)
		if err != nil {
			e.log.Warn("encode snapshot failed", logging.Error(err))
		} else {
			for _, publisher := range e.publishers {
				publisher.Publish(snapshot, payload)
			}
		}
	}

	//3.- Offer the snapshot to subscribers without blocking on slow ones.
	e.subMu.Lock()
	for _, ch := range e.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
	e.subMu.Unlock()
}

func (e *Engine) recordImprovementLocked(ctx context.Context, snapshot networking.Snapshot) {
	e.log.Debug("historic best improved",
		logging.String("run_id", e.runID),
		logging.Uint64("iteration", snapshot.Iteration),
		logging.Float64("score", snapshot.HistoricBest.Score),
	)
	e.appendEventLocked(replay.EventImprovement, snapshot.HistoricBest)
	if e.store != nil {
		if err := e.store.RecordImprovement(ctx, e.runID, snapshot.Iteration, snapshot.HistoricBest); err != nil {
			e.log.Warn("record improvement failed", logging.String("run_id", e.runID), logging.Error(err))
		}
	}
}

func (e *Engine) appendEventLocked(eventType string, payload any) {
	if e.writer == nil {
		return
	}
	if err := e.writer.AppendEvent(e.sim.Iteration(), eventType, payload); err != nil {
		e.log.Warn("append replay event failed", logging.String("event", eventType), logging.Error(err))
	}
}

func (e *Engine) beginRunLocked(ctx context.Context) {
	e.runID = e.newRunID()
	cfg := e.sim.Config()
	e.convergence.Reset()

	//1.- Register the run with the store.
	if e.store != nil {
		raw, err := cfg.MarshalIndentJSON()
		if err != nil {
			e.log.Warn("encode run config failed", logging.Error(err))
		}
		run := store.Run{
			ID:         e.runID,
			Seed:       cfg.Seed,
			Goal:       cfg.Ctx.Goal,
			Strategy:   cfg.Ctx.Strategy,
			SwarmSize:  cfg.Swarm.Size,
			ConfigJSON: raw,
			StartedAt:  e.clock(),
		}
		if err := e.store.StartRun(ctx, run); err != nil {
			e.log.Warn("start run record failed", logging.String("run_id", e.runID), logging.Error(err))
		}
	}

	//2.- Open a replay bundle seeded with the run metadata.
	if e.replayRoot != "" {
		header := replay.Header{
			RunID:         e.runID,
			Seed:          cfg.Seed,
			Goal:          cfg.Ctx.Goal.String(),
			Strategy:      cfg.Ctx.Strategy.String(),
			SwarmSize:     cfg.Swarm.Size,
			TerrainParams: replay.TerrainParameters(cfg.Terrain.Params()),
		}
		writer, _, err := replay.NewWriter(e.replayRoot, header, e.clock)
		if err != nil {
			e.log.Warn("open replay bundle failed", logging.String("run_id", e.runID), logging.Error(err))
		} else {
			e.writer = writer
			e.activeDir.Store(writer.Directory())
			e.appendEventLocked(replay.EventReset, cfg)
		}
	}
}

func (e *Engine) endRunLocked(ctx context.Context) {
	if e.store != nil {
		if err := e.store.FinishRun(ctx, e.runID, e.latest.Iteration); err != nil && !errors.Is(err, store.ErrUnknownRun) {
			e.log.Warn("finish run record failed", logging.String("run_id", e.runID), logging.Error(err))
		}
	}
	if e.writer != nil {
		if err := e.writer.Close(); err != nil {
			e.log.Warn("close replay bundle failed", logging.String("run_id", e.runID), logging.Error(err))
		}
		e.writer = nil
		e.activeDir.Store("")
	}
}
