package grpc

import (
	"context"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/space"
)

// SnapshotSource exposes subscription semantics for per-iteration fan-out.
type SnapshotSource interface {
	// SubscribeSnapshots returns a channel receiving snapshots until cancel
	// is called or ctx ends.
	SubscribeSnapshots(ctx context.Context) (<-chan networking.Snapshot, func(), error)
}

// Controller mutates and inspects the hosted simulation.
type Controller interface {
	// Step advances count iterations and returns the final snapshot.
	Step(ctx context.Context, count int) (networking.Snapshot, error)
	Reset(ctx context.Context) (networking.Snapshot, error)
	Snapshot() networking.Snapshot
	ParticlePosition(idx int) (space.Vector, error)
}

// Backend aggregates the dependencies required by the gRPC service.
type Backend interface {
	SnapshotSource
	Controller
}

// BestResult is the reply payload of GetBest.
type BestResult struct {
	Iteration    uint64           `json:"iteration"`
	Best         goal.Performance `json:"best"`
	HistoricBest goal.Performance `json:"historic_best"`
}
