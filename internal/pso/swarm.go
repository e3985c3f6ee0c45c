package pso

import (
	"errors"
	"fmt"
	"math"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/physics"
	"rdpso/simulator/internal/space"
)

var (
	// ErrEmptyPopulation reports a swarm configured with no particles.
	ErrEmptyPopulation = errors.New("population size must be > 0")
	// ErrIndexOutOfRange reports a particle lookup past the population size.
	ErrIndexOutOfRange = errors.New("particle index out of range")
)

// Terrain is the read-only world the swarm flies over.
type Terrain interface {
	physics.HeightField
	Boundary() space.Boundary
}

// Swarm owns the population and tracks the current and all-time best results.
type Swarm struct {
	ctx          Ctx
	params       ParameterSet
	controller   *ParticleController
	population   []ParticleState
	best         goal.Performance
	historicBest goal.Performance
	positions    []space.Vector
	iteration    uint64
	boundary     space.Boundary
}

// NewSwarm deploys cfg.Size particles around the deploy position. Each
// particle starts at a random angle and radius and moves outward along the
// same angle at the initial swarm velocity.
func NewSwarm(ctx Ctx, params ParameterSet, cfg SwarmConfig, controller *ParticleController, particleCfg ParticleConfig, land Terrain, rng Source) (*Swarm, error) {
	if cfg.Size <= 0 {
		return nil, ErrEmptyPopulation
	}
	if controller == nil {
		return nil, errors.New("particle controller is nil")
	}
	if rng == nil {
		return nil, errors.New("random source is nil")
	}

	//1.- Deploy each particle along a random heading from the deploy position.
	population := make([]ParticleState, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		angle := 2 * math.Pi * rng.Float64()
		radius := cfg.DeploySpreadRadius * rng.Float64()

		heading := space.UnitX().RotateXZ(angle)
		start := cfg.DeployPosition.Add(heading.Scale(radius))
		v0 := heading.Scale(cfg.InitialSwarmVelocity)

		population = append(population, NewParticleState(start, v0, particleCfg.PositionLogSize, ctx))
	}

	//2.- Seed the bests from the first particle, then scan the population.
	initial := population[0].Performance()
	swarm := &Swarm{
		ctx:          ctx,
		params:       params,
		controller:   controller,
		population:   population,
		best:         initial,
		historicBest: initial,
		positions:    make([]space.Vector, cfg.Size),
		boundary:     land.Boundary(),
	}
	swarm.updatePositions()
	swarm.updateBests()
	return swarm, nil
}

// Update advances every particle once. All particles steer towards the best
// position found before this iteration started. When a particle fails the
// sweep stops there; particles already moved keep their new state and the
// cached positions and bests are refreshed, but the iteration is not counted.
func (s *Swarm) Update(land physics.HeightField) error {
	//1.- Steer every particle towards the best from before the sweep.
	globalBest := s.best.Position
	for i := range s.population {
		if err := s.controller.Update(&s.population[i], globalBest, s.params, s.boundary, land); err != nil {
			s.updatePositions()
			s.updateBests()
			return fmt.Errorf("particle %d: %w", i, err)
		}
	}

	//2.- Refresh the caches and count the iteration.
	s.updatePositions()
	s.updateBests()
	s.iteration++
	return nil
}

func (s *Swarm) updatePositions() {
	for i := range s.population {
		s.positions[i] = s.population[i].Position()
	}
}

// updateBests refreshes the current best and folds it into the historic best.
func (s *Swarm) updateBests() {
	s.best = s.findBest()
	s.historicBest = s.ctx.Strategy.PickBestPerformance(s.best, s.historicBest)
}

// findBest scans the population; on equal scores the earlier particle wins.
func (s *Swarm) findBest() goal.Performance {
	best := s.population[0].Performance()
	for i := 1; i < len(s.population); i++ {
		best = s.ctx.Strategy.PickBestPerformance(s.population[i].Performance(), best)
	}
	return best
}

// SetParams replaces the PSO weights used from the next iteration on.
func (s *Swarm) SetParams(params ParameterSet) { s.params = params }

// Params returns the active PSO weights.
func (s *Swarm) Params() ParameterSet { return s.params }

// Best returns the best performance of the latest iteration.
func (s *Swarm) Best() goal.Performance { return s.best }

// HistoricBest returns the best performance ever observed.
func (s *Swarm) HistoricBest() goal.Performance { return s.historicBest }

// Iteration returns how many updates have completed.
func (s *Swarm) Iteration() uint64 { return s.iteration }

// PopulationSize returns the number of particles.
func (s *Swarm) PopulationSize() int { return len(s.positions) }

// PositionByIdx returns the cached position of particle idx.
func (s *Swarm) PositionByIdx(idx int) (space.Vector, error) {
	if idx < 0 || idx >= len(s.positions) {
		return space.Vector{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(s.positions))
	}
	return s.positions[idx], nil
}

// Positions returns a copy of every particle position.
func (s *Swarm) Positions() []space.Vector {
	return append([]space.Vector(nil), s.positions...)
}

// ParticleSnapshot is a detached copy of a particle's observable state.
type ParticleSnapshot struct {
	Position        space.Vector     `json:"position"`
	Velocity        space.Vector     `json:"velocity"`
	Score           float64          `json:"score"`
	BestPerformance goal.Performance `json:"best_performance"`
	Collisions      int              `json:"collisions"`
	History         []space.Vector   `json:"history,omitempty"`
}

// Particles copies the state of every particle.
func (s *Swarm) Particles() []ParticleSnapshot {
	out := make([]ParticleSnapshot, len(s.population))
	for i := range s.population {
		p := &s.population[i]
		out[i] = ParticleSnapshot{
			Position:        p.Position(),
			Velocity:        p.Velocity(),
			Score:           p.Score(),
			BestPerformance: p.BestPerformance(),
			Collisions:      p.Collisions(),
			History:         p.History(),
		}
	}
	return out
}
