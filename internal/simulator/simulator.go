package simulator

import (
	"fmt"
	"math/rand/v2"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/pso"
	"rdpso/simulator/internal/space"
	"rdpso/simulator/internal/terrain"
)

// Simulator owns one terrain and one swarm built from a SimConfig.
//
// It is not safe for concurrent use; hosts serialise access.
type Simulator struct {
	config  SimConfig
	pending *SimConfig
	rng     *rand.Rand
	terrain *terrain.Terrain
	swarm   *pso.Swarm
}

// New builds the terrain and deploys the swarm described by cfg.
func New(cfg SimConfig) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sim := &Simulator{config: cfg, rng: pso.NewSource(cfg.Seed)}
	if err := sim.build(); err != nil {
		return nil, err
	}
	return sim, nil
}

func (s *Simulator) build() error {
	//1.- Generate the terrain first; the swarm clips to its boundary.
	land, err := terrain.New(s.config.Terrain)
	if err != nil {
		return fmt.Errorf("build terrain: %w", err)
	}
	//2.- Deploy on the shared random stream so a seed replays the whole run.
	controller := pso.NewParticleControllerFromConfig(s.config.Ctx, s.config.Controller, s.rng)
	swarm, err := pso.NewSwarm(s.config.Ctx, s.config.Params, s.config.Swarm, controller, s.config.Particle, land, s.rng)
	if err != nil {
		return fmt.Errorf("deploy swarm: %w", err)
	}
	s.terrain = land
	s.swarm = swarm
	return nil
}

// Step advances the swarm by one iteration.
func (s *Simulator) Step() error {
	return s.swarm.Update(s.terrain)
}

// Reset rebuilds the terrain and redeploys the swarm. A configuration staged
// through SetConfig takes effect here and reseeds the random stream;
// otherwise the stream continues so consecutive resets deploy differently.
func (s *Simulator) Reset() error {
	//1.- Promote a staged configuration and restart its random stream.
	if s.pending != nil {
		s.config = *s.pending
		s.pending = nil
		s.rng = pso.NewSource(s.config.Seed)
	}
	//2.- Rebuild everything from the active configuration.
	return s.build()
}

// UpdateParams swaps the PSO weights for the live swarm and future resets.
func (s *Simulator) UpdateParams(params pso.ParameterSet) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	s.config.Params = params
	if s.pending != nil {
		s.pending.Params = params
	}
	s.swarm.SetParams(params)
	return nil
}

// SetConfig stages a JSON configuration for the next Reset.
func (s *Simulator) SetConfig(raw string) error {
	cfg, err := ParseJSON([]byte(raw))
	if err != nil {
		return err
	}
	s.pending = &cfg
	return nil
}

// Pending reports whether a staged configuration awaits Reset.
func (s *Simulator) Pending() bool { return s.pending != nil }

// Goal returns the objective of the active run.
func (s *Simulator) Goal() goal.Goal { return s.config.Ctx.Goal }

// GoalSurface returns the objective sampled over the terrain footprint.
func (s *Simulator) GoalSurface() goal.Surface {
	return goal.NewSurface(s.config.Ctx.Goal, s.config.Terrain.Size)
}

// Config returns the active configuration.
func (s *Simulator) Config() SimConfig { return s.config }

// DumpConfig renders the active configuration as pretty JSON.
func (s *Simulator) DumpConfig() (string, error) { return s.config.MarshalIndentJSON() }

// ParametricTerrainEval maps (u, v) in [0, 1] onto the terrain surface.
func (s *Simulator) ParametricTerrainEval(u, v float64) (space.Vector, error) {
	return s.terrain.PointFromParametric(u, v)
}

// TerrainHeight samples the terrain at world coordinates.
func (s *Simulator) TerrainHeight(x, z float64) (float64, error) {
	return s.terrain.Height(x, z)
}

// Terrain exposes the active height field.
func (s *Simulator) Terrain() *terrain.Terrain { return s.terrain }

// SwarmSize returns the configured population size.
func (s *Simulator) SwarmSize() int { return s.config.Swarm.Size }

// ParticlePositionByIdx returns the position of particle idx.
func (s *Simulator) ParticlePositionByIdx(idx int) (space.Vector, error) {
	return s.swarm.PositionByIdx(idx)
}

// Swarm exposes the live swarm for read access.
func (s *Simulator) Swarm() *pso.Swarm { return s.swarm }

// Iteration returns how many steps the current swarm has taken.
func (s *Simulator) Iteration() uint64 { return s.swarm.Iteration() }

// Best returns the best result of the latest iteration.
func (s *Simulator) Best() goal.Performance { return s.swarm.Best() }

// HistoricBest returns the best result since the last reset.
func (s *Simulator) HistoricBest() goal.Performance { return s.swarm.HistoricBest() }
