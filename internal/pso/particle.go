package pso

import (
	"fmt"
	"math"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/physics"
	"rdpso/simulator/internal/space"
)

// ParticleState owns one candidate solution.
type ParticleState struct {
	position        space.Vector
	velocity        space.Vector
	score           float64
	bestPerformance goal.Performance
	history         *History
	collisions      int
}

// NewParticleState places a particle and scores its starting position.
func NewParticleState(p0, v0 space.Vector, historySize int, ctx Ctx) ParticleState {
	score := ctx.Goal.Evaluate(p0.X, p0.Z)
	return ParticleState{
		position:        p0,
		velocity:        v0,
		score:           score,
		bestPerformance: goal.NewPerformance(p0, score),
		history:         NewHistory(historySize),
	}
}

// Position returns the current position.
func (s *ParticleState) Position() space.Vector { return s.position }

// Velocity returns the current velocity.
func (s *ParticleState) Velocity() space.Vector { return s.velocity }

// Score returns the latest objective value.
func (s *ParticleState) Score() float64 { return s.score }

// Performance returns the current position with its score.
func (s *ParticleState) Performance() goal.Performance {
	return goal.NewPerformance(s.position, s.score)
}

// BestPerformance returns the best result this particle has observed.
func (s *ParticleState) BestPerformance() goal.Performance { return s.bestPerformance }

// History returns the recorded positions ordered oldest to newest.
func (s *ParticleState) History() []space.Vector { return s.history.Positions() }

// Collisions returns how many moves were rejected by the terrain.
func (s *ParticleState) Collisions() int { return s.collisions }

// ParticleController advances particles one PSO step at a time.
type ParticleController struct {
	// ctx describes the problem space the particle explores.
	ctx    Ctx
	sensor CollisionSensor
	rng    Source
}

// NewParticleController wires a controller to its sensor and random source.
func NewParticleController(ctx Ctx, sensor CollisionSensor, rng Source) *ParticleController {
	return &ParticleController{ctx: ctx, sensor: sensor, rng: rng}
}

// NewParticleControllerFromConfig builds the sensor from configuration.
func NewParticleControllerFromConfig(ctx Ctx, cfg ControllerConfig, rng Source) *ParticleController {
	return NewParticleController(ctx, NewCollisionSensorFromConfig(cfg.Collision), rng)
}

// Update moves the particle according to the PSO kinematics. A move into the
// terrain is rejected: the velocity turns a quarter in the horizontal plane at
// half magnitude and the particle stays where it was.
func (c *ParticleController) Update(state *ParticleState, globalBest space.Vector, params ParameterSet, boundary space.Boundary, land physics.HeightField) error {
	//1.- Compute the candidate velocity and clip the move to the world.
	velocity, err := c.nextVelocity(state, globalBest, params, land)
	if err != nil {
		return err
	}
	position := boundary.Clip(state.position.Add(velocity))

	//2.- Reject moves into the ground and deflect the velocity instead.
	collides, err := physics.Collides(position, land)
	if err != nil {
		return fmt.Errorf("collision check: %w", err)
	}
	if collides {
		velocity = velocity.RotateXZ(math.Pi / 2).Scale(0.5)
		state.collisions++
		position = state.position
	}

	//3.- Score the new position and commit the state only once nothing can fail.
	score := c.ctx.Goal.Evaluate(position.X, position.Z)
	current := goal.NewPerformance(position, score)

	state.position = position
	state.velocity = velocity
	state.score = score
	state.bestPerformance = c.ctx.Strategy.PickBestPerformance(state.bestPerformance, current)
	state.history.Push(position)
	return nil
}

// avoidancePosition displaces the particle by its speed along the sensor's clear direction.
func (c *ParticleController) avoidancePosition(state *ParticleState, land physics.HeightField) (space.Vector, error) {
	direction, err := c.sensor.FindClearDirection(state.position, state.velocity, land)
	if err != nil {
		return space.Vector{}, fmt.Errorf("sensor sweep: %w", err)
	}
	return state.position.Add(direction.Scale(state.velocity.Magnitude())), nil
}

// nextVelocity evaluates the recurrence. r3 is drawn to keep the random
// stream aligned with the three coefficient draws but the avoidance term is
// weighted by c3 alone.
func (c *ParticleController) nextVelocity(state *ParticleState, globalBest space.Vector, params ParameterSet, land physics.HeightField) (space.Vector, error) {
	r1, r2, _ := c.rng.Float64(), c.rng.Float64(), c.rng.Float64()
	p := state.position
	avoid, err := c.avoidancePosition(state, land)
	if err != nil {
		return space.Vector{}, err
	}

	v := state.velocity.Scale(params.W).
		Add(state.bestPerformance.Position.Sub(p).Scale(params.C1 * r1)).
		Add(globalBest.Sub(p).Scale(params.C2 * r2)).
		Add(avoid.Sub(p).Scale(params.C3))

	return physics.ClampMagnitude(v, params.MaxVelocity), nil
}
