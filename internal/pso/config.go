package pso

import (
	"errors"
	"fmt"
	"strings"

	"rdpso/simulator/internal/goal"
	"rdpso/simulator/internal/space"
)

// Ctx is the immutable problem context of a run.
type Ctx struct {
	Goal     goal.Goal     `json:"goal" toml:"goal"`
	Strategy goal.Strategy `json:"strategy" toml:"strategy"`
}

// NewCtx pairs an objective with the comparison strategy.
func NewCtx(g goal.Goal, s goal.Strategy) Ctx {
	return Ctx{Goal: g, Strategy: s}
}

// ParameterSet holds the PSO recurrence weights.
type ParameterSet struct {
	// W is the inertia weight.
	W float64 `json:"w" toml:"w"`
	// C1 weights attraction to the personal best.
	C1 float64 `json:"c1" toml:"c1"`
	// C2 weights attraction to the global best.
	C2 float64 `json:"c2" toml:"c2"`
	// C3 weights the pull towards the collision free direction.
	C3          float64 `json:"c3" toml:"c3"`
	MaxVelocity float64 `json:"max_velocity" toml:"max_velocity"`
}

// NewParameterSet mirrors the positional constructor used by hosts.
func NewParameterSet(w, c1, c2, c3, maxVelocity float64) ParameterSet {
	return ParameterSet{W: w, C1: c1, C2: c2, C3: c3, MaxVelocity: maxVelocity}
}

// SensorConfig sets the parameters of the collision sensor.
type SensorConfig struct {
	// Range is how far ahead the sensor checks.
	Range float64 `json:"range" toml:"range"`
	// LinearStepSize is the spacing of samples along each ray.
	LinearStepSize float64 `json:"linear_step_size" toml:"linear_step_size"`
	// FOVAngle is the swept field of view in radians.
	FOVAngle float64 `json:"fov_angle" toml:"fov_angle"`
	// AngularStepSize is the smallest sector the sweep will bisect.
	AngularStepSize float64 `json:"angular_step_size" toml:"angular_step_size"`
}

// NewSensorConfig mirrors the positional constructor used by hosts.
func NewSensorConfig(rangeLimit, linearStepSize, fovAngle, angularStepSize float64) SensorConfig {
	return SensorConfig{Range: rangeLimit, LinearStepSize: linearStepSize, FOVAngle: fovAngle, AngularStepSize: angularStepSize}
}

// ControllerConfig groups the particle controller settings.
type ControllerConfig struct {
	Collision SensorConfig `json:"collision" toml:"collision"`
}

// SwarmConfig describes the swarm deployment.
type SwarmConfig struct {
	// Size is the number of particles.
	Size int `json:"size" toml:"size"`
	// DeployPosition is the centre of the initial spread.
	DeployPosition space.Vector `json:"deploy_position" toml:"deploy_position"`
	// DeploySpreadRadius bounds how far apart particles start.
	DeploySpreadRadius float64 `json:"deploy_spread_radius" toml:"deploy_spread_radius"`
	// InitialSwarmVelocity is the magnitude of every particle's initial velocity.
	InitialSwarmVelocity float64 `json:"initial_swarm_velocity" toml:"initial_swarm_velocity"`
}

// ParticleConfig sets per particle bookkeeping.
type ParticleConfig struct {
	// PositionLogSize is the capacity of the position history buffer.
	PositionLogSize int `json:"position_log_size" toml:"position_log_size"`
}

// Validate lists every invalid parameter.
func (p ParameterSet) Validate() error {
	if p.MaxVelocity < 0 {
		return fmt.Errorf("params max_velocity must be non-negative, got %g", p.MaxVelocity)
	}
	return nil
}

// Validate lists every invalid sensor field.
func (c SensorConfig) Validate() error {
	var problems []string
	if !(c.Range > 0) {
		problems = append(problems, fmt.Sprintf("sensor range must be positive, got %g", c.Range))
	}
	if !(c.LinearStepSize > 0) {
		problems = append(problems, fmt.Sprintf("sensor linear_step_size must be positive, got %g", c.LinearStepSize))
	}
	if !(c.FOVAngle > 0) {
		problems = append(problems, fmt.Sprintf("sensor fov_angle must be positive, got %g", c.FOVAngle))
	}
	if !(c.AngularStepSize > 0) {
		problems = append(problems, fmt.Sprintf("sensor angular_step_size must be positive, got %g", c.AngularStepSize))
	}
	return joinProblems(problems)
}

// Validate lists every invalid swarm field.
func (c SwarmConfig) Validate() error {
	var problems []string
	if c.Size <= 0 {
		problems = append(problems, fmt.Sprintf("swarm size must be positive, got %d", c.Size))
	}
	if c.DeploySpreadRadius < 0 {
		problems = append(problems, fmt.Sprintf("swarm deploy_spread_radius must be non-negative, got %g", c.DeploySpreadRadius))
	}
	return joinProblems(problems)
}

// Validate rejects negative history capacities.
func (c ParticleConfig) Validate() error {
	if c.PositionLogSize < 0 {
		return fmt.Errorf("particle position_log_size must be non-negative, got %d", c.PositionLogSize)
	}
	return nil
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}
