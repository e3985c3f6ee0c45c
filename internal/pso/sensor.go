package pso

import (
	"rdpso/simulator/internal/physics"
	"rdpso/simulator/internal/space"
)

// CollisionSensor sweeps a field of view looking for a direction free of inbound collisions.
type CollisionSensor struct {
	// detectionAngle is the field of view.
	detectionAngle float64
	// angularStepSize is the smallest sector the sweep bisects.
	angularStepSize float64
	detector        physics.LinearDetector
}

// NewCollisionSensor builds a sensor around a linear detector.
func NewCollisionSensor(detectionAngle, angularStepSize float64, detector physics.LinearDetector) CollisionSensor {
	return CollisionSensor{detectionAngle: detectionAngle, angularStepSize: angularStepSize, detector: detector}
}

// NewCollisionSensorFromConfig builds the sensor and its detector from configuration.
func NewCollisionSensorFromConfig(cfg SensorConfig) CollisionSensor {
	detector := physics.NewLinearDetector(cfg.Range, cfg.LinearStepSize)
	return NewCollisionSensor(cfg.FOVAngle, cfg.AngularStepSize, detector)
}

// FindClearDirection returns a unit vector inside the field of view with no
// collision within range. When the whole sweep is blocked it falls back to
// the leftmost edge of the cone. A zero reference direction is treated as +x.
func (s CollisionSensor) FindClearDirection(position, direction space.Vector, land physics.HeightField) (space.Vector, error) {
	//1.- Normalise the heading, defaulting to +x when the particle is at rest.
	reference := direction.Unit()
	if reference.IsZero() {
		reference = space.UnitX()
	}
	//2.- Sweep the cone; fall back to its leftmost edge when nothing is clear.
	clear, found, err := s.bisect(position, reference, s.detectionAngle, land)
	if err != nil {
		return space.Vector{}, err
	}
	if found {
		return clear, nil
	}
	return reference.RotateXZ(-s.detectionAngle / 2), nil
}

// bisect tests direction and, when blocked, recurses into the left then the
// right half of the sector until the half angle drops below the step size.
func (s CollisionSensor) bisect(position, direction space.Vector, angle float64, land physics.HeightField) (space.Vector, bool, error) {
	//1.- Accept the ray itself when it is clear.
	blocked, err := s.detector.HasCollision(position, direction, land)
	if err != nil {
		return space.Vector{}, false, err
	}
	if !blocked {
		return direction, true, nil
	}

	//2.- Stop once the sector is narrower than the angular resolution.
	half := angle / 2
	if half < s.angularStepSize {
		return space.Vector{}, false, nil
	}
	rotation := half / 2

	//3.- Search the left half first, then the right.
	left := direction.RotateXZ(-rotation)
	clear, found, err := s.bisect(position, left, half, land)
	if err != nil || found {
		return clear, found, err
	}

	right := direction.RotateXZ(rotation)
	return s.bisect(position, right, half, land)
}
