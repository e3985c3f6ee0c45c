package physics

import (
	"rdpso/simulator/internal/space"
)

// HeightField exposes terrain elevation for collision queries.
type HeightField interface {
	Height(x, z float64) (float64, error)
}

// HeightFunc adapts a function into a HeightField.
type HeightFunc func(x, z float64) (float64, error)

// Height invokes the wrapped function.
func (f HeightFunc) Height(x, z float64) (float64, error) { return f(x, z) }

// Collides reports whether the terrain at the point's (x, z) reaches its height.
func Collides(point space.Vector, land HeightField) (bool, error) {
	y, err := land.Height(point.X, point.Z)
	if err != nil {
		return false, err
	}
	return y >= point.Y, nil
}

// LinearDetector marches along a ray looking for the first point where the
// terrain meets or exceeds the ray's height.
type LinearDetector struct {
	// range indicates how far ahead the detector checks.
	rangeLimit float64
	// stepSize models the precision of the detector.
	stepSize  float64
	stepCount int
}

// NewLinearDetector builds a detector sampling every stepSize up to rangeLimit.
func NewLinearDetector(rangeLimit, stepSize float64) LinearDetector {
	count := 0
	if stepSize > 0 {
		count = int(rangeLimit / stepSize)
	}
	return LinearDetector{rangeLimit: rangeLimit, stepSize: stepSize, stepCount: count}
}

// NewLinearDetectorFromCount builds a detector that checks rangeLimit with count samples.
func NewLinearDetectorFromCount(rangeLimit float64, count int) LinearDetector {
	return NewLinearDetector(rangeLimit, rangeLimit/float64(count))
}

// Range returns the detection distance.
func (d LinearDetector) Range() float64 { return d.rangeLimit }

// StepSize returns the distance between samples.
func (d LinearDetector) StepSize() float64 { return d.stepSize }

// StepCount returns how many samples a detection takes.
func (d LinearDetector) StepCount() int { return d.stepCount }

// Detect returns the first collision point along direction from position, with
// Y replaced by the terrain height. The boolean is false when the ray is clear.
func (d LinearDetector) Detect(position, direction space.Vector, land HeightField) (space.Vector, bool, error) {
	//1.- March from the origin in fixed steps along the unit heading.
	step := direction.Unit().Scale(d.stepSize)
	current := position
	for i := 0; i < d.stepCount; i++ {
		y, err := land.Height(current.X, current.Z)
		if err != nil {
			return space.Vector{}, false, err
		}
		//2.- Report the first sample at or below the ground.
		if y >= current.Y {
			return space.NewVector(current.X, y, current.Z), true, nil
		}
		current = current.Add(step)
	}
	return space.Vector{}, false, nil
}

// HasCollision reports whether Detect finds a collision.
func (d LinearDetector) HasCollision(position, direction space.Vector, land HeightField) (bool, error) {
	_, hit, err := d.Detect(position, direction, land)
	return hit, err
}

// ClampMagnitude rescales v to exactly limit when its magnitude exceeds it.
func ClampMagnitude(v space.Vector, limit float64) space.Vector {
	if v.Magnitude() <= limit {
		return v
	}
	return v.Unit().Scale(limit)
}
