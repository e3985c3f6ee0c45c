package physics

import (
	"errors"
	"math"
	"testing"

	"rdpso/simulator/internal/space"
)

func flat(height float64) HeightField {
	return HeightFunc(func(x, z float64) (float64, error) { return height, nil })
}

func TestDetectorReportsImmediateCollision(t *testing.T) {
	detector := NewLinearDetector(10, 1)
	if detector.StepCount() != 10 || detector.Range() != 10 || detector.StepSize() != 1 {
		t.Fatalf("unexpected detector geometry: range %g step %g count %d", detector.Range(), detector.StepSize(), detector.StepCount())
	}
	//1.- Terrain always above the ray collides on the very first sample.
	point, hit, err := detector.Detect(space.NewVector(3, 5, 4), space.UnitX(), flat(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Fatal("expected collision")
	}
	if point != space.NewVector(3, 100, 4) {
		t.Fatalf("unexpected collision point %+v", point)
	}
}

func TestDetectorClearRay(t *testing.T) {
	detector := NewLinearDetector(10, 0.5)
	hit, err := detector.HasCollision(space.NewVector(0, 50, 0), space.NewVector(1, 0, 1), flat(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatal("expected clear ray")
	}
}

func TestDetectorFindsRidgeAlongRay(t *testing.T) {
	//1.- A wall rising at x >= 4 must be found within the fifth unit step.
	wall := HeightFunc(func(x, z float64) (float64, error) {
		if x >= 4 {
			return 20, nil
		}
		return 0, nil
	})
	detector := NewLinearDetectorFromCount(10, 10)
	point, hit, err := detector.Detect(space.NewVector(0, 10, 0), space.NewVector(2, 0, 0), wall)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit || math.Abs(point.X-4) > 1e-9 || point.Y != 20 {
		t.Fatalf("unexpected detection hit=%t point=%+v", hit, point)
	}
	//2.- A shorter range stops before reaching the wall.
	if hit, _ := NewLinearDetector(3, 1).HasCollision(space.NewVector(0, 10, 0), space.UnitX(), wall); hit {
		t.Fatal("expected no collision inside a 3 unit range")
	}
}

func TestDetectorPropagatesTerrainErrors(t *testing.T) {
	boom := errors.New("boom")
	broken := HeightFunc(func(x, z float64) (float64, error) { return 0, boom })
	if _, err := NewLinearDetector(1, 0.5).HasCollision(space.Vector{}, space.UnitX(), broken); !errors.Is(err, boom) {
		t.Fatalf("expected terrain error, got %v", err)
	}
}

func TestClampMagnitude(t *testing.T) {
	v := ClampMagnitude(space.NewVector(30, 0, 40), 5)
	if math.Abs(v.Magnitude()-5) > 1e-9 {
		t.Fatalf("expected magnitude 5, got %f", v.Magnitude())
	}
	if math.Abs(v.X-3) > 1e-9 || math.Abs(v.Z-4) > 1e-9 {
		t.Fatalf("clamp changed direction: %+v", v)
	}
	small := space.NewVector(1, 1, 1)
	if got := ClampMagnitude(small, 5); got != small {
		t.Fatalf("expected untouched vector, got %+v", got)
	}
}
