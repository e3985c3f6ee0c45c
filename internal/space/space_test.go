package space

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) <= 1e-9 }

func vectorsClose(a, b Vector) bool {
	return almostEqual(a.X, b.X) && almostEqual(a.Y, b.Y) && almostEqual(a.Z, b.Z)
}

func TestVectorArithmetic(t *testing.T) {
	a := NewVector(1, 2, 3)
	b := NewVector(3, 4, 6)
	if got := a.Add(b); got != NewVector(4, 6, 9) {
		t.Fatalf("unexpected sum %+v", got)
	}
	if got := a.Sub(NewVector(3, 4, 1)); got != NewVector(-2, -2, 2) {
		t.Fatalf("unexpected difference %+v", got)
	}
	if got := a.Scale(3); got != NewVector(3, 6, 9) {
		t.Fatalf("unexpected scale %+v", got)
	}
	if got := a.Dot(b); got != 29 {
		t.Fatalf("unexpected dot %f", got)
	}
}

func TestRotateXZQuarterTurn(t *testing.T) {
	//1.- A quarter turn maps +x onto -z and leaves y untouched.
	got := NewVector(1, 5, 0).RotateXZ(math.Pi / 2)
	if !vectorsClose(got, NewVector(0, 5, -1)) {
		t.Fatalf("unexpected rotation %+v", got)
	}
	//2.- Rotation preserves magnitude.
	v := NewVector(3, -2, 4)
	if !almostEqual(v.RotateXZ(0.7).Magnitude(), v.Magnitude()) {
		t.Fatalf("rotation changed magnitude")
	}
}

func TestRotateXYQuarterTurn(t *testing.T) {
	got := UnitX().RotateXY(math.Pi / 2)
	if !vectorsClose(got, NewVector(0, -1, 0)) {
		t.Fatalf("unexpected rotation %+v", got)
	}
}

func TestBasisVectorsRotateIntoEachOther(t *testing.T) {
	if got := UnitX().RotateXZ(math.Pi / 2); !vectorsClose(got, UnitZ().Scale(-1)) {
		t.Fatalf("expected -z, got %+v", got)
	}
	if got := UnitY().RotateXY(math.Pi / 2); !vectorsClose(got, UnitX()) {
		t.Fatalf("expected +x, got %+v", got)
	}
	if UnitX().Dot(UnitY()) != 0 || UnitY().Dot(UnitZ()) != 0 || UnitZ().Magnitude() != 1 {
		t.Fatalf("basis vectors must be orthonormal")
	}
}

func TestUnitHandlesZeroVector(t *testing.T) {
	if got := (Vector{}).Unit(); got != (Vector{}) {
		t.Fatalf("expected zero vector, got %+v", got)
	}
	if got := NewVector(0, 3, 4).Unit(); !vectorsClose(got, NewVector(0, 0.6, 0.8)) {
		t.Fatalf("unexpected unit %+v", got)
	}
}

func TestBoundaryNormalisesAndClips(t *testing.T) {
	b := NewBoundary(5, -5, 0, 0)
	if b.MinX() != -5 || b.MaxX() != 5 {
		t.Fatalf("expected swapped x limits, got [%f, %f]", b.MinX(), b.MaxX())
	}
	if got := b.Clip(NewVector(10, 1, 0)); got != NewVector(5, 1, 0) {
		t.Fatalf("unexpected clip %+v", got)
	}
}

func TestBoundaryClipIsIdempotent(t *testing.T) {
	b := NewBoundary(-3, 3, -1, 2)
	cases := []Vector{
		{X: -10, Y: 7, Z: 10},
		{X: 1, Y: -4, Z: 1},
		{X: 3, Y: 0, Z: -1},
		{X: 100, Y: 1e6, Z: -100},
	}
	for _, tc := range cases {
		once := b.Clip(tc)
		//1.- Clipped x and z must land inside the limits while y is preserved.
		if once.X < b.MinX() || once.X > b.MaxX() || once.Z < b.MinZ() || once.Z > b.MaxZ() {
			t.Fatalf("clip escaped boundary: %+v", once)
		}
		if once.Y != tc.Y {
			t.Fatalf("clip altered y: %+v", once)
		}
		if twice := b.Clip(once); twice != once {
			t.Fatalf("clip not idempotent: %+v != %+v", twice, once)
		}
	}
}

func TestMapperProjectsIntervals(t *testing.T) {
	m := NewMapperFromPair(Pair{-500, 500}, Pair{0, 1000})
	if got := m.Map(0); got != 500 {
		t.Fatalf("expected 500, got %f", got)
	}
	if got := m.Map(-500); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

func TestPiecewiseInterpolator(t *testing.T) {
	interp, err := NewPiecewiseInterpolator([]float64{0, 1}, []float64{0, 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := interp.Map(0.5); !ok || got != 5 {
		t.Fatalf("expected 5, got %f (ok=%t)", got, ok)
	}
	if _, ok := interp.Map(1.5); ok {
		t.Fatalf("expected no mapping outside the domain")
	}
}

func TestPiecewiseInterpolatorBreakpointsUseEarlierDomain(t *testing.T) {
	interp, err := NewPiecewiseInterpolator([]float64{0, 0.25, 0.5, 1}, []float64{0, 0, 30, 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cases := []struct {
		in   float64
		want float64
	}{
		{in: 0, want: 0},
		{in: 0.2, want: 0},
		{in: 0.25, want: 0},
		{in: 0.375, want: 15},
		{in: 0.5, want: 30},
		{in: 0.75, want: 265},
		{in: 1, want: 500},
	}
	for _, tc := range cases {
		got, ok := interp.Map(tc.in)
		if !ok || !almostEqual(got, tc.want) {
			t.Fatalf("map(%f): expected %f, got %f (ok=%t)", tc.in, tc.want, got, ok)
		}
	}
	if interp.Lower() != 0 || interp.Upper() != 1 {
		t.Fatalf("unexpected bounds [%f, %f]", interp.Lower(), interp.Upper())
	}
}

func TestPiecewiseInterpolatorRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		from []float64
		to   []float64
		want error
	}{
		{from: []float64{0, 1, 2}, to: []float64{0, 1}, want: ErrLengthMismatch},
		{from: []float64{0}, to: []float64{0}, want: ErrTooFewPoints},
		{from: []float64{0, 1, 1}, to: []float64{0, 1, 2}, want: ErrNotIncreasing},
	}
	for _, tc := range cases {
		if _, err := NewPiecewiseInterpolator(tc.from, tc.to); !errors.Is(err, tc.want) {
			t.Fatalf("expected %v, got %v", tc.want, err)
		}
	}
}
