package terrain

import (
	"errors"
	"math"
	"testing"

	"rdpso/simulator/internal/space"
)

func constantNoise(value float64) NoiseSource {
	return NoiseFunc(func(x, y, z float64) float64 { return value })
}

func TestHeightFollowsProfile(t *testing.T) {
	cases := []struct {
		noise float64
		want  float64
	}{
		{noise: 0, want: 0},
		{noise: 0.25, want: 0},
		{noise: 0.5, want: 30},
		{noise: 0.75, want: 265},
		{noise: 1, want: 500},
	}
	for _, tc := range cases {
		land, err := NewWithNoise(NewConfig(1000, 3, 0.01, 0.01), constantNoise(tc.noise))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := land.Height(12, -40)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("noise %f: expected height %f, got %f", tc.noise, tc.want, got)
		}
	}
}

func TestHeightSamplesEveryOctave(t *testing.T) {
	var ys []float64
	var xs []float64
	noise := NoiseFunc(func(x, y, z float64) float64 {
		xs = append(xs, x)
		ys = append(ys, y)
		return 0.5
	})
	cfg := NewConfig(1000, 4, 0.1, 0.01)
	land, err := NewWithNoise(cfg, noise)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := land.Height(0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	//1.- Octave k samples the noise at y = k * delta.
	if len(ys) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(ys))
	}
	for k, y := range ys {
		if math.Abs(y-float64(k+1)*0.1) > 1e-9 {
			t.Fatalf("octave %d sampled y=%f", k+1, y)
		}
	}
	//2.- The world origin maps to the centre of the sampling domain before scaling.
	if math.Abs(xs[0]-5) > 1e-9 {
		t.Fatalf("expected scaled x 5, got %f", xs[0])
	}
}

func TestHeightHonoursRangePolicy(t *testing.T) {
	cfg := NewConfig(100, 2, 0.1, 0.01)
	clamped, err := NewWithNoise(cfg, constantNoise(1.4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err := clamped.Height(0, 0); err != nil || got != 500 {
		t.Fatalf("expected clamped peak 500, got %f (%v)", got, err)
	}
	low, _ := NewWithNoise(cfg, constantNoise(-0.3))
	if got, err := low.Height(0, 0); err != nil || got != 0 {
		t.Fatalf("expected clamped floor 0, got %f (%v)", got, err)
	}

	cfg.RangePolicy = RangeStrict
	strict, err := NewWithNoise(cfg, constantNoise(1.4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := strict.Height(0, 0); !errors.Is(err, ErrOutOfRange) || !errors.Is(err, space.ErrNoMapping) {
		t.Fatalf("expected ErrOutOfRange wrapping ErrNoMapping, got %v", err)
	}
	if _, err := strict.PointFromParametric(0.5, 0.5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected parametric lookups to surface ErrOutOfRange, got %v", err)
	}
}

func TestBoundaryAndParametricMapping(t *testing.T) {
	land, err := NewWithNoise(NewConfig(1000, 1, 0.1, 0.01), constantNoise(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b := land.Boundary()
	if b.MinX() != -500 || b.MaxX() != 500 || b.MinZ() != -500 || b.MaxZ() != 500 {
		t.Fatalf("unexpected boundary %+v", b)
	}
	point, err := land.PointFromParametric(1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if point.X != 500 || point.Z != -500 || point.Y != 30 {
		t.Fatalf("unexpected point %+v", point)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{Size: 0, OctaveCount: 0, RangePolicy: "wrap"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := NewWithNoise(cfg, constantNoise(0)); err == nil {
		t.Fatal("expected constructor to reject invalid config")
	}
}

func TestPerlinTerrainIsDeterministic(t *testing.T) {
	cfg := NewConfig(1000, 5, 0.01, 0.012)
	cfg.NoiseSeed = 42
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := New(cfg)
	for _, p := range [][2]float64{{0, 0}, {123.4, -77.1}, {-499, 499}, {250.5, 13}} {
		ha, err := a.Height(p[0], p[1])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		hb, _ := b.Height(p[0], p[1])
		if ha != hb {
			t.Fatalf("heights differ at %v: %f != %f", p, ha, hb)
		}
		if ha < 0 || ha > 500 {
			t.Fatalf("height %f outside profile at %v", ha, p)
		}
	}
}

func TestPerlinNoiseStaysInProfileDomain(t *testing.T) {
	//1.- Shifted Perlin samples cover [0, 1] only, so strict terrain never rejects them.
	noise := NewPerlinNoise(7)
	for i := 0; i < 200; i++ {
		v := float64(i)
		sample := noise.Noise3(v*0.37, v*0.11, -v*0.53)
		if sample < 0 || sample > 1 {
			t.Fatalf("sample %d = %f outside [0, 1]", i, sample)
		}
	}

	//2.- A strict terrain over the same source answers every lookup.
	cfg := NewConfig(1000, 3, 0.01, 0.012)
	cfg.NoiseSeed = 7
	cfg.RangePolicy = RangeStrict
	strict, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range [][2]float64{{0, 0}, {-500, 500}, {321.5, -12.25}, {499.9, -499.9}} {
		if _, err := strict.Height(p[0], p[1]); err != nil {
			t.Fatalf("strict lookup at %v failed: %v", p, err)
		}
	}
}
