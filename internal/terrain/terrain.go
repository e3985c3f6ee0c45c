package terrain

import (
	"errors"
	"fmt"
	"strings"

	"rdpso/simulator/internal/space"
)

// ErrOutOfRange reports averaged noise that escaped the height profile under
// RangeStrict. The error also wraps space.ErrNoMapping.
var ErrOutOfRange = errors.New("terrain noise outside height profile")

var (
	profileFrom = []float64{0, 0.25, 0.50, 1.0}
	profileTo   = []float64{0, 0, 30, 500}
)

// RangePolicy controls how averaged noise outside the profile domain is handled.
type RangePolicy string

const (
	// RangeClamp pins out of range samples to the nearest profile edge.
	RangeClamp RangePolicy = "clamp"
	// RangeStrict reports out of range samples as ErrOutOfRange.
	RangeStrict RangePolicy = "strict"
)

// Config specifies terrain generation parameters.
type Config struct {
	// Size is the side length of the square world centred on the origin.
	Size int `json:"size" toml:"size"`
	// OctaveCount is how many noise samples are averaged per (x, z).
	OctaveCount int `json:"octave_count" toml:"octave_count"`
	// OctaveDelta is the sampling offset between octaves along the noise y axis.
	OctaveDelta float64 `json:"octave_delta" toml:"octave_delta"`
	// ScalingFactor shrinks world coordinates before sampling.
	ScalingFactor float64 `json:"scaling_factor" toml:"scaling_factor"`
	// NoiseSeed seeds the production noise source.
	NoiseSeed int64 `json:"noise_seed" toml:"noise_seed"`
	// RangePolicy is RangeClamp when empty.
	RangePolicy RangePolicy `json:"range_policy,omitempty" toml:"range_policy,omitempty"`
}

// NewConfig mirrors the positional constructor used by hosts.
func NewConfig(size, octaveCount int, octaveDelta, scalingFactor float64) Config {
	return Config{Size: size, OctaveCount: octaveCount, OctaveDelta: octaveDelta, ScalingFactor: scalingFactor}
}

// Validate lists every invalid field.
func (c Config) Validate() error {
	var problems []string
	if c.Size <= 0 {
		problems = append(problems, fmt.Sprintf("terrain size must be positive, got %d", c.Size))
	}
	if c.OctaveCount <= 0 {
		problems = append(problems, fmt.Sprintf("terrain octave_count must be positive, got %d", c.OctaveCount))
	}
	switch c.RangePolicy {
	case "", RangeClamp, RangeStrict:
	default:
		problems = append(problems, fmt.Sprintf("terrain range_policy must be %q or %q, got %q", RangeClamp, RangeStrict, c.RangePolicy))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Params flattens the configuration into named values for replay headers.
func (c Config) Params() map[string]float64 {
	return map[string]float64{
		"size":           float64(c.Size),
		"octave_count":   float64(c.OctaveCount),
		"octave_delta":   c.OctaveDelta,
		"scaling_factor": c.ScalingFactor,
		"noise_seed":     float64(c.NoiseSeed),
	}
}

// Terrain is an immutable procedural height field.
type Terrain struct {
	config Config
	noise  NoiseSource
	// parametricMapper maps parametric coordinates into the world.
	parametricMapper space.Mapper
	samplingMapper   space.Mapper
	profile          *space.PiecewiseInterpolator
	boundary         space.Boundary
}

// New builds a terrain backed by seeded Perlin noise.
func New(cfg Config) (*Terrain, error) {
	return NewWithNoise(cfg, NewPerlinNoise(cfg.NoiseSeed))
}

// NewWithNoise builds a terrain over the provided noise source.
func NewWithNoise(cfg Config, noise NoiseSource) (*Terrain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if noise == nil {
		return nil, errors.New("terrain noise source is nil")
	}
	if cfg.RangePolicy == "" {
		cfg.RangePolicy = RangeClamp
	}
	profile, err := space.NewPiecewiseInterpolator(profileFrom, profileTo)
	if err != nil {
		return nil, fmt.Errorf("terrain profile: %w", err)
	}
	offset := float64(cfg.Size / 2)
	return &Terrain{
		config:           cfg,
		noise:            noise,
		parametricMapper: space.NewMapperFromPair(space.Pair{0, 1}, space.Pair{-offset, offset}),
		samplingMapper:   space.NewMapperFromPair(space.Pair{-offset, offset}, space.Pair{0, float64(cfg.Size)}),
		profile:          profile,
		boundary:         space.NewBoundary(-offset, offset, -offset, offset),
	}, nil
}

// Height returns the terrain elevation at world coordinates (x, z).
func (t *Terrain) Height(x, z float64) (float64, error) {
	//1.- Project the world coordinates onto the noise lattice.
	scaling := t.config.ScalingFactor
	sx := t.samplingMapper.Map(x) * scaling
	sz := t.samplingMapper.Map(z) * scaling

	//2.- Average one sample per octave, each on its own y slice.
	sampleY := t.config.OctaveDelta
	sum := 0.0
	for i := 0; i < t.config.OctaveCount; i++ {
		sum += t.noise.Noise3(sx, sampleY, sz)
		sampleY += t.config.OctaveDelta
	}
	avg := sum / float64(t.config.OctaveCount)

	//3.- Apply the range policy and map through the height profile.
	if t.config.RangePolicy == RangeClamp {
		if avg < t.profile.Lower() {
			avg = t.profile.Lower()
		} else if avg > t.profile.Upper() {
			avg = t.profile.Upper()
		}
	}
	height, ok := t.profile.Map(avg)
	if !ok {
		return 0, fmt.Errorf("%w: %w: %g at (%g, %g)", ErrOutOfRange, space.ErrNoMapping, avg, x, z)
	}
	return height, nil
}

// PointFromParametric maps (u, v) in [0, 1] onto the world and returns the surface point.
func (t *Terrain) PointFromParametric(u, v float64) (space.Vector, error) {
	x := t.parametricMapper.Map(u)
	z := t.parametricMapper.Map(v)
	y, err := t.Height(x, z)
	if err != nil {
		return space.Vector{}, err
	}
	return space.NewVector(x, y, z), nil
}

// Boundary returns the square world domain [-size/2, size/2]².
func (t *Terrain) Boundary() space.Boundary { return t.boundary }

// Config returns the configuration the terrain was built from.
func (t *Terrain) Config() Config { return t.config }
