package terrain

import perlin "github.com/aquilax/go-perlin"

// NoiseSource samples a deterministic 3D noise field. Its range is not
// constrained; Terrain.Height averages the samples and applies the configured
// RangePolicy before mapping them through the height profile.
type NoiseSource interface {
	Noise3(x, y, z float64) float64
}

// NoiseFunc adapts a function into a NoiseSource.
type NoiseFunc func(x, y, z float64) float64

// Noise3 invokes the wrapped function.
func (f NoiseFunc) Noise3(x, y, z float64) float64 { return f(x, y, z) }

const (
	perlinAlpha   = 2
	perlinBeta    = 2
	perlinOctaves = 1
)

// PerlinNoise is the production noise source. Raw gradient noise in [-1, 1]
// is shifted into [0, 1], which is the whole height profile domain, so with
// this source RangeStrict never reports ErrOutOfRange.
type PerlinNoise struct {
	gen *perlin.Perlin
}

// NewPerlinNoise seeds a gradient noise generator.
func NewPerlinNoise(seed int64) *PerlinNoise {
	return &PerlinNoise{gen: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed)}
}

// Noise3 samples the generator and rescales the result into [0, 1].
func (p *PerlinNoise) Noise3(x, y, z float64) float64 {
	return (p.gen.Noise3D(x, y, z) + 1) / 2
}
