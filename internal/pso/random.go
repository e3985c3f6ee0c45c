package pso

import "math/rand/v2"

// Source draws uniform values in [0, 1).
type Source interface {
	Float64() float64
}

// NewSource returns a seeded PCG generator. Identical seeds replay identical runs.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SourceFunc adapts a function into a Source.
type SourceFunc func() float64

// Float64 invokes the wrapped function.
func (f SourceFunc) Float64() float64 { return f() }
