package space

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthMismatch reports interpolator coordinate sequences of different lengths.
	ErrLengthMismatch = errors.New("from and to must have the same length")
	// ErrTooFewPoints reports an interpolator with fewer than two breakpoints.
	ErrTooFewPoints = errors.New("at least two breakpoints are required")
	// ErrNotIncreasing reports breakpoints that are not strictly increasing.
	ErrNotIncreasing = errors.New("breakpoints must be strictly increasing")
	// ErrNoMapping reports a value outside every interpolator domain.
	ErrNoMapping = errors.New("value outside interpolation domain")
)

// Pair is a closed interval expressed as [start, stop].
type Pair [2]float64

// Mapper maps one interval affinely onto another. The source interval must
// not be degenerate; a zero-width source produces NaN or Inf.
type Mapper struct {
	start1 float64
	start2 float64
	delta1 float64
	delta2 float64
}

// NewMapper maps [start1, stop1] onto [start2, stop2].
func NewMapper(start1, stop1, start2, stop2 float64) Mapper {
	return Mapper{
		start1: start1,
		start2: start2,
		delta1: stop1 - start1,
		delta2: stop2 - start2,
	}
}

// NewMapperFromPair maps the from interval onto the to interval.
func NewMapperFromPair(from, to Pair) Mapper {
	return NewMapper(from[0], from[1], to[0], to[1])
}

// Map projects x from the source interval into the target interval.
func (m Mapper) Map(x float64) float64 {
	return (m.delta2*(x-m.start1))/m.delta1 + m.start2
}

// Domain is the closed interval [A, B].
type Domain struct {
	A float64
	B float64
}

// Contains reports whether x lies in the closed interval.
func (d Domain) Contains(x float64) bool {
	return x >= d.A && x <= d.B
}

// PiecewiseInterpolator remaps values linearly across adjacent domains.
type PiecewiseInterpolator struct {
	domains []Domain
	mappers []Mapper
}

// NewPiecewiseInterpolator builds the interpolator through the points (from[i], to[i]).
func NewPiecewiseInterpolator(from, to []float64) (*PiecewiseInterpolator, error) {
	//1.- Reject sequences that cannot describe a set of breakpoints.
	if len(from) != len(to) {
		return nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(from), len(to))
	}
	if len(from) < 2 {
		return nil, ErrTooFewPoints
	}
	//2.- Pair each adjacent breakpoint span with its affine mapper.
	interp := &PiecewiseInterpolator{
		domains: make([]Domain, 0, len(from)-1),
		mappers: make([]Mapper, 0, len(from)-1),
	}
	for i := 0; i < len(from)-1; i++ {
		if !(from[i] < from[i+1]) {
			return nil, fmt.Errorf("%w: %g >= %g at index %d", ErrNotIncreasing, from[i], from[i+1], i)
		}
		interp.domains = append(interp.domains, Domain{A: from[i], B: from[i+1]})
		interp.mappers = append(interp.mappers, NewMapper(from[i], from[i+1], to[i], to[i+1]))
	}
	return interp, nil
}

// Lower returns the smallest breakpoint.
func (p *PiecewiseInterpolator) Lower() float64 { return p.domains[0].A }

// Upper returns the largest breakpoint.
func (p *PiecewiseInterpolator) Upper() float64 { return p.domains[len(p.domains)-1].B }

// Map interpolates v. Shared breakpoints belong to the earlier domain.
// The second result is false when v falls outside every domain.
func (p *PiecewiseInterpolator) Map(v float64) (float64, bool) {
	for i, domain := range p.domains {
		if domain.Contains(v) {
			return p.mappers[i].Map(v), true
		}
	}
	return 0, false
}
