package goal

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"rdpso/simulator/internal/space"
)

// Goal selects the objective surface the swarm explores.
type Goal int

const (
	// Ackley is the Ackley function, global minimum 0 at the origin.
	Ackley Goal = iota
	// Griewank is the Griewank function, global minimum 0 at the origin.
	Griewank
)

// Goals lists every supported objective in declaration order.
func Goals() []Goal { return []Goal{Ackley, Griewank} }

func (g Goal) String() string {
	switch g {
	case Ackley:
		return "Ackley"
	case Griewank:
		return "Griewank"
	default:
		return fmt.Sprintf("Goal(%d)", int(g))
	}
}

// ParseGoal resolves a goal from its case-insensitive name.
func ParseGoal(raw string) (Goal, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ackley":
		return Ackley, nil
	case "griewank":
		return Griewank, nil
	default:
		return 0, fmt.Errorf("unknown goal %q", raw)
	}
}

// MarshalText encodes the goal by name for JSON and TOML documents.
func (g Goal) MarshalText() ([]byte, error) {
	switch g {
	case Ackley, Griewank:
		return []byte(g.String()), nil
	default:
		return nil, fmt.Errorf("unknown goal %d", int(g))
	}
}

// UnmarshalText decodes a goal name.
func (g *Goal) UnmarshalText(text []byte) error {
	parsed, err := ParseGoal(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Evaluate scores the (x, z) point on the goal surface.
func (g Goal) Evaluate(x, z float64) float64 {
	point := []float64{x, z}
	switch g {
	case Griewank:
		return griewank(point)
	default:
		return ackley(point)
	}
}

func ackley(x []float64) float64 {
	n := float64(len(x))
	cosines := make([]float64, len(x))
	for i, xi := range x {
		cosines[i] = math.Cos(2 * math.Pi * xi)
	}
	return -20*math.Exp(-0.2*math.Sqrt(floats.Dot(x, x)/n)) -
		math.Exp(floats.Sum(cosines)/n) +
		20 + math.E
}

func griewank(x []float64) float64 {
	product := 1.0
	for i, xi := range x {
		product *= math.Cos(xi / math.Sqrt(float64(i+1)))
	}
	return 1 + floats.Dot(x, x)/4000 - product
}

// Surface exposes the goal over parametric coordinates for visualisation.
type Surface struct {
	goal   Goal
	mapper space.Mapper
}

// NewSurface maps parametric [0, 1] onto [-size/2, size/2] on both axes.
func NewSurface(g Goal, size int) Surface {
	half := float64(size / 2)
	return Surface{goal: g, mapper: space.NewMapper(0, 1, -half, half)}
}

// Goal returns the evaluated objective.
func (s Surface) Goal() Goal { return s.goal }

// Eval scores world coordinates.
func (s Surface) Eval(x, z float64) float64 { return s.goal.Evaluate(x, z) }

// ParametricEval maps (u, v) into world coordinates and returns the surface point.
func (s Surface) ParametricEval(u, v float64) space.Vector {
	x := s.mapper.Map(u)
	z := s.mapper.Map(v)
	return space.NewVector(x, s.goal.Evaluate(x, z), z)
}
