package goal

import (
	"fmt"
	"strings"

	"rdpso/simulator/internal/space"
)

// Performance pairs a score with the position that produced it.
type Performance struct {
	Score    float64      `json:"score"`
	Position space.Vector `json:"position"`
}

// NewPerformance builds a performance record.
func NewPerformance(position space.Vector, score float64) Performance {
	return Performance{Score: score, Position: position}
}

// Strategy decides which of two scores is preferred.
type Strategy int

const (
	// Maximize prefers larger scores.
	Maximize Strategy = iota
	// Minimize prefers smaller scores.
	Minimize
)

func (s Strategy) String() string {
	switch s {
	case Maximize:
		return "Maximize"
	case Minimize:
		return "Minimize"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy resolves a strategy from its case-insensitive name.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "maximize", "max":
		return Maximize, nil
	case "minimize", "min":
		return Minimize, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", raw)
	}
}

// MarshalText encodes the strategy by name.
func (s Strategy) MarshalText() ([]byte, error) {
	switch s {
	case Maximize, Minimize:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown strategy %d", int(s))
	}
}

// UnmarshalText decodes a strategy name.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PickBest returns left only when it is strictly preferred; ties go to right.
func (s Strategy) PickBest(left, right float64) float64 {
	if s.prefers(left, right) {
		return left
	}
	return right
}

// PickBestPerformance applies PickBest to the scores and returns the whole winner.
func (s Strategy) PickBestPerformance(left, right Performance) Performance {
	if s.prefers(left.Score, right.Score) {
		return left
	}
	return right
}

// Improves reports whether candidate is strictly preferred over incumbent.
func (s Strategy) Improves(candidate, incumbent float64) bool {
	return s.prefers(candidate, incumbent)
}

func (s Strategy) prefers(left, right float64) bool {
	if s == Minimize {
		return left < right
	}
	return left > right
}
