package pso

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rdpso/simulator/internal/space"
)

// Stats summarises the population at the end of an iteration.
type Stats struct {
	Iteration         uint64       `json:"iteration"`
	MeanScore         float64      `json:"mean_score"`
	ScoreStdDev       float64      `json:"score_std_dev"`
	Centroid          space.Vector `json:"centroid"`
	MeanSpread        float64      `json:"mean_spread"`
	MaxSpeed          float64      `json:"max_speed"`
	TotalCollisions   int          `json:"total_collisions"`
	BestScore         float64      `json:"best_score"`
	HistoricBestScore float64      `json:"historic_best_score"`
}

// Stats computes population statistics.
func (s *Swarm) Stats() Stats {
	//1.- Gather per particle columns in one pass.
	n := len(s.population)
	scores := make([]float64, n)
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	speeds := make([]float64, n)
	collisions := 0
	for i := range s.population {
		p := &s.population[i]
		scores[i] = p.Score()
		pos := p.Position()
		xs[i], ys[i], zs[i] = pos.X, pos.Y, pos.Z
		speeds[i] = p.Velocity().Magnitude()
		collisions += p.Collisions()
	}

	//2.- Reduce the columns; a single particle has no spread.
	mean, std := stat.MeanStdDev(scores, nil)
	if n < 2 {
		std = 0
	}
	centroid := space.NewVector(stat.Mean(xs, nil), stat.Mean(ys, nil), stat.Mean(zs, nil))
	distances := make([]float64, n)
	for i := range s.positions {
		distances[i] = s.positions[i].Sub(centroid).Magnitude()
	}

	return Stats{
		Iteration:         s.iteration,
		MeanScore:         mean,
		ScoreStdDev:       std,
		Centroid:          centroid,
		MeanSpread:        stat.Mean(distances, nil),
		MaxSpeed:          floats.Max(speeds),
		TotalCollisions:   collisions,
		BestScore:         s.best.Score,
		HistoricBestScore: s.historicBest.Score,
	}
}
