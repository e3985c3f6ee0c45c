// Package report renders convergence charts for completed runs.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"rdpso/simulator/internal/pso"
)

// ErrNoSamples reports a render attempt before any iteration was recorded.
var ErrNoSamples = errors.New("no samples recorded")

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

var (
	bestColor     = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	historicColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	spreadColor   = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// Sample is one iteration of convergence data.
type Sample struct {
	Iteration    uint64
	BestScore    float64
	HistoricBest float64
	MeanSpread   float64
}

// Convergence accumulates per-iteration samples. It is safe for concurrent use.
type Convergence struct {
	title string

	mu      sync.Mutex
	samples []Sample
	limit   int
}

// NewConvergence creates an empty accumulator with the chart title.
func NewConvergence(title string) *Convergence {
	return &Convergence{title: title}
}

// SetLimit keeps only the most recent n samples; n <= 0 keeps everything.
func (c *Convergence) SetLimit(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
	c.trimLocked()
}

// Record appends a sample derived from swarm statistics.
func (c *Convergence) Record(stats pso.Stats) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, Sample{
		Iteration:    stats.Iteration,
		BestScore:    stats.BestScore,
		HistoricBest: stats.HistoricBestScore,
		MeanSpread:   stats.MeanSpread,
	})
	c.trimLocked()
}

func (c *Convergence) trimLocked() {
	if c.limit <= 0 || len(c.samples) <= c.limit {
		return
	}
	n := copy(c.samples, c.samples[len(c.samples)-c.limit:])
	c.samples = c.samples[:n]
}

// Samples copies the recorded samples.
func (c *Convergence) Samples() []Sample {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sample(nil), c.samples...)
}

// Reset drops every sample, typically when the swarm is redeployed.
func (c *Convergence) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.samples = nil
	c.mu.Unlock()
}

// Save renders the chart to path; the extension picks the format (png, svg, pdf).
func (c *Convergence) Save(path string) error {
	p, err := c.build()
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("save convergence plot: %w", err)
	}
	return nil
}

// WriteTo renders the chart in format ("png", "svg", ...) to w.
func (c *Convergence) WriteTo(w io.Writer, format string) error {
	p, err := c.build()
	if err != nil {
		return err
	}
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	writer, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return fmt.Errorf("render convergence plot: %w", err)
	}
	if _, err := writer.WriteTo(w); err != nil {
		return fmt.Errorf("write convergence plot: %w", err)
	}
	return nil
}

// FormatFor derives the render format from a file name.
func FormatFor(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (c *Convergence) build() (*plot.Plot, error) {
	samples := c.Samples()
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	//1.- Lay out the axes, then project each sample onto the three series.
	p := plot.New()
	p.Title.Text = c.title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Score"

	best := make(plotter.XYs, 0, len(samples))
	historic := make(plotter.XYs, 0, len(samples))
	spread := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		x := float64(s.Iteration)
		best = append(best, plotter.XY{X: x, Y: s.BestScore})
		historic = append(historic, plotter.XY{X: x, Y: s.HistoricBest})
		spread = append(spread, plotter.XY{X: x, Y: s.MeanSpread})
	}

	//2.- Style each series; spread is dashed because it is not a score.
	for _, series := range []struct {

		label string
		pts   plotter.XYs
		color color.Color
		dash  bool
	}{
		{"best", best, bestColor, false},
		{"historic best", historic, historicColor, false},
		{"mean spread", spread, spreadColor, true},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return nil, fmt.Errorf("%s series: %w", series.label, err)
		}
		line.Color = series.color
		line.Width = vg.Points(1)
		if series.dash {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(series.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())
	return p, nil
}
