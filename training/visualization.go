package training

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotPopulationCurve renders the population count over iterations to a PNG
// file.
func PlotPopulationCurve(records []IterationRecord, path string) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to plot")
	}

	pts := make(plotter.XYs, len(records))
	for i, rec := range records {
		pts[i].X = float64(rec.Iteration)
		pts[i].Y = float64(rec.Population)
	}

	p := plot.New()
	p.Title.Text = "Splat Population"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Splats"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build population line: %v", err)
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save population plot: %v", err)
	}
	return nil
}

// PlotLearningRateCurve renders the means learning-rate schedule over
// iterations to a PNG file, with a log-scaled rate axis.
func PlotLearningRateCurve(records []IterationRecord, path string) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to plot")
	}

	pts := make(plotter.XYs, len(records))
	for i, rec := range records {
		pts[i].X = float64(rec.Iteration)
		pts[i].Y = rec.MeansLR
	}

	p := plot.New()
	p.Title.Text = "Means Learning Rate"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Learning Rate"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build learning-rate line: %v", err)
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save learning-rate plot: %v", err)
	}
	return nil
}
