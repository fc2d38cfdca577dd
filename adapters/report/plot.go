package report

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"tamcal/internal/calibration"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Figure file names
const (
	PeFigure   = "pe_fit.png"
	QianFigure = "qian_fit.png"
	DemoFigure = "coupled_demo.png"
	FullFigure = "full_scenarios.png"
)

const (
	figureWidth  = 6 * vg.Inch
	figureHeight = 4 * vg.Inch
)

// Figures draws every figure the run has data for into dir and returns the
// file names written, in a fixed order.
func Figures(dir string, run *calibration.Run) ([]string, error) {
	type figure struct {
		name string
		draw func() (*plot.Plot, error)
	}
	var figs []figure
	if run.Pe != nil && len(run.Pe.Curves) > 0 {
		figs = append(figs, figure{PeFigure, func() (*plot.Plot, error) { return peFigure(run.Pe) }})
	}
	if run.Qian != nil && len(run.Qian.Ratios) > 0 {
		figs = append(figs, figure{QianFigure, func() (*plot.Plot, error) { return qianFigure(run.Qian) }})
	}
	if run.Demo != nil && len(run.Demo.Folds) > 0 {
		figs = append(figs, figure{DemoFigure, func() (*plot.Plot, error) { return demoFigure(run.Demo) }})
	}
	if run.Demo != nil && len(run.Demo.Full) > 0 {
		figs = append(figs, figure{FullFigure, func() (*plot.Plot, error) { return fullFigure(run.Demo) }})
	}

	var written []string
	for _, f := range figs {
		p, err := f.draw()
		if err != nil {
			return written, fmt.Errorf("failed to draw %s: %w", f.name, err)
		}
		if err := p.Save(figureWidth, figureHeight, filepath.Join(dir, f.name)); err != nil {
			return written, fmt.Errorf("failed to save %s: %w", f.name, err)
		}
		written = append(written, f.name)
	}
	return written, nil
}

// peFigure overlays observed folds (points) and model folds (lines) per
// treated condition
func peFigure(fit *calibration.FitResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Pe proliferation: relative fold vs control"
	p.X.Label.Text = "Time (h)"
	p.Y.Label.Text = "Fold vs control"

	for i, c := range fit.Curves {
		obs := make(plotter.XYs, len(c.Times))
		pred := make(plotter.XYs, len(c.Times))
		for k, t := range c.Times {
			obs[k] = plotter.XY{X: t, Y: c.Observed[k]}
			pred[k] = plotter.XY{X: t, Y: c.Predicted[k]}
		}
		line, err := plotter.NewLine(pred)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(2)

		scatter, err := plotter.NewScatter(obs)
		if err != nil {
			return nil, err
		}
		scatter.GlyphStyle.Color = plotutil.Color(i)
		scatter.GlyphStyle.Shape = plotutil.Shape(i)

		p.Add(line, scatter)
		p.Legend.Add("Model "+c.Condition, line)
		p.Legend.Add("Data "+c.Condition, scatter)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())
	return p, nil
}

// qianFigure draws target and model ratios side by side
func qianFigure(fit *calibration.FitResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Qian recruitment: target vs model"
	p.Y.Label.Text = "Ratio"

	targets := make(plotter.Values, len(fit.Ratios))
	model := make(plotter.Values, len(fit.Ratios))
	names := make([]string, len(fit.Ratios))
	for i, r := range fit.Ratios {
		targets[i] = r.Target
		model[i] = finiteOrZero(r.Predicted)
		names[i] = r.Name
	}

	w := vg.Points(24)
	dataBars, err := plotter.NewBarChart(targets, w)
	if err != nil {
		return nil, err
	}
	dataBars.Color = plotutil.Color(0)
	dataBars.Offset = -w / 2

	modelBars, err := plotter.NewBarChart(model, w)
	if err != nil {
		return nil, err
	}
	modelBars.Color = plotutil.Color(1)
	modelBars.Offset = w / 2

	p.Add(dataBars, modelBars)
	p.Legend.Add("Data", dataBars)
	p.Legend.Add("Model", modelBars)
	p.Legend.Top = true
	p.NominalX(names...)
	return p, nil
}

// demoFigure plots the model fold of each demo condition against control
func demoFigure(demo *calibration.DemoResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Coupled demo: proliferation fold vs control"
	p.X.Label.Text = "Time (h)"
	p.Y.Label.Text = "Fold vs control"

	for i, cond := range sortedKeys(demo.Folds) {
		folds := demo.Folds[cond]
		pts := make(plotter.XYs, 0, len(folds))
		for k, v := range folds {
			if k < len(demo.Times) {
				pts = append(pts, plotter.XY{X: demo.Times[k], Y: v})
			}
		}
		if err := addLine(p, cond+" (model)", pts, i); err != nil {
			return nil, err
		}
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// fullFigure plots C/C0 of every full-model scenario
func fullFigure(demo *calibration.DemoResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Full model: tumor C(t) / C0"
	p.X.Label.Text = "Time (h)"
	p.Y.Label.Text = "C / C0"

	i := 0
	for _, name := range sortedKeys(demo.Full) {
		traj := demo.Full[name]
		if len(traj) == 0 || len(traj[0].State) == 0 {
			continue
		}
		c0 := math.Max(traj[0].State[0], 1e-12)
		pts := make(plotter.XYs, len(traj))
		for k, pt := range traj {
			pts[k] = plotter.XY{X: pt.Time, Y: pt.State[0] / c0}
		}
		if err := addLine(p, name, pts, i); err != nil {
			return nil, err
		}
		i++
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, i int) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(i)
	line.Dashes = plotutil.Dashes(i)
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
