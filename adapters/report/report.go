// Package report renders calibration runs as JSON documents and a
// markdown/HTML summary.
package report

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tamcal/internal/calibration"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Output file names
const (
	PeFile       = "pe_fit.json"
	QianFile     = "qian_fit.json"
	CombinedFile = "combined_params.json"
	DemoFile     = "coupled_demo.json"
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
)

// Combined is the flat parameter document keyed by problem
func Combined(run *calibration.Run) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, fit := range run.Fits() {
		out[fit.Problem] = fit.Summary()
	}
	return out
}

// WriteAll writes every JSON document plus the markdown and HTML report
// into dir and returns the paths written.
func WriteAll(dir string, run *calibration.Run) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results dir: %w", err)
	}

	docs := map[string]interface{}{CombinedFile: Combined(run)}
	if run.Pe != nil {
		docs[PeFile] = run.Pe
	}
	if run.Qian != nil {
		docs[QianFile] = run.Qian
	}
	if run.Demo != nil {
		docs[DemoFile] = run.Demo
	}

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		data, err := json.MarshalIndent(docs[name], "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	figures, err := Figures(dir, run)
	for _, name := range figures {
		written = append(written, filepath.Join(dir, name))
	}
	if err != nil {
		return written, err
	}

	md := append(Markdown(run), figureSection(figures)...)
	for name, data := range map[string][]byte{MarkdownFile: md, HTMLFile: HTML(md)} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	sort.Strings(written)

	log.Printf("[Report] run %s: wrote %d files to %s", run.ID, len(written), dir)
	return written, nil
}

// HTML renders markdown with tables and heading IDs
func HTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage, Title: "Calibration report"})
	return markdown.Render(doc, renderer)
}

// Markdown summarizes a run: parameters, fit quality, data issues and the
// coupled demo.
func Markdown(run *calibration.Run) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Calibration run %s\n\n", run.ID)
	fmt.Fprintf(&b, "Created %s. Seed %d, %d recruitment samples, grid scale %g, refine %t.\n\n",
		run.CreatedAt.Format("2006-01-02 15:04:05 MST"), run.Settings.Seed,
		run.Settings.QianSamples, run.Settings.GridScale, run.Settings.Refine)

	for _, fit := range run.Fits() {
		writeFit(&b, fit)
	}

	if run.Growth != nil {
		b.WriteString("## Growth rates\n\n")
		fmt.Fprintf(&b, "| r control /day | r TAM /day | delta r /day | 72 h fold |\n|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %.4g | %.4g | %.4g | %.4g |\n\n",
			run.Growth.ControlRate, run.Growth.TreatedRate, run.Growth.DeltaRate, run.Growth.Fold72h)
	}
	if len(run.Extras) > 0 {
		b.WriteString("## Auxiliary ratios\n\n")
		writeValues(&b, run.Extras)
	}
	if run.Demo != nil {
		writeDemo(&b, run.Demo)
	}
	return []byte(b.String())
}

// figureSection links the written figures from the report
func figureSection(names []string) []byte {
	if len(names) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("## Figures\n\n")
	for _, name := range names {
		fmt.Fprintf(&b, "![%s](%s)\n\n", strings.TrimSuffix(name, filepath.Ext(name)), name)
	}
	return []byte(b.String())
}

func writeFit(b *strings.Builder, fit *calibration.FitResult) {
	fmt.Fprintf(b, "## Fit: %s\n\n", fit.Problem)
	fmt.Fprintf(b, "Loss %.6g over %d of %d candidates (%d non-finite)", fit.Loss, fit.Evaluated, fit.Total, fit.Excluded)
	if fit.Refined {
		b.WriteString(", refined")
	}
	b.WriteString(".\n\n")
	writeValues(b, fit.Params)

	if len(fit.Curves) > 0 {
		b.WriteString("| Condition | Time (h) | Observed | Model | Weight |\n|---|---|---|---|---|\n")
		for _, c := range fit.Curves {
			for i := range c.Times {
				fmt.Fprintf(b, "| %s | %g | %.4f | %.4f | %.3g |\n", c.Condition, c.Times[i], c.Observed[i], c.Predicted[i], c.Weights[i])
			}
		}
		b.WriteString("\n")
	}
	if len(fit.Ratios) > 0 {
		b.WriteString("| Ratio | Data | Model |\n|---|---|---|\n")
		for _, r := range fit.Ratios {
			fmt.Fprintf(b, "| %s | %.4f | %.4f |\n", r.Name, r.Target, r.Predicted)
		}
		b.WriteString("\n")
	}
	if len(fit.Dropped) > 0 {
		b.WriteString("Dropped measurements:\n\n")
		for _, d := range fit.Dropped {
			fmt.Fprintf(b, "- %s at %g h: %s\n", d.Condition, d.Time, d.Reason)
		}
		b.WriteString("\n")
	}
}

func writeValues(b *strings.Builder, values map[string]float64) {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	b.WriteString("| Parameter | Value |\n|---|---|\n")
	for _, k := range names {
		fmt.Fprintf(b, "| %s | %.6g |\n", k, values[k])
	}
	b.WriteString("\n")
}

func writeDemo(b *strings.Builder, demo *calibration.DemoResult) {
	b.WriteString("## Coupled demo\n\nRelative fold versus control:\n\n")
	conds := make([]string, 0, len(demo.Folds))
	for c := range demo.Folds {
		conds = append(conds, c)
	}
	sort.Strings(conds)

	b.WriteString("| Time (h) |")
	for _, c := range conds {
		fmt.Fprintf(b, " %s |", c)
	}
	b.WriteString("\n|---|" + strings.Repeat("---|", len(conds)) + "\n")
	for i, t := range demo.Times {
		fmt.Fprintf(b, "| %g |", t)
		for _, c := range conds {
			fmt.Fprintf(b, " %.4f |", demo.Folds[c][i])
		}
		b.WriteString("\n")
	}
	b.WriteString("\nFull model at the horizon (C, A_M2, V):\n\n")

	names := make([]string, 0, len(demo.Full))
	for n := range demo.Full {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		pts := demo.Full[n]
		if len(pts) == 0 {
			continue
		}
		last := pts[len(pts)-1]
		fmt.Fprintf(b, "- %s at %g h: %s\n", n, last.Time, formatState(last.State))
	}
	b.WriteString("\n")
}

func formatState(s []float64) string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = fmt.Sprintf("%.4g", v)
	}
	return strings.Join(parts, ", ")
}
