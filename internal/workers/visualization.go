package workers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

// Visualization plots the first numeric column as a line chart and answers
// with a PNG data URI.
type Visualization struct {
	downloader *Downloader
}

func (w *Visualization) Handle(ctx context.Context, page solver.PageInfo, req solver.Request, deadline time.Time) (solver.WorkerResult, error) {
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	table, result := fetchTable(ctx, w.downloader, solver.CapabilityVisualization, page)
	if table == nil {
		if result.FallbackTo != "" {
			return solver.ErrorResult(solver.CapabilityVisualization, "unsupported format"), nil
		}
		return result, nil
	}
	numeric := table.numericColumns()
	if len(numeric) == 0 {
		return solver.ErrorResult(solver.CapabilityVisualization, "no numeric columns"), nil
	}
	values, _ := table.numericColumn(numeric[0])
	uri, err := lineChartURI(table.Header[numeric[0]], values)
	if err != nil {
		return solver.ErrorResult(solver.CapabilityVisualization, err.Error()), nil
	}
	return solver.AnswerResult(solver.CapabilityVisualization, uri, solver.AnswerTypeImage), nil
}

func lineChartURI(name string, values []float64) (string, error) {
	if len(values) < 2 {
		return "", fmt.Errorf("need at least two points to plot %q", name)
	}
	xs := make([]float64, len(values))
	for i := range values {
		xs[i] = float64(i)
	}
	graph := chart.Chart{
		Width:  600,
		Height: 300,
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    name,
				XValues: xs,
				YValues: values,
			},
		},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
