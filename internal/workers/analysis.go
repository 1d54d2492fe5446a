package workers

import (
	"context"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

// Analysis answers aggregates the way DataProcessing does and adds
// correlation and least squares slope over the first two numeric columns.
type Analysis struct {
	downloader *Downloader
}

func (w *Analysis) Handle(ctx context.Context, page solver.PageInfo, req solver.Request, deadline time.Time) (solver.WorkerResult, error) {
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	table, result := fetchTable(ctx, w.downloader, solver.CapabilityAnalysis, page)
	if table == nil {
		return result, nil
	}
	if aggregated := aggregate(solver.CapabilityAnalysis, table, page.Instruction); aggregated.HasAnswer() {
		return aggregated, nil
	}
	text := strings.ToLower(page.Instruction)
	wantsCorrelation := strings.Contains(text, "correlation")
	wantsRegression := strings.Contains(text, "regression") || strings.Contains(text, "slope")
	if !wantsCorrelation && !wantsRegression {
		return solver.FallbackResult(solver.CapabilityAnalysis, "no supported analysis requested"), nil
	}
	xs, ys, ok := pairedColumns(table)
	if !ok {
		return solver.ErrorResult(solver.CapabilityAnalysis, "need two numeric columns"), nil
	}
	if wantsCorrelation {
		return solver.AnswerResult(solver.CapabilityAnalysis, roundTo(stat.Correlation(xs, ys, nil), 4), solver.AnswerTypeNumber), nil
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return solver.AnswerResult(solver.CapabilityAnalysis, roundTo(slope, 4), solver.AnswerTypeNumber), nil
}

// pairedColumns returns the rows where both of the first two numeric columns
// hold a number.
func pairedColumns(table *Table) ([]float64, []float64, bool) {
	numeric := table.numericColumns()
	if len(numeric) < 2 {
		return nil, nil, false
	}
	var xs, ys []float64
	for _, row := range table.Rows {
		x, okX := parseNumber(row[numeric[0]])
		y, okY := parseNumber(row[numeric[1]])
		if okX && okY {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys, len(xs) >= 2
}

func roundTo(value float64, places int) any {
	scale := math.Pow(10, float64(places))
	return numberAnswer(math.Round(value*scale) / scale)
}
