package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

// DataProcessing answers aggregate questions over a downloaded CSV or
// spreadsheet.
type DataProcessing struct {
	downloader *Downloader
}

func (w *DataProcessing) Handle(ctx context.Context, page solver.PageInfo, req solver.Request, deadline time.Time) (solver.WorkerResult, error) {
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	table, result := fetchTable(ctx, w.downloader, solver.CapabilityDataProcessing, page)
	if table == nil {
		return result, nil
	}
	return aggregate(solver.CapabilityDataProcessing, table, page.Instruction), nil
}

func aggregate(worker solver.Capability, table *Table, instruction string) solver.WorkerResult {
	text := strings.ToLower(instruction)
	wantsSum := strings.Contains(text, "sum") || strings.Contains(text, "total")
	wantsMean := strings.Contains(text, "mean") || strings.Contains(text, "average")
	if !wantsSum && !wantsMean {
		return solver.FallbackResult(worker, fmt.Sprintf("loaded %d rows with columns %s", len(table.Rows), strings.Join(table.Header, ", ")))
	}
	column, values, ok := table.valueColumn()
	if !ok {
		return solver.ErrorResult(worker, "no numeric column found")
	}
	var answer solver.WorkerResult
	if wantsSum {
		answer = solver.AnswerResult(worker, numberAnswer(sum(values)), solver.AnswerTypeNumber)
	} else {
		answer = solver.AnswerResult(worker, numberAnswer(stat.Mean(values, nil)), solver.AnswerTypeNumber)
	}
	answer.Note = "column " + column
	return answer
}
