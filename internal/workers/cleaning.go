package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

type DataCleaning struct {
	downloader *Downloader
}

func (w *DataCleaning) Handle(ctx context.Context, page solver.PageInfo, req solver.Request, deadline time.Time) (solver.WorkerResult, error) {
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	if len(page.DataURLs) > 0 && extension(page.DataURLs[0]) != ".csv" {
		return solver.ErrorResult(solver.CapabilityDataCleaning, "unsupported format"), nil
	}
	table, result := fetchTable(ctx, w.downloader, solver.CapabilityDataCleaning, page)
	if table == nil {
		return result, nil
	}
	cleaned := table.clean()
	text := strings.ToLower(page.Instruction)
	if strings.Contains(text, "how many") || strings.Contains(text, "count") || strings.Contains(text, "number of rows") {
		return solver.AnswerResult(solver.CapabilityDataCleaning, int64(len(cleaned.Rows)), solver.AnswerTypeNumber), nil
	}
	if strings.Contains(text, "sum") || strings.Contains(text, "mean") || strings.Contains(text, "average") {
		return aggregate(solver.CapabilityDataCleaning, cleaned, page.Instruction), nil
	}
	return solver.FallbackResult(solver.CapabilityDataCleaning, fmt.Sprintf("%d rows left after cleaning", len(cleaned.Rows))), nil
}
