package workers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/anas-786ss/llm-quiz-solver/internal/llm"
	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

type Deps struct {
	Downloader  *Downloader
	HTTPClient  *http.Client
	LLM         llm.Provider
	LLMAttempts int
	APITimeout  time.Duration
}

// NewRegistry wires every capability the router can dispatch to.
func NewRegistry(deps Deps) solver.Registry {
	if deps.Downloader == nil {
		deps.Downloader = NewDownloader(nil, 0)
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	if deps.APITimeout <= 0 {
		deps.APITimeout = 20 * time.Second
	}
	if deps.LLMAttempts <= 0 {
		deps.LLMAttempts = 2
	}
	return solver.Registry{
		solver.CapabilityDataProcessing: &DataProcessing{downloader: deps.Downloader},
		solver.CapabilityDataCleaning:   &DataCleaning{downloader: deps.Downloader},
		solver.CapabilityAPISourcing:    &APISourcing{client: deps.HTTPClient, timeout: deps.APITimeout},
		solver.CapabilityWebScraping:    &WebScraper{downloader: deps.Downloader},
		solver.CapabilityVisualization:  &Visualization{downloader: deps.Downloader},
		solver.CapabilityAnalysis:       &Analysis{downloader: deps.Downloader},
		solver.CapabilityLLM:            &LLM{provider: deps.LLM, attempts: deps.LLMAttempts},
	}
}

func withDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline)
}

// fetchTable downloads the first data URL and loads it as a table. When the
// page has no usable tabular data, the returned result says why and the
// table is nil.
func fetchTable(ctx context.Context, downloader *Downloader, worker solver.Capability, page solver.PageInfo) (*Table, solver.WorkerResult) {
	if len(page.DataURLs) == 0 {
		return nil, solver.ErrorResult(worker, "no data URL present")
	}
	dataURL := page.DataURLs[0]
	ext := extension(dataURL)
	if ext == ".xls" {
		return nil, solver.FallbackResult(worker, "legacy .xls workbook; handing to LLM worker")
	}
	if !isTabular(ext) {
		return nil, solver.FallbackResult(worker, "non-tabular file; handing to LLM worker")
	}
	filePath, cleanup, err := downloader.Fetch(ctx, dataURL)
	defer cleanup()
	if err != nil {
		return nil, solver.ErrorResult(worker, err.Error())
	}
	table, err := loadTable(filePath, ext)
	if err != nil {
		return nil, solver.ErrorResult(worker, fmt.Sprintf("load %s: %v", dataURL, err))
	}
	return table, solver.WorkerResult{}
}

func numberAnswer(value float64) any {
	if value == math.Trunc(value) && math.Abs(value) < 1<<53 {
		return int64(value)
	}
	return value
}

func sum(values []float64) float64 {
	return floats.Sum(values)
}
