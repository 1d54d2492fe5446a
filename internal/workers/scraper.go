package workers

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/anas-786ss/llm-quiz-solver/internal/solver"
)

// WebScraper sums the value column of the page's data file or, without one,
// of the first HTML table on the page.
type WebScraper struct {
	downloader *Downloader
}

func (w *WebScraper) Handle(ctx context.Context, page solver.PageInfo, req solver.Request, deadline time.Time) (solver.WorkerResult, error) {
	ctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	if len(page.DataURLs) > 0 {
		table, result := fetchTable(ctx, w.downloader, solver.CapabilityWebScraping, page)
		if table == nil {
			return result, nil
		}
		_, values, ok := table.valueColumn()
		if !ok {
			return solver.ErrorResult(solver.CapabilityWebScraping, "no numeric column found"), nil
		}
		return solver.AnswerResult(solver.CapabilityWebScraping, numberAnswer(sum(values)), solver.AnswerTypeNumber), nil
	}
	table := firstHTMLTable(page.HTML)
	if table == nil {
		return solver.FallbackResult(solver.CapabilityWebScraping, "no direct table found"), nil
	}
	numeric := table.numericColumns()
	if len(numeric) == 0 {
		return solver.ErrorResult(solver.CapabilityWebScraping, "no numeric column in html table"), nil
	}
	values, _ := table.numericColumn(numeric[0])
	return solver.AnswerResult(solver.CapabilityWebScraping, numberAnswer(sum(values)), solver.AnswerTypeNumber), nil
}

func firstHTMLTable(html string) *Table {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	selection := doc.Find("table").First()
	if selection.Length() == 0 {
		return nil
	}
	var records [][]string
	hasHeader := false
	selection.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 && row.Find("th").Length() > 0 {
			hasHeader = true
		}
		var cells []string
		row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			records = append(records, cells)
		}
	})
	if len(records) == 0 {
		return nil
	}
	if !hasHeader {
		records = append([][]string{make([]string, len(records[0]))}, records...)
	}
	table, err := newTable(records)
	if err != nil {
		return nil
	}
	return table
}
