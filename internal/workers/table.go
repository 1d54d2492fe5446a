package workers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a loaded tabular dataset. Rows are padded to the header width.
type Table struct {
	Header []string
	Rows   [][]string
}

// isTabular reports whether the file can be loaded as a table. Legacy BIFF
// .xls workbooks are not readable and go to the LLM worker like other
// non-tabular files.
func isTabular(ext string) bool {
	switch ext {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

func loadTable(filePath string, ext string) (*Table, error) {
	switch ext {
	case ".csv":
		return loadCSV(filePath)
	case ".xlsx":
		return loadSpreadsheet(filePath)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

func loadCSV(filePath string) (*Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return newTable(records)
}

func loadSpreadsheet(filePath string) (*Table, error) {
	book, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer book.Close()
	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return newTable(rows)
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("table is empty")
	}
	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	width := len(header)
	for _, record := range records[1:] {
		if len(record) > width {
			width = len(record)
		}
	}
	for len(header) < width {
		header = append(header, fmt.Sprintf("column_%d", len(header)+1))
	}
	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]string, width)
		copy(row, record)
		rows = append(rows, row)
	}
	return &Table{Header: header, Rows: rows}, nil
}

func parseNumber(cell string) (float64, bool) {
	cleaned := strings.TrimSpace(cell)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	if cleaned == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// numericColumn returns the column's values when every cell that is neither
// blank nor a null marker is a finite number and there is at least one.
func (t *Table) numericColumn(index int) ([]float64, bool) {
	values := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		cell := strings.TrimSpace(row[index])
		if cell == "" || isNullToken(cell) {
			continue
		}
		value, ok := parseNumber(cell)
		if !ok {
			return nil, false
		}
		values = append(values, value)
	}
	return values, len(values) > 0
}

func (t *Table) numericColumns() []int {
	var indexes []int
	for i := range t.Header {
		if _, ok := t.numericColumn(i); ok {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// valueColumn prefers the first column whose name mentions "value" and
// otherwise the first numeric column.
func (t *Table) valueColumn() (string, []float64, bool) {
	for i, name := range t.Header {
		if strings.Contains(strings.ToLower(name), "value") {
			if values, ok := t.numericColumn(i); ok {
				return name, values, true
			}
		}
	}
	numeric := t.numericColumns()
	if len(numeric) == 0 {
		return "", nil, false
	}
	values, _ := t.numericColumn(numeric[0])
	return t.Header[numeric[0]], values, true
}

// clean drops rows with no content and trims every cell.
func (t *Table) clean() *Table {
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		trimmed := make([]string, len(row))
		empty := true
		for i, cell := range row {
			trimmed[i] = strings.TrimSpace(cell)
			if trimmed[i] != "" && !isNullToken(trimmed[i]) {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, trimmed)
		}
	}
	return &Table{Header: t.Header, Rows: rows}
}

func isNullToken(cell string) bool {
	switch strings.ToLower(cell) {
	case "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}
