package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a parsed tabular file: a header row plus data rows, every row
// padded to the header width.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Column returns the index of the named column, matched
// case-insensitively, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// ReadTable parses a CSV, TSV or Excel file by extension.
func ReadTable(path string) (*Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"):
		return parseCSV(content, strings.HasSuffix(lower, ".tsv"))
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"):
		return parseExcel(content)
	}
	return nil, fmt.Errorf("unsupported table type: %s", path)
}

func parseCSV(content []byte, isTSV bool) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	if isTSV {
		reader.Comma = '\t'
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	allRows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(allRows) == 0 {
		return nil, fmt.Errorf("empty table file")
	}

	return padded(allRows[0], allRows[1:]), nil
}

func parseExcel(content []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in workbook")
	}

	allRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading workbook rows: %w", err)
	}
	if len(allRows) == 0 {
		return nil, fmt.Errorf("empty workbook")
	}

	return padded(allRows[0], allRows[1:]), nil
}

// padded normalizes every row to the header width: short rows get empty
// cells, long rows are trimmed.
func padded(headers []string, rows [][]string) *Table {
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	for i, row := range rows {
		for len(row) < len(headers) {
			row = append(row, "")
		}
		if len(row) > len(headers) {
			row = row[:len(headers)]
		}
		rows[i] = row
	}
	return &Table{Headers: headers, Rows: rows}
}
