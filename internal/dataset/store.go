package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// csvHeader is the tabular schema: one row per sentence.
var csvHeader = []string{"file_id", "scope", "label", "macro", "text"}

// WriteOutputs writes the CSV and JSON representations of the collection
// at base+".csv" and base+".json". Both derive from the same documents,
// so row count and ordering always agree. Existing files are replaced;
// writes go through a temp file so no partial output survives an error.
func WriteOutputs(docs []Document, base string) error {
	csvData, err := encodeCSV(docs)
	if err != nil {
		return err
	}
	jsonData, err := encodeJSON(docs)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(base+".csv", csvData); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	if err := writeFileAtomic(base+".json", jsonData); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}

	log.Printf("Wrote %s.csv and %s.json (%d documents, %d rows)",
		base, base, len(docs), countRows(docs))
	return nil
}

func countRows(docs []Document) int {
	n := 0
	for _, doc := range docs {
		n += len(doc.Sentences)
	}
	return n
}

func encodeCSV(docs []Document) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}

	for _, doc := range docs {
		for _, sentence := range doc.Sentences {
			row := []string{
				doc.Name,
				sentence.Scope,
				sentence.FirstLabel(),
				sentence.MacroLabel(),
				sentence.Text,
			}
			if err := writer.Write(row); err != nil {
				return nil, fmt.Errorf("writing CSV row for %s: %w", doc.Name, err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flushing CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeJSON(docs []Document) ([]byte, error) {
	// An empty collection is still a well-formed array.
	if docs == nil {
		docs = []Document{}
	}
	data, err := json.MarshalIndent(docs, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteWorkbook writes the same table as an XLSX workbook for annotators
// who review the dataset in a spreadsheet.
func WriteWorkbook(docs []Document, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	header := make([]interface{}, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing workbook header: %w", err)
	}

	rowNum := 2
	for _, doc := range docs {
		for _, sentence := range doc.Sentences {
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return err
			}
			row := []interface{}{
				doc.Name,
				sentence.Scope,
				sentence.FirstLabel(),
				sentence.MacroLabel(),
				sentence.Text,
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return fmt.Errorf("writing workbook row %d: %w", rowNum, err)
			}
			rowNum++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encoding workbook: %w", err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	log.Printf("Wrote %s (%d rows)", path, countRows(docs))
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
