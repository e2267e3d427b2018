package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kanishk-verma-dotcom/amica-processing/internal/anonymise"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/dataset"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/gate"
)

// Row statuses recorded in the gate_status output column.
const (
	statusAnonymised = "anonymised"
	statusFailed     = "failed"
)

// Row is one input row tracked through the pipeline.
type Row struct {
	FileID       string            `json:"file_id"`
	Index        int               `json:"row"`
	Text         string            `json:"text"`
	GateText     string            `json:"gate_text"`
	GateStatus   string            `json:"gate_status"`
	Replacements map[string]string `json:"replacements,omitempty"`
}

// Processor runs the anonymisation pass over one input table.
type Processor struct {
	Client    *gate.Client
	ChunkSize int
	Metrics   *Metrics
}

// Run cleans every row's text, submits the rows to the service in
// chunks, and masks the recognised spans. Every input row produces
// exactly one output row in the same position; rows the service could
// not process keep their cleaned text and are marked failed. Rejected
// credentials abort the run: the first chunk doubles as the credential
// check, so no request is spent on a separate preflight against the
// service's daily quota.
func (p *Processor) Run(ctx context.Context, table *dataset.Table, textColumn string) ([]Row, error) {
	textCol := table.Column(textColumn)
	if textCol < 0 {
		return nil, fmt.Errorf("input has no %q column (headers: %s)",
			textColumn, strings.Join(table.Headers, ", "))
	}
	fileCol := table.Column("file_id")

	rows := make([]Row, len(table.Rows))
	for i, raw := range table.Rows {
		text := anonymise.Clean(raw[textCol])
		if text == "" {
			// The delimiter protocol needs a non-empty cell per row,
			// otherwise adjacent delimiters collapse on the way back.
			text = " "
		}
		rows[i] = Row{Index: i, Text: text}
		if fileCol >= 0 {
			rows[i].FileID = raw[fileCol]
		}
	}

	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 150
	}

	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := p.processChunk(ctx, rows[start:end]); err != nil {
			return nil, err
		}
		log.Printf("Processed rows %d-%d of %d", start, end-1, len(rows))
	}

	return rows, nil
}

// processChunk anonymises one slice of rows in place. A chunk that comes
// back misaligned or errored is retried in small sub-batches so one bad
// row does not take out its whole chunk; rows that still fail are marked
// and kept.
func (p *Processor) processChunk(ctx context.Context, chunk []Row) error {
	err := p.submit(ctx, chunk)
	if err == nil {
		return nil
	}

	var authErr *gate.AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Printf("Warning: chunk of %d rows failed (%v), retrying in sub-batches", len(chunk), err)

	subSize := len(chunk) / 25
	if subSize < 1 {
		subSize = 1
	}
	for start := 0; start < len(chunk); start += subSize {
		end := start + subSize
		if end > len(chunk) {
			end = len(chunk)
		}
		sub := chunk[start:end]
		if err := p.submit(ctx, sub); err != nil {
			if errors.As(err, &authErr) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			for i := range sub {
				sub[i].GateText = sub[i].Text
				sub[i].GateStatus = statusFailed
				p.Metrics.RowDone(statusFailed)
			}
			log.Printf("Warning: rows %d-%d failed: %v", sub[0].Index, sub[len(sub)-1].Index, err)
		}
	}
	return nil
}

// submit sends one batch of rows as a single delimiter-joined document
// and writes the anonymised texts back into the rows.
func (p *Processor) submit(ctx context.Context, rows []Row) error {
	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = row.Text
	}

	started := time.Now()
	result, err := p.Client.Process(ctx, anonymise.JoinRows(texts))
	p.Metrics.RequestDone(err, time.Since(started))
	if err != nil {
		return err
	}

	masked, replacements := anonymise.Redact(result.Text, result.Flatten())
	parts := anonymise.SplitResponse(masked)
	if len(parts) != len(rows) {
		return fmt.Errorf("response split into %d parts for %d rows", len(parts), len(rows))
	}

	for i := range rows {
		rows[i].GateText = parts[i]
		rows[i].GateStatus = statusAnonymised
		rows[i].Replacements = rowReplacements(rows[i].Text, replacements)
		p.Metrics.RowDone(statusAnonymised)
	}
	return nil
}

// rowReplacements narrows the batch-level substitution map down to the
// pairs that actually apply to one row's text.
func rowReplacements(text string, replacements map[string]string) map[string]string {
	var applied map[string]string
	for raw, placeholder := range replacements {
		if strings.Contains(text, raw) {
			if applied == nil {
				applied = make(map[string]string)
			}
			applied[raw] = placeholder
		}
	}
	return applied
}

// WriteResults writes the anonymised table as base+".csv" (the input
// columns plus gate_text and gate_status), the row records as
// base+".json", and the combined substitution map as
// base+".replacements.json".
func WriteResults(table *dataset.Table, rows []Row, base string) error {
	if len(rows) != len(table.Rows) {
		return fmt.Errorf("got %d result rows for %d input rows", len(rows), len(table.Rows))
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	header := append(append([]string{}, table.Headers...), "gate_text", "gate_status")
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, raw := range table.Rows {
		record := append(append([]string{}, raw...), rows[i].GateText, rows[i].GateStatus)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}

	if err := writeFileAtomic(base+".csv", buf.Bytes()); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}

	jsonData, err := json.MarshalIndent(rows, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	if err := writeFileAtomic(base+".json", append(jsonData, '\n')); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}

	combined := make(map[string]string)
	for _, row := range rows {
		for raw, placeholder := range row.Replacements {
			combined[raw] = placeholder
		}
	}
	mapData, err := json.MarshalIndent(combined, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding replacements: %w", err)
	}
	if err := writeFileAtomic(base+".replacements.json", append(mapData, '\n')); err != nil {
		return fmt.Errorf("writing replacements: %w", err)
	}

	log.Printf("Wrote %s.csv, %s.json and %s.replacements.json (%d rows)",
		base, base, base, len(rows))
	return nil
}

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
