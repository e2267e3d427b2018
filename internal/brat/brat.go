// Package brat parses brat standoff annotation files (.ann), the format
// the AMICA corpus ships its labelled spans in. Only text-bound
// annotations (T lines) are used by the pipeline.
package brat

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Span is a single text-bound annotation: a labelled byte range of the
// source document. Text is empty for spans that only mark a line break
// pilcrow in the source, mirroring how the corpus encodes them.
type Span struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text,omitempty"`
}

// ParseError reports a malformed annotation line. The assembler treats it
// as fatal: a silently incomplete dataset is worse than no dataset.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed annotation: %s", e.File, e.Line, e.Msg)
}

// Parse reads an .ann document. name is used in error messages only.
// Comment lines (#) and blank lines are skipped; anything that is not a
// well-formed T line is a ParseError.
func Parse(name string, r io.Reader) ([]Span, error) {
	var spans []Span

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		span, err := parseLine(line)
		if err != nil {
			return nil, &ParseError{File: name, Line: lineNo, Msg: err.Error()}
		}
		spans = append(spans, span)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	return spans, nil
}

// parseLine parses one T line: "T<id>\t<LABEL> <start> <end>\t<text>".
// Discontinuous offsets are collapsed to their outermost range, matching
// how the corpus tooling consumed them.
func parseLine(line string) (Span, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return Span{}, fmt.Errorf("expected 3 tab-separated fields, got %d", len(fields))
	}

	idField := fields[0]
	if !strings.HasPrefix(idField, "T") {
		return Span{}, fmt.Errorf("unsupported annotation id %q", idField)
	}
	id, err := strconv.Atoi(idField[1:])
	if err != nil {
		return Span{}, fmt.Errorf("invalid annotation id %q", idField)
	}

	// Discontinuous spans separate fragments with ";"; treating it as a
	// field break yields the flat offset list.
	parts := strings.Fields(strings.ReplaceAll(fields[1], ";", " "))
	if len(parts) < 3 {
		return Span{}, fmt.Errorf("expected label and offsets, got %q", fields[1])
	}
	label := parts[0]

	offsets := make([]int, 0, len(parts)-1)
	for _, p := range parts[1:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Span{}, fmt.Errorf("invalid offset %q", p)
		}
		offsets = append(offsets, n)
	}

	start := offsets[0]
	end := offsets[len(offsets)-1]
	if end < start {
		return Span{}, fmt.Errorf("span end %d before start %d", end, start)
	}

	text := fields[2]
	if strings.Contains(text, "¶") {
		// Pilcrow spans mark line breaks, not content.
		text = ""
	}

	return Span{ID: id, Label: label, Start: start, End: end, Text: text}, nil
}
