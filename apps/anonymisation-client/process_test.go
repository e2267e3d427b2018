package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kanishk-verma-dotcom/amica-processing/internal/dataset"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/gate"
)

// fakeGate mimics the annotation service: it HTML-escapes angle brackets
// the way the real service does and flags every occurrence of the
// configured surface forms. requests counts the calls served.
func fakeGate(t *testing.T, requests *int32) *httptest.Server {
	t.Helper()

	escaper := strings.NewReplacer("<", "&lt;", ">", "&gt;")

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request body: %v", err)
		}
		text := escaper.Replace(string(body))

		entities := map[string][]map[string]interface{}{}
		addSpans := func(set, surface string, extra map[string]interface{}) {
			for from := 0; ; {
				i := strings.Index(text[from:], surface)
				if i < 0 {
					break
				}
				start := from + i
				span := map[string]interface{}{
					"indices": []int{start, start + len(surface)},
				}
				for k, v := range extra {
					span[k] = v
				}
				entities[set] = append(entities[set], span)
				from = start + len(surface)
			}
		}
		addSpans(":Location", "Ghent", map[string]interface{}{"locType": "city"})
		addSpans(":UserID", "user99", nil)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":     text,
			"entities": entities,
		})
	}))
}

func testTable(texts []string) *dataset.Table {
	rows := make([][]string, len(texts))
	for i, text := range texts {
		rows[i] = []string{fmt.Sprintf("doc_%d", i), "?", "Negative", "Negative", text}
	}
	return &dataset.Table{
		Headers: []string{"file_id", "scope", "label", "macro", "text"},
		Rows:    rows,
	}
}

func TestProcessorRun(t *testing.T) {
	requests := int32(0)
	server := fakeGate(t, &requests)
	defer server.Close()

	table := testTable([]string{
		"i am visiting Ghent soon",
		"hello user99 how are you",
		"",
		"nothing to hide here",
	})

	processor := &Processor{
		Client: gate.NewClient(gate.Config{
			URL:      server.URL,
			Username: "key",
			Password: "secret",
		}),
		ChunkSize: 2,
	}

	rows, err := processor.Run(context.Background(), table, "text")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(rows) != len(table.Rows) {
		t.Fatalf("got %d rows, want %d", len(rows), len(table.Rows))
	}

	want := []string{
		"i am visiting <LOCATION_city> soon",
		"hello <USER_ID> how are you",
		"",
		"nothing to hide here",
	}
	for i, row := range rows {
		if row.Index != i {
			t.Errorf("row %d: Index = %d", i, row.Index)
		}
		if row.GateStatus != statusAnonymised {
			t.Errorf("row %d: status = %q, want %q", i, row.GateStatus, statusAnonymised)
		}
		if row.GateText != want[i] {
			t.Errorf("row %d: text = %q, want %q", i, row.GateText, want[i])
		}
	}

	if rows[0].FileID != "doc_0" {
		t.Errorf("FileID = %q, want doc_0", rows[0].FileID)
	}
	if got := rows[0].Replacements["Ghent"]; got != "<LOCATION_city>" {
		t.Errorf("replacements[Ghent] = %q", got)
	}
	if len(rows[3].Replacements) != 0 {
		t.Errorf("clean row has replacements: %v", rows[3].Replacements)
	}

	// 4 rows in chunks of 2: exactly two service calls, nothing spent on
	// a separate credential preflight.
	if n := atomic.LoadInt32(&requests); n != 2 {
		t.Errorf("expected 2 service requests, got %d", n)
	}
}

func TestProcessorRunAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	processor := &Processor{
		Client: gate.NewClient(gate.Config{
			URL:      server.URL,
			Username: "key",
			Password: "wrong",
		}),
	}

	_, err := processor.Run(context.Background(), testTable([]string{"hi"}), "text")
	if err == nil {
		t.Fatal("expected error for rejected credentials")
	}
	var authErr *gate.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *gate.AuthenticationError, got %T: %v", err, err)
	}
}

func TestProcessorFailedRowsFlagged(t *testing.T) {
	// Every request fails with a non-retryable, non-auth status. The run
	// must finish with all rows flagged rather than abort.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad document", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	table := testTable([]string{"one", "two", "three"})

	processor := &Processor{
		Client: gate.NewClient(gate.Config{
			URL:      server.URL,
			Username: "key",
			Password: "secret",
		}),
		ChunkSize: 2,
	}

	rows, err := processor.Run(context.Background(), table, "text")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, row := range rows {
		if row.GateStatus != statusFailed {
			t.Errorf("row %d: status = %q, want %q", i, row.GateStatus, statusFailed)
		}
		if row.GateText != row.Text {
			t.Errorf("row %d: failed row should keep its cleaned text", i)
		}
	}
}

func TestProcessorRunMissingColumn(t *testing.T) {
	processor := &Processor{Client: gate.NewClient(gate.Config{})}

	_, err := processor.Run(context.Background(), testTable(nil), "body")
	if err == nil || !strings.Contains(err.Error(), `"body"`) {
		t.Fatalf("expected missing-column error, got %v", err)
	}
}

func TestWriteResults(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "anonymised")

	table := testTable([]string{"met Ghent today", "plain"})
	rows := []Row{
		{
			FileID: "doc_0", Index: 0,
			Text:     "met Ghent today",
			GateText: "met <LOCATION_city> today", GateStatus: statusAnonymised,
			Replacements: map[string]string{"Ghent": "<LOCATION_city>"},
		},
		{
			FileID: "doc_1", Index: 1,
			Text: "plain", GateText: "plain", GateStatus: statusFailed,
		},
	}

	if err := WriteResults(table, rows, base); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}

	csvFile, err := os.Open(base + ".csv")
	if err != nil {
		t.Fatalf("opening CSV: %v", err)
	}
	defer csvFile.Close()

	records, err := csv.NewReader(csvFile).ReadAll()
	if err != nil {
		t.Fatalf("parsing CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("CSV has %d records, want header + 2 rows", len(records))
	}
	header := records[0]
	if header[len(header)-2] != "gate_text" || header[len(header)-1] != "gate_status" {
		t.Errorf("header missing output columns: %v", header)
	}
	if got := records[1][len(header)-2]; got != "met <LOCATION_city> today" {
		t.Errorf("row 1 gate_text = %q", got)
	}
	if got := records[2][len(header)-1]; got != statusFailed {
		t.Errorf("row 2 gate_status = %q", got)
	}

	jsonData, err := os.ReadFile(base + ".json")
	if err != nil {
		t.Fatalf("reading JSON: %v", err)
	}
	var decoded []Row
	if err := json.Unmarshal(jsonData, &decoded); err != nil {
		t.Fatalf("parsing JSON: %v", err)
	}
	if len(decoded) != len(records)-1 {
		t.Errorf("JSON has %d rows, CSV has %d", len(decoded), len(records)-1)
	}

	mapData, err := os.ReadFile(base + ".replacements.json")
	if err != nil {
		t.Fatalf("reading replacements: %v", err)
	}
	var combined map[string]string
	if err := json.Unmarshal(mapData, &combined); err != nil {
		t.Fatalf("parsing replacements: %v", err)
	}
	if combined["Ghent"] != "<LOCATION_city>" {
		t.Errorf("combined map = %v", combined)
	}
}

func TestPlaceholderKind(t *testing.T) {
	tests := []struct {
		placeholder string
		want        string
	}{
		{"<URL>", "url"},
		{"<USER_ID>", "user_id"},
		{"<LOCATION_city>", "location"},
		{"<LOCATION_unknown>", "location"},
		{"<PERSON_female>", "person"},
		{"<PERSON_gender_unknown>", "person"},
		{"something else", "unknown"},
	}

	for _, tt := range tests {
		if got := placeholderKind(tt.placeholder); got != tt.want {
			t.Errorf("placeholderKind(%q) = %q, want %q", tt.placeholder, got, tt.want)
		}
	}
}
