package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadTableCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	content := "file_id,scope,label,macro,text\n" +
		"doc1,?,Threat,Negative,\"hello, @user123\"\n" +
		"doc2,?,Negative\n" // short row gets padded
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}

	if len(table.Headers) != 5 || table.Headers[4] != "text" {
		t.Errorf("unexpected headers: %v", table.Headers)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	if table.Rows[0][4] != "hello, @user123" {
		t.Errorf("quoted cell mishandled: %q", table.Rows[0][4])
	}
	if len(table.Rows[1]) != 5 || table.Rows[1][4] != "" {
		t.Errorf("short row should be padded: %v", table.Rows[1])
	}
}

func TestReadTableTSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.tsv")
	content := "file_id\ttext\ndoc1\thello world\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if table.Rows[0][1] != "hello world" {
		t.Errorf("unexpected TSV cell: %q", table.Rows[0][1])
	}
}

func TestReadTableXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.xlsx")

	f := excelize.NewFile()
	header := []interface{}{"file_id", "text"}
	row := []interface{}{"doc1", "hello @user123"}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &row); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	table, err := ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if table.Column("text") != 1 {
		t.Errorf("text column not found: %v", table.Headers)
	}
	if len(table.Rows) != 1 || table.Rows[0][1] != "hello @user123" {
		t.Errorf("unexpected workbook rows: %v", table.Rows)
	}
}

func TestReadTableUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.parquet")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTable(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestColumnCaseInsensitive(t *testing.T) {
	table := &Table{Headers: []string{"File_ID", " Text "}}
	if table.Column("text") != 1 {
		t.Errorf("column match should ignore case and padding")
	}
	if table.Column("missing") != -1 {
		t.Errorf("missing column should return -1")
	}
}
