// Package pgsink indexes pipeline output into Postgres so annotated
// documents and anonymisation results can be queried alongside the rest
// of the staging data. The sink is optional: both tools run entirely on
// files when DATABASE_URL is unset.
package pgsink

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/kanishk-verma-dotcom/amica-processing/internal/dataset"
)

// Extraction is one anonymised span stored for audit: which row it came
// from, what was recognised and what it became.
type Extraction struct {
	FileID      string
	RowIndex    int
	Kind        string
	RawValue    string
	Placeholder string
	Status      string
}

// Sink wraps the staging database connection.
type Sink struct {
	db *sql.DB
}

// Open connects, verifies the connection and makes sure the stage schema
// exists. Tables are created on first use; production databases normally
// carry them already via migrations.
func Open(databaseURL string) (*Sink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema setup failed: %w", err)
	}

	return &Sink{db: db}, nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE SCHEMA IF NOT EXISTS stage;

	CREATE TABLE IF NOT EXISTS stage.documents (
		id BIGSERIAL PRIMARY KEY,
		file_id TEXT UNIQUE,
		sentence_count INT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS stage.spans (
		id BIGSERIAL PRIMARY KEY,
		document_id BIGINT REFERENCES stage.documents(id) ON DELETE CASCADE,
		label TEXT,
		start_pos INT,
		end_pos INT,
		value TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS stage.gate_extractions (
		id BIGSERIAL PRIMARY KEY,
		file_id TEXT,
		row_index INT,
		kind TEXT,
		raw_value TEXT,
		placeholder TEXT,
		status TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// IndexDocuments upserts the assembled documents and bulk-loads their
// spans. Re-running the assembler replaces a document's spans rather
// than duplicating them.
func (s *Sink) IndexDocuments(ctx context.Context, docs []dataset.Document) error {
	for _, doc := range docs {
		var docID int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO stage.documents (file_id, sentence_count)
			VALUES ($1, $2)
			ON CONFLICT (file_id) DO UPDATE SET sentence_count = $2
			RETURNING id`,
			doc.Name, len(doc.Sentences)).Scan(&docID)
		if err != nil {
			return fmt.Errorf("indexing document %s: %w", doc.Name, err)
		}

		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM stage.spans WHERE document_id = $1`, docID); err != nil {
			return fmt.Errorf("clearing spans for %s: %w", doc.Name, err)
		}

		if err := s.copySpans(docID, doc); err != nil {
			return fmt.Errorf("storing spans for %s: %w", doc.Name, err)
		}
	}

	log.Printf("Indexed %d documents into stage.documents", len(docs))
	return nil
}

func (s *Sink) copySpans(docID int64, doc dataset.Document) error {
	if len(doc.Spans) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyInSchema("stage", "spans",
		"document_id", "label", "start_pos", "end_pos", "value"))
	if err != nil {
		return fmt.Errorf("prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for _, span := range doc.Spans {
		if _, err := stmt.Exec(docID, span.Label, span.Start, span.End, span.Text); err != nil {
			return fmt.Errorf("queue span: %w", err)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		return fmt.Errorf("flush bulk insert: %w", err)
	}

	return tx.Commit()
}

// StoreExtractions bulk-loads the anonymisation results of one run.
func (s *Sink) StoreExtractions(ctx context.Context, extractions []Extraction) error {
	if len(extractions) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyInSchema("stage", "gate_extractions",
		"file_id", "row_index", "kind", "raw_value", "placeholder", "status"))
	if err != nil {
		return fmt.Errorf("prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range extractions {
		if _, err := stmt.Exec(e.FileID, e.RowIndex, e.Kind, e.RawValue, e.Placeholder, e.Status); err != nil {
			return fmt.Errorf("queue extraction: %w", err)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		return fmt.Errorf("flush bulk insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Printf("Stored %d extractions in stage.gate_extractions", len(extractions))
	return nil
}
