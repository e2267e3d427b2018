// Command anonymisation-client reads an assembled dataset table, runs
// every row's text through the GATE Cloud TwitIE named-entity
// recognizer, and writes the table back with identifying spans replaced
// by placeholder tokens.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kanishk-verma-dotcom/amica-processing/internal/dataset"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/gate"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/objstore"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/pgsink"
)

// Config holds application configuration.
type Config struct {
	CSVPath     string
	StoragePath string
	Username    string
	Password    string
	GateURL     string
	TextColumn  string
	ChunkSize   int
	MetricsAddr string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	DatabaseURL string
}

func loadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("anonymisation-client", flag.ContinueOnError)

	cfg := &Config{
		GateURL:     getEnvOrDefault("GATE_URL", gate.DefaultURL),
		S3Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"), // Optional, for MinIO testing
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	fs.StringVar(&cfg.CSVPath, "csv_path", "", "Path of the assembled dataset table (csv, tsv or xlsx)")
	fs.StringVar(&cfg.StoragePath, "storage_path", "", "Base path for the anonymised outputs")
	fs.StringVar(&cfg.Username, "username", os.Getenv("GATE_USERNAME"), "GATE Cloud API key id")
	fs.StringVar(&cfg.Password, "password", os.Getenv("GATE_PASSWORD"), "GATE Cloud API key password")
	fs.StringVar(&cfg.TextColumn, "text-column", "text", "Name of the column holding the row text")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", 150, "Rows joined into one service request")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", os.Getenv("METRICS_ADDR"), "Expose Prometheus metrics on this address (e.g. :9090)")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", os.Getenv("S3_BUCKET"), "Mirror outputs to this S3 bucket")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", "amica/anonymised", "Key prefix for mirrored outputs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.CSVPath == "" {
		return nil, fmt.Errorf("--csv_path is required")
	}
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("--storage_path is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("--username and --password are required")
	}
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("--chunk-size must be at least 1")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Anonymisation failed: %v", err)
	}

	log.Println("Anonymisation complete")
}

func run(cfg *Config) error {
	table, err := dataset.ReadTable(cfg.CSVPath)
	if err != nil {
		return err
	}
	log.Printf("Read %d rows from %s", len(table.Rows), cfg.CSVPath)

	var metrics *Metrics
	if cfg.MetricsAddr != "" {
		metrics = NewMetrics()
		serveMetrics(cfg.MetricsAddr)
	}

	processor := &Processor{
		Client: gate.NewClient(gate.Config{
			URL:      cfg.GateURL,
			Username: cfg.Username,
			Password: cfg.Password,
		}),
		ChunkSize: cfg.ChunkSize,
		Metrics:   metrics,
	}

	ctx := context.Background()
	rows, err := processor.Run(ctx, table, cfg.TextColumn)
	if err != nil {
		return err
	}

	if err := WriteResults(table, rows, cfg.StoragePath); err != nil {
		return err
	}

	if cfg.DatabaseURL != "" {
		if err := storeExtractions(cfg, rows); err != nil {
			log.Printf("Warning: database audit store failed: %v", err)
		}
	}

	if cfg.S3Bucket != "" {
		outputs := []string{
			cfg.StoragePath + ".csv",
			cfg.StoragePath + ".json",
			cfg.StoragePath + ".replacements.json",
		}
		if err := mirrorOutputs(cfg, outputs); err != nil {
			log.Printf("Warning: S3 mirror failed: %v", err)
		}
	}

	return nil
}

func storeExtractions(cfg *Config, rows []Row) error {
	sink, err := pgsink.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer sink.Close()

	var extractions []pgsink.Extraction
	for _, row := range rows {
		for raw, placeholder := range row.Replacements {
			extractions = append(extractions, pgsink.Extraction{
				FileID:      row.FileID,
				RowIndex:    row.Index,
				Kind:        placeholderKind(placeholder),
				RawValue:    raw,
				Placeholder: placeholder,
				Status:      row.GateStatus,
			})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	return sink.StoreExtractions(ctx, extractions)
}

// placeholderKind recovers the entity kind from a placeholder token.
func placeholderKind(placeholder string) string {
	switch {
	case placeholder == "<URL>":
		return "url"
	case placeholder == "<USER_ID>":
		return "user_id"
	case len(placeholder) > 10 && placeholder[:10] == "<LOCATION_":
		return "location"
	case len(placeholder) > 8 && placeholder[:8] == "<PERSON_":
		return "person"
	}
	return "unknown"
}

func mirrorOutputs(cfg *Config, paths []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := objstore.New(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		return err
	}

	return store.UploadFiles(ctx, cfg.S3Prefix, "anonymisation-client", paths)
}
