// Command dataset-assembler turns a directory of paired .txt/.ann corpus
// files into the tabular (CSV) and structured (JSON) dataset files the
// anonymisation client consumes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kanishk-verma-dotcom/amica-processing/internal/dataset"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/objstore"
	"github.com/kanishk-verma-dotcom/amica-processing/internal/pgsink"
)

// Config holds application configuration.
type Config struct {
	DatasetPath string
	StoragePath string
	SkipMissing bool
	WriteXLSX   bool
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	DatabaseURL string
}

func loadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dataset-assembler", flag.ContinueOnError)

	cfg := &Config{
		S3Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"), // Optional, for MinIO testing
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	fs.StringVar(&cfg.DatasetPath, "dataset_path", "", "Path of the dataset directory")
	fs.StringVar(&cfg.StoragePath, "storage_path", "", "Base path for the csv and json outputs")
	fs.BoolVar(&cfg.SkipMissing, "skip-missing", false, "Skip .txt files without a matching .ann instead of failing")
	fs.BoolVar(&cfg.WriteXLSX, "xlsx", false, "Also write an .xlsx workbook next to the csv")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", os.Getenv("S3_BUCKET"), "Mirror outputs to this S3 bucket")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", "amica/assembled", "Key prefix for mirrored outputs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.DatasetPath == "" {
		return nil, fmt.Errorf("--dataset_path is required")
	}
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("--storage_path is required")
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
		log.Fatalf("Assembly failed: %v", err)
	}

	log.Println("Assembly complete")
}

func run(cfg *Config) error {
	docs, err := dataset.Assemble(dataset.Options{
		DatasetPath: cfg.DatasetPath,
		SkipMissing: cfg.SkipMissing,
	})
	if err != nil {
		return err
	}

	if err := dataset.WriteOutputs(docs, cfg.StoragePath); err != nil {
		return err
	}

	outputs := []string{cfg.StoragePath + ".csv", cfg.StoragePath + ".json"}
	if cfg.WriteXLSX {
		xlsxPath := cfg.StoragePath + ".xlsx"
		if err := dataset.WriteWorkbook(docs, xlsxPath); err != nil {
			return err
		}
		outputs = append(outputs, xlsxPath)
	}

	if cfg.DatabaseURL != "" {
		if err := indexDocuments(cfg, docs); err != nil {
			// The files on disk are the source of truth; the index is
			// best-effort and must not fail the run.
			log.Printf("Warning: database indexing failed: %v", err)
		}
	}

	if cfg.S3Bucket != "" {
		if err := mirrorOutputs(cfg, outputs); err != nil {
			log.Printf("Warning: S3 mirror failed: %v", err)
		}
	}

	return nil
}

func indexDocuments(cfg *Config, docs []dataset.Document) error {
	sink, err := pgsink.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	return sink.IndexDocuments(ctx, docs)
}

func mirrorOutputs(cfg *Config, paths []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := objstore.New(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		return err
	}

	return store.UploadFiles(ctx, cfg.S3Prefix, "dataset-assembler", paths)
}
