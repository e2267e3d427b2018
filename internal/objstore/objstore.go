// Package objstore mirrors produced dataset files to an S3 bucket so
// downstream annotation tooling can pick them up. Optional, like the
// Postgres sink.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store uploads files to one bucket.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds an S3 client from the default AWS config chain. endpoint is
// for MinIO or other S3-compatible stores and switches to path-style
// addressing.
func New(ctx context.Context, bucket, region, endpoint string) (*Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	opts := []func(*s3.Options){}
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, opts...),
		bucket: bucket,
	}, nil
}

// UploadFiles puts each local file under prefix/<basename>, tagging the
// object with the producing stage and upload time.
func (s *Store) UploadFiles(ctx context.Context, prefix, stage string, paths []string) error {
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		key := filepath.Base(path)
		if prefix != "" {
			key = strings.TrimSuffix(prefix, "/") + "/" + key
		}

		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(content),
			ContentType: aws.String(contentType(path)),
			Metadata: map[string]string{
				"stage":       stage,
				"uploaded-at": time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return fmt.Errorf("uploading %s to s3://%s/%s: %w", path, s.bucket, key, err)
		}

		log.Printf("Uploaded s3://%s/%s (%d bytes)", s.bucket, key, len(content))
	}

	return nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
