package main

import (
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig([]string{
		"--dataset_path", "/data/corpus",
		"--storage_path", "/data/out/assembled",
		"-skip-missing",
		"-xlsx",
	})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.DatasetPath != "/data/corpus" {
		t.Errorf("DatasetPath = %q, want /data/corpus", cfg.DatasetPath)
	}
	if cfg.StoragePath != "/data/out/assembled" {
		t.Errorf("StoragePath = %q, want /data/out/assembled", cfg.StoragePath)
	}
	if !cfg.SkipMissing {
		t.Error("SkipMissing should be true")
	}
	if !cfg.WriteXLSX {
		t.Error("WriteXLSX should be true")
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no dataset path", []string{"--storage_path", "/out/x"}, "--dataset_path"},
		{"no storage path", []string{"--dataset_path", "/data"}, "--storage_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.args)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}
