// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Diagnostics.Enabled {
		t.Error("diagnostics should default to disabled")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DSCP.Name != "" {
		t.Errorf("expected DSCP disabled by default, got %q", cfg.DSCP.Name)
	}
}

func TestLoad_ParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	content := `
logging:
  level: debug
  format: text
dscp:
  name: EF
diagnostics:
  enabled: true
  schedule: "@every 30s"
  output_dir: ` + dir + `
  compression: zstd
  s3:
    bucket: my-bucket
    region: us-east-1
    prefix: snapshots/
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.DSCP.Name != "EF" {
		t.Errorf("unexpected dscp name: %q", cfg.DSCP.Name)
	}
	if !cfg.Diagnostics.Enabled || cfg.Diagnostics.Schedule != "@every 30s" || cfg.Diagnostics.Compression != "zstd" {
		t.Errorf("unexpected diagnostics: %+v", cfg.Diagnostics)
	}
	if cfg.Diagnostics.S3.Bucket != "my-bucket" || cfg.Diagnostics.S3.Region != "us-east-1" {
		t.Errorf("unexpected diagnostics.s3: %+v", cfg.Diagnostics.S3)
	}
}

func TestLoad_RejectsMissingOutputDirWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("diagnostics:\n  enabled: true\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for missing diagnostics.output_dir")
	}
}

func TestLoad_RejectsUnknownCompression(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := "diagnostics:\n  enabled: true\n  output_dir: " + dir + "\n  compression: lz4\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for unknown compression")
	}
}

func TestLoad_RejectsS3BucketWithoutRegion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := "diagnostics:\n  enabled: true\n  output_dir: " + dir + "\n  s3:\n    bucket: x\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for s3 bucket without region")
	}
}
