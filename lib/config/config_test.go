// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"FINCHVOX_CONFIG", "FINCHVOX_DATA_DIR", "FINCHVOX_STORAGE", "FINCHVOX_LOG_LEVEL",
		"FINCHVOX_S3_BUCKET", "FINCHVOX_S3_REGION", "FINCHVOX_S3_PREFIX", "FINCHVOX_S3_ENDPOINT",
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 3000 || cfg.Server.GRPCPort != 4317 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Scheduler.Interval() != time.Minute || cfg.Scheduler.MinInactive() != time.Minute || cfg.Scheduler.MaxInactive() != time.Hour {
		t.Errorf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.Storage.Type != StorageLocal || !cfg.Storage.DeleteLocalAfterUpload {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.Storage.S3.Region != "us-east-1" || cfg.Storage.S3.Prefix != "sessions" {
		t.Errorf("s3 defaults = %+v", cfg.Storage.S3)
	}
	if cfg.Audio.EncoderBinary != "ffmpeg" || cfg.Audio.Bitrate != "32k" {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if !strings.HasSuffix(cfg.DataDir, ".finchvox") {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnvironment(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnvironment(t)
	path := writeConfig(t, "finchvox.yaml", `
data_dir: /srv/finchvox
server:
  port: 8000
scheduler:
  min_inactive_minutes: 5
  max_inactive_minutes: 120
storage:
  type: s3
  delete_local_after_upload: false
  s3:
    bucket: voice-sessions
    endpoint: http://localhost:4566
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/srv/finchvox" || cfg.Server.Port != 8000 {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.Server.GRPCPort != 4317 || cfg.Scheduler.IntervalMinutes != 1 {
		t.Errorf("defaults lost: %+v %+v", cfg.Server, cfg.Scheduler)
	}
	if cfg.Storage.Type != StorageS3 || cfg.Storage.DeleteLocalAfterUpload {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.S3.Bucket != "voice-sessions" || cfg.Storage.S3.Region != "us-east-1" {
		t.Errorf("s3 = %+v", cfg.Storage.S3)
	}
	if cfg.SessionsDir() != "/srv/finchvox/sessions" {
		t.Errorf("SessionsDir = %q", cfg.SessionsDir())
	}
	if cfg.ControlSocketPath() != "/srv/finchvox/finchvox.sock" {
		t.Errorf("ControlSocketPath = %q", cfg.ControlSocketPath())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadJSONC(t *testing.T) {
	clearEnvironment(t)
	path := writeConfig(t, "finchvox.jsonc", `{
  // Local development.
  "data_dir": "/tmp/fv",
  "log": {"level": "debug"},
  "audio": {"bitrate": "24k",},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/fv" || cfg.Audio.Bitrate != "24k" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel())
	}
}

func TestLoadFromEnvironmentVariable(t *testing.T) {
	clearEnvironment(t)
	path := writeConfig(t, "finchvox.yaml", "server:\n  port: 9001\n")
	t.Setenv("FINCHVOX_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d, want 9001", cfg.Server.Port)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnvironment(t)
	path := writeConfig(t, "finchvox.yaml", `
storage:
  type: local
  s3:
    bucket: from-file
`)
	t.Setenv("FINCHVOX_STORAGE", "s3")
	t.Setenv("FINCHVOX_S3_BUCKET", "from-env")
	t.Setenv("FINCHVOX_S3_REGION", "eu-west-1")
	t.Setenv("FINCHVOX_S3_PREFIX", "voice")
	t.Setenv("FINCHVOX_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("FINCHVOX_DATA_DIR", "/data")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := S3Config{Bucket: "from-env", Region: "eu-west-1", Prefix: "voice", Endpoint: "http://minio:9000"}
	if cfg.Storage.Type != StorageS3 || cfg.Storage.S3 != want {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.DataDir != "/data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
}

func TestLoadFileIgnoresEnvironment(t *testing.T) {
	clearEnvironment(t)
	t.Setenv("FINCHVOX_STORAGE", "s3")
	path := writeConfig(t, "finchvox.yaml", "server:\n  port: 3100\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Storage.Type != StorageLocal {
		t.Errorf("storage.type = %q, want local", cfg.Storage.Type)
	}
}

func TestExpandVariables(t *testing.T) {
	clearEnvironment(t)
	t.Setenv("HOME", "/home/voice")
	t.Setenv("FINCHVOX_TEST_ROOT", "/mnt/data")

	tests := []struct {
		name    string
		dataDir string
		socket  string
		wantDir string
		wantSoc string
	}{
		{"home variable", "${HOME}/fv", "", "/home/voice/fv", "/home/voice/fv/finchvox.sock"},
		{"tilde", "~/fv", "", "/home/voice/fv", "/home/voice/fv/finchvox.sock"},
		{"environment variable", "${FINCHVOX_TEST_ROOT}", "", "/mnt/data", "/mnt/data/finchvox.sock"},
		{"default used", "${FINCHVOX_UNSET_VAR:-/opt/fv}", "", "/opt/fv", "/opt/fv/finchvox.sock"},
		{"socket relative to data dir", "/srv", "${FINCHVOX_DATA_DIR}/control.sock", "/srv", "/srv/control.sock"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			content := "data_dir: " + test.dataDir + "\n"
			if test.socket != "" {
				content += "control:\n  socket_path: " + test.socket + "\n"
			}
			cfg, err := Load(writeConfig(t, "finchvox.yaml", content))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.DataDir != test.wantDir {
				t.Errorf("data_dir = %q, want %q", cfg.DataDir, test.wantDir)
			}
			if cfg.ControlSocketPath() != test.wantSoc {
				t.Errorf("socket = %q, want %q", cfg.ControlSocketPath(), test.wantSoc)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnvironment(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load succeeded for a missing file")
	}
	if _, err := Load(writeConfig(t, "bad.yaml", "server: [unclosed")); err == nil {
		t.Error("Load succeeded for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"large grpc port", func(c *Config) { c.Server.GRPCPort = 70000 }, "server.grpc_port"},
		{"zero interval", func(c *Config) { c.Scheduler.IntervalMinutes = 0 }, "interval_minutes"},
		{"negative min", func(c *Config) { c.Scheduler.MinInactiveMinutes = -1 }, "min_inactive_minutes must not be negative"},
		{"max not above min", func(c *Config) { c.Scheduler.MaxInactiveMinutes = 1 }, "max_inactive_minutes"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }, "storage.type"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageS3 }, "storage.s3.bucket"},
		{"no encoder", func(c *Config) { c.Audio.EncoderBinary = "" }, "audio.encoder_binary"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"no data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Validate = %v, want error mentioning %q", err, test.want)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = -1
	cfg.Storage.Type = "ftp"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "storage.type") {
		t.Errorf("Validate = %v, want both errors", err)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "fv")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	if info, err := os.Stat(cfg.SessionsDir()); err != nil || !info.IsDir() {
		t.Errorf("sessions directory missing: %v", err)
	}
}
