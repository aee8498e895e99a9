// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Storage backend types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config is the complete finchvox configuration.
type Config struct {
	// DataDir is the root for sessions and the control socket.
	// Default: ~/.finchvox
	DataDir string `yaml:"data_dir"`

	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Audio     AudioConfig     `yaml:"audio"`
	Log       LogConfig       `yaml:"log"`
	Control   ControlConfig   `yaml:"control"`
}

// ServerConfig configures the listening addresses.
type ServerConfig struct {
	Host string `yaml:"host"`

	// Port serves the UI, the session API, and /collector.
	Port int `yaml:"port"`

	// GRPCPort is reported in the startup banner for the OTLP
	// ingestion endpoint.
	GRPCPort int `yaml:"grpc_port"`
}

// SchedulerConfig configures the finalization loop.
type SchedulerConfig struct {
	IntervalMinutes    int `yaml:"interval_minutes"`
	MinInactiveMinutes int `yaml:"min_inactive_minutes"`
	MaxInactiveMinutes int `yaml:"max_inactive_minutes"`
}

// Interval returns the pass interval.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func (s SchedulerConfig) MinInactive() time.Duration {
	return time.Duration(s.MinInactiveMinutes) * time.Minute
}

func (s SchedulerConfig) MaxInactive() time.Duration {
	return time.Duration(s.MaxInactiveMinutes) * time.Minute
}

// StorageConfig selects where finalized sessions end up.
type StorageConfig struct {
	// Type is "local" or "s3".
	Type string `yaml:"type"`

	// DeleteLocalAfterUpload removes the local copy once an upload
	// succeeds. Only meaningful for remote storage.
	DeleteLocalAfterUpload bool `yaml:"delete_local_after_upload"`

	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
}

// AudioConfig configures compression of merged audio.
type AudioConfig struct {
	// EncoderBinary is the ffmpeg executable, looked up on PATH when
	// not absolute.
	EncoderBinary string `yaml:"encoder_binary"`
	Bitrate       string `yaml:"bitrate"`
}

type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
}

type ControlConfig struct {
	// SocketPath defaults to <data_dir>/finchvox.sock.
	SocketPath string `yaml:"socket_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(homeDir, ".finchvox"),
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     3000,
			GRPCPort: 4317,
		},
		Scheduler: SchedulerConfig{
			IntervalMinutes:    1,
			MinInactiveMinutes: 1,
			MaxInactiveMinutes: 60,
		},
		Storage: StorageConfig{
			Type:                   StorageLocal,
			DeleteLocalAfterUpload: true,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "sessions",
			},
		},
		Audio: AudioConfig{
			EncoderBinary: "ffmpeg",
			Bitrate:       "32k",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file at path, or the file named by FINCHVOX_CONFIG
// when path is empty. With neither, only defaults and environment
// overrides apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FINCHVOX_CONFIG")
	}
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvironment()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile reads path over the defaults without consulting the
// environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas
		// are stripped.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnvironment applies FINCHVOX_* overrides.
func (c *Config) applyEnvironment() {
	override := func(name string, target *string) {
		if value := os.Getenv(name); value != "" {
			*target = value
		}
	}
	override("FINCHVOX_DATA_DIR", &c.DataDir)
	override("FINCHVOX_STORAGE", &c.Storage.Type)
	override("FINCHVOX_S3_BUCKET", &c.Storage.S3.Bucket)
	override("FINCHVOX_S3_REGION", &c.Storage.S3.Region)
	override("FINCHVOX_S3_PREFIX", &c.Storage.S3.Prefix)
	override("FINCHVOX_S3_ENDPOINT", &c.Storage.S3.Endpoint)
	override("FINCHVOX_LOG_LEVEL", &c.Log.Level)
}

// expandVariables expands ${VAR}, ${VAR:-default}, and "~/" in path
// values.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.DataDir = expandPath(c.DataDir, vars)
	vars["FINCHVOX_DATA_DIR"] = c.DataDir

	c.Control.SocketPath = expandPath(c.Control.SocketPath, vars)
	c.Audio.EncoderBinary = expandPath(c.Audio.EncoderBinary, vars)
}

// ExpandPath applies the same expansion as config loading. The CLI
// uses it for flag values.
func ExpandPath(path string) string {
	return expandPath(path, map[string]string{"HOME": os.Getenv("HOME")})
}

func expandPath(path string, vars map[string]string) string {
	path = expandVars(path, vars)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home := vars["HOME"]; home != "" {
			path = home + path[1:]
		}
	}
	return path
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]

		// Provided vars first, then the process environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// SessionsDir is the directory whose children are session directories.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// ControlSocketPath returns the control socket path, defaulting to a
// socket inside the data directory.
func (c *Config) ControlSocketPath() string {
	if c.Control.SocketPath != "" {
		return c.Control.SocketPath
	}
	return filepath.Join(c.DataDir, "finchvox.sock")
}

// LogLevel parses Log.Level. Validate rejects unknown names.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	// Port 0 asks the kernel for a free port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port must be between 1 and 65535, got %d", c.Server.GRPCPort))
	}

	if c.Scheduler.IntervalMinutes < 1 {
		errs = append(errs, fmt.Errorf("scheduler.interval_minutes must be at least 1, got %d", c.Scheduler.IntervalMinutes))
	}
	if c.Scheduler.MinInactiveMinutes < 0 {
		errs = append(errs, fmt.Errorf("scheduler.min_inactive_minutes must not be negative, got %d", c.Scheduler.MinInactiveMinutes))
	}
	if c.Scheduler.MaxInactiveMinutes <= c.Scheduler.MinInactiveMinutes {
		errs = append(errs, fmt.Errorf("scheduler.max_inactive_minutes (%d) must exceed min_inactive_minutes (%d)",
			c.Scheduler.MaxInactiveMinutes, c.Scheduler.MinInactiveMinutes))
	}

	switch c.Storage.Type {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required when storage.type is s3 (or set FINCHVOX_S3_BUCKET)"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be one of [local s3], got %q", c.Storage.Type))
	}

	if c.Audio.EncoderBinary == "" {
		errs = append(errs, errors.New("audio.encoder_binary is required"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level must be one of [debug info warn error], got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// EnsureDirs creates the data and sessions directories.
func (c *Config) EnsureDirs() error {
	for _, path := range []string{c.DataDir, c.SessionsDir()} {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
