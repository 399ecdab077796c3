// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package config defines the monitor configuration, its defaults and
// validation, and the YAML/env loading pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Capture   CaptureConfig   `yaml:"capture"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	UI        UIConfig        `yaml:"ui"`
	Exporters ExportersConfig `yaml:"exporters"`
}

// CaptureConfig controls session creation and the dispatch pass.
type CaptureConfig struct {
	// Devices lists interfaces to monitor. Empty means auto-detect.
	Devices []string `yaml:"devices"`
	// All includes loopback and other normally skipped interfaces in
	// auto-detection.
	All         bool   `yaml:"all"`
	Promiscuous bool   `yaml:"promiscuous"`
	Filter      string `yaml:"filter"`
	SnapLen     int    `yaml:"snaplen"`
	// BatchLimit caps packets drained per session per dispatch pass so
	// one busy device cannot starve the rest of the loop.
	BatchLimit int `yaml:"batch_limit"`
	// ReplayFile adds an offline pcap session alongside (or instead
	// of) live devices.
	ReplayFile string `yaml:"replay_file"`
}

// RefreshConfig controls the periodic refresh.
type RefreshConfig struct {
	Period time.Duration `yaml:"period"`
	// Limit stops the monitor after this many refreshes. Zero means
	// run until interrupted.
	Limit int `yaml:"limit"`
	// PollInterval bounds the sleep used when no session exposes a
	// pollable handle.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// UIConfig controls the terminal display.
type UIConfig struct {
	// TraceMode prints one line per refresh instead of redrawing the
	// screen, and leaves the terminal untouched.
	TraceMode   bool   `yaml:"trace_mode"`
	SortBySent  bool   `yaml:"sort_by_sent"`
	ViewMode    string `yaml:"view_mode"`
	ShowCmdline bool   `yaml:"show_cmdline"`
}

// View modes accepted by UIConfig.ViewMode.
const (
	ViewRate    = "rate"
	ViewTotalKB = "total_kb"
	ViewTotalB  = "total_b"
	ViewTotalMB = "total_mb"
)

// ExportersConfig holds exporter settings.
type ExportersConfig struct {
	OTLP   OTLPConfig   `yaml:"otlp"`
	Stdout StdoutConfig `yaml:"stdout"`
}

// OTLPConfig configures the OTLP gRPC metric exporter.
type OTLPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	Compression string `yaml:"compression"`
}

// StdoutConfig configures the stdout metric exporter.
type StdoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "json" or "text"
}

// DefaultConfig returns a config that runs without any file at all:
// auto-detected devices, one second refresh, interactive UI, no
// exporters.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			SnapLen:    65536,
			BatchLimit: 256,
		},
		Refresh: RefreshConfig{
			Period:       time.Second,
			PollInterval: time.Millisecond,
		},
		UI: UIConfig{
			SortBySent: true,
			ViewMode:   ViewRate,
		},
		Exporters: ExportersConfig{
			OTLP: OTLPConfig{
				Endpoint: "localhost:4317",
				Insecure: true,
			},
			Stdout: StdoutConfig{
				Format: "text",
			},
		},
	}
}

// Load reads the file at path over the defaults. A missing file is not
// an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.ApplyEnvOverrides()
				if verr := cfg.Validate(); verr != nil {
					return nil, verr
				}
				return cfg, nil
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies PROCBAND_* environment variables on top of
// whatever the file set.
func (c *Config) ApplyEnvOverrides() {
	strOverrides := map[string]*string{
		"PROCBAND_LOG_LEVEL":     &c.LogLevel,
		"PROCBAND_FILTER":        &c.Capture.Filter,
		"PROCBAND_VIEW_MODE":     &c.UI.ViewMode,
		"PROCBAND_OTLP_ENDPOINT": &c.Exporters.OTLP.Endpoint,
	}
	for env, dst := range strOverrides {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	boolOverrides := map[string]*bool{
		"PROCBAND_PROMISCUOUS":    &c.Capture.Promiscuous,
		"PROCBAND_TRACE_MODE":     &c.UI.TraceMode,
		"PROCBAND_OTLP_ENABLED":   &c.Exporters.OTLP.Enabled,
		"PROCBAND_STDOUT_ENABLED": &c.Exporters.Stdout.Enabled,
	}
	for env, dst := range boolOverrides {
		if v := os.Getenv(env); v != "" {
			if b, err := parseBool(v); err == nil {
				*dst = b
			}
		}
	}

	if v := os.Getenv("PROCBAND_DEVICES"); v != "" {
		c.Capture.Devices = splitList(v)
	}
	if v := os.Getenv("PROCBAND_REFRESH_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Refresh.Period = d
		}
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the config for values the monitor cannot run with.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	if c.Capture.SnapLen <= 0 {
		return fmt.Errorf("capture.snaplen must be positive, got %d", c.Capture.SnapLen)
	}
	if c.Capture.BatchLimit <= 0 {
		return fmt.Errorf("capture.batch_limit must be positive, got %d", c.Capture.BatchLimit)
	}

	if c.Refresh.Period < 100*time.Millisecond {
		return fmt.Errorf("refresh.period %s too short, minimum 100ms", c.Refresh.Period)
	}
	if c.Refresh.Limit < 0 {
		return fmt.Errorf("refresh.limit must not be negative, got %d", c.Refresh.Limit)
	}
	if c.Refresh.PollInterval <= 0 {
		return fmt.Errorf("refresh.poll_interval must be positive, got %s", c.Refresh.PollInterval)
	}
	if c.Refresh.PollInterval > c.Refresh.Period {
		return fmt.Errorf("refresh.poll_interval %s exceeds refresh.period %s", c.Refresh.PollInterval, c.Refresh.Period)
	}

	switch c.UI.ViewMode {
	case ViewRate, ViewTotalKB, ViewTotalB, ViewTotalMB:
	default:
		return fmt.Errorf("invalid ui.view_mode %q", c.UI.ViewMode)
	}

	if c.Exporters.OTLP.Enabled && c.Exporters.OTLP.Endpoint == "" {
		return fmt.Errorf("exporters.otlp.endpoint required when OTLP export is enabled")
	}
	if c.Exporters.Stdout.Enabled {
		switch c.Exporters.Stdout.Format {
		case "json", "text":
		default:
			return fmt.Errorf("invalid exporters.stdout.format %q", c.Exporters.Stdout.Format)
		}
	}

	return nil
}
