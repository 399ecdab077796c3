// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// StdoutExporter prints metrics to stdout, mainly for debugging a
// pipeline without a collector.
type StdoutExporter struct {
	logger *zap.Logger
	out    io.Writer
	format string
}

// NewStdoutExporter creates a stdout exporter. format is "json" or
// "text".
func NewStdoutExporter(format string, logger *zap.Logger) *StdoutExporter {
	return &StdoutExporter{
		logger: logger,
		out:    os.Stdout,
		format: format,
	}
}

type jsonMetric struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// ExportMetrics writes each metric as one line.
func (e *StdoutExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	for _, m := range metrics {
		if e.format == "json" {
			data, err := json.Marshal(jsonMetric{
				Name:      m.Name,
				Type:      typeName(m.Type),
				Value:     m.Value,
				Unit:      m.Unit,
				Timestamp: m.Timestamp,
				Labels:    m.Labels,
			})
			if err != nil {
				return fmt.Errorf("marshal metric: %w", err)
			}
			fmt.Fprintln(e.out, string(data))
			continue
		}
		fmt.Fprintf(e.out, "METRIC %s{%s} = %.3f %s\n",
			m.Name, labelString(m.Labels), m.Value, m.Unit)
	}
	return nil
}

func typeName(t MetricType) string {
	if t == MetricCounter {
		return "counter"
	}
	return "gauge"
}

func labelString(labels map[string]string) string {
	s := ""
	for k, v := range labels {
		if s != "" {
			s += ","
		}
		s += k + "=" + v
	}
	return s
}

// Shutdown is a no-op for stdout.
func (e *StdoutExporter) Shutdown(ctx context.Context) error {
	return nil
}
