// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package export ships per-process traffic metrics to external
// backends.
package export

import (
	"context"
	"strconv"
	"time"

	"github.com/procband/procband/pkg/flow"
)

// Metric is one data point for export.
type Metric struct {
	Name        string
	Description string
	Unit        string
	Type        MetricType
	Value       float64
	Timestamp   time.Time
	StartTime   time.Time
	Labels      map[string]string
}

// MetricType identifies the kind of metric.
type MetricType int

const (
	MetricGauge MetricType = iota
	MetricCounter
)

// Exporter sends batches of metrics to one backend.
type Exporter interface {
	ExportMetrics(ctx context.Context, metrics []*Metric) error
	Shutdown(ctx context.Context) error
}

// RowMetrics converts one refresh's process rows into metric points:
// rate gauges and cumulative byte counters per process and direction.
func RowMetrics(rows []flow.Row, startTime, ts time.Time) []*Metric {
	metrics := make([]*Metric, 0, len(rows)*4)
	for _, r := range rows {
		labels := func(dir string) map[string]string {
			return map[string]string{
				"process.name": r.Name,
				"process.pid":  strconv.FormatInt(int64(r.PID), 10),
				"direction":    dir,
			}
		}

		metrics = append(metrics,
			&Metric{
				Name:        "process.network.io.rate",
				Description: "Per-process network throughput",
				Unit:        "KBy/s",
				Type:        MetricGauge,
				Value:       r.SentRate,
				Timestamp:   ts,
				Labels:      labels("sent"),
			},
			&Metric{
				Name:        "process.network.io.rate",
				Description: "Per-process network throughput",
				Unit:        "KBy/s",
				Type:        MetricGauge,
				Value:       r.RecvRate,
				Timestamp:   ts,
				Labels:      labels("received"),
			},
			&Metric{
				Name:        "process.network.io",
				Description: "Per-process network bytes since monitor start",
				Unit:        "By",
				Type:        MetricCounter,
				Value:       float64(r.Sent),
				Timestamp:   ts,
				StartTime:   startTime,
				Labels:      labels("sent"),
			},
			&Metric{
				Name:        "process.network.io",
				Description: "Per-process network bytes since monitor start",
				Unit:        "By",
				Type:        MetricCounter,
				Value:       float64(r.Recv),
				Timestamp:   ts,
				StartTime:   startTime,
				Labels:      labels("received"),
			},
		)
	}
	return metrics
}
