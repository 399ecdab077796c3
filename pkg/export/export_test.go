// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/procband/procband/pkg/config"
	"github.com/procband/procband/pkg/flow"
	"github.com/procband/procband/pkg/stats"
)

func TestRowMetrics(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	ts := time.Now()
	rows := []flow.Row{
		{PID: 42, Name: "curl", Sent: 1000, Recv: 2000, SentRate: 1.0, RecvRate: 2.0},
	}

	metrics := RowMetrics(rows, start, ts)
	if len(metrics) != 4 {
		t.Fatalf("metrics = %d, want 4", len(metrics))
	}

	var gauges, counters int
	for _, m := range metrics {
		switch m.Type {
		case MetricGauge:
			gauges++
			if m.Name != "process.network.io.rate" {
				t.Errorf("gauge name = %q", m.Name)
			}
		case MetricCounter:
			counters++
			if m.StartTime != start {
				t.Error("counter missing start time")
			}
		}
		if m.Labels["process.pid"] != "42" {
			t.Errorf("pid label = %q", m.Labels["process.pid"])
		}
		if d := m.Labels["direction"]; d != "sent" && d != "received" {
			t.Errorf("direction label = %q", d)
		}
	}
	if gauges != 2 || counters != 2 {
		t.Errorf("gauges=%d counters=%d, want 2 each", gauges, counters)
	}
}

func TestStdoutExporterText(t *testing.T) {
	e := NewStdoutExporter("text", zap.NewNop())
	var buf strings.Builder
	e.out = &buf

	err := e.ExportMetrics(context.Background(), []*Metric{
		{Name: "process.network.io.rate", Value: 1.5, Unit: "KBy/s",
			Labels: map[string]string{"process.name": "curl"}},
	})
	if err != nil {
		t.Fatalf("ExportMetrics: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "process.network.io.rate") || !strings.Contains(got, "1.500") {
		t.Errorf("text output = %q", got)
	}
}

func TestStdoutExporterJSON(t *testing.T) {
	e := NewStdoutExporter("json", zap.NewNop())
	var buf strings.Builder
	e.out = &buf

	err := e.ExportMetrics(context.Background(), []*Metric{
		{Name: "process.network.io", Type: MetricCounter, Value: 99},
	})
	if err != nil {
		t.Fatalf("ExportMetrics: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, `"type":"counter"`) || !strings.Contains(got, `"value":99`) {
		t.Errorf("json output = %q", got)
	}
}

type recordingExporter struct {
	mu      sync.Mutex
	batches [][]*Metric
	fail    bool
}

func (r *recordingExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("backend down")
	}
	batch := make([]*Metric, len(metrics))
	copy(batch, metrics)
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingExporter) Shutdown(ctx context.Context) error { return nil }

func (r *recordingExporter) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestManagerFlushesOnStop(t *testing.T) {
	st := stats.New()
	rec := &recordingExporter{}
	m := &Manager{
		logger:        zap.NewNop(),
		stats:         st,
		exporters:     []Exporter{rec},
		breaker:       NewCircuitBreaker(circuitFailures, circuitReset),
		metricCh:      make(chan *Metric, 16),
		batchSize:     8,
		flushInterval: time.Hour, // only the stop path flushes
		stopCh:        make(chan struct{}),
	}
	m.Start(context.Background())

	m.Export([]*Metric{{Name: "a", Value: 1}, {Name: "b", Value: 2}})
	m.Stop()

	if rec.total() != 2 {
		t.Errorf("exported = %d, want 2", rec.total())
	}
	if st.MetricsExported.Load() != 2 {
		t.Errorf("MetricsExported = %d, want 2", st.MetricsExported.Load())
	}
}

func TestManagerDropsWhenFull(t *testing.T) {
	st := stats.New()
	m := &Manager{
		logger:   zap.NewNop(),
		stats:    st,
		metricCh: make(chan *Metric, 1),
		stopCh:   make(chan struct{}),
	}
	// No goroutine draining; second metric must drop, not block.
	m.Export([]*Metric{{Name: "a"}, {Name: "b"}})

	if st.MetricsDropped.Load() != 1 {
		t.Errorf("MetricsDropped = %d, want 1", st.MetricsDropped.Load())
	}
}

func TestNewManagerDisabled(t *testing.T) {
	cfg := &config.ExportersConfig{}
	m, err := NewManager(cfg, stats.New(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m != nil {
		t.Error("manager created with no exporters enabled")
	}
}

func TestNewManagerOTLPDialError(t *testing.T) {
	// Secure transport with no credentials configured fails at dial
	// time, so a broken OTLP config must surface as a startup error
	// rather than a silently exporter-less manager.
	cfg := &config.ExportersConfig{
		OTLP: config.OTLPConfig{
			Enabled:  true,
			Endpoint: "localhost:4317",
			Insecure: false,
		},
	}
	m, err := NewManager(cfg, stats.New(), zap.NewNop())
	if err == nil {
		t.Fatal("NewManager succeeded with an undialable OTLP config")
	}
	if m != nil {
		t.Error("manager returned alongside an error")
	}
}
