// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	_ "google.golang.org/grpc/encoding/gzip" // Register gzip compressor

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/procband/procband/pkg/config"
)

const (
	scopeName    = "procband"
	scopeVersion = "0.1.0"
)

// OTLPExporter sends metrics via OTLP gRPC with automatic
// reconnection.
type OTLPExporter struct {
	logger   *zap.Logger
	endpoint string
	opts     []grpc.DialOption

	mu        sync.RWMutex
	conn      *grpc.ClientConn
	metricSvc colmetricspb.MetricsServiceClient
}

// NewOTLPExporter creates a new OTLP gRPC metric exporter.
func NewOTLPExporter(cfg *config.OTLPConfig, logger *zap.Logger) (*OTLPExporter, error) {
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(4 * 1024 * 1024)),
	}

	if cfg.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if cfg.Compression == "" || cfg.Compression == "gzip" {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.UseCompressor("gzip")))
	}

	e := &OTLPExporter{
		logger:   logger,
		endpoint: cfg.Endpoint,
		opts:     opts,
	}
	if err := e.connect(); err != nil {
		return nil, err
	}
	return e, nil
}

// connect establishes or re-establishes the gRPC connection.
func (e *OTLPExporter) connect() error {
	conn, err := grpc.Dial(e.endpoint, e.opts...)
	if err != nil {
		return fmt.Errorf("dial OTLP endpoint %s: %w", e.endpoint, err)
	}
	e.conn = conn
	e.metricSvc = colmetricspb.NewMetricsServiceClient(conn)
	return nil
}

// ensureConnected checks connection health and reconnects if needed.
func (e *OTLPExporter) ensureConnected() error {
	e.mu.RLock()
	conn := e.conn
	e.mu.RUnlock()

	if conn == nil {
		return e.reconnect()
	}

	switch conn.GetState() {
	case connectivity.Ready, connectivity.Idle:
		return nil
	case connectivity.TransientFailure, connectivity.Shutdown:
		return e.reconnect()
	default:
		return nil
	}
}

func (e *OTLPExporter) reconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check under write lock
	if e.conn != nil {
		state := e.conn.GetState()
		if state == connectivity.Ready || state == connectivity.Idle {
			return nil
		}
		e.conn.Close()
	}

	e.logger.Info("reconnecting to OTLP endpoint", zap.String("endpoint", e.endpoint))
	if err := e.connect(); err != nil {
		e.logger.Error("reconnect failed", zap.Error(err))
		return err
	}
	return nil
}

func (e *OTLPExporter) resource() *resourcepb.Resource {
	hostname, _ := os.Hostname()
	pid := os.Getpid()

	return &resourcepb.Resource{
		Attributes: []*commonpb.KeyValue{
			strAttr("service.name", scopeName),
			strAttr("service.instance.id", fmt.Sprintf("%s-%d", hostname, pid)),
			strAttr("telemetry.sdk.name", scopeName),
			strAttr("telemetry.sdk.language", "go"),
			strAttr("telemetry.sdk.version", scopeVersion),
			strAttr("host.name", hostname),
			strAttr("host.arch", runtime.GOARCH),
			intAttr("process.pid", int64(pid)),
		},
	}
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}},
	}
}

// ExportMetrics sends metrics via OTLP gRPC.
func (e *OTLPExporter) ExportMetrics(ctx context.Context, metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	if err := e.ensureConnected(); err != nil {
		return fmt.Errorf("connection not ready: %w", err)
	}

	protoMetrics := make([]*metricspb.Metric, 0, len(metrics))
	for _, m := range metrics {
		protoMetrics = append(protoMetrics, convertMetric(m))
	}

	req := &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				Resource: e.resource(),
				ScopeMetrics: []*metricspb.ScopeMetrics{
					{
						Scope: &commonpb.InstrumentationScope{
							Name:    scopeName,
							Version: scopeVersion,
						},
						Metrics: protoMetrics,
					},
				},
			},
		},
	}

	e.mu.RLock()
	svc := e.metricSvc
	e.mu.RUnlock()

	_, err := svc.Export(ctx, req)
	return err
}

func convertMetric(m *Metric) *metricspb.Metric {
	pm := &metricspb.Metric{
		Name:        m.Name,
		Description: m.Description,
		Unit:        m.Unit,
	}

	attrs := make([]*commonpb.KeyValue, 0, len(m.Labels))
	for k, v := range m.Labels {
		attrs = append(attrs, strAttr(k, v))
	}

	ts := uint64(m.Timestamp.UnixNano())
	var startTs uint64
	if !m.StartTime.IsZero() {
		startTs = uint64(m.StartTime.UnixNano())
	}

	switch m.Type {
	case MetricCounter:
		pm.Data = &metricspb.Metric_Sum{
			Sum: &metricspb.Sum{
				IsMonotonic:            true,
				AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
				DataPoints: []*metricspb.NumberDataPoint{
					{
						StartTimeUnixNano: startTs,
						TimeUnixNano:      ts,
						Value:             &metricspb.NumberDataPoint_AsDouble{AsDouble: m.Value},
						Attributes:        attrs,
					},
				},
			},
		}
	default:
		pm.Data = &metricspb.Metric_Gauge{
			Gauge: &metricspb.Gauge{
				DataPoints: []*metricspb.NumberDataPoint{
					{
						TimeUnixNano: ts,
						Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: m.Value},
						Attributes:   attrs,
					},
				},
			},
		}
	}

	return pm
}

// Shutdown closes the gRPC connection.
func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}
