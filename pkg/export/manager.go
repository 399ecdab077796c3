// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package export

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/procband/procband/pkg/config"
	"github.com/procband/procband/pkg/stats"
)

const (
	defaultBatchSize     = 256
	defaultFlushInterval = 5 * time.Second
	metricChannelSize    = 4096

	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	backoffFactor  = 2.0

	circuitFailures = 5
	circuitReset    = 30 * time.Second
)

// Manager batches metrics on its own goroutine so the capture loop
// only ever performs a non-blocking channel send.
type Manager struct {
	logger    *zap.Logger
	stats     *stats.Stats
	exporters []Exporter
	breaker   *CircuitBreaker

	metricCh      chan *Metric
	batchSize     int
	flushInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager builds a manager from the exporter config. Returns nil
// when no exporter is enabled; callers treat a nil manager as "export
// disabled".
func NewManager(cfg *config.ExportersConfig, st *stats.Stats, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:        logger,
		stats:         st,
		breaker:       NewCircuitBreaker(circuitFailures, circuitReset),
		metricCh:      make(chan *Metric, metricChannelSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		stopCh:        make(chan struct{}),
	}

	if cfg.OTLP.Enabled {
		exp, err := NewOTLPExporter(&cfg.OTLP, logger)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		m.exporters = append(m.exporters, exp)
	}
	if cfg.Stdout.Enabled {
		m.exporters = append(m.exporters, NewStdoutExporter(cfg.Stdout.Format, logger))
	}

	if len(m.exporters) == 0 {
		return nil, nil
	}
	return m, nil
}

// Start begins the batch export goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.processMetrics(ctx)

	m.logger.Info("export manager started",
		zap.Int("exporters", len(m.exporters)),
		zap.Int("batch_size", m.batchSize),
		zap.Duration("flush_interval", m.flushInterval),
	)
}

// Stop flushes remaining metrics and shuts the exporters down.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, exp := range m.exporters {
		if err := exp.Shutdown(ctx); err != nil {
			m.logger.Error("exporter shutdown error", zap.Error(err))
		}
	}

	m.logger.Info("export manager stopped",
		zap.Int64("metrics_exported", m.stats.MetricsExported.Load()),
		zap.Int64("metrics_dropped", m.stats.MetricsDropped.Load()),
	)
}

// Export queues metrics without blocking. A full channel drops the
// metric; the capture loop must never wait on a backend.
func (m *Manager) Export(metrics []*Metric) {
	for _, metric := range metrics {
		select {
		case m.metricCh <- metric:
		default:
			m.stats.MetricsDropped.Add(1)
		}
	}
}

func (m *Manager) processMetrics(ctx context.Context) {
	defer m.wg.Done()

	batch := make([]*Metric, 0, m.batchSize)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case metric := <-m.metricCh:
			batch = append(batch, metric)
			if len(batch) >= m.batchSize {
				m.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-m.stopCh:
			for {
				select {
				case metric := <-m.metricCh:
					batch = append(batch, metric)
				default:
					if len(batch) > 0 {
						m.flush(context.Background(), batch)
					}
					return
				}
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				m.flush(context.Background(), batch)
			}
			return
		}
	}
}

// flush attempts an export with exponential backoff behind the
// circuit breaker.
func (m *Manager) flush(ctx context.Context, batch []*Metric) {
	if !m.breaker.Allow() {
		m.stats.MetricsDropped.Add(int64(len(batch)))
		m.logger.Debug("circuit breaker open, dropping batch", zap.Int("metrics", len(batch)))
		return
	}

	for _, exp := range m.exporters {
		backoff := initialBackoff
		for attempt := 0; attempt <= maxRetries; attempt++ {
			expCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := exp.ExportMetrics(expCtx, batch)
			cancel()

			if err == nil {
				m.breaker.RecordSuccess()
				break
			}
			m.breaker.RecordFailure()

			if attempt == maxRetries {
				m.logger.Error("export failed after retries",
					zap.Int("attempts", attempt+1),
					zap.Error(err),
				)
				m.stats.MetricsDropped.Add(int64(len(batch)))
				return
			}

			m.logger.Warn("export failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = time.Duration(math.Min(float64(backoff)*backoffFactor, float64(maxBackoff)))
		}
	}

	m.stats.MetricsExported.Add(int64(len(batch)))
}
