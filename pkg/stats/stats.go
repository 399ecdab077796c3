// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package stats tracks internal counters for the monitor.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats holds runtime counters. All fields are safe for concurrent use.
type Stats struct {
	startTime time.Time

	PacketsDispatched atomic.Int64
	DispatchErrors    atomic.Int64
	SessionsDown      atomic.Int64
	Refreshes         atomic.Int64
	DevicesSkipped    atomic.Int64
	UnknownPackets    atomic.Int64
	MetricsExported   atomic.Int64
	MetricsDropped    atomic.Int64
}

// New creates a Stats with the uptime clock started.
func New() *Stats {
	return &Stats{startTime: time.Now()}
}

// Uptime returns time since the Stats was created.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Uptime            time.Duration
	PacketsDispatched int64
	DispatchErrors    int64
	SessionsDown      int64
	Refreshes         int64
	DevicesSkipped    int64
	UnknownPackets    int64
	MetricsExported   int64
	MetricsDropped    int64
}

// Snapshot returns a consistent-enough copy for display and logging.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Uptime:            s.Uptime(),
		PacketsDispatched: s.PacketsDispatched.Load(),
		DispatchErrors:    s.DispatchErrors.Load(),
		SessionsDown:      s.SessionsDown.Load(),
		Refreshes:         s.Refreshes.Load(),
		DevicesSkipped:    s.DevicesSkipped.Load(),
		UnknownPackets:    s.UnknownPackets.Load(),
		MetricsExported:   s.MetricsExported.Load(),
		MetricsDropped:    s.MetricsDropped.Load(),
	}
}

// String renders the snapshot as a single status line.
func (s Snapshot) String() string {
	return fmt.Sprintf("up=%s pkts=%d errs=%d refreshes=%d skipped_devs=%d unknown=%d",
		s.Uptime.Round(time.Second), s.PacketsDispatched, s.DispatchErrors,
		s.Refreshes, s.DevicesSkipped, s.UnknownPackets)
}
