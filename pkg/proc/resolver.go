// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package proc

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Info describes a process for display.
type Info struct {
	PID     int32
	Name    string
	Cmdline string
}

// Resolver caches PID to name/cmdline lookups. Entries for exited
// processes are cleared by Prune so reused PIDs resolve fresh.
type Resolver struct {
	logger *zap.Logger
	cache  map[int32]Info
}

// NewResolver returns an empty resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{
		logger: logger,
		cache:  make(map[int32]Info),
	}
}

// Resolve returns display info for pid. Processes that exit between
// capture and lookup resolve to a "?" name rather than an error; the
// traffic already happened and still needs a row.
func (r *Resolver) Resolve(pid int32) Info {
	if info, ok := r.cache[pid]; ok {
		return info
	}

	info := Info{PID: pid, Name: "?"}
	p, err := process.NewProcess(pid)
	if err == nil {
		if name, err := p.Name(); err == nil && name != "" {
			info.Name = name
		}
		if cmdline, err := p.Cmdline(); err == nil {
			info.Cmdline = strings.TrimSpace(cmdline)
		}
	} else {
		r.logger.Debug("process lookup failed", zap.Int32("pid", pid), zap.Error(err))
	}

	r.cache[pid] = info
	return info
}

// Prune drops cache entries not in keep, bounding memory across
// process churn.
func (r *Resolver) Prune(keep map[int32]struct{}) {
	for pid := range r.cache {
		if _, ok := keep[pid]; !ok {
			delete(r.cache, pid)
		}
	}
}

// Release drops the cache.
func (r *Resolver) Release() {
	r.cache = nil
}
