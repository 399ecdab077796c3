// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package flow

import (
	"sort"
	"time"
)

// Row is one process line for display and export. Rates are KB/s over
// the interval that ended at the Collect call.
type Row struct {
	PID      int32
	Name     string
	Cmdline  string
	Sent     uint64 // cumulative bytes
	Recv     uint64
	SentRate float64
	RecvRate float64
}

// Attributor resolves a flow endpoint to an owning PID. *proc.Table
// satisfies it; tests substitute their own.
type Attributor interface {
	LookupTCP(localIP string, localPort uint32, remoteIP string, remotePort uint32) (int32, bool)
	LookupUDP(localIP string, localPort uint32) (int32, bool)
}

// Collect attributes the traffic captured since the previous call,
// folds it into per-process totals and returns the rows sorted for
// display. elapsed is the length of the interval the rates cover.
// Flows whose owner the socket tables do not know yet stay on the
// connection ledger under PID 0 and surface as the "unknown" row; a
// later Collect re-attributes them once the kernel catches up.
func (c *Collector) Collect(attr Attributor, elapsed time.Duration, sortBySent bool) []Row {
	now := c.now()

	for _, ps := range c.procs {
		ps.sentInterval = 0
		ps.recvInterval = 0
	}

	for key, cs := range c.conns {
		if cs.pid == 0 {
			var pid int32
			var ok bool
			if key.proto == "tcp" {
				pid, ok = attr.LookupTCP(cs.localIP, cs.localPort, cs.remoteIP, cs.remotePort)
			} else {
				pid, ok = attr.LookupUDP(cs.localIP, cs.localPort)
			}
			if ok {
				cs.pid = pid
			}
		}

		if cs.sent > 0 || cs.recv > 0 {
			ps := c.procs[cs.pid]
			if ps == nil {
				ps = &procStat{}
				c.procs[cs.pid] = ps
			}
			ps.sentTotal += cs.sent
			ps.recvTotal += cs.recv
			ps.sentInterval += cs.sent
			ps.recvInterval += cs.recv
			if cs.pid == 0 && c.stats != nil {
				c.stats.UnknownPackets.Add(int64(cs.packets))
			}
			cs.sent = 0
			cs.recv = 0
			cs.packets = 0
		} else if now.Sub(cs.lastSeen) > staleAfter {
			delete(c.conns, key)
		}
	}

	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}

	rows := make([]Row, 0, len(c.procs))
	for pid, ps := range c.procs {
		rows = append(rows, Row{
			PID:      pid,
			Sent:     ps.sentTotal,
			Recv:     ps.recvTotal,
			SentRate: float64(ps.sentInterval) / secs / 1024,
			RecvRate: float64(ps.recvInterval) / secs / 1024,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if sortBySent {
			if a.SentRate != b.SentRate {
				return a.SentRate > b.SentRate
			}
			if a.Sent != b.Sent {
				return a.Sent > b.Sent
			}
		} else {
			if a.RecvRate != b.RecvRate {
				return a.RecvRate > b.RecvRate
			}
			if a.Recv != b.Recv {
				return a.Recv > b.Recv
			}
		}
		return a.PID < b.PID
	})

	return rows
}

// PIDs returns the set of PIDs currently on the ledger, for pruning
// the name cache.
func (c *Collector) PIDs() map[int32]struct{} {
	set := make(map[int32]struct{}, len(c.procs))
	for pid := range c.procs {
		set[pid] = struct{}{}
	}
	return set
}
