// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package flow accumulates captured traffic into per-connection and
// per-process byte counts.
package flow

import (
	"net"
	"strconv"
	"time"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/procband/procband/pkg/capture"
	"github.com/procband/procband/pkg/stats"
)

// staleAfter bounds how long an idle connection entry is kept. Without
// eviction a long-running monitor on a busy host grows without limit.
const staleAfter = 2 * time.Minute

type connKey struct {
	proto  string
	local  string
	remote string
}

type connStat struct {
	pid        int32
	localIP    string
	localPort  uint32
	remoteIP   string
	remotePort uint32

	// Bytes and packets accumulated since the last Collect.
	sent, recv uint64
	packets    uint64
	lastSeen   time.Time
}

type procStat struct {
	sentTotal, recvTotal       uint64
	sentInterval, recvInterval uint64
}

// Collector receives decoded packets from capture sessions and folds
// them into per-process traffic. It is single-threaded by contract:
// handlers and Collect all run on the capture loop.
type Collector struct {
	logger *zap.Logger
	stats  *stats.Stats
	local  map[string]struct{}
	conns  map[connKey]*connStat
	procs  map[int32]*procStat
	now    func() time.Time
}

// NewCollector creates a collector that classifies direction against
// the given set of local addresses.
func NewCollector(localAddrs map[string]struct{}, st *stats.Stats, logger *zap.Logger) *Collector {
	return &Collector{
		logger: logger,
		stats:  st,
		local:  localAddrs,
		conns:  make(map[connKey]*connStat),
		procs:  make(map[int32]*procStat),
		now:    time.Now,
	}
}

// Handlers returns the protocol callbacks wired to this collector.
func (c *Collector) Handlers() capture.Handlers {
	return capture.Handlers{
		IPv4: c.handleIPv4,
		IPv6: c.handleIPv6,
		TCP:  c.handleTCP,
		UDP:  c.handleUDP,
	}
}

// The IP-layer callbacks have nothing to account yet; addressing is
// already on the Meta. They exist so every decoded IP packet passes
// through the collector even when no transport handler fires.
func (c *Collector) handleIPv4(_ *capture.Meta, _ *layers.IPv4) {}
func (c *Collector) handleIPv6(_ *capture.Meta, _ *layers.IPv6) {}

func (c *Collector) handleTCP(m *capture.Meta, tcp *layers.TCP) {
	c.record("tcp", m, uint32(tcp.SrcPort), uint32(tcp.DstPort))
}

func (c *Collector) handleUDP(m *capture.Meta, udp *layers.UDP) {
	c.record("udp", m, uint32(udp.SrcPort), uint32(udp.DstPort))
}

func (c *Collector) record(proto string, m *capture.Meta, srcPort, dstPort uint32) {
	if m.SrcIP == nil || m.DstIP == nil {
		return
	}
	src := m.SrcIP.String()
	dst := m.DstIP.String()
	_, srcLocal := c.local[src]
	_, dstLocal := c.local[dst]

	// A packet between two local endpoints is both traffic sent by
	// the source process and traffic received by the destination one.
	if srcLocal {
		c.add(proto, src, srcPort, dst, dstPort, uint64(m.Length), 0)
	}
	if dstLocal {
		c.add(proto, dst, dstPort, src, srcPort, 0, uint64(m.Length))
	}
}

func (c *Collector) add(proto, localIP string, localPort uint32, remoteIP string, remotePort uint32, sent, recv uint64) {
	key := connKey{
		proto:  proto,
		local:  joinEndpoint(localIP, localPort),
		remote: joinEndpoint(remoteIP, remotePort),
	}
	cs, ok := c.conns[key]
	if !ok {
		cs = &connStat{
			localIP:    localIP,
			localPort:  localPort,
			remoteIP:   remoteIP,
			remotePort: remotePort,
		}
		c.conns[key] = cs
	}
	cs.sent += sent
	cs.recv += recv
	cs.packets++
	cs.lastSeen = c.now()
}

func joinEndpoint(ip string, port uint32) string {
	return net.JoinHostPort(ip, strconv.FormatUint(uint64(port), 10))
}

// Release drops all accumulated state.
func (c *Collector) Release() {
	c.conns = nil
	c.procs = nil
}
