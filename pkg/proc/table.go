// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package proc maps sockets to the processes that own them.
package proc

import (
	"fmt"
	"net"
	"strconv"

	gnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// Table indexes the kernel's socket tables by endpoint so captured
// packets can be attributed to PIDs. It is rebuilt once per refresh;
// lookups between refreshes see a consistent snapshot.
type Table struct {
	logger *zap.Logger

	tcp       map[string]int32 // "local->remote" for established conns
	tcpListen map[uint32]int32 // local port for listeners
	udp       map[string]int32 // local endpoint
	udpPort   map[uint32]int32 // local port, for wildcard binds
}

// NewTable returns an empty table. Call Refresh before looking up.
func NewTable(logger *zap.Logger) *Table {
	t := &Table{logger: logger}
	t.reset()
	return t
}

func (t *Table) reset() {
	t.tcp = make(map[string]int32)
	t.tcpListen = make(map[uint32]int32)
	t.udp = make(map[string]int32)
	t.udpPort = make(map[uint32]int32)
}

// Refresh rebuilds the index from the current socket tables.
func (t *Table) Refresh() error {
	tcpConns, err := gnet.Connections("tcp")
	if err != nil {
		return fmt.Errorf("list tcp sockets: %w", err)
	}
	udpConns, err := gnet.Connections("udp")
	if err != nil {
		return fmt.Errorf("list udp sockets: %w", err)
	}

	t.reset()

	for _, c := range tcpConns {
		if c.Pid == 0 {
			continue
		}
		if c.Status == "LISTEN" {
			t.AddTCPListen(c.Laddr.Port, c.Pid)
			continue
		}
		t.AddTCP(c.Laddr.IP, c.Laddr.Port, c.Raddr.IP, c.Raddr.Port, c.Pid)
	}

	for _, c := range udpConns {
		if c.Pid == 0 {
			continue
		}
		t.AddUDP(c.Laddr.IP, c.Laddr.Port, c.Pid)
	}

	t.logger.Debug("socket table refreshed",
		zap.Int("tcp", len(t.tcp)),
		zap.Int("tcp_listen", len(t.tcpListen)),
		zap.Int("udp", len(t.udp)),
	)
	return nil
}

// AddTCP records an established TCP socket.
func (t *Table) AddTCP(localIP string, localPort uint32, remoteIP string, remotePort uint32, pid int32) {
	t.tcp[connKey(localIP, localPort, remoteIP, remotePort)] = pid
}

// AddTCPListen records a listening TCP socket.
func (t *Table) AddTCPListen(port uint32, pid int32) {
	t.tcpListen[port] = pid
}

// AddUDP records a bound UDP socket.
func (t *Table) AddUDP(localIP string, localPort uint32, pid int32) {
	t.udp[endpoint(localIP, localPort)] = pid
	t.udpPort[localPort] = pid
}

// LookupTCP resolves a TCP flow to a PID: an exact established match
// first, then a listener on the local port. Returns false when the
// kernel tables have no owner for the flow yet.
func (t *Table) LookupTCP(localIP string, localPort uint32, remoteIP string, remotePort uint32) (int32, bool) {
	if pid, ok := t.tcp[connKey(localIP, localPort, remoteIP, remotePort)]; ok {
		return pid, true
	}
	if pid, ok := t.tcpListen[localPort]; ok {
		return pid, true
	}
	return 0, false
}

// LookupUDP resolves a UDP local endpoint to a PID, falling back to a
// port-only match for sockets bound to the wildcard address.
func (t *Table) LookupUDP(localIP string, localPort uint32) (int32, bool) {
	if pid, ok := t.udp[endpoint(localIP, localPort)]; ok {
		return pid, true
	}
	if pid, ok := t.udpPort[localPort]; ok {
		return pid, true
	}
	return 0, false
}

// Release drops the index so teardown frees the memory promptly.
func (t *Table) Release() {
	t.tcp = nil
	t.tcpListen = nil
	t.udp = nil
	t.udpPort = nil
}

func connKey(localIP string, localPort uint32, remoteIP string, remotePort uint32) string {
	return endpoint(localIP, localPort) + "->" + endpoint(remoteIP, remotePort)
}

func endpoint(ip string, port uint32) string {
	return net.JoinHostPort(canonicalIP(ip), strconv.FormatUint(uint64(port), 10))
}

// canonicalIP normalizes textual forms so keys built from kernel
// tables and keys built from packet headers agree. Notably 4-in-6
// mapped addresses collapse to plain IPv4.
func canonicalIP(s string) string {
	if ip := net.ParseIP(s); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return s
}
