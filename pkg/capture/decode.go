// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var decodeOpts = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

// dispatchPacket decodes one ethernet frame and runs the handlers. The
// shared Meta is reset per packet; handlers must not retain it.
func dispatchPacket(pkt gopacket.Packet, dev string, m *Meta, h *Handlers) {
	m.Device = dev
	m.SrcIP = nil
	m.DstIP = nil
	m.Length = pkt.Metadata().Length
	if m.Length == 0 {
		m.Length = len(pkt.Data())
	}

	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		m.SrcIP = ip.SrcIP
		m.DstIP = ip.DstIP
		if h.IPv4 != nil {
			h.IPv4(m, ip)
		}
	} else if l := pkt.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		m.SrcIP = ip.SrcIP
		m.DstIP = ip.DstIP
		if h.IPv6 != nil {
			h.IPv6(m, ip)
		}
	}

	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		if h.TCP != nil {
			h.TCP(m, l.(*layers.TCP))
		}
	} else if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		if h.UDP != nil {
			h.UDP(m, l.(*layers.UDP))
		}
	}
}
