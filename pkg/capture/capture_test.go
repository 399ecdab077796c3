// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package capture

import (
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/procband/procband/pkg/device"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, decodeOpts)
}

func tcpPacket(t *testing.T) gopacket.Packet {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1).To4(),
		DstIP:    net.IPv4(10, 0, 0, 2).To4(),
	}
	tcp := &layers.TCP{SrcPort: 44321, DstPort: 443}
	tcp.SetNetworkLayerForChecksum(ip)
	return serialize(t, eth, ip, tcp, gopacket.Payload("hello"))
}

func TestDispatchTCPPacket(t *testing.T) {
	var gotIPv4, gotTCP bool
	var meta Meta

	h := Handlers{
		IPv4: func(m *Meta, ip *layers.IPv4) {
			gotIPv4 = true
			if gotTCP {
				t.Error("TCP handler ran before IPv4 handler")
			}
		},
		TCP: func(m *Meta, tcp *layers.TCP) {
			gotTCP = true
			meta = *m
			meta.SrcIP = append(net.IP(nil), m.SrcIP...)
			meta.DstIP = append(net.IP(nil), m.DstIP...)
			if tcp.DstPort != 443 {
				t.Errorf("DstPort = %d, want 443", tcp.DstPort)
			}
		},
	}

	var m Meta
	dispatchPacket(tcpPacket(t), "eth0", &m, &h)

	if !gotIPv4 || !gotTCP {
		t.Fatalf("handlers fired: ipv4=%v tcp=%v", gotIPv4, gotTCP)
	}
	if meta.Device != "eth0" {
		t.Errorf("Device = %q", meta.Device)
	}
	if meta.SrcIP.String() != "10.0.0.1" || meta.DstIP.String() != "10.0.0.2" {
		t.Errorf("addresses = %s -> %s", meta.SrcIP, meta.DstIP)
	}
	if meta.Length == 0 {
		t.Error("Length not filled")
	}
}

func TestDispatchUDPOverIPv6(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv6,
	}
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)
	pkt := serialize(t, eth, ip, udp, gopacket.Payload("query"))

	var gotIPv6, gotUDP bool
	h := Handlers{
		IPv6: func(m *Meta, _ *layers.IPv6) { gotIPv6 = true },
		UDP: func(m *Meta, u *layers.UDP) {
			gotUDP = true
			if m.SrcIP.String() != "2001:db8::1" {
				t.Errorf("SrcIP = %s", m.SrcIP)
			}
			if u.SrcPort != 5353 {
				t.Errorf("SrcPort = %d", u.SrcPort)
			}
		},
	}

	var m Meta
	dispatchPacket(pkt, "eth0", &m, &h)
	if !gotIPv6 || !gotUDP {
		t.Fatalf("handlers fired: ipv6=%v udp=%v", gotIPv6, gotUDP)
	}
}

func TestDispatchNonIPSkipsHandlers(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{2, 0, 0, 0, 0, 1},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	pkt := serialize(t, eth, arp)

	h := Handlers{
		IPv4: func(*Meta, *layers.IPv4) { t.Error("IPv4 handler fired for ARP") },
		TCP:  func(*Meta, *layers.TCP) { t.Error("TCP handler fired for ARP") },
	}
	var m Meta
	dispatchPacket(pkt, "eth0", &m, &h)
}

func TestDispatchNilHandlers(t *testing.T) {
	var m Meta
	h := Handlers{}
	// Must not panic with every callback unset.
	dispatchPacket(tcpPacket(t), "eth0", &m, &h)
}

func TestOpenAllNoUsableDevices(t *testing.T) {
	devs := []device.Device{
		{Name: "definitely-not-a-device-0"},
		{Name: "definitely-not-a-device-1"},
	}
	sessions, err := OpenAll(devs, Options{SnapLen: 65536}, Handlers{}, zap.NewNop())
	if !errors.Is(err, ErrNoUsableDevices) {
		t.Fatalf("err = %v, want ErrNoUsableDevices", err)
	}
	if sessions != nil {
		t.Errorf("sessions = %v, want nil", sessions)
	}
}
