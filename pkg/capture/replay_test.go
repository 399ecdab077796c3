// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package capture

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func writeCaptureFile(t *testing.T, n int) string {
	t.Helper()

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
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload("data")); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	frame := buf.Bytes()

	path := filepath.Join(t.TempDir(), "replay.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write header: %v", err)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	for i := 0; i < n; i++ {
		if err := w.WritePacket(ci, frame); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	return path
}

func TestReplayDispatchesAndExhausts(t *testing.T) {
	path := writeCaptureFile(t, 3)

	var tcpSeen int
	s, err := OpenReplay(path, Handlers{
		TCP: func(m *Meta, _ *layers.TCP) {
			tcpSeen++
			if m.SrcIP.String() != "10.0.0.1" {
				t.Errorf("SrcIP = %s", m.SrcIP)
			}
		},
	})
	if err != nil {
		t.Fatalf("OpenReplay: %v", err)
	}
	defer s.Close()

	if _, ok := s.ObservableFD(); ok {
		t.Error("replay session claims a pollable handle")
	}

	n, err := s.Dispatch(2)
	if err != nil || n != 2 {
		t.Fatalf("first dispatch = (%d, %v), want (2, nil)", n, err)
	}

	n, err = s.Dispatch(10)
	if n != 1 {
		t.Errorf("second dispatch count = %d, want 1", n)
	}
	if !errors.Is(err, ErrSessionDown) {
		t.Errorf("err = %v, want ErrSessionDown", err)
	}
	if tcpSeen != 3 {
		t.Errorf("tcp handler ran %d times, want 3", tcpSeen)
	}
}

func TestReplayBatchLimitRespected(t *testing.T) {
	path := writeCaptureFile(t, 10)
	s, err := OpenReplay(path, Handlers{})
	if err != nil {
		t.Fatalf("OpenReplay: %v", err)
	}
	defer s.Close()

	n, err := s.Dispatch(4)
	if err != nil || n != 4 {
		t.Fatalf("dispatch = (%d, %v), want (4, nil)", n, err)
	}
}

func TestOpenReplayMissingFile(t *testing.T) {
	if _, err := OpenReplay(filepath.Join(t.TempDir(), "nope.pcap"), Handlers{}); err == nil {
		t.Error("OpenReplay accepted a missing file")
	}
}
