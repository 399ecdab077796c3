// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package capture owns per-device capture sessions and the protocol
// callback dispatch that feeds traffic accounting.
package capture

import (
	"errors"
	"net"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/procband/procband/pkg/device"
)

// ErrSessionDown marks a session that can produce no further packets.
// The loop stops dispatching to it; soft errors are returned bare and
// the session stays live.
var ErrSessionDown = errors.New("capture session down")

// ErrNoUsableDevices means every requested device failed to open.
var ErrNoUsableDevices = errors.New("no usable capture devices")

// Meta carries per-packet context from the IP-layer callbacks down to
// the transport-layer callbacks. The IP slices alias the receive buffer
// and are only valid for the duration of the callback.
type Meta struct {
	Device string
	SrcIP  net.IP
	DstIP  net.IP
	// Length is the full frame length on the wire, not the snapped
	// capture length.
	Length int
}

// Handlers receives decoded packets. Any field may be nil. The IP
// handlers run before the transport handler for the same packet and
// see the same Meta.
type Handlers struct {
	IPv4 func(*Meta, *layers.IPv4)
	IPv6 func(*Meta, *layers.IPv6)
	TCP  func(*Meta, *layers.TCP)
	UDP  func(*Meta, *layers.UDP)
}

// Session is one packet source. Implementations are not safe for
// concurrent use; the loop owns them.
type Session interface {
	// Device names the source for logs and display.
	Device() string

	// Dispatch drains up to limit packets, invoking the handlers for
	// each, and returns the number dispatched. It never blocks: an
	// empty source returns (0, nil). An error wrapping ErrSessionDown
	// means the session is finished; any other error is transient and
	// dispatch may be retried.
	Dispatch(limit int) (int, error)

	// ObservableFD returns a file descriptor that becomes readable
	// when packets are pending, and whether the session has one.
	ObservableFD() (int, bool)

	// Close releases the session's resources. Idempotent.
	Close() error
}

// Options controls how live sessions are opened.
type Options struct {
	Promiscuous bool
	Filter      string
	SnapLen     int
}

// OpenAll opens a live session per device. A device that fails to open
// is logged once and skipped; the remaining devices still run. Only
// when every open fails does OpenAll return ErrNoUsableDevices, so a
// hot-unplugged or permission-restricted interface never takes the
// whole monitor down.
func OpenAll(devs []device.Device, opts Options, h Handlers, logger *zap.Logger) ([]Session, error) {
	sessions := make([]Session, 0, len(devs))
	for _, d := range devs {
		s, err := openLive(d.Name, opts, h)
		if err != nil {
			logger.Warn("skipping device",
				zap.String("device", d.Name),
				zap.Error(err),
			)
			continue
		}
		logger.Info("capturing on device", zap.String("device", d.Name))
		sessions = append(sessions, s)
	}
	if len(sessions) == 0 {
		return nil, ErrNoUsableDevices
	}
	return sessions, nil
}
