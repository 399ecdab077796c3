// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build linux

package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"
)

// liveSession captures from one interface through an AF_PACKET raw
// socket in non-blocking mode. The socket fd doubles as the readiness
// handle for the idle wait.
type liveSession struct {
	device    string
	fd        int
	buf       []byte
	handlers  Handlers
	meta      Meta
	closeOnce sync.Once
}

func openLive(dev string, opts Options, h Handlers) (Session, error) {
	iface, err := net.InterfaceByName(dev)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", dev, err)
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("open raw socket: %w", err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind to %s: %w", dev, err)
	}

	if opts.Promiscuous {
		mreq := unix.PacketMreq{
			Ifindex: int32(iface.Index),
			Type:    unix.PACKET_MR_PROMISC,
		}
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("enable promiscuous mode on %s: %w", dev, err)
		}
	}

	if opts.Filter != "" {
		if err := attachFilter(fd, opts.SnapLen, opts.Filter); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("attach filter to %s: %w", dev, err)
		}
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set non-blocking on %s: %w", dev, err)
	}

	return &liveSession{
		device:   dev,
		fd:       fd,
		buf:      make([]byte, opts.SnapLen),
		handlers: h,
	}, nil
}

func (s *liveSession) Device() string {
	return s.device
}

func (s *liveSession) Dispatch(limit int) (int, error) {
	count := 0
	for count < limit {
		n, _, err := unix.Recvfrom(s.fd, s.buf, 0)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
				return count, nil
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EBADF),
				errors.Is(err, unix.ENETDOWN),
				errors.Is(err, unix.ENODEV),
				errors.Is(err, unix.ENXIO):
				return count, fmt.Errorf("device %s gone: %v: %w", s.device, err, ErrSessionDown)
			default:
				return count, fmt.Errorf("recv on %s: %w", s.device, err)
			}
		}
		if n == 0 {
			continue
		}

		pkt := gopacket.NewPacket(s.buf[:n], layers.LayerTypeEthernet, decodeOpts)
		dispatchPacket(pkt, s.device, &s.meta, &s.handlers)
		count++
	}
	return count, nil
}

func (s *liveSession) ObservableFD() (int, bool) {
	return s.fd, true
}

func (s *liveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = unix.Close(s.fd)
	})
	return err
}

// htons converts to network byte order as AF_PACKET expects for its
// protocol argument.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}
