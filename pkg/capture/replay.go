// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package capture

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// ReplaySession reads packets from a pcap file. It has no pollable
// handle, so a loop containing one falls back to bounded sleeps for its
// idle wait. Once the file is exhausted the session reports
// ErrSessionDown.
type ReplaySession struct {
	name      string
	handle    *pcap.Handle
	src       *gopacket.PacketSource
	handlers  Handlers
	meta      Meta
	closeOnce sync.Once
}

// OpenReplay opens path for offline dispatch.
func OpenReplay(path string, h Handlers) (*ReplaySession, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file %s: %w", path, err)
	}
	src := gopacket.NewPacketSource(handle, handle.LinkType())
	src.Lazy = true
	src.NoCopy = true
	return &ReplaySession{
		name:     "file:" + filepath.Base(path),
		handle:   handle,
		src:      src,
		handlers: h,
	}, nil
}

func (s *ReplaySession) Device() string {
	return s.name
}

func (s *ReplaySession) Dispatch(limit int) (int, error) {
	count := 0
	for count < limit {
		pkt, err := s.src.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, fmt.Errorf("%s exhausted: %w", s.name, ErrSessionDown)
			}
			return count, fmt.Errorf("read %s: %w", s.name, err)
		}
		dispatchPacket(pkt, s.name, &s.meta, &s.handlers)
		count++
	}
	return count, nil
}

func (s *ReplaySession) ObservableFD() (int, bool) {
	return -1, false
}

func (s *ReplaySession) Close() error {
	s.closeOnce.Do(func() {
		s.handle.Close()
	})
	return nil
}
