// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build linux

package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/sys/unix"
)

// attachFilter compiles a pcap filter expression to classic BPF and
// attaches it to the raw socket with SO_ATTACH_FILTER, so the kernel
// drops non-matching packets before they reach userspace.
func attachFilter(fd, snaplen int, expr string) error {
	ins, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snaplen, expr)
	if err != nil {
		return fmt.Errorf("compile filter %q: %w", expr, err)
	}
	if len(ins) == 0 {
		return fmt.Errorf("filter %q compiled to an empty program", expr)
	}

	prog := make([]unix.SockFilter, len(ins))
	for i, in := range ins {
		prog[i] = unix.SockFilter{
			Code: in.Code,
			Jt:   in.Jt,
			Jf:   in.Jf,
			K:    in.K,
		}
	}

	fprog := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
		return fmt.Errorf("attach filter: %w", err)
	}
	return nil
}
