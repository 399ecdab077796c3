// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build linux

package privilege

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Capability numbers from linux/capability.h.
const (
	capNetAdmin = 12
	capNetRaw   = 13
)

// Layout of the security.capability xattr (VFS_CAP_REVISION_2 and
// later): 4-byte magic/flags header, then per-word {permitted,
// inheritable} uint32 pairs, little-endian. The low word's permitted
// set starts at byte 4 and covers capabilities 0-31.
const (
	capXattrMinSize   = 8
	capPermittedLoOff = 4
)

func check() error {
	if os.Geteuid() == 0 {
		return nil
	}

	exe, err := os.Readlink("/proc/self/exe")
	if err != nil {
		return fmt.Errorf("not running as root and unable to locate own binary to inspect capabilities: %w", err)
	}

	buf := make([]byte, 64)
	sz, err := unix.Getxattr(exe, "security.capability", buf)
	if err != nil || sz < capXattrMinSize {
		return permissionError(exe)
	}

	permitted := binary.LittleEndian.Uint32(buf[capPermittedLoOff : capPermittedLoOff+4])
	if !hasCaptureCaps(permitted) {
		return permissionError(exe)
	}
	return nil
}

// hasCaptureCaps reports whether the low permitted word grants both
// capabilities packet capture needs.
func hasCaptureCaps(permitted uint32) bool {
	const need = 1<<capNetRaw | 1<<capNetAdmin
	return permitted&need == need
}

func permissionError(exe string) error {
	return fmt.Errorf("insufficient privileges to capture packets: run as root, or grant capabilities with\n\tsetcap cap_net_raw,cap_net_admin+ep %s", exe)
}
