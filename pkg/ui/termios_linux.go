// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build linux

package ui

import (
	"golang.org/x/sys/unix"
)

// enableRaw switches fd to unbuffered, no-echo input with non-blocking
// reads (VMIN=0, VTIME=0) and returns a restore function.
func enableRaw(fd int) (func(), error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}

	return func() {
		unix.IoctlSetTermios(fd, unix.TCSETS, old)
	}, nil
}

// readPendingKeys returns whatever input is immediately available.
func readPendingKeys(fd int) []byte {
	var buf [16]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil || n <= 0 {
		return nil
	}
	keys := make([]byte, n)
	copy(keys, buf[:n])
	return keys
}
