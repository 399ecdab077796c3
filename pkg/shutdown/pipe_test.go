// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package shutdown

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestTriggerAndDrain(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if p.Triggered() {
		t.Error("fresh pipe reports triggered")
	}

	p.Trigger()
	if !p.Triggered() {
		t.Error("trigger not observed")
	}
	if p.Triggered() {
		t.Error("second drain still reports triggered")
	}
}

func TestTriggerNeverBlocks(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	// Far more writes than the pipe buffer holds. EAGAIN after the
	// buffer fills must be swallowed, not block or panic.
	for i := 0; i < 100000; i++ {
		p.Trigger()
	}
	if !p.Triggered() {
		t.Error("trigger not observed after burst")
	}
}

func TestReadFDIsPollable(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	fds := []unix.PollFd{{Fd: int32(p.ReadFD()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 0 {
		t.Fatal("pipe readable before trigger")
	}

	p.Trigger()
	fds[0].Revents = 0
	n, err = unix.Poll(fds, 1000)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if n != 1 || fds[0].Revents&unix.POLLIN == 0 {
		t.Errorf("pipe not readable after trigger: n=%d revents=%#x", n, fds[0].Revents)
	}
}

func TestCloseIdempotent(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Close()
	p.Close()
}
