// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package shutdown implements the self-pipe used to request an orderly
// exit from signal context. The write end is async-signal-safe: a
// trigger is a single non-blocking write(2), no locks, no allocation
// beyond the caller's stack.
package shutdown

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Pipe is a non-blocking self-pipe. The read end is observed by the
// capture loop; the write end is poked from signal handlers.
type Pipe struct {
	r, w      int
	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates the pipe with both ends non-blocking and close-on-exec.
func New() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("create shutdown pipe: %w", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fmt.Errorf("set shutdown pipe non-blocking: %w", err)
		}
		unix.CloseOnExec(fd)
	}
	return &Pipe{r: fds[0], w: fds[1]}, nil
}

// Trigger requests shutdown. Safe to call from a goroutine draining a
// signal channel, concurrently with the main loop, and any number of
// times. A full pipe (EAGAIN) means a wake-up is already pending, which
// is success. If the pipe was never created or has been torn down there
// is no loop left to notify, so the process exits immediately rather
// than ignore the request.
func (p *Pipe) Trigger() {
	if p == nil || p.closed.Load() {
		os.Exit(0)
	}
	b := [1]byte{'q'}
	unix.Write(p.w, b[:])
}

// Triggered drains the read end and reports whether a shutdown request
// was pending. Non-blocking.
func (p *Pipe) Triggered() bool {
	if p == nil || p.closed.Load() {
		return false
	}
	var buf [16]byte
	n, err := unix.Read(p.r, buf[:])
	return err == nil && n > 0
}

// ReadFD exposes the read end for readiness polling.
func (p *Pipe) ReadFD() int {
	return p.r
}

// Close releases both ends. Idempotent.
func (p *Pipe) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		unix.Close(p.w)
		unix.Close(p.r)
	})
}
