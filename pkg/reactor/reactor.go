// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package reactor runs the single-threaded capture loop: drain every
// session without blocking, fire the periodic refresh, then wait for
// readiness on the session descriptors or fall back to bounded sleeps.
package reactor

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/procband/procband/pkg/capture"
	"github.com/procband/procband/pkg/shutdown"
	"github.com/procband/procband/pkg/stats"
)

// ErrAllSessionsDown is returned when every capture session has failed
// and the loop has nothing left to monitor.
var ErrAllSessionsDown = errors.New("all capture sessions down")

// Hooks are the loop's extension points. All run on the loop
// goroutine.
type Hooks struct {
	// OnRefresh fires once per refresh period with the time actually
	// elapsed since the previous refresh. Once shutdown has been
	// observed no further refresh fires.
	OnRefresh func(elapsed time.Duration)
	// OnInput runs once per refresh cycle, just before OnRefresh.
	// The UI reads keystrokes here.
	OnInput func()
	// OnCleanup runs exactly once during teardown, after the
	// sessions are closed.
	OnCleanup func()
}

// Config sizes the loop.
type Config struct {
	// Period is the refresh interval.
	Period time.Duration
	// PollInterval bounds each sleep when no session is pollable.
	PollInterval time.Duration
	// BatchLimit caps packets per session per dispatch pass.
	BatchLimit int
	// RefreshLimit stops the loop after this many refreshes; zero
	// means run until shutdown is triggered.
	RefreshLimit int
}

// Loop owns the capture sessions and the shutdown pipe for the
// duration of a run. Not safe for concurrent use; Trigger on the pipe
// is the only cross-goroutine entry point.
type Loop struct {
	logger *zap.Logger
	stats  *stats.Stats
	cfg    Config
	hooks  Hooks

	pipe     *shutdown.Pipe
	sessions []capture.Session
	down     []bool

	// useSleep latches when any live session lacks a pollable handle.
	// It never resets: a registry that was incomplete once cannot be
	// trusted to wake the loop for that session later either.
	useSleep bool

	now   func() time.Time
	sleep func(time.Duration)

	teardownOnce sync.Once
}

// New assembles a loop over the given sessions. The loop takes
// ownership: teardown closes the sessions and the pipe.
func New(cfg Config, pipe *shutdown.Pipe, sessions []capture.Session, hooks Hooks, st *stats.Stats, logger *zap.Logger) *Loop {
	return &Loop{
		logger:   logger,
		stats:    st,
		cfg:      cfg,
		hooks:    hooks,
		pipe:     pipe,
		sessions: sessions,
		down:     make([]bool, len(sessions)),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// SetPeriod changes the refresh interval. Only safe from a hook, which
// runs on the loop goroutine; the new period takes effect at the next
// wait.
func (l *Loop) SetPeriod(d time.Duration) {
	if d > 0 {
		l.cfg.Period = d
	}
}

// Run executes the loop until shutdown is triggered, the refresh limit
// is reached, or every session fails. Teardown runs exactly once on
// every exit path.
func (l *Loop) Run() error {
	defer l.teardown()

	lastRefresh := l.now()
	refreshes := 0

	for {
		if l.pipe.Triggered() {
			l.logger.Info("shutdown requested, draining")
			return nil
		}

		dispatched := l.dispatchAll()

		now := l.now()
		if elapsed := now.Sub(lastRefresh); elapsed >= l.cfg.Period {
			// Advance to now rather than lastRefresh+Period: after a
			// stall the next refresh is a full period away instead of
			// a burst of catch-up refreshes.
			lastRefresh = now
			refreshes++
			if l.hooks.OnInput != nil {
				l.hooks.OnInput()
			}
			l.refresh(elapsed)

			if l.cfg.RefreshLimit > 0 && refreshes >= l.cfg.RefreshLimit {
				l.logger.Info("refresh limit reached", zap.Int("refreshes", refreshes))
				return nil
			}
		}

		if l.liveCount() == 0 {
			l.logger.Error("no capture sessions left")
			return ErrAllSessionsDown
		}

		if dispatched == 0 {
			l.wait(lastRefresh)
		}
	}
}

func (l *Loop) refresh(elapsed time.Duration) {
	l.stats.Refreshes.Add(1)
	if l.hooks.OnRefresh != nil {
		l.hooks.OnRefresh(elapsed)
	}
}

// dispatchAll drains each live session up to the batch limit and
// returns the total packets dispatched. A session reporting
// ErrSessionDown is retired; other errors are counted and the session
// stays.
func (l *Loop) dispatchAll() int {
	total := 0
	for i, s := range l.sessions {
		if l.down[i] {
			continue
		}
		n, err := s.Dispatch(l.cfg.BatchLimit)
		total += n
		l.stats.PacketsDispatched.Add(int64(n))

		if err == nil {
			continue
		}
		if errors.Is(err, capture.ErrSessionDown) {
			l.logger.Warn("capture session retired",
				zap.String("device", s.Device()),
				zap.Error(err),
			)
			l.down[i] = true
			l.stats.SessionsDown.Add(1)
			s.Close()
			continue
		}
		l.stats.DispatchErrors.Add(1)
		l.logger.Debug("dispatch error",
			zap.String("device", s.Device()),
			zap.Error(err),
		)
	}
	return total
}

func (l *Loop) liveCount() int {
	n := 0
	for _, d := range l.down {
		if !d {
			n++
		}
	}
	return n
}

// wait blocks until a session or the shutdown pipe becomes readable,
// or the refresh deadline arrives. The readiness registry is rebuilt
// from scratch every time so retired sessions drop out and the
// deadline stays current.
func (l *Loop) wait(lastRefresh time.Time) {
	remaining := l.cfg.Period - l.now().Sub(lastRefresh)
	if remaining <= 0 {
		return
	}

	if !l.useSleep {
		fds, complete := l.buildRegistry()
		if !complete {
			l.useSleep = true
			l.logger.Debug("session without pollable handle, using timed sleeps")
		} else {
			l.poll(fds, remaining)
			return
		}
	}

	d := l.cfg.PollInterval
	if d > remaining {
		d = remaining
	}
	l.sleep(d)
}

// buildRegistry returns pollfds for the shutdown pipe and every live
// session, and whether every live session contributed one.
func (l *Loop) buildRegistry() ([]unix.PollFd, bool) {
	fds := make([]unix.PollFd, 1, len(l.sessions)+1)
	fds[0] = unix.PollFd{Fd: int32(l.pipe.ReadFD()), Events: unix.POLLIN}

	for i, s := range l.sessions {
		if l.down[i] {
			continue
		}
		fd, ok := s.ObservableFD()
		if !ok {
			return nil, false
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	return fds, true
}

func (l *Loop) poll(fds []unix.PollFd, timeout time.Duration) {
	ms := int(timeout.Milliseconds())
	if ms == 0 {
		ms = 1
	}
	_, err := unix.Poll(fds, ms)
	if err != nil && !errors.Is(err, unix.EINTR) {
		l.logger.Warn("poll failed", zap.Error(err))
		l.sleep(l.cfg.PollInterval)
	}
}

// teardown releases everything the loop owns. Invoked on every Run
// exit; safe against double entry.
func (l *Loop) teardown() {
	l.teardownOnce.Do(func() {
		for i, s := range l.sessions {
			if err := s.Close(); err != nil && !l.down[i] {
				l.logger.Debug("session close error",
					zap.String("device", s.Device()),
					zap.Error(err),
				)
			}
		}
		if l.hooks.OnCleanup != nil {
			l.hooks.OnCleanup()
		}
		l.pipe.Close()
		l.logger.Info("capture loop stopped", zap.String("stats", l.stats.Snapshot().String()))
	})
}
