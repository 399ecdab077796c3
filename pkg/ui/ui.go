// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package ui renders per-process traffic to the terminal and handles
// the interactive keys.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/procband/procband/pkg/config"
	"github.com/procband/procband/pkg/flow"
	"github.com/procband/procband/pkg/stats"
)

// viewModes is the cycle order for the 'm' key.
var viewModes = []string{config.ViewRate, config.ViewTotalKB, config.ViewTotalB, config.ViewTotalMB}

// UI owns the terminal. All methods run on the capture loop.
type UI struct {
	logger      *zap.Logger
	out         io.Writer
	inFD        int
	trace       bool
	sortBySent  bool
	viewMode    string
	showCmdline bool

	quit    func()
	restore func()
}

// New creates the UI. quit is invoked when the user presses 'q'.
func New(cfg config.UIConfig, quit func(), logger *zap.Logger) *UI {
	return &UI{
		logger:      logger,
		out:         os.Stdout,
		inFD:        int(os.Stdin.Fd()),
		trace:       cfg.TraceMode,
		sortBySent:  cfg.SortBySent,
		viewMode:    cfg.ViewMode,
		showCmdline: cfg.ShowCmdline,
		quit:        quit,
	}
}

// Init puts the terminal in raw mode for key handling. Trace mode and
// non-terminal stdin run without keys; that is not an error.
func (u *UI) Init() error {
	if u.trace {
		return nil
	}
	restore, err := enableRaw(u.inFD)
	if err != nil {
		u.logger.Debug("interactive keys unavailable", zap.Error(err))
		return nil
	}
	u.restore = restore
	return nil
}

// Teardown restores the terminal. Safe to call more than once.
func (u *UI) Teardown() {
	if u.restore != nil {
		u.restore()
		u.restore = nil
		fmt.Fprintln(u.out)
	}
}

// SortBySent reports the current sort direction for Collect.
func (u *UI) SortBySent() bool {
	return u.sortBySent
}

// Apply adopts display settings from a reloaded config.
func (u *UI) Apply(cfg config.UIConfig) {
	u.sortBySent = cfg.SortBySent
	u.viewMode = cfg.ViewMode
	u.showCmdline = cfg.ShowCmdline
}

// HandleKeys drains pending keystrokes. Called once per loop pass so a
// held key cannot starve capture.
func (u *UI) HandleKeys() {
	if u.restore == nil {
		return
	}
	for _, k := range readPendingKeys(u.inFD) {
		u.handleKey(k)
	}
}

func (u *UI) handleKey(k byte) {
	switch k {
	case 'q', 3: // ctrl-c arrives as a byte in raw mode
		u.quit()
	case 's':
		u.sortBySent = true
	case 'r':
		u.sortBySent = false
	case 'm':
		u.viewMode = nextViewMode(u.viewMode)
	case 'l':
		u.showCmdline = !u.showCmdline
	}
}

func nextViewMode(mode string) string {
	for i, m := range viewModes {
		if m == mode {
			return viewModes[(i+1)%len(viewModes)]
		}
	}
	return config.ViewRate
}

// Render draws the refresh result. Interactive mode repaints the
// screen; trace mode appends plain lines suitable for piping.
func (u *UI) Render(rows []flow.Row, snap stats.Snapshot) {
	if u.trace {
		u.renderTrace(rows)
		return
	}
	u.renderScreen(rows, snap)
}

func (u *UI) renderTrace(rows []flow.Row) {
	fmt.Fprintln(u.out, "Refreshing:")
	for _, r := range rows {
		fmt.Fprintf(u.out, "%s/%d\t%s\t%s\n",
			r.Name, r.PID, formatValue(r, u.viewMode, true), formatValue(r, u.viewMode, false))
	}
}

func (u *UI) renderScreen(rows []flow.Row, snap stats.Snapshot) {
	var b strings.Builder

	// Home the cursor and clear so each refresh fully replaces the
	// last frame.
	b.WriteString("\x1b[H\x1b[2J")
	fmt.Fprintf(&b, "procband  %s  sort=%s  view=%s\r\n",
		snap.Uptime.Round(time.Second), sortName(u.sortBySent), u.viewMode)
	fmt.Fprintf(&b, "%7s  %-32s %14s %14s\r\n", "PID", "PROGRAM", "SENT", "RECEIVED")

	var totalSent, totalRecv float64
	for _, r := range rows {
		name := r.Name
		if u.showCmdline && r.Cmdline != "" {
			name = r.Cmdline
		}
		if len(name) > 32 {
			name = name[:32]
		}
		fmt.Fprintf(&b, "%7d  %-32s %14s %14s\r\n",
			r.PID, name, formatValue(r, u.viewMode, true), formatValue(r, u.viewMode, false))
		totalSent += numericValue(r, u.viewMode, true)
		totalRecv += numericValue(r, u.viewMode, false)
	}

	fmt.Fprintf(&b, "\r\n%7s  %-32s %14s %14s\r\n", "", "TOTAL",
		formatFloat(totalSent, u.viewMode), formatFloat(totalRecv, u.viewMode))
	fmt.Fprintf(&b, "%s\r\n", snap)
	fmt.Fprint(&b, "q:quit  s:sort sent  r:sort received  m:view mode  l:cmdline\r\n")

	io.WriteString(u.out, b.String())
}

func sortName(bySent bool) string {
	if bySent {
		return "sent"
	}
	return "received"
}

// numericValue returns the magnitude displayed for the row in the
// given mode, used for the totals line.
func numericValue(r flow.Row, mode string, sent bool) float64 {
	rate, total := r.RecvRate, r.Recv
	if sent {
		rate, total = r.SentRate, r.Sent
	}
	switch mode {
	case config.ViewTotalKB:
		return float64(total) / 1024
	case config.ViewTotalB:
		return float64(total)
	case config.ViewTotalMB:
		return float64(total) / (1024 * 1024)
	default:
		return rate
	}
}

func formatValue(r flow.Row, mode string, sent bool) string {
	return formatFloat(numericValue(r, mode, sent), mode)
}

func formatFloat(v float64, mode string) string {
	switch mode {
	case config.ViewTotalKB:
		return fmt.Sprintf("%.3f KB", v)
	case config.ViewTotalB:
		return fmt.Sprintf("%.0f B", v)
	case config.ViewTotalMB:
		return fmt.Sprintf("%.3f MB", v)
	default:
		return fmt.Sprintf("%.3f KB/s", v)
	}
}
