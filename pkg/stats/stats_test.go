// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package stats

import (
	"strings"
	"testing"
)

func TestSnapshotCopiesCounters(t *testing.T) {
	s := New()
	s.PacketsDispatched.Add(42)
	s.DispatchErrors.Add(3)
	s.Refreshes.Add(7)

	snap := s.Snapshot()
	if snap.PacketsDispatched != 42 {
		t.Errorf("PacketsDispatched = %d, want 42", snap.PacketsDispatched)
	}
	if snap.DispatchErrors != 3 {
		t.Errorf("DispatchErrors = %d, want 3", snap.DispatchErrors)
	}
	if snap.Refreshes != 7 {
		t.Errorf("Refreshes = %d, want 7", snap.Refreshes)
	}

	// Snapshot is a copy, not a view.
	s.PacketsDispatched.Add(1)
	if snap.PacketsDispatched != 42 {
		t.Error("snapshot changed after counter update")
	}
}

func TestSnapshotString(t *testing.T) {
	s := New()
	s.PacketsDispatched.Add(10)
	line := s.Snapshot().String()
	if !strings.Contains(line, "pkts=10") {
		t.Errorf("status line missing packet count: %q", line)
	}
}
