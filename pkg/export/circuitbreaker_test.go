// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package export

import (
	"testing"
	"time"
)

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	if !cb.Allow() {
		t.Fatal("fresh breaker should allow")
	}
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitClosed {
		t.Errorf("state after 2 failures = %s, want closed", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("state after 3 failures = %s, want open", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker allowed a request")
	}
}

func TestCircuitHalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("open breaker allowed a request")
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker did not half-open after reset timeout")
	}

	// A failure during the probe snaps back to open.
	cb.RecordFailure()
	if cb.Allow() {
		t.Error("breaker allowed after failed probe")
	}
}

func TestCircuitClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker did not half-open")
	}
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("state after success = %s, want closed", cb.State())
	}
}
