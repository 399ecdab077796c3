// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build linux

package privilege

import (
	"os"
	"testing"
)

func TestHasCaptureCaps(t *testing.T) {
	tests := []struct {
		name      string
		permitted uint32
		want      bool
	}{
		{"none", 0, false},
		{"raw only", 1 << capNetRaw, false},
		{"admin only", 1 << capNetAdmin, false},
		{"both", 1<<capNetRaw | 1<<capNetAdmin, true},
		{"both plus extras", 0xffffffff, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasCaptureCaps(tt.permitted); got != tt.want {
				t.Errorf("hasCaptureCaps(%#x) = %v, want %v", tt.permitted, got, tt.want)
			}
		})
	}
}

func TestCheckAsRoot(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	if err := Check(); err != nil {
		t.Errorf("Check as root: %v", err)
	}
}
