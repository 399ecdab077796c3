// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package privilege verifies the process may open raw sockets before
// any capture resource is created.
package privilege

// Check returns nil when the process is privileged enough for packet
// capture: effective UID 0, or (on Linux) a binary carrying the
// cap_net_raw and cap_net_admin file capabilities. The error message is
// meant for the operator and explains how to grant access.
func Check() error {
	return check()
}
