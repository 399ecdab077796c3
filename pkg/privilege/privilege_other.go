// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build !linux

package privilege

import (
	"errors"
	"os"
)

func check() error {
	if os.Geteuid() == 0 {
		return nil
	}
	return errors.New("insufficient privileges to capture packets: run as root")
}
