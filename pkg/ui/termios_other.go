// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build !linux

package ui

import "errors"

func enableRaw(fd int) (func(), error) {
	return nil, errors.New("raw terminal input not supported on this platform")
}

func readPendingKeys(fd int) []byte {
	return nil
}
