// Copyright 2025-2026 The procband Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

//go:build !linux

package capture

import "errors"

func openLive(dev string, opts Options, h Handlers) (Session, error) {
	return nil, errors.New("live capture requires linux")
}
