// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package probe identifies an MFRC522 behind an opened transport. It is
// shared by the bus detectors.
package probe

import (
	"context"
	"errors"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
)

// ErrNoChip means the bus answered with a floating-line value.
var ErrNoChip = errors.New("no chip answered")

// Result is what a probe learned about one device.
type Result struct {
	Version    mfrc522.Version
	Confidence detection.Confidence
	SelfTest   bool
}

// Apply copies r into the device's confidence and metadata.
func (r Result) Apply(device *detection.DeviceInfo) {
	device.Confidence = r.Confidence
	if device.Metadata == nil {
		device.Metadata = make(map[string]string)
	}
	device.Metadata[detection.MetaVersion] = r.Version.String()
	if r.SelfTest {
		device.Metadata[detection.MetaSelfTest] = "passed"
	}
}

// Opener opens the transport for one candidate path.
type Opener func() (mfrc522.Transport, error)

// Run opens the device once and classifies it. Passive never opens anything
// and returns Low. The transport is always closed before Run returns.
//
// Detection probes are single attempts: hammering a port that turned out to
// be some other device is worse than missing a reader that can be connected
// by path.
func Run(ctx context.Context, open Opener, mode detection.Mode) (Result, error) {
	if mode == detection.Passive {
		return Result{Confidence: detection.Low}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	transport, err := open()
	if err != nil {
		return Result{}, err
	}
	device, err := mfrc522.New(transport)
	if err != nil {
		_ = transport.Close()
		return Result{}, err
	}
	defer func() { _ = device.Close() }()

	return Classify(ctx, device, mode)
}

// Classify reads VersionReg and, in Full mode, runs the self test.
func Classify(ctx context.Context, device *mfrc522.Device, mode detection.Mode) (Result, error) {
	version, err := device.Version()
	if err != nil {
		return Result{}, err
	}
	if version == 0x00 || version == 0xFF {
		return Result{}, ErrNoChip
	}

	res := Result{Version: version, Confidence: detection.Medium}
	if version.Known() {
		res.Confidence = detection.High
	}
	if mode != detection.Full {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := device.Initialize(); err != nil {
		res.Confidence = detection.Medium
		mfrc522.Debugf("probe: initialize failed: %v", err)
		return res, nil
	}
	ok, err := device.SelfTest()
	if err != nil || !ok {
		// Clones fail the self test but still work as readers.
		res.Confidence = detection.Medium
		return res, nil
	}
	res.SelfTest = true
	res.Confidence = detection.High
	return res, nil
}
