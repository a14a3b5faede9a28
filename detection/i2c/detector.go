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

// Package i2c registers the I2C detector. Importing it for side effects is
// enough to make detection.DetectAll consider I2C buses.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/detection/internal/probe"
	"github.com/ZaparooProject/go-mfrc522/transport/i2c"
)

// The address pins select one of eight addresses starting at 0x28.
const (
	firstAddress uint16 = 0x28
	lastAddress  uint16 = 0x2F
)

const probeTimeout = time.Second

// detector implements the Detector interface for I2C devices
type detector struct {
	buses func() ([]string, error)
	open  func(path string) (mfrc522.Transport, error)
}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{
		buses: listBuses,
		open: func(path string) (mfrc522.Transport, error) {
			return i2c.New(path)
		},
	}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

// addresses returns the device addresses worth trying in mode. Only Full
// walks the whole range since other chips commonly sit near 0x28.
func addresses(mode detection.Mode) []uint16 {
	if mode != detection.Full {
		return []uint16{i2c.DefaultAddress}
	}
	addrs := make([]uint16, 0, lastAddress-firstAddress+1)
	for a := firstAddress; a <= lastAddress; a++ {
		addrs = append(addrs, a)
	}
	return addrs
}

// Path joins a bus and device address the way transport/i2c parses it.
func Path(bus string, addr uint16) string {
	return fmt.Sprintf("%s:0x%02X", bus, addr)
}

// Detect searches for readers on the accessible I2C buses
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := d.buses()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if detection.IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}
		for _, addr := range addresses(opts.Mode) {
			if ctx.Err() != nil {
				return devices, detection.ErrDetectionTimeout
			}
			path := Path(bus, addr)
			if detection.IsPathIgnored(path, opts.IgnorePaths) {
				continue
			}
			if device, ok := d.probe(ctx, bus, addr, opts.Mode); ok {
				devices = append(devices, device)
			}
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) probe(ctx context.Context, bus string, addr uint16, mode detection.Mode) (detection.DeviceInfo, bool) {
	path := Path(bus, addr)
	device := detection.DeviceInfo{
		Transport:  "i2c",
		Path:       path,
		Name:       fmt.Sprintf("I2C device 0x%02X on %s", addr, bus),
		Confidence: detection.Low,
		Metadata:   map[string]string{detection.MetaAddress: fmt.Sprintf("0x%02X", addr)},
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	res, err := probe.Run(probeCtx, func() (mfrc522.Transport, error) {
		return d.open(path)
	}, mode)
	if err != nil {
		if !errors.Is(err, probe.ErrNoChip) {
			mfrc522.Debugf("I2C probe %s: %v", path, err)
		}
		return device, false
	}
	if mode != detection.Passive {
		res.Apply(&device)
	}
	return device, true
}
