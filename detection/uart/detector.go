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

// Package uart registers the serial port detector. Importing it for side
// effects is enough to make detection.DetectAll consider serial ports.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/detection/internal/probe"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const probeTimeout = 2 * time.Second

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
}

// detector implements the Detector interface for UART devices.
type detector struct {
	ports func() ([]serialPort, error)
	open  func(path string) (mfrc522.Transport, error)
}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{
		ports: listPorts,
		open: func(path string) (mfrc522.Transport, error) {
			return uart.New(path)
		},
	}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// listPorts enumerates ports with USB metadata where the platform provides
// it, and falls back to bare names.
func listPorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]serialPort, 0, len(details))
		for _, d := range details {
			p := serialPort{Path: d.Name, Product: d.Product, SerialNumber: d.SerialNumber}
			if d.IsUSB {
				p.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
			}
			ports = append(ports, p)
		}
		return ports, nil
	}
	mfrc522.Debugf("detailed port list unavailable: %v", err)

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]serialPort, 0, len(names))
	for _, name := range names {
		ports = append(ports, serialPort{Path: name})
	}
	return ports, nil
}

// Detect searches for readers on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.ports()
	if err != nil {
		return nil, err
	}

	filtered := filterPorts(ports, opts)
	var devices []detection.DeviceInfo
	for i := range filtered {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if device, ok := d.processPort(ctx, &filtered[i], opts.Mode); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts drops blocked and ignored ports in place.
func filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	kept := ports[:0]
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		kept = append(kept, port)
	}
	return kept
}

// processPort handles a single port. Passive mode lists only ports that look
// like USB-serial bridges; the other modes list only ports whose probe
// found a chip.
func (d *detector) processPort(ctx context.Context, port *serialPort, mode detection.Mode) (detection.DeviceInfo, bool) {
	device := createDeviceInfo(port)

	if mode == detection.Passive {
		if !isLikelyBridge(port) {
			return device, false
		}
		device.Confidence = detection.Medium
		return device, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	res, err := probe.Run(probeCtx, func() (mfrc522.Transport, error) {
		return d.open(port.Path)
	}, mode)
	if err != nil {
		mfrc522.Debugf("UART probe %s: %v", port.Path, err)
		return device, false
	}
	res.Apply(&device)
	return device, true
}

// createDeviceInfo builds a DeviceInfo struct from port data
func createDeviceInfo(port *serialPort) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Path,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if port.Product != "" {
		device.Name = port.Product
		device.Metadata[detection.MetaProduct] = port.Product
	}
	if port.VIDPID != "" {
		device.Metadata[detection.MetaVIDPID] = port.VIDPID
	}
	if port.SerialNumber != "" {
		device.Metadata[detection.MetaSerial] = port.SerialNumber
	}
	return device
}

// knownBridges are USB-serial chips found on reader breakout adapters.
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232R
	"0403:6015", // FTDI FT231X
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"1A86:55D4", // QinHeng CH9102
}

// isLikelyBridge checks the VID:PID and product string.
func isLikelyBridge(port *serialPort) bool {
	vidpid := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if vidpid == known {
			return true
		}
	}

	product := strings.ToLower(port.Product)
	for _, keyword := range []string{"mfrc522", "rc522", "rfid", "13.56"} {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}
