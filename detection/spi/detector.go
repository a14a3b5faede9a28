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

// Package spi registers the SPI detector. Importing it for side effects is
// enough to make detection.DetectAll consider SPI.
package spi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/detection/internal/probe"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
	"periph.io/x/conn/v3/physic"
)

// EnvDevices lists extra SPI device paths, comma separated.
const EnvDevices = "MFRC522_SPI_DEVICES"

const probeTimeout = 2 * time.Second

// Config represents SPI device configuration
type Config struct {
	// Additional metadata
	Metadata map[string]string `json:"metadata,omitempty"`
	// Device path (e.g., "/dev/spidev0.0")
	Device string `json:"device"`
	// Human-readable name
	Name string `json:"name,omitempty"`
	// SpeedHz overrides the default clock when probing.
	SpeedHz int64 `json:"speed_hz,omitempty"`
}

// detector implements the Detector interface for SPI devices
type detector struct {
	sources func() []Config
	open    func(Config) (mfrc522.Transport, error)
}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{sources: gatherConfigs, open: openConfig}
}

func openConfig(config Config) (mfrc522.Transport, error) {
	var opts []spi.Option
	if config.SpeedHz > 0 {
		opts = append(opts, spi.WithSpeed(physic.Frequency(config.SpeedHz)*physic.Hertz))
	}
	return spi.New(config.Device, opts...)
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// gatherConfigs collects SPI configurations from all sources
func gatherConfigs() []Config {
	var configs []Config
	configs = append(configs, loadConfigFile(configPaths())...)
	configs = append(configs, loadEnvConfig(os.Getenv(EnvDevices))...)
	if runtime.GOOS == "linux" {
		configs = append(configs, globDevices("/dev/spidev*")...)
	}
	return deduplicateConfigs(configs)
}

func configPaths() []string {
	paths := []string{"mfrc522-spi.json", ".mfrc522-spi.json"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mfrc522", "spi.json"))
	}
	return append(paths, "/etc/mfrc522/spi.json")
}

// Detect searches for readers on SPI ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	configs := d.sources()
	if len(configs) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, config := range configs {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(config.Device, opts.IgnorePaths) {
			continue
		}

		device := createDeviceInfo(config)
		if d.probe(ctx, config, &device, opts.Mode) {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// probe updates device from a probe. A silent SPI port still counts in
// Passive mode since nothing was sent.
func (d *detector) probe(ctx context.Context, config Config, device *detection.DeviceInfo, mode detection.Mode) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	res, err := probe.Run(probeCtx, func() (mfrc522.Transport, error) {
		return d.open(config)
	}, mode)
	if err != nil {
		mfrc522.Debugf("SPI probe %s: %v", config.Device, err)
		return false
	}
	if mode != detection.Passive {
		res.Apply(device)
	}
	return true
}

// createDeviceInfo creates a DeviceInfo from a Config
func createDeviceInfo(config Config) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "spi",
		Path:       config.Device,
		Name:       config.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string, len(config.Metadata)),
	}
	for k, v := range config.Metadata {
		device.Metadata[k] = v
	}
	if device.Name == "" {
		device.Name = "SPI device at " + config.Device
	}
	return device
}

// loadConfigFile returns the entries of the first readable config file. A
// file holds either one object or a list of them.
func loadConfigFile(paths []string) []Config {
	for _, path := range paths {
		// #nosec G304 -- paths are fixed locations, not user input
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var configs []Config
		if err := json.Unmarshal(data, &configs); err == nil {
			return configs
		}
		var config Config
		if err := json.Unmarshal(data, &config); err == nil && config.Device != "" {
			return []Config{config}
		}
		mfrc522.Debugf("ignoring malformed SPI config %s", path)
	}
	return nil
}

// loadEnvConfig parses the comma separated device list.
func loadEnvConfig(value string) []Config {
	var configs []Config
	for _, dev := range strings.Split(value, ",") {
		dev = strings.TrimSpace(dev)
		if dev == "" {
			continue
		}
		configs = append(configs, Config{
			Device: dev,
			Name:   fmt.Sprintf("SPI device %s (%s)", filepath.Base(dev), EnvDevices),
		})
	}
	return configs
}

// globDevices lists accessible device nodes matching pattern.
func globDevices(pattern string) []Config {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	var configs []Config
	for _, path := range matches {
		if _, err := os.Stat(path); err == nil {
			configs = append(configs, Config{
				Device: path,
				Name:   "SPI device " + filepath.Base(path),
			})
		}
	}
	return configs
}

// deduplicateConfigs removes duplicate SPI configurations
func deduplicateConfigs(configs []Config) []Config {
	seen := make(map[string]bool)
	var unique []Config

	for _, config := range configs {
		if !seen[config.Device] {
			seen[config.Device] = true
			unique = append(unique, config)
		}
	}
	return unique
}
