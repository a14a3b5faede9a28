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

package uart

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	virt "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPorts() []serialPort {
	return []serialPort{
		{Path: "/dev/ttyUSB0", VIDPID: "1A86:7523", Product: "USB Serial"},
		{Path: "/dev/ttyUSB1", VIDPID: "AAAA:BBBB", Product: "GPS receiver"},
		{Path: "/dev/ttyACM0", Product: "RC522 bridge"},
		{Path: "/dev/ttyS0"},
	}
}

func newTestDetector(chips map[string]*virt.VirtualMFRC522) *detector {
	return &detector{
		ports: func() ([]serialPort, error) { return testPorts(), nil },
		open: func(path string) (mfrc522.Transport, error) {
			sim, ok := chips[path]
			if !ok {
				return nil, errors.New("read timeout")
			}
			return virt.NewSimulatorTransport(sim), nil
		},
	}
}

func TestIsLikelyBridge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port serialPort
		name string
		want bool
	}{
		{name: "ch340", port: serialPort{VIDPID: "1a86:7523"}, want: true},
		{name: "cp210x", port: serialPort{VIDPID: "10C4:EA60"}, want: true},
		{name: "product keyword", port: serialPort{Product: "MFRC522 UART"}, want: true},
		{name: "unknown", port: serialPort{VIDPID: "1234:5678", Product: "Modem"}, want: false},
		{name: "bare", port: serialPort{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isLikelyBridge(&tt.port))
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chips     map[string]*virt.VirtualMFRC522
		name      string
		blocklist []string
		ignore    []string
		want      []string
		mode      detection.Mode
	}{
		{
			name: "passive lists likely bridges",
			mode: detection.Passive,
			want: []string{"/dev/ttyUSB0", "/dev/ttyACM0"},
		},
		{
			name:      "passive honours the blocklist",
			mode:      detection.Passive,
			blocklist: []string{"1A86:7523"},
			want:      []string{"/dev/ttyACM0"},
		},
		{
			name:  "safe keeps only answering chips",
			mode:  detection.Safe,
			chips: map[string]*virt.VirtualMFRC522{"/dev/ttyS0": virt.NewVirtualMFRC522()},
			want:  []string{"/dev/ttyS0"},
		},
		{
			name:   "ignored ports are never opened",
			mode:   detection.Safe,
			chips:  map[string]*virt.VirtualMFRC522{"/dev/ttyS0": virt.NewVirtualMFRC522()},
			ignore: []string{"/dev/ttyS0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newTestDetector(tt.chips)
			devices, err := d.Detect(context.Background(), &detection.Options{
				Mode: tt.mode, Blocklist: tt.blocklist, IgnorePaths: tt.ignore,
			})
			if len(tt.want) == 0 {
				require.ErrorIs(t, err, detection.ErrNoDevicesFound)
				return
			}
			require.NoError(t, err)

			var got []string
			for _, dev := range devices {
				got = append(got, dev.Path)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessPort_SafeModeFailedProbeDiscardsLikelyDevice(t *testing.T) {
	t.Parallel()

	// A CH340 that does not answer must not be reported; otherwise it hides
	// a real reader that enumerates later.
	d := newTestDetector(nil)
	port := &serialPort{Path: "/dev/ttyUSB0", VIDPID: "1A86:7523"}

	_, included := d.processPort(context.Background(), port, detection.Safe)
	assert.False(t, included)
}

func TestProcessPort_SuccessfulProbeCarriesMetadata(t *testing.T) {
	t.Parallel()

	d := newTestDetector(map[string]*virt.VirtualMFRC522{"/dev/ttyUSB0": virt.NewVirtualMFRC522()})
	port := &serialPort{Path: "/dev/ttyUSB0", VIDPID: "1A86:7523", Product: "USB Serial", SerialNumber: "A1"}

	device, included := d.processPort(context.Background(), port, detection.Safe)
	require.True(t, included)
	assert.Equal(t, detection.High, device.Confidence)
	assert.Equal(t, "1A86:7523", device.Metadata[detection.MetaVIDPID])
	assert.Equal(t, "A1", device.Metadata[detection.MetaSerial])
	assert.Equal(t, "MFRC522 v2.0", device.Metadata[detection.MetaVersion])
	assert.Equal(t, "USB Serial", device.Name)
}

func TestDetect_EnumerationError(t *testing.T) {
	t.Parallel()

	enumErr := errors.New("permission denied")
	d := &detector{ports: func() ([]serialPort, error) { return nil, enumErr }}
	_, err := d.Detect(context.Background(), &detection.Options{})
	require.ErrorIs(t, err, enumErr)
}
