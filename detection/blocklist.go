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

package detection

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBlocklist returns USB bridges that must never be probed. A probe
// writes register reads to the port, which some devices misinterpret.
// Entries are VID:PID in hexadecimal; a PID of * matches the whole vendor.
func DefaultBlocklist() []string {
	return []string{
		"2341:*",    // Arduino SA boards: opening the port resets them
		"2a03:*",    // Arduino.org boards
		"1546:01a7", // u-blox GPS receivers
		"1546:01a8",
	}
}

// USBID is a vendor and product ID pair. Any matches every product of the
// vendor.
type USBID struct {
	VID uint16
	PID uint16
	Any bool
}

// ParseUSBID parses "vvvv:pppp" or "vvvv:*". Case and surrounding space
// are ignored.
func ParseUSBID(s string) (USBID, error) {
	vid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return USBID{}, fmt.Errorf("invalid USB ID %q: want VID:PID", s)
	}
	v, err := strconv.ParseUint(vid, 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid vendor ID in %q: %w", s, err)
	}
	id := USBID{VID: uint16(v)}
	if pid == "*" {
		id.Any = true
		return id, nil
	}
	p, err := strconv.ParseUint(pid, 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid product ID in %q: %w", s, err)
	}
	id.PID = uint16(p)
	return id, nil
}

// Matches reports whether other falls under id.
func (id USBID) Matches(other USBID) bool {
	return id.VID == other.VID && (id.Any || id.PID == other.PID)
}

func (id USBID) String() string {
	if id.Any {
		return fmt.Sprintf("%04X:*", id.VID)
	}
	return fmt.Sprintf("%04X:%04X", id.VID, id.PID)
}

// IsBlocked reports whether the device vidpid falls under any blocklist
// entry. Unparseable entries are skipped and an unparseable vidpid is
// never blocked.
func IsBlocked(vidpid string, blocklist []string) bool {
	device, err := ParseUSBID(vidpid)
	if err != nil || device.Any {
		return false
	}
	for _, entry := range blocklist {
		blocked, err := ParseUSBID(entry)
		if err != nil {
			continue
		}
		if blocked.Matches(device) {
			return true
		}
	}
	return false
}

// IsPathIgnored reports whether devicePath matches one of ignorePaths.
// Entries may be shell patterns such as /dev/ttyACM*. Both sides are
// cleaned and compared without case so COM ports match on Windows.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, pattern := range ignorePaths {
		if pattern == "" {
			continue
		}
		pattern = normalizedPath(pattern)
		if pattern == device {
			return true
		}
		if ok, err := filepath.Match(pattern, device); err == nil && ok {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
