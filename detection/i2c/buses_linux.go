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

//go:build linux

package i2c

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// listBuses returns the /dev/i2c-N nodes this process can open read-write.
func listBuses() ([]string, error) {
	matches, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to list I2C buses: %w", err)
	}
	return accessible(matches, unix.Access), nil
}

func accessible(paths []string, access func(string, uint32) error) []string {
	var buses []string
	for _, path := range paths {
		if err := access(path, unix.R_OK|unix.W_OK); err != nil {
			continue
		}
		buses = append(buses, path)
	}
	return buses
}
