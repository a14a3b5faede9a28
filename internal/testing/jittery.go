// go-mfrc522
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mfrc522.
//
// go-mfrc522 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mfrc522 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mfrc522; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig shapes how JitteryConnection delivers bytes.
type JitterConfig struct {
	MaxLatency    time.Duration
	Seed          uint64
	FragmentReads bool
	// EmptyReads makes every other read return 0 bytes, as a serial port
	// does when its inter-byte timeout fires early.
	EmptyReads bool
}

// JitteryConnection wraps a chip-side io.ReadWriter and delivers its output
// the way a USB-UART bridge does: late, in fragments, sometimes not at all on
// a given read. Writes pass through untouched.
type JitteryConnection struct {
	backend io.ReadWriter
	rng     *rand.Rand
	pending []byte
	config  JitterConfig
	reads   int
}

// NewJitteryConnection wraps backend. A zero Seed picks a random one.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5A5A5A5A)), //nolint:gosec // Test code, not crypto
	}
}

// Write passes data to the backend.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns some of the bytes the backend has produced.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	j.reads++
	if j.config.EmptyReads && j.reads%2 == 1 {
		return 0, nil
	}

	if len(j.pending) == 0 {
		tmp := make([]byte, 256)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		j.pending = append(j.pending, tmp[:n]...)
	}
	if len(j.pending) == 0 {
		return 0, nil
	}

	n := min(len(buf), len(j.pending))
	if j.config.FragmentReads && n > 1 {
		n = 1 + j.rng.IntN(n)
	}
	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	return n, nil
}
