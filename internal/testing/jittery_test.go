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
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, j *JitteryConnection, want int) []byte {
	t.Helper()
	out := make([]byte, 0, want)
	buf := make([]byte, 64)
	for attempts := 0; len(out) < want; attempts++ {
		require.Less(t, attempts, 1000, "connection stopped delivering")
		n, err := j.Read(buf)
		require.NoError(t, err)
		out = append(out, buf[:n]...)
	}
	return out
}

func TestJitteryConnection_PreservesOrder(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	for i := range 32 {
		sim.WriteRegister(mfrc522.FIFODataReg, byte(i))
	}

	j := NewJitteryConnection(NewUARTWire(sim), JitterConfig{
		FragmentReads: true,
		EmptyReads:    true,
		Seed:          42,
	})

	reads := make([]byte, 32)
	for i := range reads {
		reads[i] = 0x80 | byte(mfrc522.FIFODataReg)
	}
	_, err := j.Write(reads)
	require.NoError(t, err)

	got := readAll(t, j, 32)
	for i, b := range got {
		assert.Equal(t, byte(i), b)
	}
}

func TestJitteryConnection_Latency(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	j := NewJitteryConnection(NewUARTWire(sim), JitterConfig{
		MaxLatency: 5 * time.Millisecond,
		Seed:       7,
	})

	_, err := j.Write([]byte{0x80 | byte(mfrc522.VersionReg)})
	require.NoError(t, err)

	start := time.Now()
	got := readAll(t, j, 1)
	assert.Equal(t, byte(mfrc522.VersionV2), got[0])
	assert.Less(t, time.Since(start), time.Second)
}
