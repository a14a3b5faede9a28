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

// Card identities used across the test suites.
var (
	// TestUID is the card from the discovery scenarios: 12 34 56 78, BCC 08.
	TestUID = [4]byte{0x12, 0x34, 0x56, 0x78}
	// OtherUID is a second card for collision and card-change tests.
	OtherUID = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	// WrongKey is a key no virtual card is provisioned with.
	WrongKey = [6]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	// FactoryKey is the transport key every virtual card starts with.
	FactoryKey = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

// TestBlock returns a recognisable 16-byte pattern seeded by b.
func TestBlock(b byte) [16]byte {
	var block [16]byte
	for i := range block {
		block[i] = b + byte(i)
	}
	return block
}
