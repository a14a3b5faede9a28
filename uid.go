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

package mfrc522

import (
	"fmt"
	"strings"
)

// UID is a cascade level 1 card identifier: four identity bytes followed by
// the block check character (XOR of the four).
type UID [5]byte

// NewUID builds a UID with the correct BCC for id.
func NewUID(id [4]byte) UID {
	return UID{id[0], id[1], id[2], id[3], BCC(id)}
}

// BCC returns the XOR of the identity bytes.
func BCC(id [4]byte) byte {
	return id[0] ^ id[1] ^ id[2] ^ id[3]
}

// Identity returns the four identity bytes.
func (u UID) Identity() [4]byte {
	return [4]byte{u[0], u[1], u[2], u[3]}
}

// BCC returns the stored check byte.
func (u UID) BCC() byte {
	return u[4]
}

// Valid reports whether the stored BCC matches the identity bytes.
func (u UID) Valid() bool {
	return u[4] == BCC(u.Identity())
}

// Equal reports whether the identity bytes equal id. The BCC is ignored.
func (u UID) Equal(id [4]byte) bool {
	return u.Identity() == id
}

// IsZero reports whether the UID is all zeros.
func (u UID) IsZero() bool {
	return u == UID{}
}

// String returns the identity bytes as colon-separated hex, e.g. "12:34:56:78".
func (u UID) String() string {
	parts := make([]string, 4)
	for i := range 4 {
		parts[i] = fmt.Sprintf("%02X", u[i])
	}
	return strings.Join(parts, ":")
}

// CheckBCC reports whether uid's fifth byte is the XOR of the first four.
func CheckBCC(uid UID) bool {
	return uid.Valid()
}

// IsUIDEqual compares the identity bytes of a card UID against id.
func IsUIDEqual(uid UID, id [4]byte) bool {
	return uid.Equal(id)
}

// SectorKey is the 6-byte secret presented to MFAuthent. It is opaque to the driver.
type SectorKey [6]byte

// DefaultKey is the factory transport key of MIFARE Classic cards.
var DefaultKey = SectorKey{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String hides the key material.
func (SectorKey) String() string {
	return "SectorKey(******)"
}

// BlockSize is the size of a MIFARE Classic data block.
const BlockSize = 16

// Block is one MIFARE Classic data block.
type Block [BlockSize]byte

// Buffer is a length-bounded view of FIFO-sized data. It never holds more
// than FIFOSize bytes.
type Buffer struct {
	data [FIFOSize]byte
	n    int
}

// NewBuffer copies up to FIFOSize bytes of data. The second result reports
// whether data had to be truncated.
func NewBuffer(data []byte) (Buffer, bool) {
	var b Buffer
	b.n = copy(b.data[:], data)
	return b, b.n < len(data)
}

// Bytes returns the valid portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the fixed capacity.
func (*Buffer) Cap() int {
	return FIFOSize
}

// Fill sets every byte of the buffer to v and marks it full.
func (b *Buffer) Fill(v byte) {
	for i := range b.data {
		b.data[i] = v
	}
	b.n = FIFOSize
}
