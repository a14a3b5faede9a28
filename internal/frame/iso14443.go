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

package frame

// Short frame and acknowledge sizes in bits.
const (
	ShortFrameBits = 7
	AckBits        = 4
)

// MIFARE acknowledge nibble values.
const (
	Ack                byte = 0x0A
	NakInvalidArgument byte = 0x00
	NakCRCError        byte = 0x01
	NakNotAllowed      byte = 0x04
	NakTransferError   byte = 0x05
)

// BCC returns the block check character of a cascade level UID part.
func BCC(id []byte) byte {
	var bcc byte
	for _, b := range id {
		bcc ^= b
	}
	return bcc
}

// CheckBCC reports whether uid holds four identity bytes followed by their BCC.
func CheckBCC(uid []byte) bool {
	if len(uid) != 5 {
		return false
	}
	return BCC(uid[:4]) == uid[4]
}

// IsAck reports whether a 4-bit answer is the MIFARE ACK.
func IsAck(b byte) bool {
	return b&0x0F == Ack
}

// CollisionBit returns the 1-based position of the first bit where a and b
// differ, counting from the least significant bit of the first byte, or 0
// when they are equal over their common length.
func CollisionBit(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		diff := a[i] ^ b[i]
		if diff == 0 {
			continue
		}
		for bit := range 8 {
			if diff&(1<<bit) != 0 {
				return i*8 + bit + 1
			}
		}
	}
	return 0
}
