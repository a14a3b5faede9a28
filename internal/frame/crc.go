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

// Package frame holds host-side ISO/IEC 14443-A framing helpers: CRC_A,
// the UID check byte and the MIFARE acknowledge nibble.
package frame

// CRCAPreset is the initial register value of CRC_A (ModeReg CRCPreset 01).
const CRCAPreset uint16 = 0x6363

// CRCA computes the ISO/IEC 14443-A CRC of data and returns it in wire order,
// low byte first.
func CRCA(data []byte) [2]byte {
	crc := CRCAPreset
	for _, b := range data {
		bt := b ^ byte(crc)
		bt ^= bt << 4
		crc = crc>>8 ^ uint16(bt)<<8 ^ uint16(bt)<<3 ^ uint16(bt)>>4
	}
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// AppendCRCA returns data with its CRC_A appended.
func AppendCRCA(data []byte) []byte {
	crc := CRCA(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, crc[0], crc[1])
}

// CheckCRCA reports whether the last two bytes of frame are the CRC_A of the
// bytes before them.
func CheckCRCA(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	n := len(frame) - 2
	crc := CRCA(frame[:n])
	return crc[0] == frame[n] && crc[1] == frame[n+1]
}
