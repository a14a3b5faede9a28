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

import "sync"

// TransferSize covers the longest bus transfer: one address byte per FIFO
// byte plus a trailing byte.
const TransferSize = 72

var transferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, TransferSize)
		return &buf
	},
}

// GetBuffer returns a zeroed buffer of length size. Buffers up to
// TransferSize come from a shared pool; larger ones are allocated.
func GetBuffer(size int) []byte {
	if size > TransferSize {
		return make([]byte, size)
	}
	bufPtr, ok := transferPool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	buf := (*bufPtr)[:size]
	clear(buf)
	return buf
}

// PutBuffer returns a buffer obtained from GetBuffer to the pool.
func PutBuffer(buf []byte) {
	if cap(buf) != TransferSize {
		return
	}
	full := buf[:TransferSize]
	transferPool.Put(&full)
}
