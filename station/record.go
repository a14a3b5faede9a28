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

package station

import (
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/rtc"
)

// stampSize is the length of one timestamp on the card.
const stampSize = 7

// Record is a card's data area together with its UID.
type Record struct {
	Data []byte
	UID  mfrc522.UID
}

// Marker is the byte an unstamped position holds.
func (r Record) Marker() byte {
	return r.UID[0]
}

// Free returns the number of timestamps that still fit.
func (r Record) Free() int {
	n := 0
	for _, b := range r.Data {
		if b == r.Marker() {
			n++
		}
	}
	return n / stampSize
}

// Stamps decodes the timestamps on the card in the order they were written.
// Stamps are packed from the start of the data area; a stamp whose trailing
// bytes happen to equal the marker is still returned whole.
func (r Record) Stamps() []rtc.Timestamp {
	used := 0
	for i, b := range r.Data {
		if b != r.Marker() {
			used = i + 1
		}
	}
	groups := (used + stampSize - 1) / stampSize

	stamps := make([]rtc.Timestamp, 0, groups)
	for g := range groups {
		off := g * stampSize
		if off+stampSize > len(r.Data) {
			break
		}
		var raw [stampSize]byte
		copy(raw[:], r.Data[off:])
		stamps = append(stamps, rtc.TimestampFromBytes(raw))
	}
	return stamps
}

func (r Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "card %s", r.UID)
	stamps := r.Stamps()
	if len(stamps) == 0 {
		sb.WriteString(": no stamps")
		return sb.String()
	}
	for i, ts := range stamps {
		fmt.Fprintf(&sb, "\n  %d: %s", i+1, ts)
	}
	return sb.String()
}
