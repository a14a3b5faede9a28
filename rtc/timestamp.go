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

package rtc

import (
	"fmt"
	"time"
)

// YearBase is the calendar year stored as 0 in the year register.
const YearBase = 1952

// HourMode is the hour register format.
type HourMode int

const (
	Hour24 HourMode = iota
	HourAM
	HourPM
)

func (m HourMode) String() string {
	switch m {
	case HourAM:
		return "AM"
	case HourPM:
		return "PM"
	default:
		return "24h"
	}
}

// Timestamp is one reading of the clock. Weekday runs 1 (Sunday) to 7.
// Year is the offset from YearBase. Hour is 0-23 in Hour24 mode and 1-12
// otherwise.
type Timestamp struct {
	Weekday uint8
	Day     uint8
	Month   uint8
	Year    uint8
	Hour    uint8
	Minute  uint8
	Second  uint8
	Mode    HourMode
}

// FromTime converts t to a 24-hour Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp{
		Weekday: uint8(t.Weekday()) + 1,
		Day:     uint8(t.Day()),
		Month:   uint8(t.Month()),
		Year:    uint8(t.Year() - YearBase),
		Hour:    uint8(t.Hour()),
		Minute:  uint8(t.Minute()),
		Second:  uint8(t.Second()),
	}
}

// TimestampFromBytes is the inverse of Bytes. The hour is taken as 24-hour.
func TimestampFromBytes(b [7]byte) Timestamp {
	return Timestamp{
		Weekday: b[0],
		Day:     b[1],
		Month:   b[2],
		Year:    b[3],
		Hour:    b[4],
		Minute:  b[5],
		Second:  b[6],
	}
}

// Bytes returns weekday, day, month, year offset, hour, minute, second.
// This is the layout stamped onto cards.
func (t Timestamp) Bytes() [7]byte {
	return [7]byte{t.Weekday, t.Day, t.Month, t.Year, t.Hour24(), t.Minute, t.Second}
}

// Hour24 returns the hour on a 0-23 scale regardless of Mode.
func (t Timestamp) Hour24() uint8 {
	return to24(t.Hour, t.Mode)
}

// Time returns t as a time.Time in loc.
func (t Timestamp) Time(loc *time.Location) time.Time {
	return time.Date(YearBase+int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour24()), int(t.Minute), int(t.Second), 0, loc)
}

// Validate checks every field against the DS1307's ranges.
func (t Timestamp) Validate() error {
	check := func(name string, v, lo, hi uint8) error {
		if v < lo || v > hi {
			return fmt.Errorf("%w: %s %d outside %d-%d", ErrInvalidTimestamp, name, v, lo, hi)
		}
		return nil
	}
	hourLo, hourHi := uint8(0), uint8(23)
	if t.Mode != Hour24 {
		hourLo, hourHi = 1, 12
	}
	for _, err := range []error{
		check("weekday", t.Weekday, 1, 7),
		check("day", t.Day, 1, 31),
		check("month", t.Month, 1, 12),
		check("year", t.Year, 0, 99),
		check("hour", t.Hour, hourLo, hourHi),
		check("minute", t.Minute, 0, 59),
		check("second", t.Second, 0, 59),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (t Timestamp) String() string {
	s := fmt.Sprintf("%02d/%02d/%04d %02d:%02d:%02d",
		t.Day, t.Month, YearBase+int(t.Year), t.Hour, t.Minute, t.Second)
	if t.Mode != Hour24 {
		s += " " + t.Mode.String()
	}
	return s
}

func to24(hour uint8, mode HourMode) uint8 {
	switch mode {
	case HourAM:
		if hour == 12 {
			return 0
		}
	case HourPM:
		if hour != 12 {
			return hour + 12
		}
	case Hour24:
	}
	return hour
}

func to12(h24 uint8) uint8 {
	if h := h24 % 12; h != 0 {
		return h
	}
	return 12
}
