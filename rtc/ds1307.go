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

// Package rtc drives the DS1307 battery-backed real-time clock over I2C.
//
// The clock keeps seconds through years in BCD registers 0x00-0x06 and the
// SQW/OUT pin configuration in 0x07. Years are stored as an offset from
// YearBase so that the chip's every-fourth-year leap rule lines up.
package rtc

import (
	"errors"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// DefaultAddress is the fixed 7-bit bus address of the DS1307.
const DefaultAddress uint16 = 0x68

// Speed is the DS1307's maximum bus clock.
const Speed = 100 * physic.KiloHertz

// Register map.
const (
	regSeconds byte = 0x00
	regMinutes byte = 0x01
	regHours   byte = 0x02
	regWeekday byte = 0x03
	regDay     byte = 0x04
	regMonth   byte = 0x05
	regYear    byte = 0x06
	regControl byte = 0x07
)

const (
	bitClockHalt byte = 0x80 // seconds register
	bit12Hour    byte = 0x40 // hours register
	bitPM        byte = 0x20 // hours register in 12h mode
	bitOut       byte = 0x80 // control register
	bitSQWE      byte = 0x10 // control register
)

// SquareWaveRate selects the SQW/OUT frequency.
type SquareWaveRate byte

// Square-wave rates (RS1:RS0).
const (
	Rate1Hz SquareWaveRate = iota
	Rate4096Hz
	Rate8192Hz
	Rate32768Hz
)

var (
	// ErrInvalidTimestamp is returned when a field is out of range.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidRate is returned for a square-wave rate above Rate32768Hz.
	ErrInvalidRate = errors.New("invalid square-wave rate")
)

// Clock is anything that can produce the current timestamp.
type Clock interface {
	ReadTimestamp() (Timestamp, error)
}

// DS1307 is a DS1307 on an I2C bus. It is safe for concurrent use.
type DS1307 struct {
	conn   conn.Conn
	closer io.Closer
	mu     syncutil.Mutex
}

var _ Clock = (*DS1307)(nil)

// New returns a clock on bus at addr.
func New(bus i2c.Bus, addr uint16) *DS1307 {
	if err := bus.SetSpeed(Speed); err != nil {
		mfrc522.Debugf("DS1307: set bus speed: %v", err)
	}
	return &DS1307{conn: &i2c.Dev{Bus: bus, Addr: addr}}
}

// Open initializes periph and opens the named bus ("" for the first one).
func Open(busName string) (*DS1307, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}
	d := New(bus, DefaultAddress)
	d.closer = bus
	return d, nil
}

// Close releases the bus if Open acquired it.
func (d *DS1307) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

func (d *DS1307) read(reg byte, buf []byte) error {
	if err := d.conn.Tx([]byte{reg}, buf); err != nil {
		return fmt.Errorf("DS1307 read 0x%02X: %w", reg, err)
	}
	return nil
}

func (d *DS1307) write(reg byte, data ...byte) error {
	if err := d.conn.Tx(append([]byte{reg}, data...), nil); err != nil {
		return fmt.Errorf("DS1307 write 0x%02X: %w", reg, err)
	}
	return nil
}

// ReadTimestamp reads all seven time registers in one burst, so the fields
// are consistent even across a rollover.
func (d *DS1307) ReadTimestamp() (Timestamp, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var raw [7]byte
	if err := d.read(regSeconds, raw[:]); err != nil {
		return Timestamp{}, err
	}
	hour, mode := decodeHour(raw[regHours])
	return Timestamp{
		Second:  FromBCD(raw[regSeconds] &^ bitClockHalt),
		Minute:  FromBCD(raw[regMinutes]),
		Hour:    hour,
		Mode:    mode,
		Weekday: raw[regWeekday],
		Day:     FromBCD(raw[regDay]),
		Month:   FromBCD(raw[regMonth]),
		Year:    FromBCD(raw[regYear]),
	}, nil
}

// SetDateTime stops the oscillator, writes ts and starts the oscillator again.
func (d *DS1307) SetDateTime(ts Timestamp) error {
	if err := ts.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setHalt(true); err != nil {
		return err
	}
	err := d.write(regSeconds,
		ToBCD(ts.Second)|bitClockHalt,
		ToBCD(ts.Minute),
		encodeHour(ts.Hour, ts.Mode),
		ts.Weekday,
		ToBCD(ts.Day),
		ToBCD(ts.Month),
		ToBCD(ts.Year),
	)
	if err != nil {
		return err
	}
	mfrc522.Debugf("DS1307 set to %s", ts)
	return d.setHalt(false)
}

// StartOscillator clears the clock-halt bit, keeping the seconds count.
func (d *DS1307) StartOscillator() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setHalt(false)
}

// StopOscillator sets the clock-halt bit, keeping the seconds count.
func (d *DS1307) StopOscillator() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setHalt(true)
}

func (d *DS1307) setHalt(halt bool) error {
	var sec [1]byte
	if err := d.read(regSeconds, sec[:]); err != nil {
		return err
	}
	halted := sec[0]&bitClockHalt != 0
	if halted == halt {
		mfrc522.Debugf("DS1307 oscillator already in requested state (halted=%t)", halt)
		return nil
	}
	return d.write(regSeconds, sec[0]^bitClockHalt)
}

// OscillatorRunning reports whether the clock-halt bit is clear.
func (d *DS1307) OscillatorRunning() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sec [1]byte
	if err := d.read(regSeconds, sec[:]); err != nil {
		return false, err
	}
	return sec[0]&bitClockHalt == 0, nil
}

// SetControl configures the SQW/OUT pin. out is the pin level while the
// square wave is disabled.
func (d *DS1307) SetControl(out, squareWave bool, rate SquareWaveRate) error {
	if rate > Rate32768Hz {
		return fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}
	ctrl := byte(rate)
	if out {
		ctrl |= bitOut
	}
	if squareWave {
		ctrl |= bitSQWE
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(regControl, ctrl)
}

// Toggle12Hour switches between 24-hour and 12-hour mode, converting the
// stored hour so the time of day is unchanged. It returns the new mode.
func (d *DS1307) Toggle12Hour() (HourMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var raw [1]byte
	if err := d.read(regHours, raw[:]); err != nil {
		return 0, err
	}
	hour, mode := decodeHour(raw[0])
	h24 := to24(hour, mode)

	var next HourMode
	switch {
	case mode != Hour24:
		next, hour = Hour24, h24
	case h24 >= 12:
		next, hour = HourPM, to12(h24)
	default:
		next, hour = HourAM, to12(h24)
	}
	if err := d.write(regHours, encodeHour(hour, next)); err != nil {
		return 0, err
	}
	return next, nil
}

func decodeHour(b byte) (uint8, HourMode) {
	if b&bit12Hour == 0 {
		return FromBCD(b & 0x3F), Hour24
	}
	if b&bitPM != 0 {
		return FromBCD(b & 0x1F), HourPM
	}
	return FromBCD(b & 0x1F), HourAM
}

func encodeHour(hour uint8, mode HourMode) byte {
	switch mode {
	case HourAM:
		return bit12Hour | ToBCD(hour)
	case HourPM:
		return bit12Hour | bitPM | ToBCD(hour)
	default:
		return ToBCD(hour)
	}
}

// ToBCD encodes v (0-99) as binary-coded decimal.
func ToBCD(v uint8) uint8 {
	return v/10<<4 | v%10
}

// FromBCD decodes a binary-coded decimal byte.
func FromBCD(b uint8) uint8 {
	return b>>4*10 + b&0x0F
}
