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

// Package i2c provides the I2C transport for the MFRC522.
//
// A register access is a single bus transaction: the first written byte
// selects the register, any further written bytes are stored to it, and a
// repeated-start read returns as many values as the caller asked for.
package i2c

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/frame"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the 7-bit address with the strap pins pulled low.
	DefaultAddress uint16 = 0x28

	// DefaultSpeed is fast mode; the chip supports up to 3.4 MHz but most
	// breakout boards are wired for 400 kHz.
	DefaultSpeed = 400 * physic.KiloHertz
)

// Transport implements mfrc522.Transport over I2C.
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser // held so Close releases the file descriptor
	busName string
	timeout time.Duration
}

var _ mfrc522.Transport = (*Transport)(nil)

// ParsePath splits a detection path such as "/dev/i2c-1:0x28" into the bus
// name and device address. A bare bus name uses DefaultAddress.
func ParsePath(path string) (bus string, addr uint16, err error) {
	bus, suffix, found := strings.Cut(path, ":")
	if !found || suffix == "" {
		return bus, DefaultAddress, nil
	}
	v, err := strconv.ParseUint(suffix, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("invalid I2C address %q: %w", suffix, err)
	}
	return bus, uint16(v), nil
}

// New opens the bus named in path through periph.
func New(path string) (*Transport, error) {
	busName, addr, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	return NewFromBus(bus, addr, busName), nil
}

// NewFromBus wraps an already opened bus.
func NewFromBus(bus i2c.BusCloser, addr uint16, busName string) *Transport {
	// Not every adapter lets the speed change; the default is still usable.
	if err := bus.SetSpeed(DefaultSpeed); err != nil {
		mfrc522.Debugf("I2C %s: keeping default speed: %v", busName, err)
	}
	return &Transport{
		dev:     &i2c.Dev{Bus: bus, Addr: addr},
		bus:     bus,
		busName: busName,
		timeout: mfrc522.TransportDefaultTimeout,
	}
}

func (t *Transport) checkRegister(op string, reg mfrc522.Register) error {
	if t.dev == nil {
		return mfrc522.NewTransportClosedError(op, t.busName)
	}
	if !reg.Valid() {
		return mfrc522.NewInvalidRegisterError(op, t.busName, byte(reg))
	}
	return nil
}

// ReadRegister reads len(buf) values from reg in one transaction.
func (t *Transport) ReadRegister(reg mfrc522.Register, buf []byte) error {
	if err := t.checkRegister("ReadRegister", reg); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	if err := t.dev.Tx([]byte{byte(reg)}, buf); err != nil {
		return mfrc522.NewTransportReadError("ReadRegister", t.busName, err)
	}
	return nil
}

// WriteRegister writes the register address followed by data.
func (t *Transport) WriteRegister(reg mfrc522.Register, data ...byte) error {
	if err := t.checkRegister("WriteRegister", reg); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	w := frame.GetBuffer(len(data) + 1)
	defer frame.PutBuffer(w)
	w[0] = byte(reg)
	copy(w[1:], data)

	if err := t.dev.Tx(w, nil); err != nil {
		return mfrc522.NewTransportWriteError("WriteRegister", t.busName, err)
	}
	return nil
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Close releases the I2C bus file descriptor. Leaking it across rapid
// reopen cycles can wedge the bus on some Linux adapters.
func (t *Transport) Close() error {
	if t.bus == nil {
		return nil
	}
	err := t.bus.Close()
	t.bus = nil
	t.dev = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportI2C
}

// Address returns the 7-bit device address.
func (t *Transport) Address() uint16 {
	if t.dev == nil {
		return 0
	}
	return t.dev.Addr
}

func (t *Transport) String() string {
	return "i2c:" + t.busName
}
