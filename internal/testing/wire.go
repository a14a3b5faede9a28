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
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
)

// SPI address byte layout: bit 7 selects read, bits 6..1 carry the register.
const (
	spiReadBit  = 0x80
	uartReadBit = 0x80
)

func spiRegister(addr byte) mfrc522.Register {
	return mfrc522.Register(addr>>1) & mfrc522.MaxRegister
}

// SPITx decodes one SPI transaction (chip select asserted for its length).
//
// A read sends one address byte per value plus a trailing 0x00; the chip
// answers each address on the following byte, so r[0] is undefined. A write
// sends one address byte followed by data, all stored to that register.
func (v *VirtualMFRC522) SPITx(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("empty SPI transaction")
	}
	if len(r) != 0 && len(r) != len(w) {
		return fmt.Errorf("SPI full duplex length mismatch: w=%d r=%d", len(w), len(r))
	}

	if w[0]&spiReadBit == 0 {
		reg := spiRegister(w[0])
		for _, b := range w[1:] {
			v.WriteRegister(reg, b)
		}
		return nil
	}

	if len(r) == 0 {
		return errors.New("SPI read without receive buffer")
	}
	r[0] = 0
	for i := 1; i < len(w); i++ {
		if w[i-1]&spiReadBit == 0 {
			return fmt.Errorf("SPI read address 0x%02X at %d lacks read bit", w[i-1], i-1)
		}
		r[i] = v.ReadRegister(spiRegister(w[i-1]))
	}
	return nil
}

// I2CTx decodes one I2C transaction addressed to the chip: the first written
// byte selects the register, further written bytes are stored to it and
// len(r) values are then read from it.
func (v *VirtualMFRC522) I2CTx(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("I2C transaction without register address")
	}
	reg := mfrc522.Register(w[0])
	if !reg.Valid() {
		return fmt.Errorf("I2C register 0x%02X out of range", w[0])
	}
	for _, b := range w[1:] {
		v.WriteRegister(reg, b)
	}
	for i := range r {
		r[i] = v.ReadRegister(reg)
	}
	return nil
}

// UARTWire is the chip's serial interface as an io.ReadWriter. A byte with
// bit 7 set reads that register; otherwise it is an address and the next byte
// is written to it, after which the chip echoes the address.
type UARTWire struct {
	sim     *VirtualMFRC522
	tx      bytes.Buffer
	addr    byte
	pending bool
	closed  bool
}

// NewUARTWire attaches a serial interface to sim.
func NewUARTWire(sim *VirtualMFRC522) *UARTWire {
	return &UARTWire{sim: sim}
}

// Write feeds host bytes into the chip.
func (u *UARTWire) Write(data []byte) (int, error) {
	if u.closed {
		return 0, errors.New("uart wire closed")
	}
	for _, b := range data {
		switch {
		case u.pending:
			u.sim.WriteRegister(mfrc522.Register(u.addr), b)
			u.tx.WriteByte(u.addr)
			u.pending = false
		case b&uartReadBit != 0:
			u.tx.WriteByte(u.sim.ReadRegister(mfrc522.Register(b) & mfrc522.MaxRegister))
		default:
			u.addr = b & byte(mfrc522.MaxRegister)
			u.pending = true
		}
	}
	return len(data), nil
}

// Read returns bytes the chip has sent. It returns 0, nil when nothing is
// pending, as a serial port does when its read timeout expires.
func (u *UARTWire) Read(buf []byte) (int, error) {
	if u.closed {
		return 0, errors.New("uart wire closed")
	}
	if u.tx.Len() == 0 {
		return 0, nil
	}
	return u.tx.Read(buf) //nolint:wrapcheck // bytes.Buffer only returns io.EOF when empty
}

// Pending returns the number of unread bytes.
func (u *UARTWire) Pending() int {
	return u.tx.Len()
}

// Close makes further reads and writes fail.
func (u *UARTWire) Close() {
	u.closed = true
}
