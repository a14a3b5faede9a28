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

// Package spi provides the SPI transport for the MFRC522.
//
// Every transaction starts with an address byte: bits 6..1 carry the register,
// bit 7 selects a read, bit 0 is always zero. A read of n values clocks out
// the address n times followed by a zero byte; the chip answers each address
// one byte later.
package spi

import (
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/frame"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	readBit     = 0x80
	addressMask = 0x7E

	// DefaultSpeed is well below the chip's 10 MHz limit so long jumper
	// wires on hobby boards still work.
	DefaultSpeed = 4 * physic.MegaHertz
	mode         = spi.Mode0
)

// Transport implements mfrc522.Transport over SPI.
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	timeout  time.Duration
	speed    physic.Frequency
}

var _ mfrc522.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithSpeed sets the SPI clock.
func WithSpeed(f physic.Frequency) Option {
	return func(t *Transport) {
		t.speed = f
	}
}

// New opens portName (e.g. "/dev/spidev0.0" or "SPI0.0") through periph.
func New(portName string, opts ...Option) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	t, err := NewFromPort(port, portName, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewFromPort connects to an already opened port.
func NewFromPort(port spi.PortCloser, portName string, opts ...Option) (*Transport, error) {
	t := &Transport{
		port:     port,
		portName: portName,
		timeout:  mfrc522.TransportDefaultTimeout,
		speed:    DefaultSpeed,
	}
	for _, opt := range opts {
		opt(t)
	}

	conn, err := port.Connect(t.speed, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	t.conn = conn
	mfrc522.Debugf("SPI %s connected at %s", portName, t.speed)
	return t, nil
}

// address encodes reg for the wire.
func address(reg mfrc522.Register, read bool) byte {
	a := (byte(reg) << 1) & addressMask
	if read {
		a |= readBit
	}
	return a
}

func (t *Transport) checkRegister(op string, reg mfrc522.Register) error {
	if t.conn == nil {
		return mfrc522.NewTransportClosedError(op, t.portName)
	}
	if !reg.Valid() {
		return mfrc522.NewInvalidRegisterError(op, t.portName, byte(reg))
	}
	return nil
}

// ReadRegister reads reg len(buf) times in one transaction.
func (t *Transport) ReadRegister(reg mfrc522.Register, buf []byte) error {
	if err := t.checkRegister("ReadRegister", reg); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	n := len(buf) + 1
	w := frame.GetBuffer(n)
	defer frame.PutBuffer(w)
	r := frame.GetBuffer(n)
	defer frame.PutBuffer(r)

	a := address(reg, true)
	for i := range buf {
		w[i] = a
	}
	w[len(buf)] = 0

	if err := t.conn.Tx(w, r); err != nil {
		return mfrc522.NewTransportReadError("ReadRegister", t.portName, err)
	}
	copy(buf, r[1:])
	return nil
}

// WriteRegister writes the address byte followed by data in one transaction.
func (t *Transport) WriteRegister(reg mfrc522.Register, data ...byte) error {
	if err := t.checkRegister("WriteRegister", reg); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	w := frame.GetBuffer(len(data) + 1)
	defer frame.PutBuffer(w)
	w[0] = address(reg, false)
	copy(w[1:], data)

	if err := t.conn.Tx(w, nil); err != nil {
		return mfrc522.NewTransportWriteError("WriteRegister", t.portName, err)
	}
	return nil
}

// SetTimeout records the per-transaction timeout. SPI transfers are
// clocked by the host and cannot stall, so it is informational.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Close releases the port.
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.conn = nil
	if err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// IsConnected returns true until Close is called.
func (t *Transport) IsConnected() bool {
	return t.conn != nil
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportSPI
}

// String returns the port name.
func (t *Transport) String() string {
	return "spi:" + t.portName
}
