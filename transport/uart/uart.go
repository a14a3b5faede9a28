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

// Package uart provides the serial transport for the MFRC522.
//
// The chip's UART interface has no framing. A byte with bit 7 set asks for
// the register in bits 5..0 and the chip answers with one data byte. A byte
// with bit 7 clear is an address; the next byte is written to it and the
// chip echoes the address back once the write is done.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/frame"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"go.bug.st/serial"
)

const (
	readBit = 0x80

	// DefaultBaudRate is the rate the chip comes out of reset with.
	DefaultBaudRate = 9600
)

// Transport implements mfrc522.Transport over a serial port.
type Transport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

var _ mfrc522.Transport = (*Transport)(nil)

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readTimeout is the port-level timeout for a single Read call. Windows
// USB-serial drivers return early far less reliably.
func readTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName at 9600 baud 8N1.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := NewFromPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewFromPort wraps an already opened port and discards anything left in
// its receive buffer.
func NewFromPort(port serial.Port, portName string) (*Transport, error) {
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("failed to reset UART input: %w", err)
	}
	return &Transport{
		port:     port,
		portName: portName,
		timeout:  mfrc522.TransportDefaultTimeout,
	}, nil
}

func (t *Transport) checkRegister(op string, reg mfrc522.Register) error {
	if t.port == nil {
		return mfrc522.NewTransportClosedError(op, t.portName)
	}
	if !reg.Valid() {
		return mfrc522.NewInvalidRegisterError(op, t.portName, byte(reg))
	}
	return nil
}

// ReadRegister sends one read request per value and collects the answers.
func (t *Transport) ReadRegister(reg mfrc522.Register, buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkRegister("ReadRegister", reg); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}

	w := frame.GetBuffer(len(buf))
	defer frame.PutBuffer(w)
	for i := range w {
		w[i] = readBit | byte(reg)
	}
	if err := t.write("ReadRegister", w); err != nil {
		return err
	}
	return t.readFull("ReadRegister", buf)
}

// WriteRegister writes each data byte to reg and checks every echo.
func (t *Transport) WriteRegister(reg mfrc522.Register, data ...byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkRegister("WriteRegister", reg); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	w := frame.GetBuffer(2 * len(data))
	defer frame.PutBuffer(w)
	for i, b := range data {
		w[2*i] = byte(reg)
		w[2*i+1] = b
	}
	if err := t.write("WriteRegister", w); err != nil {
		return err
	}

	echo := frame.GetBuffer(len(data))
	defer frame.PutBuffer(echo)
	if err := t.readFull("WriteRegister", echo); err != nil {
		return err
	}
	for _, e := range echo {
		if e != byte(reg) {
			mfrc522.Debugf("UART %s: echo 0x%02X for register 0x%02X", t.portName, e, byte(reg))
			// A stray byte means the stream is out of step; drop the rest.
			_ = t.port.ResetInputBuffer()
			return mfrc522.NewEchoMismatchError("WriteRegister", t.portName)
		}
	}
	return nil
}

func (t *Transport) write(op string, data []byte) error {
	for len(data) > 0 {
		n, err := t.port.Write(data)
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			return mfrc522.NewTransportWriteError(op, t.portName, err)
		}
		data = data[n:]
	}
	return t.drainWithRetry(op)
}

// readFull fills buf or gives up once the transaction timeout has passed.
// The port returns 0, nil whenever its own read timeout fires.
func (t *Transport) readFull(op string, buf []byte) error {
	deadline := time.Now().Add(t.timeout)
	got := 0
	for got < len(buf) {
		n, err := t.port.Read(buf[got:])
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			return mfrc522.NewTransportReadError(op, t.portName, err)
		}
		got += n
		if got < len(buf) && time.Now().After(deadline) {
			mfrc522.Debugf("UART %s: %s got %d of %d bytes", t.portName, op, got, len(buf))
			return mfrc522.NewTimeoutError(op, t.portName)
		}
	}
	return nil
}

// isInterruptedSystemCall reports EINTR, which serial reads surface both as a
// wrapped errno and as plain text depending on the platform.
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			return mfrc522.NewTransportWriteError(operation, t.portName, fmt.Errorf("drain: %w", err))
		}
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return nil
}

// SetTimeout sets how long a register access may wait for the chip's answer.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the port. Calling it again is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportUART
}

func (t *Transport) String() string {
	return "uart:" + t.portName
}
