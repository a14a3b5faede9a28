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

package mfrc522

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Transport moves register values between the host and an MFRC522.
// This can be implemented by SPI, I2C, or UART backends; the driver only
// depends on "read N bytes from register R" and "write N bytes to register R".
type Transport interface {
	// ReadRegister fills buf with len(buf) consecutive reads of reg.
	ReadRegister(reg Register, buf []byte) error

	// WriteRegister writes each byte of data to reg in order.
	WriteRegister(reg Register, data ...byte) error

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the per-transaction timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportWithRetry wraps a Transport with retry capabilities
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// ReadRegister reads with retry on transient bus errors. Multi-byte
// FIFODataReg reads are not retried because each read drains the FIFO.
func (t *TransportWithRetry) ReadRegister(reg Register, buf []byte) error {
	if reg == FIFODataReg && len(buf) > 1 {
		return t.wrap("ReadRegister", t.transport.ReadRegister(reg, buf))
	}
	return RetryWithConfig(context.Background(), t.config, func() error {
		return t.wrap("ReadRegister", t.transport.ReadRegister(reg, buf))
	})
}

// WriteRegister writes with retry on transient bus errors.
// FIFODataReg writes are not retried because a partial write already
// advanced the FIFO.
func (t *TransportWithRetry) WriteRegister(reg Register, data ...byte) error {
	if reg == FIFODataReg && len(data) > 1 {
		return t.wrap("WriteRegister", t.transport.WriteRegister(reg, data...))
	}
	return RetryWithConfig(context.Background(), t.config, func() error {
		return t.wrap("WriteRegister", t.transport.WriteRegister(reg, data...))
	})
}

func (t *TransportWithRetry) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*TransportError); ok { //nolint:errorlint // only top-level errors are re-wrapped
		return err
	}
	return &TransportError{
		Op:        op,
		Err:       err,
		Type:      ErrorTypeTransient,
		Retryable: IsRetryable(err),
	}
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// SetTimeout sets the read timeout for the transport
func (t *TransportWithRetry) SetTimeout(timeout time.Duration) error {
	if err := t.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on underlying transport: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *TransportWithRetry) IsConnected() bool {
	return t.transport.IsConnected()
}

// Type returns the transport type
func (t *TransportWithRetry) Type() TransportType {
	return t.transport.Type()
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}

// RegisterWrite is one WriteRegister call recorded by MockTransport.
type RegisterWrite struct {
	Data []byte
	Reg  Register
}

// MockTransport is an in-memory register file implementing Transport for tests.
// Reads return queued values first and fall back to the last written value.
type MockTransport struct {
	readQueue map[Register][]byte
	callCount map[Register]int
	errorMap  map[Register]error
	onWrite   map[Register]func(m *MockTransport, data []byte)
	writes    []RegisterWrite
	timeout   time.Duration
	delay     time.Duration
	mu        sync.RWMutex
	regs      [int(MaxRegister) + 1]byte
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
		readQueue: make(map[Register][]byte),
		callCount: make(map[Register]int),
		errorMap:  make(map[Register]error),
		onWrite:   make(map[Register]func(*MockTransport, []byte)),
	}
}

func (m *MockTransport) enter(reg Register) error {
	m.mu.RLock()
	connected := m.connected
	delay := m.delay
	m.mu.RUnlock()

	if !connected {
		return NewTransportClosedError("mock", "mock")
	}
	if !reg.Valid() {
		return NewInvalidRegisterError("mock", "mock", byte(reg))
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}

// ReadRegister implements Transport interface
func (m *MockTransport) ReadRegister(reg Register, buf []byte) error {
	if err := m.enter(reg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[reg]++
	if err, exists := m.errorMap[reg]; exists {
		return err
	}
	for i := range buf {
		if q := m.readQueue[reg]; len(q) > 0 {
			buf[i] = q[0]
			m.readQueue[reg] = q[1:]
			continue
		}
		buf[i] = m.regs[reg]
	}
	return nil
}

// WriteRegister implements Transport interface
func (m *MockTransport) WriteRegister(reg Register, data ...byte) error {
	if err := m.enter(reg); err != nil {
		return err
	}

	m.mu.Lock()
	m.callCount[reg]++
	if err, exists := m.errorMap[reg]; exists {
		m.mu.Unlock()
		return err
	}
	m.writes = append(m.writes, RegisterWrite{Reg: reg, Data: append([]byte(nil), data...)})
	if len(data) > 0 {
		m.regs[reg] = data[len(data)-1]
	}
	hook := m.onWrite[reg]
	m.mu.Unlock()

	if hook != nil {
		hook(m, data)
	}
	return nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetRegister sets the value a register reads back once its queue is empty.
func (m *MockTransport) SetRegister(reg Register, value byte) {
	m.mu.Lock()
	m.regs[reg] = value
	m.mu.Unlock()
}

// GetRegister returns the current backing value of a register.
func (m *MockTransport) GetRegister(reg Register) byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.regs[reg]
}

// QueueRead appends values returned by subsequent reads of reg.
func (m *MockTransport) QueueRead(reg Register, values ...byte) {
	m.mu.Lock()
	m.readQueue[reg] = append(m.readQueue[reg], values...)
	m.mu.Unlock()
}

// OnWrite installs a hook that runs after every write to reg.
func (m *MockTransport) OnWrite(reg Register, hook func(m *MockTransport, data []byte)) {
	m.mu.Lock()
	m.onWrite[reg] = hook
	m.mu.Unlock()
}

// SetError configures an error to be returned for a specific register
func (m *MockTransport) SetError(reg Register, err error) {
	m.mu.Lock()
	m.errorMap[reg] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a register
func (m *MockTransport) ClearError(reg Register) {
	m.mu.Lock()
	delete(m.errorMap, reg)
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate bus latency
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many transactions touched a register
func (m *MockTransport) GetCallCount(reg Register) int {
	m.mu.RLock()
	count := m.callCount[reg]
	m.mu.RUnlock()
	return count
}

// Writes returns the recorded writes in order.
func (m *MockTransport) Writes() []RegisterWrite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RegisterWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// WritesTo returns the bytes written to reg, flattened in order.
func (m *MockTransport) WritesTo(reg Register) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []byte
	for _, w := range m.writes {
		if w.Reg == reg {
			out = append(out, w.Data...)
		}
	}
	return out
}

// Reset clears all call counts, queues and recorded writes
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[Register]int)
	m.readQueue = make(map[Register][]byte)
	m.writes = nil
	m.connected = true
	m.mu.Unlock()
}
