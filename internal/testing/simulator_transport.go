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

package testing

import (
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
)

// SimulatorTransport implements mfrc522.Transport directly on top of a
// VirtualMFRC522, skipping any wire framing.
type SimulatorTransport struct {
	sim       *VirtualMFRC522
	failAfter int
	calls     int
	timeout   time.Duration
	connected bool
}

var _ mfrc522.Transport = (*SimulatorTransport)(nil)

// NewSimulatorTransport creates a connected transport backed by sim.
func NewSimulatorTransport(sim *VirtualMFRC522) *SimulatorTransport {
	return &SimulatorTransport{
		sim:       sim,
		timeout:   time.Second,
		connected: true,
		failAfter: -1,
	}
}

// NewSimulatedDevice builds a booted, initialized device on a fresh simulator.
func NewSimulatedDevice(opts ...mfrc522.Option) (*mfrc522.Device, *VirtualMFRC522, error) {
	sim := NewVirtualMFRC522()
	device, err := NewTestDevice(NewSimulatorTransport(sim), opts...)
	if err != nil {
		return nil, nil, err
	}
	return device, sim, nil
}

// NewTestDevice builds an initialized device on transport. The poll budgets
// are shrunk so timeouts in tests resolve quickly.
func NewTestDevice(transport mfrc522.Transport, opts ...mfrc522.Option) (*mfrc522.Device, error) {
	fast := []mfrc522.Option{
		mfrc522.WithPollConfig(mfrc522.PollConfig{MaxAttempts: 20}),
		mfrc522.WithBootPollConfig(mfrc522.PollConfig{MaxAttempts: 10}),
		mfrc522.WithCardPollInterval(time.Millisecond),
		mfrc522.WithResetSettle(0),
	}
	device, err := mfrc522.New(transport, append(fast, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	if err := device.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize device: %w", err)
	}
	return device, nil
}

// Simulator returns the chip behind the transport.
func (t *SimulatorTransport) Simulator() *VirtualMFRC522 {
	return t.sim
}

// FailAfter makes every register transaction after the next n fail with a
// permanent transport error. A negative n disables the fault.
func (t *SimulatorTransport) FailAfter(n int) {
	t.failAfter = n
	t.calls = 0
}

func (t *SimulatorTransport) enter(op string) error {
	if !t.connected {
		return mfrc522.NewTransportClosedError(op, "simulator")
	}
	if t.failAfter >= 0 {
		if t.calls >= t.failAfter {
			return mfrc522.NewTransportError(op, "simulator", mfrc522.ErrTransportRead, mfrc522.ErrorTypePermanent)
		}
		t.calls++
	}
	return nil
}

// ReadRegister reads len(buf) values from reg.
func (t *SimulatorTransport) ReadRegister(reg mfrc522.Register, buf []byte) error {
	if err := t.enter("read"); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = t.sim.ReadRegister(reg)
	}
	return nil
}

// WriteRegister writes each byte of data to reg in order.
func (t *SimulatorTransport) WriteRegister(reg mfrc522.Register, data ...byte) error {
	if err := t.enter("write"); err != nil {
		return err
	}
	for _, b := range data {
		t.sim.WriteRegister(reg, b)
	}
	return nil
}

// Close closes the transport
func (t *SimulatorTransport) Close() error {
	t.connected = false
	return nil
}

// SetTimeout sets the read timeout
func (t *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// IsConnected returns whether the transport is connected
func (t *SimulatorTransport) IsConnected() bool {
	return t.connected
}

// Type returns the transport type
func (*SimulatorTransport) Type() mfrc522.TransportType {
	return mfrc522.TransportMock
}

// PresentCard adds a card with uid to the field and returns it.
func (t *SimulatorTransport) PresentCard(uid [4]byte) *VirtualCard {
	card := NewVirtualCard(uid)
	t.sim.AddCard(card)
	return card
}

