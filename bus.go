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

package mfrc522

import "fmt"

// RegisterBus is the register-level view of the chip every other component
// works through. It adds bit-mask helpers and register tracing on top of a
// Transport. A RegisterBus is owned by one Device and is not safe for
// concurrent use.
type RegisterBus struct {
	transport Transport
	trace     *TraceBuffer
}

// NewRegisterBus wraps transport. traceDepth bounds the number of recent
// transactions kept for error reports.
func NewRegisterBus(transport Transport, traceDepth int) *RegisterBus {
	return &RegisterBus{
		transport: transport,
		trace:     NewTraceBuffer(string(transport.Type()), "", traceDepth),
	}
}

// Transport returns the underlying transport.
func (b *RegisterBus) Transport() Transport {
	return b.transport
}

// Trace returns the recent-transaction buffer.
func (b *RegisterBus) Trace() *TraceBuffer {
	return b.trace
}

// ReadRegister reads a single register.
func (b *RegisterBus) ReadRegister(reg Register) (byte, error) {
	var buf [1]byte
	if err := b.ReadRegisters(reg, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadRegisters fills buf by reading reg len(buf) times. The FIFO data
// register drains one byte per read.
func (b *RegisterBus) ReadRegisters(reg Register, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := b.transport.ReadRegister(reg, buf); err != nil {
		b.trace.RecordTimeout(fmt.Sprintf("read 0x%02X failed", byte(reg)))
		return b.traced(fmt.Errorf("read register 0x%02X: %w", byte(reg), err))
	}
	b.trace.RecordRX(buf, regNote(reg))
	if traceEnabled() {
		Tracef("<< %02X: %s", byte(reg), formatHexBytes(buf))
	}
	return nil
}

// WriteRegister writes a single register.
func (b *RegisterBus) WriteRegister(reg Register, value byte) error {
	return b.WriteRegisters(reg, []byte{value})
}

// WriteRegisters writes each byte of data to reg in order.
func (b *RegisterBus) WriteRegisters(reg Register, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := b.transport.WriteRegister(reg, data...); err != nil {
		b.trace.RecordTimeout(fmt.Sprintf("write 0x%02X failed", byte(reg)))
		return b.traced(fmt.Errorf("write register 0x%02X: %w", byte(reg), err))
	}
	b.trace.RecordTX(data, regNote(reg))
	if traceEnabled() {
		Tracef(">> %02X: %s", byte(reg), formatHexBytes(data))
	}
	return nil
}

// traced attaches the recent transactions to err unless it already carries
// them. Callers recover the trace with GetTrace.
func (b *RegisterBus) traced(err error) error {
	if err == nil || HasTrace(err) {
		return err
	}
	return b.trace.WrapError(err)
}

// timedOut records a poll that ran out of attempts and returns err traced.
func (b *RegisterBus) timedOut(note string, err error) error {
	b.trace.RecordTimeout(note)
	return b.traced(err)
}

// SetBitMask sets the bits of mask in reg with a read-modify-write.
func (b *RegisterBus) SetBitMask(reg Register, mask byte) error {
	current, err := b.ReadRegister(reg)
	if err != nil {
		return err
	}
	return b.WriteRegister(reg, current|mask)
}

// ClearBitMask clears the bits of mask in reg with a read-modify-write.
func (b *RegisterBus) ClearBitMask(reg Register, mask byte) error {
	current, err := b.ReadRegister(reg)
	if err != nil {
		return err
	}
	return b.WriteRegister(reg, current&^mask)
}

func regNote(reg Register) string {
	if name, ok := registerNames[reg]; ok {
		return name
	}
	return fmt.Sprintf("reg 0x%02X", byte(reg))
}

var registerNames = map[Register]string{
	CommandReg:    "CommandReg",
	ComIrqReg:     "ComIrqReg",
	DivIrqReg:     "DivIrqReg",
	ErrorReg:      "ErrorReg",
	Status1Reg:    "Status1Reg",
	Status2Reg:    "Status2Reg",
	FIFODataReg:   "FIFODataReg",
	FIFOLevelReg:  "FIFOLevelReg",
	ControlReg:    "ControlReg",
	BitFramingReg: "BitFramingReg",
	CollReg:       "CollReg",
	ModeReg:       "ModeReg",
	TxControlReg:  "TxControlReg",
	TxASKReg:      "TxASKReg",
	CRCResultRegH: "CRCResultRegH",
	CRCResultRegL: "CRCResultRegL",
	RFCfgReg:      "RFCfgReg",
	TModeReg:      "TModeReg",
	TPrescalerReg: "TPrescalerReg",
	AutoTestReg:   "AutoTestReg",
	VersionReg:    "VersionReg",
}
