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

// Package testing provides a register-level MFRC522 simulator with virtual
// MIFARE Classic cards, plus wire codecs so the bus transports can be tested
// against it.
//
// VirtualMFRC522 models the parts of the chip the driver uses: the 64-byte
// FIFO, the interrupt request registers, ErrorReg, the command register and
// the commands Idle, Mem, GenerateRandomID, CalcCRC (including the digital
// self test), Transmit, Receive, Transceive, MFAuthent and SoftReset. Commands
// complete instantly; the driver still has to poll for completion.
package testing

import (
	"math/rand/v2"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/frame"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// bootReads is how many CommandReg reads report PowerDown after a reset.
const bootReads = 2

// VirtualMFRC522 simulates an MFRC522 at register level. It is safe for
// concurrent use.
type VirtualMFRC522 struct {
	rng             *rand.Rand
	cards           []*VirtualCard
	fifo            []byte
	loopback        []byte
	registerLog     []RegisterAccess
	regs            [mfrc522.MaxRegister + 1]byte
	internal        [mfrc522.InternalBufferSize]byte
	selfTest        mfrc522.SelfTestResult
	mu              syncutil.Mutex
	bootPending     int
	injectErrorBits byte
	neverBoot       bool
	stallIRQ        bool
	injectOverflow  bool
	corruptCRC      bool
	logEnabled      bool
}

// RegisterAccess records one register transaction seen by the simulator.
type RegisterAccess struct {
	Reg   mfrc522.Register
	Value byte
	Write bool
}

// NewVirtualMFRC522 creates a booted v2.0 chip with an empty field.
func NewVirtualMFRC522() *VirtualMFRC522 {
	v := &VirtualMFRC522{
		rng:      rand.New(rand.NewPCG(0x5EED, 0xC0FFEE)), //nolint:gosec // Test code, not crypto
		selfTest: mfrc522.SelfTestV2,
	}
	v.powerOnReset()
	v.regs[mfrc522.VersionReg] = byte(mfrc522.VersionV2)
	v.bootPending = 0
	return v
}

func (v *VirtualMFRC522) powerOnReset() {
	version := v.regs[mfrc522.VersionReg]
	v.regs = [mfrc522.MaxRegister + 1]byte{}
	v.regs[mfrc522.CommandReg] = 0x20
	v.regs[mfrc522.ComIEnReg] = 0x80
	v.regs[mfrc522.FIFOLevelReg] = 0x00
	v.regs[mfrc522.ControlReg] = 0x10
	v.regs[mfrc522.ModeReg] = 0x3F
	v.regs[mfrc522.TxModeReg] = 0x00
	v.regs[mfrc522.RxModeReg] = 0x00
	v.regs[mfrc522.TxControlReg] = 0x80
	v.regs[mfrc522.TxSelReg] = 0x10
	v.regs[mfrc522.RxSelReg] = 0x84
	v.regs[mfrc522.RxThresholdReg] = 0x84
	v.regs[mfrc522.ModWidthReg] = 0x26
	v.regs[mfrc522.RFCfgReg] = 0x48
	v.regs[mfrc522.GsNReg] = 0x88
	v.regs[mfrc522.CWGsPReg] = 0x20
	v.regs[mfrc522.ModGsPReg] = 0x20
	v.regs[mfrc522.AutoTestReg] = 0x40
	v.regs[mfrc522.VersionReg] = version
	v.fifo = v.fifo[:0]
	v.loopback = nil
	v.internal = [mfrc522.InternalBufferSize]byte{}
	v.bootPending = bootReads
	for _, c := range v.cards {
		c.StopCrypto()
	}
}

// SetVersion sets the value reported by VersionReg and picks the matching
// self test vector.
func (v *VirtualMFRC522) SetVersion(version mfrc522.Version) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.regs[mfrc522.VersionReg] = byte(version)
	if version == mfrc522.VersionV1 {
		v.selfTest = mfrc522.SelfTestV1
	} else {
		v.selfTest = mfrc522.SelfTestV2
	}
}

// CorruptSelfTest flips one byte of the self test result.
func (v *VirtualMFRC522) CorruptSelfTest(index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selfTest[index] ^= 0x01
}

// AddCard places a card in the field.
func (v *VirtualMFRC522) AddCard(card *VirtualCard) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cards = append(v.cards, card)
}

// RemoveAllCards empties the field.
func (v *VirtualMFRC522) RemoveAllCards() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, c := range v.cards {
		c.Remove()
	}
	v.cards = nil
}

// SetNeverBoot keeps the PowerDown bit set forever after the next reset.
func (v *VirtualMFRC522) SetNeverBoot(never bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.neverBoot = never
}

// SetStallIRQ stops commands from ever raising a completion, error or timer
// interrupt.
func (v *VirtualMFRC522) SetStallIRQ(stall bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stallIRQ = stall
}

// InjectOverflow makes the next Transceive answer overrun the FIFO.
func (v *VirtualMFRC522) InjectOverflow() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectOverflow = true
}

// InjectErrorBits makes the next Transceive finish with the given ErrorReg
// bits and ErrIRq set.
func (v *VirtualMFRC522) InjectErrorBits(bits byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectErrorBits = bits
}

// CorruptNextCRC flips the last byte of the next card answer.
func (v *VirtualMFRC522) CorruptNextCRC() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptCRC = true
}

// EnableLog starts recording register transactions.
func (v *VirtualMFRC522) EnableLog() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.logEnabled = true
	v.registerLog = v.registerLog[:0]
}

// Log returns a copy of the recorded register transactions.
func (v *VirtualMFRC522) Log() []RegisterAccess {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]RegisterAccess(nil), v.registerLog...)
}

// Register returns a register's raw value without side effects.
func (v *VirtualMFRC522) Register(reg mfrc522.Register) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[reg&mfrc522.MaxRegister]
}

// FIFO returns a copy of the FIFO content.
func (v *VirtualMFRC522) FIFO() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.fifo...)
}

// ReadRegister performs one register read with the chip's read side effects.
func (v *VirtualMFRC522) ReadRegister(reg mfrc522.Register) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	value := v.read(reg & mfrc522.MaxRegister)
	if v.logEnabled {
		v.registerLog = append(v.registerLog, RegisterAccess{Reg: reg, Value: value})
	}
	return value
}

// WriteRegister performs one register write with the chip's write side effects.
func (v *VirtualMFRC522) WriteRegister(reg mfrc522.Register, value byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.logEnabled {
		v.registerLog = append(v.registerLog, RegisterAccess{Reg: reg, Value: value, Write: true})
	}
	v.write(reg&mfrc522.MaxRegister, value)
}

func (v *VirtualMFRC522) read(reg mfrc522.Register) byte {
	//nolint:exhaustive // plain registers read back their stored value
	switch reg {
	case mfrc522.FIFODataReg:
		if len(v.fifo) == 0 {
			return 0
		}
		b := v.fifo[0]
		v.fifo = v.fifo[1:]
		return b
	case mfrc522.FIFOLevelReg:
		return byte(len(v.fifo))
	case mfrc522.CommandReg:
		if v.bootPending > 0 || v.neverBoot && v.regs[reg]&mfrc522.PowerDownBit != 0 {
			if v.bootPending > 0 {
				v.bootPending--
			}
			return v.regs[reg] | mfrc522.PowerDownBit
		}
		v.regs[reg] &^= mfrc522.PowerDownBit
		return v.regs[reg]
	default:
		return v.regs[reg]
	}
}

func (v *VirtualMFRC522) write(reg mfrc522.Register, value byte) {
	//nolint:exhaustive // plain registers store the written value
	switch reg {
	case mfrc522.FIFODataReg:
		v.pushFIFO(value)
	case mfrc522.FIFOLevelReg:
		if value&mfrc522.FlushBufferBit != 0 {
			v.fifo = v.fifo[:0]
			v.regs[mfrc522.ErrorReg] &^= mfrc522.BufferOvflBit
		}
	case mfrc522.ComIrqReg, mfrc522.DivIrqReg:
		if value&mfrc522.Set1Bit != 0 {
			v.regs[reg] |= value &^ mfrc522.Set1Bit
		} else {
			v.regs[reg] &^= value
		}
	case mfrc522.ErrorReg, mfrc522.VersionReg:
		// read only
	case mfrc522.CommandReg:
		v.regs[reg] = value & 0x3F
		v.execute(mfrc522.Command(value & 0x0F))
	case mfrc522.BitFramingReg:
		v.regs[reg] = value &^ mfrc522.StartSendBit
		if value&mfrc522.StartSendBit != 0 && mfrc522.Command(v.regs[mfrc522.CommandReg]&0x0F) == mfrc522.CmdTransceive {
			v.transceive()
		}
	case mfrc522.Status2Reg:
		v.regs[reg] = value
		if value&mfrc522.MFCrypto1OnBit == 0 {
			for _, c := range v.cards {
				c.StopCrypto()
			}
		}
	default:
		v.regs[reg] = value
	}
}

func (v *VirtualMFRC522) pushFIFO(b byte) {
	if len(v.fifo) >= mfrc522.FIFOSize {
		v.regs[mfrc522.ErrorReg] |= mfrc522.BufferOvflBit
		return
	}
	v.fifo = append(v.fifo, b)
}

func (v *VirtualMFRC522) setFIFO(data []byte) {
	v.fifo = v.fifo[:0]
	for _, b := range data {
		v.pushFIFO(b)
	}
}

// raise sets ComIrqReg bits unless interrupts are stalled.
func (v *VirtualMFRC522) raise(bits byte) {
	if v.stallIRQ {
		return
	}
	v.regs[mfrc522.ComIrqReg] |= bits
}

func (v *VirtualMFRC522) finish(bits byte) {
	v.raise(bits | mfrc522.IdleIRq)
	v.regs[mfrc522.CommandReg] &^= 0x0F
}

func (v *VirtualMFRC522) execute(cmd mfrc522.Command) {
	if cmd != mfrc522.CmdIdle && cmd != mfrc522.CmdSoftReset {
		// a new command clears the error flags other than the FIFO overflow
		v.regs[mfrc522.ErrorReg] &= mfrc522.BufferOvflBit
	}

	//nolint:exhaustive // unknown commands are ignored by the chip
	switch cmd {
	case mfrc522.CmdIdle:
	case mfrc522.CmdMem:
		v.mem()
		v.finish(0)
	case mfrc522.CmdGenerateRandomID:
		for i := range 10 {
			v.internal[i] = byte(v.rng.UintN(256))
		}
		v.finish(0)
	case mfrc522.CmdCalcCRC:
		v.calcCRC()
	case mfrc522.CmdTransmit:
		v.loopback = append([]byte(nil), v.fifo...)
		v.fifo = v.fifo[:0]
		v.finish(mfrc522.TxIRq)
	case mfrc522.CmdReceive:
		if v.loopback == nil {
			v.raise(mfrc522.TimerIRq)
			return
		}
		v.setFIFO(v.loopback)
		v.loopback = nil
		v.regs[mfrc522.ControlReg] &^= mfrc522.RxLastBitsMask
		v.finish(mfrc522.RxIRq)
	case mfrc522.CmdMFAuthent:
		v.authenticate()
	case mfrc522.CmdSoftReset:
		v.powerOnReset()
		if v.neverBoot {
			v.regs[mfrc522.CommandReg] |= mfrc522.PowerDownBit
		}
	}
}

func (v *VirtualMFRC522) mem() {
	if len(v.fifo) >= mfrc522.InternalBufferSize {
		copy(v.internal[:], v.fifo[:mfrc522.InternalBufferSize])
		v.fifo = v.fifo[mfrc522.InternalBufferSize:]
		return
	}
	v.setFIFO(v.internal[:])
}

func (v *VirtualMFRC522) calcCRC() {
	if v.regs[mfrc522.AutoTestReg]&0x0F == mfrc522.SelfTestEnable {
		v.setFIFO(v.selfTest[:])
		return
	}
	crc := frame.CRCA(v.fifo)
	v.fifo = v.fifo[:0]
	v.regs[mfrc522.CRCResultRegL] = crc[0]
	v.regs[mfrc522.CRCResultRegH] = crc[1]
	if !v.stallIRQ {
		v.regs[mfrc522.DivIrqReg] |= mfrc522.CRCIRq
	}
}

func (v *VirtualMFRC522) authenticate() {
	data := append([]byte(nil), v.fifo...)
	v.fifo = v.fifo[:0]
	if len(data) < 12 {
		v.regs[mfrc522.ErrorReg] |= mfrc522.ProtocolErrBit
		v.finish(mfrc522.ErrIRq)
		return
	}

	var key [6]byte
	var uid [4]byte
	copy(key[:], data[2:8])
	copy(uid[:], data[8:12])
	for _, c := range v.cards {
		if c.Present() && c.State() == CardActive && c.UID() == uid {
			if err := c.Authenticate(data[0], data[1], key, uid); err == nil {
				v.regs[mfrc522.Status2Reg] |= mfrc522.MFCrypto1OnBit
				v.finish(0)
				return
			}
		}
	}
	// the card never answers the second pass so the chip timer expires
	v.raise(mfrc522.TimerIRq)
}

func (v *VirtualMFRC522) transceive() {
	send := append([]byte(nil), v.fifo...)
	v.fifo = v.fifo[:0]
	txLastBits := v.regs[mfrc522.BitFramingReg] & mfrc522.TxLastBitsMask
	v.raise(mfrc522.TxIRq)

	var answers []Answer
	for _, c := range v.cards {
		if ans, ok := c.Handle(send, txLastBits); ok {
			answers = append(answers, ans)
		}
	}

	switch {
	case v.injectOverflow:
		v.injectOverflow = false
		var data []byte
		if len(answers) > 0 {
			data = answers[0].Data
		}
		v.setFIFO(data)
		for len(v.fifo) < mfrc522.FIFOSize {
			v.pushFIFO(0xEE)
		}
		v.pushFIFO(0xEE)
		v.raise(mfrc522.RxIRq | mfrc522.ErrIRq)
	case v.injectErrorBits != 0:
		v.regs[mfrc522.ErrorReg] |= v.injectErrorBits
		v.injectErrorBits = 0
		if len(answers) > 0 {
			v.setFIFO(answers[0].Data)
		}
		v.raise(mfrc522.RxIRq | mfrc522.ErrIRq)
	case len(answers) == 0:
		v.raise(mfrc522.TimerIRq)
	case collides(answers):
		v.collision(answers)
	default:
		ans := answers[0]
		data := ans.Data
		if v.corruptCRC {
			v.corruptCRC = false
			data = append([]byte(nil), data...)
			data[len(data)-1] ^= 0xFF
		}
		v.setFIFO(data)
		v.regs[mfrc522.ControlReg] = v.regs[mfrc522.ControlReg]&^mfrc522.RxLastBitsMask | ans.LastBits
		v.raise(mfrc522.RxIRq)
	}
}

func collides(answers []Answer) bool {
	for _, a := range answers[1:] {
		if string(a.Data) != string(answers[0].Data) || a.LastBits != answers[0].LastBits {
			return true
		}
	}
	return false
}

func (v *VirtualMFRC522) collision(answers []Answer) {
	pos := frame.CollisionBit(answers[0].Data, answers[1].Data)
	coll := v.regs[mfrc522.CollReg] &^ (mfrc522.CollPosMask | mfrc522.CollPosNotValidBit)
	if pos > 32 || pos == 0 {
		coll |= mfrc522.CollPosNotValidBit
	} else {
		coll |= byte(pos) & mfrc522.CollPosMask
	}
	v.regs[mfrc522.CollReg] = coll
	v.regs[mfrc522.ErrorReg] |= mfrc522.CollErrBit
	// bytes received before the collision stay in the FIFO
	valid := max(pos-1, 0) / 8
	v.setFIFO(answers[0].Data[:valid])
	v.raise(mfrc522.RxIRq | mfrc522.ErrIRq)
}
