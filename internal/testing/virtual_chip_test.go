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
	"testing"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualMFRC522_FIFO(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	for i := range mfrc522.FIFOSize {
		sim.WriteRegister(mfrc522.FIFODataReg, byte(i))
	}
	assert.Equal(t, byte(mfrc522.FIFOSize), sim.ReadRegister(mfrc522.FIFOLevelReg))
	assert.Zero(t, sim.Register(mfrc522.ErrorReg)&mfrc522.BufferOvflBit)

	sim.WriteRegister(mfrc522.FIFODataReg, 0xFF)
	assert.NotZero(t, sim.Register(mfrc522.ErrorReg)&mfrc522.BufferOvflBit, "65th byte overflows")
	assert.Equal(t, byte(0), sim.ReadRegister(mfrc522.FIFODataReg), "FIFO is first in, first out")

	sim.WriteRegister(mfrc522.FIFOLevelReg, mfrc522.FlushBufferBit)
	assert.Zero(t, sim.ReadRegister(mfrc522.FIFOLevelReg))
	assert.Zero(t, sim.Register(mfrc522.ErrorReg)&mfrc522.BufferOvflBit, "flush clears overflow")
}

func TestVirtualMFRC522_IRQSetAndClear(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	sim.WriteRegister(mfrc522.ComIrqReg, mfrc522.Set1Bit|mfrc522.RxIRq|mfrc522.TimerIRq)
	assert.Equal(t, mfrc522.RxIRq|mfrc522.TimerIRq, sim.Register(mfrc522.ComIrqReg))

	sim.WriteRegister(mfrc522.ComIrqReg, mfrc522.TimerIRq)
	assert.Equal(t, mfrc522.RxIRq, sim.Register(mfrc522.ComIrqReg))
}

func TestVirtualMFRC522_SoftResetBoot(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	sim.WriteRegister(mfrc522.CommandReg, byte(mfrc522.CmdSoftReset))

	booted := false
	for range 5 {
		if sim.ReadRegister(mfrc522.CommandReg)&mfrc522.PowerDownBit == 0 {
			booted = true
			break
		}
	}
	assert.True(t, booted)
	assert.Equal(t, byte(mfrc522.VersionV2), sim.ReadRegister(mfrc522.VersionReg))
}

func TestVirtualMFRC522_NeverBoot(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	sim.SetNeverBoot(true)
	sim.WriteRegister(mfrc522.CommandReg, byte(mfrc522.CmdSoftReset))
	for range 20 {
		require.NotZero(t, sim.ReadRegister(mfrc522.CommandReg)&mfrc522.PowerDownBit)
	}
}

func TestVirtualMFRC522_CalcCRC(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	data := []byte{0x93, 0x70, 0x12, 0x34, 0x56, 0x78, 0x08}
	for _, b := range data {
		sim.WriteRegister(mfrc522.FIFODataReg, b)
	}
	sim.WriteRegister(mfrc522.CommandReg, byte(mfrc522.CmdCalcCRC))

	want := frame.CRCA(data)
	assert.NotZero(t, sim.Register(mfrc522.DivIrqReg)&mfrc522.CRCIRq)
	assert.Equal(t, want[0], sim.Register(mfrc522.CRCResultRegL))
	assert.Equal(t, want[1], sim.Register(mfrc522.CRCResultRegH))
}

func TestVirtualMFRC522_TransceiveNoCard(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	sim.WriteRegister(mfrc522.FIFODataReg, 0x26)
	sim.WriteRegister(mfrc522.CommandReg, byte(mfrc522.CmdTransceive))
	sim.WriteRegister(mfrc522.BitFramingReg, mfrc522.StartSendBit|0x07)

	irq := sim.Register(mfrc522.ComIrqReg)
	assert.NotZero(t, irq&mfrc522.TimerIRq)
	assert.Zero(t, irq&mfrc522.RxIRq)
}

func TestVirtualMFRC522_Collision(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	first := NewVirtualCard(TestUID)
	second := NewVirtualCard(OtherUID)
	sim.AddCard(first)
	sim.AddCard(second)

	transceive := func(bits byte, data ...byte) {
		sim.WriteRegister(mfrc522.FIFOLevelReg, mfrc522.FlushBufferBit)
		sim.WriteRegister(mfrc522.ComIrqReg, mfrc522.AllComIRqs)
		for _, b := range data {
			sim.WriteRegister(mfrc522.FIFODataReg, b)
		}
		sim.WriteRegister(mfrc522.CommandReg, byte(mfrc522.CmdTransceive))
		sim.WriteRegister(mfrc522.BitFramingReg, mfrc522.StartSendBit|bits)
	}

	transceive(7, 0x26)
	assert.Zero(t, sim.Register(mfrc522.ErrorReg), "identical ATQAs do not collide")

	transceive(0, 0x93, 0x20)
	assert.NotZero(t, sim.Register(mfrc522.ErrorReg)&mfrc522.CollErrBit)
	assert.NotZero(t, sim.Register(mfrc522.ComIrqReg)&mfrc522.ErrIRq)
	assert.Equal(t, byte(frame.CollisionBit(TestUID[:], OtherUID[:])), sim.Register(mfrc522.CollReg)&mfrc522.CollPosMask)
}

func TestVirtualMFRC522_SelfTestVector(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	sim.SetVersion(mfrc522.VersionV1)
	sim.WriteRegister(mfrc522.AutoTestReg, mfrc522.SelfTestEnable)
	sim.WriteRegister(mfrc522.FIFODataReg, 0x00)
	sim.WriteRegister(mfrc522.CommandReg, byte(mfrc522.CmdCalcCRC))

	assert.Equal(t, mfrc522.SelfTestV1[:], sim.FIFO())
}

func TestVirtualMFRC522_StallIRQ(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	sim.SetStallIRQ(true)
	sim.WriteRegister(mfrc522.CommandReg, byte(mfrc522.CmdTransmit))
	assert.Zero(t, sim.Register(mfrc522.ComIrqReg))
}

func TestVirtualMFRC522_Log(t *testing.T) {
	t.Parallel()

	sim := NewVirtualMFRC522()
	sim.EnableLog()
	sim.WriteRegister(mfrc522.TxControlReg, 0x83)
	_ = sim.ReadRegister(mfrc522.TxControlReg)

	log := sim.Log()
	require.Len(t, log, 2)
	assert.Equal(t, RegisterAccess{Reg: mfrc522.TxControlReg, Value: 0x83, Write: true}, log[0])
	assert.Equal(t, RegisterAccess{Reg: mfrc522.TxControlReg, Value: 0x83}, log[1])
}
