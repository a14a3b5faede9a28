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

// Register is an address in the MFRC522 register space (0x00-0x3F).
type Register byte

// Page 0: command and status.
const (
	CommandReg    Register = 0x01
	ComIEnReg     Register = 0x02
	DivIEnReg     Register = 0x03
	ComIrqReg     Register = 0x04
	DivIrqReg     Register = 0x05
	ErrorReg      Register = 0x06
	Status1Reg    Register = 0x07
	Status2Reg    Register = 0x08
	FIFODataReg   Register = 0x09
	FIFOLevelReg  Register = 0x0A
	WaterLevelReg Register = 0x0B
	ControlReg    Register = 0x0C
	BitFramingReg Register = 0x0D
	CollReg       Register = 0x0E
)

// Page 1: communication.
const (
	ModeReg        Register = 0x11
	TxModeReg      Register = 0x12
	RxModeReg      Register = 0x13
	TxControlReg   Register = 0x14
	TxASKReg       Register = 0x15
	TxSelReg       Register = 0x16
	RxSelReg       Register = 0x17
	RxThresholdReg Register = 0x18
	DemodReg       Register = 0x19
	MfTxReg        Register = 0x1C
	MfRxReg        Register = 0x1D
	SerialSpeedReg Register = 0x1F
)

// Page 2: configuration.
const (
	CRCResultRegH     Register = 0x21
	CRCResultRegL     Register = 0x22
	ModWidthReg       Register = 0x24
	RFCfgReg          Register = 0x26
	GsNReg            Register = 0x27
	CWGsPReg          Register = 0x28
	ModGsPReg         Register = 0x29
	TModeReg          Register = 0x2A
	TPrescalerReg     Register = 0x2B
	TReloadRegH       Register = 0x2C
	TReloadRegL       Register = 0x2D
	TCounterValueRegH Register = 0x2E
	TCounterValueRegL Register = 0x2F
)

// Page 3: test registers.
const (
	TestSel1Reg     Register = 0x31
	TestSel2Reg     Register = 0x32
	TestPinEnReg    Register = 0x33
	TestPinValueReg Register = 0x34
	TestBusReg      Register = 0x35
	AutoTestReg     Register = 0x36
	VersionReg      Register = 0x37
	AnalogTestReg   Register = 0x38
	TestDAC1Reg     Register = 0x39
	TestDAC2Reg     Register = 0x3A
	TestADCReg      Register = 0x3B
)

// MaxRegister is the highest valid register address.
const MaxRegister Register = 0x3F

// Valid reports whether r lies inside the chip's register space.
func (r Register) Valid() bool {
	return r <= MaxRegister
}

// Register bit masks.
const (
	// CommandReg
	PowerDownBit byte = 0x10
	RcvOffBit    byte = 0x20

	// ComIrqReg
	Set1Bit    byte = 0x80
	TxIRq      byte = 0x40
	RxIRq      byte = 0x20
	IdleIRq    byte = 0x10
	HiAlertIRq byte = 0x08
	LoAlertIRq byte = 0x04
	ErrIRq     byte = 0x02
	TimerIRq   byte = 0x01
	AllComIRqs byte = 0x7F

	// DivIrqReg
	CRCIRq byte = 0x04

	// ErrorReg
	WrErrBit       byte = 0x80
	TempErrBit     byte = 0x40
	BufferOvflBit  byte = 0x10
	CollErrBit     byte = 0x08
	CRCErrBit      byte = 0x04
	ParityErrBit   byte = 0x02
	ProtocolErrBit byte = 0x01

	// Status2Reg
	MFCrypto1OnBit byte = 0x08

	// FIFOLevelReg
	FlushBufferBit byte = 0x80
	FIFOLevelMask  byte = 0x7F

	// ControlReg
	RxLastBitsMask byte = 0x07

	// BitFramingReg
	StartSendBit   byte = 0x80
	TxLastBitsMask byte = 0x07

	// CollReg
	ValuesAfterCollBit byte = 0x80
	CollPosNotValidBit byte = 0x20
	CollPosMask        byte = 0x1F

	// TxControlReg
	Tx1RFEnBit byte = 0x01
	Tx2RFEnBit byte = 0x02
	AntennaOn  byte = Tx1RFEnBit | Tx2RFEnBit

	// RFCfgReg
	RxGainMask byte = 0x70

	// AutoTestReg
	SelfTestEnable byte = 0x09
)

// FIFOSize is the depth of the chip's FIFO buffer.
const FIFOSize = 64

// InternalBufferSize is the size of the chip's internal memory used by the Mem command.
const InternalBufferSize = 25

// Baseline register values applied by Initialize. The timer runs in TAuto
// mode with a 40 kHz tick so TReload counts in 25 us steps.
const (
	defaultTMode      byte = 0x80
	defaultTPrescaler byte = 0xA9
	defaultTReloadH   byte = 0x03
	defaultTReloadL   byte = 0xE8
	defaultTxASK      byte = 0x40 // force 100% ASK
	defaultMode       byte = 0x3D // CRC preset 0x6363
	defaultModWidth   byte = 0x26
)
