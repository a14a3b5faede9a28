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

// Command is an operation executed by the chip when written to CommandReg.
type Command byte

// Chip commands.
const (
	CmdIdle             Command = 0x00
	CmdMem              Command = 0x01
	CmdGenerateRandomID Command = 0x02
	CmdCalcCRC          Command = 0x03
	CmdTransmit         Command = 0x04
	CmdNoCmdChange      Command = 0x07
	CmdReceive          Command = 0x08
	CmdTransceive       Command = 0x0C
	CmdMFAuthent        Command = 0x0E
	CmdSoftReset        Command = 0x0F
)

var commandNames = map[Command]string{
	CmdIdle:             "Idle",
	CmdMem:              "Mem",
	CmdGenerateRandomID: "GenerateRandomID",
	CmdCalcCRC:          "CalcCRC",
	CmdTransmit:         "Transmit",
	CmdNoCmdChange:      "NoCmdChange",
	CmdReceive:          "Receive",
	CmdTransceive:       "Transceive",
	CmdMFAuthent:        "MFAuthent",
	CmdSoftReset:        "SoftReset",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

// PICC commands sent over the air to ISO/IEC 14443-A and MIFARE Classic cards.
const (
	PICCRequestA      byte = 0x26
	PICCWakeUpA       byte = 0x52
	PICCHaltA         byte = 0x50
	PICCSelectCL1     byte = 0x93
	PICCAuthKeyA      byte = 0x60
	PICCAuthKeyB      byte = 0x61
	PICCMifareRead    byte = 0x30
	PICCMifareWrite   byte = 0xA0
	PICCMifareDecr    byte = 0xC0
	PICCMifareIncr    byte = 0xC1
	PICCMifareRestore byte = 0xC2
	PICCMifareXfer    byte = 0xB0
)

// Anti-collision NVB values for cascade level 1.
const (
	nvbAnticollision byte = 0x20 // 2 bytes valid, no UID bits known
	nvbSelect        byte = 0x70 // 7 bytes valid, full UID + BCC
)

// MIFARE answers are a 4-bit nibble.
const (
	mifareACK     byte = 0x0A
	mifareAckBits byte = 4
)

// KeyType selects which sector key the MFAuthent command uses.
type KeyType byte

const (
	// KeyA authenticates with the sector's key A.
	KeyA KeyType = KeyType(PICCAuthKeyA)
	// KeyB authenticates with the sector's key B.
	KeyB KeyType = KeyType(PICCAuthKeyB)
)

func (k KeyType) String() string {
	switch k {
	case KeyA:
		return "KeyA"
	case KeyB:
		return "KeyB"
	default:
		return fmt.Sprintf("KeyType(0x%02X)", byte(k))
	}
}
