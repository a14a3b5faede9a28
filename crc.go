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

// CalculateCRC runs data through the chip's CRC coprocessor and returns the
// ISO/IEC 14443-A CRC in wire order (low byte first).
func (d *Device) CalculateCRC(data []byte) ([2]byte, error) {
	var result [2]byte
	if err := d.checkOpen(); err != nil {
		return result, err
	}
	if len(data) > FIFOSize {
		return result, fmt.Errorf("%w: %d bytes exceeds the %d byte FIFO", ErrDataTooLarge, len(data), FIFOSize)
	}

	if err := d.bus.WriteRegister(CommandReg, byte(CmdIdle)); err != nil {
		return result, err
	}
	if err := d.bus.WriteRegister(DivIrqReg, CRCIRq); err != nil {
		return result, err
	}
	if err := d.WriteFIFO(data); err != nil {
		return result, err
	}
	if err := d.bus.WriteRegister(CommandReg, byte(CmdCalcCRC)); err != nil {
		return result, err
	}

	err := pollStatus(d.config.CRCPollConfig, StatusTimeOut, func() (bool, error) {
		v, err := d.bus.ReadRegister(DivIrqReg)
		if err != nil {
			return false, err
		}
		return v&CRCIRq != 0, nil
	})
	if err != nil {
		return result, d.bus.timedOut("CalcCRC", d.commandError(CmdCalcCRC, err, len(data), 0))
	}

	if err := d.bus.WriteRegister(CommandReg, byte(CmdIdle)); err != nil {
		return result, err
	}
	if result[0], err = d.bus.ReadRegister(CRCResultRegL); err != nil {
		return result, err
	}
	if result[1], err = d.bus.ReadRegister(CRCResultRegH); err != nil {
		return result, err
	}
	return result, nil
}

// appendCRC returns frame followed by its CRC.
func (d *Device) appendCRC(frame []byte) ([]byte, error) {
	crc, err := d.CalculateCRC(frame)
	if err != nil {
		return nil, err
	}
	return append(frame, crc[0], crc[1]), nil
}

// verifyCRC checks that the last two bytes of resp are the CRC of the rest.
func (d *Device) verifyCRC(resp []byte) error {
	if len(resp) < 3 {
		return StatusCRCError
	}
	crc, err := d.CalculateCRC(resp[:len(resp)-2])
	if err != nil {
		return err
	}
	if crc[0] != resp[len(resp)-2] || crc[1] != resp[len(resp)-1] {
		return StatusCRCError
	}
	return nil
}
