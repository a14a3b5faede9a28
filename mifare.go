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

// MIFARE Classic 1K geometry.
const (
	MaxBlock        = 63
	BlocksPerSector = 4
)

// SectorOf returns the sector holding block.
func SectorOf(block byte) int {
	return int(block) / BlocksPerSector
}

// SectorTrailer returns the trailer block address of block's sector.
func SectorTrailer(block byte) byte {
	return block | (BlocksPerSector - 1)
}

// IsTrailerBlock reports whether block is a sector trailer holding keys and
// access bits.
func IsTrailerBlock(block byte) bool {
	return block%BlocksPerSector == BlocksPerSector-1
}

func checkBlock(block byte) error {
	if block > MaxBlock {
		return fmt.Errorf("%w: block %d", ErrInvalidBlock, block)
	}
	return nil
}

// AuthenticateCard runs MFAuthent for the sector containing block. The key is
// passed to the chip as is. Success is judged by the chip's crypto unit flag;
// a rejected key leaves the state machine at Idle and returns a non-nil status.
func (d *Device) AuthenticateCard(kt KeyType, block byte, key SectorKey, id [4]byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if kt != KeyA && kt != KeyB {
		return fmt.Errorf("%w: key type %s", ErrInvalidParameter, kt)
	}
	if err := checkBlock(block); err != nil {
		return err
	}

	send := make([]byte, 0, 12)
	send = append(send, byte(kt), block)
	send = append(send, key[:]...)
	send = append(send, id[:]...)

	if _, err := d.Communicate(CmdMFAuthent, send, nil); err != nil {
		Debugf("authenticate block %d with %s: %v", block, kt, err)
		return d.fail(err)
	}

	status2, err := d.bus.ReadRegister(Status2Reg)
	if err != nil {
		return d.fail(err)
	}
	if status2&MFCrypto1OnBit == 0 {
		Debugf("authenticate block %d with %s: crypto unit not enabled", block, kt)
		return d.fail(&CommandError{
			Op: "AuthenticateCard", Command: CmdMFAuthent, Status: StatusGeneralStatusError, Sent: len(send),
		})
	}

	d.setState(StateAuthenticated)
	d.authSector = SectorOf(block)
	return nil
}

// StopCrypto1 leaves the authenticated state so the card can be addressed in
// plain text again.
func (d *Device) StopCrypto1() error {
	if err := d.bus.ClearBitMask(Status2Reg, MFCrypto1OnBit); err != nil {
		return err
	}
	if d.state == StateAuthenticated {
		d.setState(StateSelected)
	}
	return nil
}

// Authenticated reports whether the sector holding block is unlocked.
func (d *Device) Authenticated(block byte) bool {
	return d.state == StateAuthenticated && d.authSector == SectorOf(block)
}

func (d *Device) requireAuth(block byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if err := checkBlock(block); err != nil {
		return err
	}
	if !d.Authenticated(block) {
		return fmt.Errorf("%w: sector %d: %w", ErrNotAuthenticated, SectorOf(block), StatusGeneralStatusError)
	}
	return nil
}

// ReadBlock reads one 16-byte block from the authenticated sector. The answer
// CRC is checked by the coprocessor.
func (d *Device) ReadBlock(block byte) (Block, error) {
	var out Block
	if err := d.requireAuth(block); err != nil {
		return out, err
	}

	frame, err := d.appendCRC([]byte{PICCMifareRead, block})
	if err != nil {
		return out, d.fail(err)
	}
	var resp [BlockSize + 2]byte
	n, err := d.Transceive(frame, resp[:])
	if err != nil {
		return out, d.fail(err)
	}
	if n == 1 && d.lastBits == mifareAckBits {
		Debugf("read block %d: NAK 0x%X", block, resp[0])
		return out, d.fail(&CommandError{
			Op: "ReadBlock", Command: CmdTransceive, Status: StatusGeneralStatusError, Sent: len(frame), Received: n,
		})
	}
	if n != len(resp) {
		return out, d.fail(&CommandError{
			Op: "ReadBlock", Command: CmdTransceive, Status: StatusProtocolError, Sent: len(frame), Received: n,
		})
	}
	if err := d.verifyCRC(resp[:]); err != nil {
		return out, d.fail(err)
	}

	copy(out[:], resp[:BlockSize])
	return out, nil
}

// WriteBlock writes one 16-byte block in the authenticated sector. The card
// must acknowledge both the command and the data phase.
func (d *Device) WriteBlock(block byte, data Block) error {
	if err := d.requireAuth(block); err != nil {
		return err
	}

	if err := d.mifareExchange([]byte{PICCMifareWrite, block}); err != nil {
		return d.fail(fmt.Errorf("write block %d command: %w", block, err))
	}
	if err := d.mifareExchange(data[:]); err != nil {
		return d.fail(fmt.Errorf("write block %d data: %w", block, err))
	}
	return nil
}

// mifareExchange sends payload plus CRC and expects the 4-bit ACK.
func (d *Device) mifareExchange(payload []byte) error {
	frame, err := d.appendCRC(payload)
	if err != nil {
		return err
	}
	var ack [1]byte
	n, err := d.Transceive(frame, ack[:])
	if err != nil {
		return err
	}
	if n != 1 || d.lastBits != mifareAckBits || ack[0]&0x0F != mifareACK {
		return &CommandError{
			Op: "mifare", Command: CmdTransceive, Status: StatusWriteError, Sent: len(frame), Received: n,
		}
	}
	return nil
}
