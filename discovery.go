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

import (
	"context"
	"fmt"
	"time"
)

// ATQA is the answer a card gives to REQA or WUPA.
type ATQA [2]byte

// IsCardPresent sends REQA and reports whether an idle card answered with a
// well-formed ATQA. Silence is not an error: it returns false with a nil error.
// Other failures (collision, bus error) return false with that error.
func (d *Device) IsCardPresent() (bool, error) {
	return d.request(PICCRequestA)
}

// WakeUp sends WUPA, which also reaches halted cards.
func (d *Device) WakeUp() (bool, error) {
	return d.request(PICCWakeUpA)
}

// CardCheck tries REQA and falls back to WUPA.
func (d *Device) CardCheck() (bool, error) {
	present, err := d.IsCardPresent()
	if present || (err != nil && IsFatal(err)) {
		return present, err
	}
	return d.WakeUp()
}

func (d *Device) request(cmd byte) (bool, error) {
	d.setState(StateIdle)
	if err := d.bus.ClearBitMask(CollReg, ValuesAfterCollBit); err != nil {
		return false, err
	}

	var atqa ATQA
	// REQA and WUPA are 7-bit short frames
	n, err := d.TransceiveBits([]byte{cmd}, 7, atqa[:])
	if err != nil {
		if StatusOf(err) == StatusTimeOut {
			return false, nil
		}
		return false, err
	}
	if n != len(atqa) || d.lastBits != 0 {
		Debugf("request 0x%02X: malformed ATQA (%d bytes, %d last bits)", cmd, n, d.lastBits)
		return false, nil
	}
	d.setState(StateRequested)
	return true, nil
}

// GetUID runs the cascade level 1 anti-collision loop with no known UID bits
// and returns the 4 identity bytes plus BCC. A collision is reported as
// StatusCollisionError; a short answer as StatusProtocolError; a bad check
// byte as StatusBCCError together with the bytes that were read.
func (d *Device) GetUID() (UID, error) {
	var uid UID
	if err := d.checkOpen(); err != nil {
		return uid, err
	}
	d.setState(StateUIDPending)

	if err := d.bus.WriteRegister(BitFramingReg, 0x00); err != nil {
		return uid, d.fail(err)
	}
	n, err := d.Communicate(CmdTransceive, []byte{PICCSelectCL1, nvbAnticollision}, uid[:])
	if err != nil {
		if StatusOf(err) == StatusCollisionError {
			d.logCollision()
		}
		return uid, d.fail(err)
	}
	if n != len(uid) {
		return uid, d.fail(&CommandError{
			Op: "GetUID", Command: CmdTransceive, Status: StatusProtocolError, Sent: 2, Received: n,
		})
	}
	if !uid.Valid() {
		return uid, d.fail(&CommandError{
			Op: "GetUID", Command: CmdTransceive, Status: StatusBCCError, Sent: 2, Received: n,
		})
	}

	d.uid = uid
	d.setState(StateUIDAcquired)
	return uid, nil
}

func (d *Device) logCollision() {
	coll, err := d.bus.ReadRegister(CollReg)
	if err != nil {
		return
	}
	if coll&CollPosNotValidBit != 0 {
		Debugln("anti-collision: collision outside the valid range")
		return
	}
	pos := int(coll & CollPosMask)
	if pos == 0 {
		pos = 32
	}
	Debugf("anti-collision: collision at bit %d", pos)
}

// WaitForUID blocks until a card is presented and its UID read with a valid
// BCC. Between attempts it pauses CardPollInterval. Only ctx cancellation or a
// fatal bus error ends the wait early.
func (d *Device) WaitForUID(ctx context.Context) (UID, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return UID{}, err
		}

		uid, err := d.tryReadUID()
		if err == nil {
			return uid, nil
		}
		if IsFatal(err) {
			return UID{}, fmt.Errorf("wait for UID: %w", err)
		}

		if timer == nil {
			timer = time.NewTimer(d.config.CardPollInterval)
		} else {
			timer.Reset(d.config.CardPollInterval)
		}
		select {
		case <-ctx.Done():
			return UID{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *Device) tryReadUID() (UID, error) {
	present, err := d.IsCardPresent()
	if err != nil {
		return UID{}, err
	}
	if !present {
		return UID{}, ErrNoCard
	}
	uid, err := d.GetUID()
	if err != nil {
		Debugf("UID read failed: %v", err)
		return UID{}, err
	}
	return uid, nil
}

// SelectCard selects the card whose identity bytes are id and returns its SAK.
func (d *Device) SelectCard(id [4]byte) (byte, error) {
	if err := d.checkOpen(); err != nil {
		return 0, err
	}

	frame, err := d.appendCRC([]byte{PICCSelectCL1, nvbSelect, id[0], id[1], id[2], id[3], BCC(id)})
	if err != nil {
		return 0, d.fail(err)
	}
	if err := d.bus.WriteRegister(BitFramingReg, 0x00); err != nil {
		return 0, d.fail(err)
	}

	var resp [3]byte
	n, err := d.Communicate(CmdTransceive, frame, resp[:])
	if err != nil {
		return 0, d.fail(err)
	}
	if n != len(resp) || d.lastBits != 0 {
		return 0, d.fail(&CommandError{
			Op: "SelectCard", Command: CmdTransceive, Status: StatusProtocolError, Sent: len(frame), Received: n,
		})
	}
	if err := d.verifyCRC(resp[:]); err != nil {
		return 0, d.fail(err)
	}

	d.uid = NewUID(id)
	d.setState(StateSelected)
	return resp[0], nil
}

// Halt sends HLTA. The card acknowledges by staying silent, so a timeout is
// success; any answer is a protocol error. Crypto1 is switched off either way.
func (d *Device) Halt() error {
	if err := d.checkOpen(); err != nil {
		return err
	}

	frame, err := d.appendCRC([]byte{PICCHaltA, 0x00})
	if err != nil {
		return d.fail(err)
	}
	_, err = d.Transceive(frame, nil)
	if stopErr := d.StopCrypto1(); stopErr != nil {
		return d.fail(stopErr)
	}

	switch StatusOf(err) {
	case StatusTimeOut:
		d.setState(StateHalted)
		return nil
	case StatusOK:
		return d.fail(&CommandError{
			Op: "Halt", Command: CmdTransceive, Status: StatusProtocolError, Sent: len(frame),
		})
	default:
		return d.fail(err)
	}
}
