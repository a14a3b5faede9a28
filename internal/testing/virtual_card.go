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
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522/internal/frame"
)

// PICC command bytes understood by VirtualCard.
const (
	piccREQA     = 0x26
	piccWUPA     = 0x52
	piccSEL1     = 0x93
	piccHLTA     = 0x50
	piccAuthA    = 0x60
	piccAuthB    = 0x61
	piccRead     = 0x30
	piccWrite    = 0xA0
	nvbAnticoll  = 0x20
	nvbSelect    = 0x70
	mifare1KSAK  = 0x08
	mifareBlocks = 64
)

// CardState is the ISO/IEC 14443-3 state of a VirtualCard.
type CardState int

const (
	CardIdle CardState = iota
	CardReady
	CardActive
	CardHalt
)

func (s CardState) String() string {
	switch s {
	case CardIdle:
		return "IDLE"
	case CardReady:
		return "READY"
	case CardActive:
		return "ACTIVE"
	case CardHalt:
		return "HALT"
	default:
		return fmt.Sprintf("CardState(%d)", int(s))
	}
}

// DefaultTrailer is the factory sector trailer: key A, access bits
// FF 07 80 with GPB 69, key B.
var DefaultTrailer = [16]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0x07, 0x80, 0x69,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// VirtualCard simulates a MIFARE Classic 1K card as seen through the air
// interface. Crypto1 is not modelled: once authenticated, frames travel in
// plain text.
type VirtualCard struct {
	memory       [mifareBlocks][16]byte
	uid          [4]byte
	state        CardState
	authSector   int
	pendingWrite int
	present      bool
}

// NewVirtualCard creates a present card with factory keys and the given UID.
func NewVirtualCard(uid [4]byte) *VirtualCard {
	c := &VirtualCard{
		uid:          uid,
		present:      true,
		authSector:   -1,
		pendingWrite: -1,
	}
	// manufacturer block
	copy(c.memory[0][:4], uid[:])
	c.memory[0][4] = frame.BCC(uid[:])
	c.memory[0][5] = mifare1KSAK
	c.memory[0][6] = 0x04
	for block := 3; block < mifareBlocks; block += 4 {
		c.memory[block] = DefaultTrailer
	}
	return c
}

// UID returns the four identity bytes.
func (c *VirtualCard) UID() [4]byte {
	return c.uid
}

// UIDWithBCC returns the anti-collision answer: identity bytes plus BCC.
func (c *VirtualCard) UIDWithBCC() [5]byte {
	return [5]byte{c.uid[0], c.uid[1], c.uid[2], c.uid[3], frame.BCC(c.uid[:])}
}

// State returns the card's protocol state.
func (c *VirtualCard) State() CardState {
	return c.state
}

// Present reports whether the card is in the field.
func (c *VirtualCard) Present() bool {
	return c.present
}

// Remove takes the card out of the field. It loses power and forgets its state.
func (c *VirtualCard) Remove() {
	c.present = false
	c.powerOff()
}

// Insert brings the card back into the field in the IDLE state.
func (c *VirtualCard) Insert() {
	c.present = true
	c.powerOff()
}

func (c *VirtualCard) powerOff() {
	c.state = CardIdle
	c.authSector = -1
	c.pendingWrite = -1
}

// Block returns a copy of a memory block, bypassing authentication.
func (c *VirtualCard) Block(block int) [16]byte {
	return c.memory[block]
}

// SetBlock overwrites a memory block, bypassing authentication.
func (c *VirtualCard) SetBlock(block int, data [16]byte) {
	c.memory[block] = data
}

// SetSectorKeys rewrites the keys in a sector trailer, keeping the access bits.
func (c *VirtualCard) SetSectorKeys(sector int, keyA, keyB [6]byte) error {
	if sector < 0 || sector >= mifareBlocks/4 {
		return fmt.Errorf("sector %d out of range", sector)
	}
	trailer := &c.memory[sector*4+3]
	copy(trailer[0:6], keyA[:])
	copy(trailer[10:16], keyB[:])
	return nil
}

// AuthenticatedSector returns the unlocked sector, or -1.
func (c *VirtualCard) AuthenticatedSector() int {
	return c.authSector
}

// Authenticate checks key against the trailer of block's sector. On success
// the sector is unlocked; on failure the card drops back to IDLE as a real
// card does after a failed three-pass authentication.
func (c *VirtualCard) Authenticate(keyType byte, block byte, key [6]byte, uid [4]byte) error {
	if !c.present || c.state != CardActive {
		return errors.New("card not selected")
	}
	if int(block) >= mifareBlocks {
		return fmt.Errorf("block %d out of range", block)
	}
	if uid != c.uid {
		return errors.New("uid mismatch")
	}

	sector := int(block) / 4
	trailer := c.memory[sector*4+3]
	var stored []byte
	switch keyType {
	case piccAuthA:
		stored = trailer[0:6]
	case piccAuthB:
		stored = trailer[10:16]
	default:
		return fmt.Errorf("invalid key type 0x%02X", keyType)
	}
	if !bytes.Equal(stored, key[:]) {
		c.powerOff()
		return errors.New("authentication failed")
	}
	c.authSector = sector
	return nil
}

// StopCrypto drops the authenticated session without leaving ACTIVE.
func (c *VirtualCard) StopCrypto() {
	c.authSector = -1
}

// Answer is a card's reply to one frame.
type Answer struct {
	Data     []byte
	LastBits byte
}

// Handle processes one frame from the reader. txLastBits is the number of
// valid bits in the last byte (0 for a whole byte). It returns false when the
// card stays silent.
func (c *VirtualCard) Handle(data []byte, txLastBits byte) (Answer, bool) {
	if !c.present || len(data) == 0 {
		return Answer{}, false
	}

	if txLastBits == frame.ShortFrameBits && len(data) == 1 {
		return c.handleShortFrame(data[0])
	}

	if c.pendingWrite >= 0 {
		return c.handleWriteData(data)
	}

	if data[0] == piccSEL1 && len(data) == 2 && data[1] == nvbAnticoll {
		if c.state != CardReady {
			return Answer{}, false
		}
		uid := c.UIDWithBCC()
		return Answer{Data: uid[:]}, true
	}

	// everything else carries a CRC; a corrupt frame is ignored
	if !frame.CheckCRCA(data) {
		return Answer{}, false
	}
	payload := data[:len(data)-2]

	switch payload[0] {
	case piccSEL1:
		return c.handleSelect(payload)
	case piccHLTA:
		if c.state == CardActive && len(payload) == 2 {
			c.state = CardHalt
			c.authSector = -1
		}
		return Answer{}, false
	case piccRead:
		return c.handleRead(payload)
	case piccWrite:
		return c.handleWriteCommand(payload)
	default:
		return c.nak(frame.NakInvalidArgument), true
	}
}

func (c *VirtualCard) handleShortFrame(cmd byte) (Answer, bool) {
	switch {
	case cmd == piccREQA && c.state == CardIdle,
		cmd == piccWUPA && (c.state == CardIdle || c.state == CardHalt):
		c.state = CardReady
		c.authSector = -1
		return Answer{Data: []byte{0x04, 0x00}}, true
	case c.state == CardReady || c.state == CardActive:
		// an unexpected command sends a card back to IDLE
		c.powerOff()
		return Answer{}, false
	default:
		return Answer{}, false
	}
}

func (c *VirtualCard) handleSelect(payload []byte) (Answer, bool) {
	if c.state != CardReady || len(payload) != 7 || payload[1] != nvbSelect {
		return Answer{}, false
	}
	uid := c.UIDWithBCC()
	if !bytes.Equal(payload[2:7], uid[:]) {
		return Answer{}, false
	}
	c.state = CardActive
	return Answer{Data: frame.AppendCRCA([]byte{mifare1KSAK})}, true
}

func (c *VirtualCard) handleRead(payload []byte) (Answer, bool) {
	if c.state != CardActive || len(payload) != 2 {
		return Answer{}, false
	}
	block := int(payload[1])
	if block >= mifareBlocks || block/4 != c.authSector {
		return c.nak(frame.NakNotAllowed), true
	}
	data := c.memory[block]
	if block%4 == 3 {
		// key A is never readable
		clear(data[0:6])
	}
	return Answer{Data: frame.AppendCRCA(data[:])}, true
}

func (c *VirtualCard) handleWriteCommand(payload []byte) (Answer, bool) {
	if c.state != CardActive || len(payload) != 2 {
		return Answer{}, false
	}
	block := int(payload[1])
	if block == 0 || block >= mifareBlocks || block/4 != c.authSector {
		return c.nak(frame.NakNotAllowed), true
	}
	c.pendingWrite = block
	return c.ack(), true
}

func (c *VirtualCard) handleWriteData(data []byte) (Answer, bool) {
	block := c.pendingWrite
	c.pendingWrite = -1
	if len(data) != 18 || !frame.CheckCRCA(data) {
		return c.nak(frame.NakCRCError), true
	}
	copy(c.memory[block][:], data[:16])
	return c.ack(), true
}

func (*VirtualCard) ack() Answer {
	return Answer{Data: []byte{frame.Ack}, LastBits: frame.AckBits}
}

func (c *VirtualCard) nak(code byte) Answer {
	c.authSector = -1
	c.state = CardIdle
	return Answer{Data: []byte{code}, LastBits: frame.AckBits}
}
