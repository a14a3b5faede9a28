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
	"errors"
	"fmt"
)

// Status is the outcome of a protocol-level exchange with the chip or card.
//
// Every protocol operation reports its status through the error it returns:
// a nil error is StatusOK, anything else carries a Status that can be
// recovered with StatusOf or matched with errors.Is.
type Status byte

// Status codes.
const (
	StatusOK                 Status = 0x00
	StatusProtocolError      Status = 0x01
	StatusParityError        Status = 0x02
	StatusCRCError           Status = 0x03
	StatusCollisionError     Status = 0x04
	StatusBufferOverflow     Status = 0x05
	StatusTemperatureError   Status = 0x06
	StatusWriteError         Status = 0x07
	StatusTimeOut            Status = 0x08
	StatusBCCError           Status = 0x09
	StatusGeneralStatusError Status = 0x10
	StatusBootTimeout        Status = 0x11
)

var statusNames = map[Status]string{
	StatusOK:                 "ok",
	StatusProtocolError:      "protocol error",
	StatusParityError:        "parity error",
	StatusCRCError:           "CRC error",
	StatusCollisionError:     "collision error",
	StatusBufferOverflow:     "FIFO buffer overflow",
	StatusTemperatureError:   "temperature error",
	StatusWriteError:         "write error",
	StatusTimeOut:            "timeout",
	StatusBCCError:           "BCC mismatch",
	StatusGeneralStatusError: "general status error",
	StatusBootTimeout:        "boot timeout",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02X", byte(s))
}

// Error implements error so a Status can travel through error returns.
func (s Status) Error() string {
	return "mfrc522: " + s.String()
}

// Err returns nil for StatusOK and the status itself otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return s
}

// StatusOf extracts the Status carried by err. A nil error is StatusOK and an
// error without a Status (bus failure, closed device) is StatusGeneralStatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusGeneralStatusError
}

// statusFromErrorReg maps ErrorReg flags to a status. WrErr is not part of the
// ranking; write paths inspect it themselves.
func statusFromErrorReg(flags byte) Status {
	switch {
	case flags&BufferOvflBit != 0:
		return StatusBufferOverflow
	case flags&CRCErrBit != 0:
		return StatusCRCError
	case flags&ParityErrBit != 0:
		return StatusParityError
	case flags&ProtocolErrBit != 0:
		return StatusProtocolError
	case flags&CollErrBit != 0:
		return StatusCollisionError
	case flags&TempErrBit != 0:
		return StatusTemperatureError
	default:
		return StatusOK
	}
}
