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

// waitBits returns the ComIrqReg bits that mark completion of cmd.
func waitBits(cmd Command) byte {
	//nolint:exhaustive // every other command completes by going idle
	switch cmd {
	case CmdTransceive, CmdReceive:
		return RxIRq | IdleIRq
	default:
		return IdleIRq
	}
}

// Communicate executes cmd against FIFO-buffered data and waits for it to finish.
//
// Any running command is cancelled, pending interrupts are cleared and the
// FIFO is flushed before send is loaded and cmd issued. Completion is polled
// within PollConfig. On success up to len(recv) received bytes are copied into
// recv and their count returned with a nil error. Failures carry a Status:
// TimeOut when the chip timer fired or the poll budget ran out, otherwise the
// ErrorReg status. A BufferOverflow still copies what the FIFO holds.
//
// The command register is not returned to Idle; the next call does that.
func (d *Device) Communicate(cmd Command, send, recv []byte) (int, error) {
	if err := d.checkOpen(); err != nil {
		return 0, err
	}
	if len(send) > FIFOSize {
		return 0, fmt.Errorf("%w: %d bytes exceeds the %d byte FIFO", ErrDataTooLarge, len(send), FIFOSize)
	}

	if err := d.startCommand(cmd, send); err != nil {
		return 0, err
	}

	wait := waitBits(cmd)
	var irq byte
	pollErr := pollStatus(d.config.PollConfig, StatusTimeOut, func() (bool, error) {
		v, err := d.bus.ReadRegister(ComIrqReg)
		if err != nil {
			return false, err
		}
		irq = v
		return v&(wait|ErrIRq|TimerIRq) != 0, nil
	})

	if cmd == CmdTransceive {
		if err := d.bus.ClearBitMask(BitFramingReg, StartSendBit); err != nil {
			return 0, err
		}
	}

	if pollErr != nil {
		return 0, d.bus.timedOut(cmd.String(), d.commandError(cmd, pollErr, len(send), 0))
	}
	if irq&(wait|ErrIRq) == 0 {
		// only the timer fired
		return 0, d.commandError(cmd, StatusTimeOut, len(send), 0)
	}

	flags, err := d.bus.ReadRegister(ErrorReg)
	if err != nil {
		return 0, err
	}
	status := statusFromErrorReg(flags)
	switch status {
	case StatusOK:
	case StatusBufferOverflow:
		n, err := d.drainFIFO(recv)
		if err != nil {
			return n, err
		}
		return n, d.commandError(cmd, status, len(send), n)
	default:
		return 0, d.commandError(cmd, status, len(send), 0)
	}

	n, err := d.drainFIFO(recv)
	if err != nil {
		return n, err
	}
	control, err := d.bus.ReadRegister(ControlReg)
	if err != nil {
		return n, err
	}
	d.lastBits = control & RxLastBitsMask
	return n, nil
}

// startCommand idles the chip, clears interrupts, loads the FIFO and issues cmd.
func (d *Device) startCommand(cmd Command, send []byte) error {
	if err := d.bus.WriteRegister(CommandReg, byte(CmdIdle)); err != nil {
		return err
	}
	if err := d.bus.WriteRegister(ComIrqReg, AllComIRqs); err != nil {
		return err
	}
	if err := d.bus.WriteRegister(FIFOLevelReg, FlushBufferBit); err != nil {
		return err
	}
	if err := d.bus.WriteRegisters(FIFODataReg, send); err != nil {
		return err
	}
	if err := d.bus.WriteRegister(CommandReg, byte(cmd)); err != nil {
		return err
	}
	if cmd == CmdTransceive {
		return d.bus.SetBitMask(BitFramingReg, StartSendBit)
	}
	return nil
}

// drainFIFO copies min(FIFO level, len(recv)) bytes into recv.
func (d *Device) drainFIFO(recv []byte) (int, error) {
	level, err := d.FIFOLevel()
	if err != nil {
		return 0, err
	}
	n := min(level, len(recv))
	if err := d.bus.ReadRegisters(FIFODataReg, recv[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *Device) commandError(cmd Command, err error, sent, received int) error {
	var s Status
	if !asStatus(err, &s) {
		return err
	}
	Debugf("%s failed: %s", cmd, s)
	return &CommandError{Op: "communicate", Command: cmd, Status: s, Sent: sent, Received: received}
}

func asStatus(err error, s *Status) bool {
	st, ok := err.(Status) //nolint:errorlint // statuses are produced unwrapped in this file
	if ok {
		*s = st
	}
	return ok
}

// LastBits returns the number of valid bits in the last received byte of the
// previous exchange (0 means the whole byte is valid).
func (d *Device) LastBits() byte {
	return d.lastBits
}

// Transceive sends a frame to the card and collects its answer.
func (d *Device) Transceive(send, recv []byte) (int, error) {
	return d.TransceiveBits(send, 0, recv)
}

// TransceiveBits sends a frame whose last byte carries only txLastBits bits
// (0 for a whole byte).
func (d *Device) TransceiveBits(send []byte, txLastBits byte, recv []byte) (int, error) {
	if err := d.bus.WriteRegister(BitFramingReg, txLastBits&TxLastBitsMask); err != nil {
		return 0, err
	}
	return d.Communicate(CmdTransceive, send, recv)
}

// Transmit sends data over the air without waiting for an answer.
func (d *Device) Transmit(data []byte) error {
	if _, err := d.Communicate(CmdTransmit, data, nil); err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	return nil
}

// Receive activates the receiver and copies the next incoming frame into recv.
func (d *Device) Receive(recv []byte) (int, error) {
	n, err := d.Communicate(CmdReceive, nil, recv)
	if err != nil {
		return n, fmt.Errorf("receive: %w", err)
	}
	return n, nil
}

// WriteFIFO flushes the FIFO and loads data into it without running a command.
func (d *Device) WriteFIFO(data []byte) error {
	if len(data) > FIFOSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte FIFO", ErrDataTooLarge, len(data), FIFOSize)
	}
	if err := d.ClearFIFO(); err != nil {
		return err
	}
	return d.bus.WriteRegisters(FIFODataReg, data)
}

// ReadFIFO drains up to n bytes from the FIFO.
func (d *Device) ReadFIFO(n int) (Buffer, error) {
	var buf Buffer
	n = max(0, min(n, FIFOSize))
	got, err := d.drainFIFO(buf.data[:n])
	buf.n = got
	return buf, err
}

// FIFOLevel returns the number of bytes currently stored in the FIFO.
func (d *Device) FIFOLevel() (int, error) {
	level, err := d.bus.ReadRegister(FIFOLevelReg)
	if err != nil {
		return 0, err
	}
	return int(level & FIFOLevelMask), nil
}
