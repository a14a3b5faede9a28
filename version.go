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

// Version is the content of VersionReg.
type Version byte

// Known chip versions.
const (
	VersionFM17522     Version = 0x88
	VersionV0          Version = 0x90
	VersionV1          Version = 0x91
	VersionV2          Version = 0x92
	VersionCounterfeit Version = 0x12
)

func (v Version) String() string {
	switch v {
	case VersionFM17522:
		return "FM17522 clone"
	case VersionV0:
		return "MFRC522 v0.0"
	case VersionV1:
		return "MFRC522 v1.0"
	case VersionV2:
		return "MFRC522 v2.0"
	case VersionCounterfeit:
		return "counterfeit MFRC522"
	default:
		return fmt.Sprintf("unknown (0x%02X)", byte(v))
	}
}

// Known reports whether v identifies a chip this driver has been used with.
// 0x00 and 0xFF are what a floating bus returns.
func (v Version) Known() bool {
	switch v {
	case VersionFM17522, VersionV0, VersionV1, VersionV2, VersionCounterfeit:
		return true
	default:
		return false
	}
}

// SelfTestResult is the FIFO content produced by the digital self test.
type SelfTestResult [FIFOSize]byte

// Reference self test results for chip versions 1.0 and 2.0.
var (
	SelfTestV1 = SelfTestResult{
		0x00, 0xC6, 0x37, 0xD5, 0x32, 0xB7, 0x57, 0x5C,
		0xC2, 0xD8, 0x7C, 0x4D, 0xD9, 0x70, 0xC7, 0x73,
		0x10, 0xE6, 0xD2, 0xAA, 0x5E, 0xA1, 0x3E, 0x5A,
		0x14, 0xAF, 0x30, 0x61, 0xC9, 0x70, 0xDB, 0x2E,
		0x64, 0x22, 0x72, 0xB5, 0xBD, 0x65, 0xF4, 0xEC,
		0x22, 0xBC, 0xD3, 0x72, 0x35, 0xCD, 0xAA, 0x41,
		0x1F, 0xA7, 0xF3, 0x53, 0x14, 0xDE, 0x7E, 0x02,
		0xD9, 0x0F, 0xB5, 0x5E, 0x25, 0x1D, 0x29, 0x79,
	}
	SelfTestV2 = SelfTestResult{
		0x00, 0xEB, 0x66, 0xBA, 0x57, 0xBF, 0x23, 0x95,
		0xD0, 0xE3, 0x0D, 0x3D, 0x27, 0x89, 0x5C, 0xDE,
		0x9D, 0x3B, 0xA7, 0x00, 0x21, 0x5B, 0x89, 0x82,
		0x51, 0x3A, 0xEB, 0x02, 0x0C, 0xA5, 0x00, 0x49,
		0x7C, 0x84, 0x4D, 0xB3, 0xCC, 0xD2, 0x1B, 0x81,
		0x5D, 0x48, 0x76, 0xD5, 0x71, 0x61, 0x21, 0xA9,
		0x86, 0x96, 0x83, 0x38, 0xCF, 0x9D, 0x5B, 0x6D,
		0xDC, 0x15, 0xBA, 0x3E, 0x7D, 0x95, 0x3B, 0x2F,
	}
)

// MatchSelfTest returns the chip version whose reference result equals got.
func MatchSelfTest(got SelfTestResult) (Version, bool) {
	switch got {
	case SelfTestV1:
		return VersionV1, true
	case SelfTestV2:
		return VersionV2, true
	default:
		return 0, false
	}
}

// SelfTest runs the chip's digital self test and compares the result with
// the reference vectors. The chip is re-initialized afterwards whatever the
// outcome. A mismatch returns false with a nil error.
func (d *Device) SelfTest() (bool, error) {
	result, err := d.runSelfTest()
	if restoreErr := d.restoreAfterSelfTest(); err == nil && restoreErr != nil {
		return false, restoreErr
	}
	if err != nil {
		return false, fmt.Errorf("self test: %w", err)
	}

	if version, ok := MatchSelfTest(result); ok {
		Debugf("self test passed: %s", version)
		return true, nil
	}
	Debugf("self test mismatch: %s", formatHexBytes(result[:]))
	return false, nil
}

func (d *Device) runSelfTest() (SelfTestResult, error) {
	var result SelfTestResult
	if err := d.SoftReset(); err != nil {
		return result, err
	}
	if err := d.ClearInternalBuffer(); err != nil {
		return result, err
	}
	if err := d.bus.WriteRegister(AutoTestReg, SelfTestEnable); err != nil {
		return result, err
	}
	if err := d.WriteFIFO([]byte{0x00}); err != nil {
		return result, err
	}
	if err := d.bus.WriteRegister(CommandReg, byte(CmdCalcCRC)); err != nil {
		return result, err
	}

	err := pollStatus(d.config.SelfTestPollConfig, StatusTimeOut, func() (bool, error) {
		level, err := d.FIFOLevel()
		if err != nil {
			return false, err
		}
		return level >= FIFOSize, nil
	})
	if err != nil {
		return result, d.bus.timedOut("self test", err)
	}

	if err := d.bus.WriteRegister(CommandReg, byte(CmdIdle)); err != nil {
		return result, err
	}
	if err := d.bus.ReadRegisters(FIFODataReg, result[:]); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Device) restoreAfterSelfTest() error {
	if err := d.bus.WriteRegister(AutoTestReg, 0x00); err != nil {
		return err
	}
	return d.Initialize()
}

