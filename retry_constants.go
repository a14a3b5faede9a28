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

import "time"

// Connection retry constants control device connection behavior.
const (
	// DefaultConnectionRetries is the number of attempts to connect to a device.
	DefaultConnectionRetries = 3
	// ConnectionInitialBackoff is the initial delay between connection attempts.
	ConnectionInitialBackoff = 100 * time.Millisecond
	// ConnectionMaxBackoff is the maximum delay between connection attempts.
	ConnectionMaxBackoff = 500 * time.Millisecond
	// ConnectionBackoffMultiplier is the exponential backoff multiplier.
	ConnectionBackoffMultiplier = 2.0
	// ConnectionJitter is the random jitter factor (0.0-1.0) to prevent thundering herd.
	ConnectionJitter = 0.1
	// ConnectionRetryTimeout is the overall timeout for all connection attempts.
	ConnectionRetryTimeout = 10 * time.Second
)

// Command completion polling. The chip timer set up by Initialize fires after
// about 25 ms, so the budget only has to outlast it.
const (
	// CommandPollAttempts bounds ComIrqReg checks while a command runs.
	CommandPollAttempts = 2000
	// CommandPollInterval is the pause between ComIrqReg checks.
	CommandPollInterval = 50 * time.Microsecond
)

// CRC coprocessor polling.
const (
	// CRCPollAttempts bounds DivIrqReg checks while CalcCRC runs.
	CRCPollAttempts = 5000
	// CRCPollInterval is the pause between DivIrqReg checks.
	CRCPollInterval = 0
)

// Boot-up polling after reset. The datasheet oscillator start-up is well
// under 40 ms.
const (
	// BootPollAttempts bounds CommandReg PowerDown checks.
	BootPollAttempts = 100
	// BootPollInterval is the pause between PowerDown checks.
	BootPollInterval = time.Millisecond
	// SoftResetSettle is the pause after issuing SoftReset before polling.
	SoftResetSettle = 50 * time.Millisecond
	// ResetPulseWidth holds the reset line low; the chip needs at least 100 ns.
	ResetPulseWidth = time.Microsecond
)

// Self-test polling for the 64-byte result.
const (
	// SelfTestPollAttempts bounds FIFOLevelReg checks during self-test.
	SelfTestPollAttempts = 0xFF
	// SelfTestPollInterval is the pause between FIFOLevelReg checks.
	SelfTestPollInterval = 100 * time.Microsecond
)

// Card discovery timing.
const (
	// DefaultCardPollInterval is the pause between WaitForUID attempts.
	DefaultCardPollInterval = 50 * time.Millisecond
	// CardOperationRetries is the attempt count for operation-level retries.
	CardOperationRetries = 3
	// CardRetryDelay1 is the delay before the first retry.
	CardRetryDelay1 = 100 * time.Millisecond
	// CardRetryDelay2 is the delay before the second retry.
	CardRetryDelay2 = 150 * time.Millisecond
	// CardRetryDelay3 is the delay before the third retry.
	CardRetryDelay3 = 250 * time.Millisecond
)

// Transport constants.
const (
	// TransportRegisterRetries is the attempt count for TransportWithRetry.
	TransportRegisterRetries = 3
	// TransportDefaultTimeout is the per-transaction timeout for serial buses.
	TransportDefaultTimeout = 100 * time.Millisecond
)
