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

package polling

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// maxBackoffFactor caps the doubling of the recovery backoff.
const maxBackoffFactor = 8

// DeviceRecoverer brings a failed reader back. The session swaps in
// GetDevice after every successful AttemptRecovery.
type DeviceRecoverer interface {
	AttemptRecovery(ctx context.Context) error
	GetDevice() *mfrc522.Device
}

// ReopenFunc opens a fresh device, typically by repeating ConnectDevice.
type ReopenFunc func() (*mfrc522.Device, error)

// Recoverer tries, on every attempt, to bring the current device back with
// a reset and register baseline, then to replace it through reopen. The
// chip must answer with a known version before either counts as recovered.
// Attempts back off exponentially from the configured delay.
type Recoverer struct {
	device  *mfrc522.Device
	reopen  ReopenFunc
	config  SleepRecoveryConfig
	mu      syncutil.Mutex
	history []error
}

// NewRecoverer creates a Recoverer. reopen may be nil, in which case only
// the reset tier runs. Zero attempt and backoff values take the defaults.
func NewRecoverer(device *mfrc522.Device, reopen ReopenFunc, config SleepRecoveryConfig) *Recoverer {
	defaults := DefaultSleepRecoveryConfig()
	if config.MaxRecoveryAttempts <= 0 {
		config.MaxRecoveryAttempts = defaults.MaxRecoveryAttempts
	}
	if config.RecoveryBackoff <= 0 {
		config.RecoveryBackoff = defaults.RecoveryBackoff
	}
	return &Recoverer{device: device, reopen: reopen, config: config}
}

// AttemptRecovery runs up to MaxRecoveryAttempts rounds and returns the
// last failure when none succeeds.
func (r *Recoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = r.history[:0]
	for attempt := range r.config.MaxRecoveryAttempts {
		if attempt > 0 {
			if err := sleepCtx(ctx, r.backoff(attempt)); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		err := reinitialize(r.device)
		if err == nil {
			mfrc522.Debugf("recovery attempt %d: chip re-initialized", attempt+1)
			return nil
		}
		r.history = append(r.history, err)

		if r.reopen == nil {
			continue
		}
		_ = r.device.Close()
		device, err := r.reopen()
		if err == nil {
			err = verify(device)
			if err == nil {
				mfrc522.Debugf("recovery attempt %d: reader reopened", attempt+1)
				r.device = device
				return nil
			}
			_ = device.Close()
		}
		r.history = append(r.history, err)
	}
	return r.history[len(r.history)-1]
}

// GetDevice returns the device currently in use, which changes after a
// reopen.
func (r *Recoverer) GetDevice() *mfrc522.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}

// Failures returns the errors collected by the last AttemptRecovery in the
// order they happened.
func (r *Recoverer) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.history...)
}

func (r *Recoverer) backoff(attempt int) time.Duration {
	factor := 1 << (attempt - 1)
	if factor > maxBackoffFactor {
		factor = maxBackoffFactor
	}
	return r.config.RecoveryBackoff * time.Duration(factor)
}

func reinitialize(device *mfrc522.Device) error {
	if err := device.Initialize(); err != nil {
		return err
	}
	return verify(device)
}

func verify(device *mfrc522.Device) error {
	version, err := device.Version()
	if err != nil {
		return fmt.Errorf("read version after recovery: %w", err)
	}
	if !version.Known() {
		return fmt.Errorf("%w: %s", mfrc522.ErrDeviceNotSupported, version)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
