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
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimDevice(t *testing.T) (*mfrc522.Device, *testutil.VirtualMFRC522) {
	t.Helper()
	device, sim, err := testutil.NewSimulatedDevice()
	require.NoError(t, err)
	return device, sim
}

func recoveryConfig(backoff time.Duration, attempts int) SleepRecoveryConfig {
	return SleepRecoveryConfig{RecoveryBackoff: backoff, MaxRecoveryAttempts: attempts}
}

func TestNewRecoverer(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)

	t.Run("WithDefaults", func(t *testing.T) {
		t.Parallel()
		r := NewRecoverer(device, nil, SleepRecoveryConfig{})
		assert.Equal(t, 3, r.config.MaxRecoveryAttempts)
		assert.Equal(t, 500*time.Millisecond, r.config.RecoveryBackoff)
	})

	t.Run("WithCustomValues", func(t *testing.T) {
		t.Parallel()
		r := NewRecoverer(device, nil, recoveryConfig(100*time.Millisecond, 5))
		assert.Equal(t, 5, r.config.MaxRecoveryAttempts)
		assert.Equal(t, 100*time.Millisecond, r.config.RecoveryBackoff)
	})
}

func TestRecoverer_Backoff(t *testing.T) {
	t.Parallel()

	r := NewRecoverer(nil, nil, recoveryConfig(10*time.Millisecond, 10))
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 10 * time.Millisecond},
		{attempt: 2, want: 20 * time.Millisecond},
		{attempt: 3, want: 40 * time.Millisecond},
		{attempt: 4, want: 80 * time.Millisecond},
		{attempt: 9, want: 80 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRecoverer_ReinitializeSuccess(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	// scramble the baseline so re-initialization is observable
	sim.WriteRegister(mfrc522.TModeReg, 0x00)

	r := NewRecoverer(device, nil, recoveryConfig(10*time.Millisecond, 3))

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Same(t, device, r.GetDevice())
	assert.Equal(t, byte(0x80), sim.Register(mfrc522.TModeReg))
	assert.Empty(t, r.Failures())
}

func TestRecoverer_ReinitializeFailsNoReopen(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetNeverBoot(true)

	r := NewRecoverer(device, nil, recoveryConfig(time.Millisecond, 2))

	err := r.AttemptRecovery(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mfrc522.StatusBootTimeout)
	assert.Len(t, r.Failures(), 2)
}

func TestRecoverer_FullReconnectSuccess(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetNeverBoot(true)
	newDevice, _ := newSimDevice(t)

	reopenCalled := false
	reopenFunc := func() (*mfrc522.Device, error) {
		reopenCalled = true
		return newDevice, nil
	}

	r := NewRecoverer(device, reopenFunc, recoveryConfig(time.Millisecond, 3))

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.True(t, reopenCalled)
	assert.Same(t, newDevice, r.GetDevice())
	failures := r.Failures()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], mfrc522.StatusBootTimeout)
}

func TestRecoverer_RejectsUnknownChip(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetVersion(mfrc522.Version(0xFF))

	r := NewRecoverer(device, nil, recoveryConfig(time.Millisecond, 1))

	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, mfrc522.ErrDeviceNotSupported)
}

func TestRecoverer_AllAttemptsFail(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetNeverBoot(true)

	reopenErr := errors.New("reopen failed")
	calls := 0
	reopenFunc := func() (*mfrc522.Device, error) {
		calls++
		return nil, reopenErr
	}

	r := NewRecoverer(device, reopenFunc, recoveryConfig(time.Millisecond, 2))

	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, reopenErr)
	assert.Equal(t, 2, calls)
	assert.Len(t, r.Failures(), 4)
}

func TestRecoverer_ContextCancellation(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.SetNeverBoot(true)

	r := NewRecoverer(device, nil, recoveryConfig(100*time.Millisecond, 5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.AttemptRecovery(ctx)
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}
