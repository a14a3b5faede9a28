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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyTransport fails the first failures calls with err.
type flakyTransport struct {
	*MockTransport
	err      error
	failures int
	calls    int
}

func (f *flakyTransport) ReadRegister(reg Register, buf []byte) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.MockTransport.ReadRegister(reg, buf)
}

func (f *flakyTransport) WriteRegister(reg Register, data ...byte) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.MockTransport.WriteRegister(reg, data...)
}

func quickRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 3, InitialBackoff: time.Microsecond, MaxBackoff: time.Microsecond, BackoffMultiplier: 1}
}

func TestTransportWithRetry_RecoversFromTransientRead(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetRegister(VersionReg, 0x92)
	flaky := &flakyTransport{MockTransport: mock, failures: 2, err: NewTransportReadError("ReadRegister", "spi0", nil)}
	tr := NewTransportWithRetry(flaky, quickRetry())

	buf := make([]byte, 1)
	require.NoError(t, tr.ReadRegister(VersionReg, buf))
	assert.Equal(t, byte(0x92), buf[0])
	assert.Equal(t, 3, flaky.calls)
}

func TestTransportWithRetry_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	flaky := &flakyTransport{MockTransport: NewMockTransport(), failures: 10, err: NewTimeoutError("WriteRegister", "i2c1")}
	tr := NewTransportWithRetry(flaky, quickRetry())

	err := tr.WriteRegister(CommandReg, byte(CmdIdle))
	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 3, flaky.calls)
}

func TestTransportWithRetry_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	flaky := &flakyTransport{MockTransport: NewMockTransport(), failures: 10, err: NewTransportClosedError("ReadRegister", "spi0")}
	tr := NewTransportWithRetry(flaky, quickRetry())

	err := tr.ReadRegister(CommandReg, make([]byte, 1))
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.Equal(t, 1, flaky.calls)
}

func TestTransportWithRetry_FIFOBurstsNotRetried(t *testing.T) {
	t.Parallel()

	flaky := &flakyTransport{MockTransport: NewMockTransport(), failures: 1, err: NewTransportWriteError("WriteRegister", "spi0", nil)}
	tr := NewTransportWithRetry(flaky, quickRetry())

	require.Error(t, tr.WriteRegister(FIFODataReg, 0x93, 0x20))
	assert.Equal(t, 1, flaky.calls)

	flaky.calls, flaky.failures = 0, 1
	require.Error(t, tr.ReadRegister(FIFODataReg, make([]byte, 4)))
	assert.Equal(t, 1, flaky.calls)

	// single-byte FIFO access is safe to repeat
	flaky.calls, flaky.failures = 0, 1
	require.NoError(t, tr.WriteRegister(FIFODataReg, 0x26))
	assert.Equal(t, 2, flaky.calls)
}

func TestTransportWithRetry_WrapsPlainErrors(t *testing.T) {
	t.Parallel()

	flaky := &flakyTransport{MockTransport: NewMockTransport(), failures: 10, err: errors.New("wire fault")}
	tr := NewTransportWithRetry(flaky, quickRetry())

	err := tr.ReadRegister(ErrorReg, make([]byte, 1))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ReadRegister", te.Op)
	assert.False(t, te.Retryable)
	assert.Equal(t, 1, flaky.calls)
}

func TestTransportWithRetry_Delegates(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	tr := NewTransportWithRetry(mock, nil)

	assert.Equal(t, TransportMock, tr.Type())
	assert.True(t, tr.IsConnected())
	require.NoError(t, tr.SetTimeout(time.Second))
	tr.SetRetryConfig(quickRetry())
	require.NoError(t, tr.Close())
	assert.False(t, mock.IsConnected())
}

func TestMockTransport_QueueAndHooks(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetRegister(FIFOLevelReg, 0x05)
	mock.QueueRead(FIFOLevelReg, 0x01, 0x02)

	buf := make([]byte, 3)
	require.NoError(t, mock.ReadRegister(FIFOLevelReg, buf))
	assert.Equal(t, []byte{0x01, 0x02, 0x05}, buf)

	var hooked []byte
	mock.OnWrite(CommandReg, func(_ *MockTransport, data []byte) { hooked = data })
	require.NoError(t, mock.WriteRegister(CommandReg, 0x0C))
	assert.Equal(t, []byte{0x0C}, hooked)
	assert.Equal(t, []byte{0x0C}, mock.WritesTo(CommandReg))

	err := mock.ReadRegister(Register(0x40), buf)
	require.ErrorIs(t, err, ErrInvalidRegister)
	assert.True(t, IsFatal(err))
}
