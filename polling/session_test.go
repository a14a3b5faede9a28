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
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		PollInterval:       5 * time.Millisecond,
		CardRemovalTimeout: 100 * time.Millisecond,
	}
}

// runSession starts s in the background and returns a channel carrying
// Start's result. The session is cancelled when the test ends.
func runSession(t *testing.T, s *Session) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	return done
}

func waitUID(t *testing.T, ch <-chan mfrc522.UID) mfrc522.UID {
	t.Helper()
	select {
	case uid := <-ch:
		return uid
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for callback")
		return mfrc522.UID{}
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for Start to return")
		return nil
	}
}

func TestNewSession(t *testing.T) {
	t.Parallel()
	device, _ := newSimDevice(t)

	t.Run("WithDefaultConfig", func(t *testing.T) {
		t.Parallel()
		session := NewSession(device, nil)
		assert.Equal(t, DefaultConfig(), session.config)
		assert.Same(t, device, session.GetDevice())
		assert.False(t, session.GetState().Present)
	})

	t.Run("WithCustomConfig", func(t *testing.T) {
		t.Parallel()
		cfg := fastConfig()
		session := NewSession(device, cfg)
		assert.Same(t, cfg, session.config)
	})
}

func TestSession_DetectAndRemove(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))

	detected := make(chan mfrc522.UID, 1)
	removed := make(chan mfrc522.UID, 1)
	session := NewSession(device, fastConfig())
	session.SetOnCardDetected(func(uid mfrc522.UID) error {
		detected <- uid
		return nil
	})
	session.SetOnCardRemoved(func(uid mfrc522.UID) {
		removed <- uid
	})
	runSession(t, session)

	uid := waitUID(t, detected)
	assert.True(t, uid.Equal(testutil.TestUID))

	sim.RemoveAllCards()
	assert.Equal(t, uid, waitUID(t, removed))
	assert.False(t, session.GetState().Present)

	m := session.Metrics()
	assert.Equal(t, uint64(1), m.CardsDetected)
	assert.Positive(t, m.PollCycles)
}

func TestSession_CardStaysPresent(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))

	var detections atomic.Int32
	var removals atomic.Int32
	session := NewSession(device, fastConfig())
	session.SetOnCardDetected(func(mfrc522.UID) error {
		detections.Add(1)
		return nil
	})
	session.SetOnCardRemoved(func(mfrc522.UID) { removals.Add(1) })
	runSession(t, session)

	// several removal timeouts pass while the card answers every poll
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), detections.Load())
	assert.Zero(t, removals.Load())
	assert.True(t, session.GetState().Present)
}

func TestSession_CardChanged(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))

	cfg := fastConfig()
	cfg.CardRemovalTimeout = time.Second
	detected := make(chan mfrc522.UID, 1)
	changed := make(chan mfrc522.UID, 1)
	session := NewSession(device, cfg)
	session.SetOnCardDetected(func(uid mfrc522.UID) error {
		detected <- uid
		return nil
	})
	session.SetOnCardChanged(func(uid mfrc522.UID) error {
		changed <- uid
		return nil
	})
	runSession(t, session)

	waitUID(t, detected)
	sim.RemoveAllCards()
	sim.AddCard(testutil.NewVirtualCard(testutil.OtherUID))

	uid := waitUID(t, changed)
	assert.True(t, uid.Equal(testutil.OtherUID))
	assert.Equal(t, uid, session.GetState().LastUID)
}

func TestSession_CallbackErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		callback func(mfrc522.UID) error
		name     string
		contains string
	}{
		{
			name:     "error",
			callback: func(mfrc522.UID) error { return errors.New("boom") },
			contains: "OnCardDetected callback failed: boom",
		},
		{
			name:     "panic",
			callback: func(mfrc522.UID) error { panic("kaboom") },
			contains: "OnCardDetected callback panicked: kaboom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, sim := newSimDevice(t)
			sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))
			session := NewSession(device, fastConfig())
			session.SetOnCardDetected(tt.callback)

			err := waitErr(t, runSession(t, session))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, uint64(1), session.Metrics().CallbackErrors)
		})
	}
}

func newFailingDevice(t *testing.T) *mfrc522.Device {
	t.Helper()
	sim := testutil.NewVirtualMFRC522()
	transport := testutil.NewSimulatorTransport(sim)
	device, err := mfrc522.New(transport,
		mfrc522.WithPollConfig(mfrc522.PollConfig{MaxAttempts: 20}),
		mfrc522.WithBootPollConfig(mfrc522.PollConfig{MaxAttempts: 10}),
		mfrc522.WithResetSettle(0),
	)
	require.NoError(t, err)
	require.NoError(t, device.Initialize())
	transport.FailAfter(0)
	return device
}

func TestSession_FatalErrorWithoutRecoverer(t *testing.T) {
	t.Parallel()

	session := NewSession(newFailingDevice(t), fastConfig())

	err := waitErr(t, runSession(t, session))
	require.Error(t, err)
	assert.True(t, mfrc522.IsFatal(err))
	assert.Contains(t, err.Error(), "device failure")
	assert.Equal(t, uint64(1), session.Metrics().PollErrors)
}

func TestSession_RecoversWithReopen(t *testing.T) {
	t.Parallel()

	failing := newFailingDevice(t)
	fresh, sim := newSimDevice(t)
	sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))

	session := NewSession(failing, fastConfig())
	session.SetRecoverer(NewRecoverer(failing, func() (*mfrc522.Device, error) {
		return fresh, nil
	}, SleepRecoveryConfig{RecoveryBackoff: time.Millisecond, MaxRecoveryAttempts: 1}))

	detected := make(chan mfrc522.UID, 1)
	session.SetOnCardDetected(func(uid mfrc522.UID) error {
		detected <- uid
		return nil
	})
	runSession(t, session)

	uid := waitUID(t, detected)
	assert.True(t, uid.Equal(testutil.TestUID))
	assert.Same(t, fresh, session.GetDevice())
	assert.Equal(t, uint64(1), session.Metrics().Recoveries)
}

func TestSession_StartAfterClose(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	session := NewSession(device, fastConfig())
	require.NoError(t, session.Close())

	assert.ErrorIs(t, session.Start(context.Background()), ErrSessionClosed)
}

func TestSession_StartCancelled(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	session := NewSession(device, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, session.Start(ctx), context.Canceled)
}

func TestSession_PauseResume(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	session := NewSession(device, fastConfig())
	detected := make(chan mfrc522.UID, 1)
	session.SetOnCardDetected(func(uid mfrc522.UID) error {
		detected <- uid
		return nil
	})

	session.Pause()
	assert.True(t, session.isPaused.Load())
	runSession(t, session)

	sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))
	select {
	case <-detected:
		require.FailNow(t, "paused session reported a card")
	case <-time.After(50 * time.Millisecond):
	}

	session.Resume()
	assert.False(t, session.isPaused.Load())
	waitUID(t, detected)
}

func TestSession_WriteToCard(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	card := testutil.NewVirtualCard(testutil.TestUID)
	sim.AddCard(card)

	detected := make(chan mfrc522.UID, 1)
	session := NewSession(device, fastConfig())
	session.SetOnCardDetected(func(uid mfrc522.UID) error {
		detected <- uid
		return nil
	})
	runSession(t, session)
	waitUID(t, detected)
	require.Eventually(t, func() bool { return session.GetState().Present }, time.Second, time.Millisecond)

	want := testutil.TestBlock(0x40)
	err := session.WriteToCard(context.Background(),
		func(_ context.Context, dev *mfrc522.Device, uid mfrc522.UID) error {
			if err := dev.AuthenticateCard(mfrc522.KeyA, 4, mfrc522.DefaultKey, uid.Identity()); err != nil {
				return err
			}
			return dev.WriteBlock(4, want)
		})
	require.NoError(t, err)
	assert.Equal(t, want, card.Block(4))
	assert.True(t, session.GetState().Present)
}

func TestSession_WriteFromCallback(t *testing.T) {
	t.Parallel()

	writeBlock := func(want mfrc522.Block) CardFunc {
		return func(_ context.Context, dev *mfrc522.Device, uid mfrc522.UID) error {
			if err := dev.AuthenticateCard(mfrc522.KeyA, 4, mfrc522.DefaultKey, uid.Identity()); err != nil {
				return err
			}
			return dev.WriteBlock(4, want)
		}
	}
	tests := []struct {
		name  string
		write func(ctx context.Context, s *Session, fn CardFunc) error
	}{
		{
			name: "current card",
			write: func(ctx context.Context, s *Session, fn CardFunc) error {
				return s.WriteToCard(ctx, fn)
			},
		},
		{
			name: "next card",
			write: func(ctx context.Context, s *Session, fn CardFunc) error {
				return s.WriteToNextCard(ctx, time.Second, fn)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			device, sim := newSimDevice(t)
			card := testutil.NewVirtualCard(testutil.TestUID)
			sim.AddCard(card)

			want := testutil.TestBlock(0x50)
			session := NewSession(device, fastConfig())
			results := make(chan error, 1)
			var calls atomic.Int32
			session.SetOnCardDetected(func(uid mfrc522.UID) error {
				if calls.Add(1) > 1 {
					return nil
				}
				if !session.GetState().Present || session.GetState().LastUID != uid {
					results <- errors.New("state does not report the detected card")
					return nil
				}
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				results <- tt.write(ctx, session, writeBlock(want))
				return nil
			})
			runSession(t, session)

			select {
			case err := <-results:
				require.NoError(t, err)
			case <-time.After(3 * time.Second):
				require.FailNow(t, "write from callback did not finish")
			}
			assert.Equal(t, want, card.Block(4))
			assert.False(t, session.isPaused.Load())
		})
	}
}

func TestSession_WriteToCardErrors(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *mfrc522.Device, mfrc522.UID) error { return nil }

	t.Run("no card tracked", func(t *testing.T) {
		t.Parallel()
		device, _ := newSimDevice(t)
		session := NewSession(device, fastConfig())
		assert.ErrorIs(t, session.WriteToCard(context.Background(), noop), ErrNoCardPresent)
	})

	t.Run("different card answers", func(t *testing.T) {
		t.Parallel()
		device, sim := newSimDevice(t)
		sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))
		session := NewSession(device, fastConfig())
		session.state.Present = true
		session.state.LastUID = mfrc522.NewUID(testutil.OtherUID)

		called := false
		err := session.WriteToCard(context.Background(),
			func(context.Context, *mfrc522.Device, mfrc522.UID) error {
				called = true
				return nil
			})
		require.ErrorIs(t, err, ErrCardChanged)
		assert.False(t, called)
	})

	t.Run("card left the field", func(t *testing.T) {
		t.Parallel()
		device, _ := newSimDevice(t)
		cfg := fastConfig()
		cfg.WriteRetries = 2
		session := NewSession(device, cfg)
		session.state.Present = true
		session.state.LastUID = mfrc522.NewUID(testutil.TestUID)

		err := session.WriteToCard(context.Background(), noop)
		require.ErrorIs(t, err, mfrc522.ErrNoCard)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})
}

func TestSession_WriteToNextCard(t *testing.T) {
	t.Parallel()

	t.Run("card present", func(t *testing.T) {
		t.Parallel()
		device, sim := newSimDevice(t)
		sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))
		session := NewSession(device, fastConfig())

		var got mfrc522.UID
		err := session.WriteToNextCard(context.Background(), time.Second,
			func(_ context.Context, _ *mfrc522.Device, uid mfrc522.UID) error {
				got = uid
				return nil
			})
		require.NoError(t, err)
		assert.True(t, got.Equal(testutil.TestUID))
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		device, _ := newSimDevice(t)
		session := NewSession(device, fastConfig())

		err := session.WriteToNextCard(context.Background(), 30*time.Millisecond,
			func(context.Context, *mfrc522.Device, mfrc522.UID) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout waiting for card")
	})

	t.Run("write error", func(t *testing.T) {
		t.Parallel()
		device, sim := newSimDevice(t)
		sim.AddCard(testutil.NewVirtualCard(testutil.TestUID))
		session := NewSession(device, fastConfig())
		boom := errors.New("boom")

		err := session.WriteToNextCard(context.Background(), time.Second,
			func(context.Context, *mfrc522.Device, mfrc522.UID) error { return boom })
		require.ErrorIs(t, err, boom)
	})
}

func TestConfig_Interval(t *testing.T) {
	t.Parallel()

	cfg := &Config{PollInterval: 10 * time.Millisecond, IdleAfter: time.Second, IdleInterval: 100 * time.Millisecond}
	tests := []struct {
		name  string
		since time.Duration
		want  time.Duration
	}{
		{"recent card", 500 * time.Millisecond, 10 * time.Millisecond},
		{"idle field", 2 * time.Second, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cfg.interval(tt.since))
		})
	}

	noIdle := &Config{PollInterval: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, noIdle.interval(time.Hour))
}

func TestSleepRecoveryConfig_DetectSleep(t *testing.T) {
	t.Parallel()

	cfg := DefaultSleepRecoveryConfig()
	tests := []struct {
		name    string
		elapsed time.Duration
		enabled bool
		want    bool
	}{
		{"on time", 110 * time.Millisecond, true, false},
		{"long gap", 5 * time.Second, true, true},
		{"disabled", 5 * time.Second, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := cfg
			c.Enabled = tt.enabled
			assert.Equal(t, tt.want, c.DetectSleep(tt.elapsed, 100*time.Millisecond))
		})
	}
}

func TestCardState_Transitions(t *testing.T) {
	t.Parallel()

	var cs CardState
	fired := make(chan struct{}, 1)
	onRemoval := func() { fired <- struct{}{} }

	cs.TransitionToDetected(time.Hour, onRemoval)
	assert.Equal(t, StateTagDetected, cs.DetectionState)
	assert.True(t, cs.CanStartRemovalTimer())
	assert.NotNil(t, cs.RemovalTimer)

	cs.TransitionToReading()
	assert.Equal(t, StateReading, cs.DetectionState)
	assert.False(t, cs.CanStartRemovalTimer())
	assert.Nil(t, cs.RemovalTimer)

	cs.TransitionToPostReadGrace(2*time.Millisecond, onRemoval)
	assert.Equal(t, StatePostReadGrace, cs.DetectionState)
	select {
	case <-fired:
	case <-time.After(time.Second):
		require.FailNow(t, "grace timer did not fire")
	}

	cs.Present = true
	cs.TransitionToIdle()
	assert.Equal(t, CardState{}, cs)
	assert.Equal(t, "idle", cs.DetectionState.String())
}
