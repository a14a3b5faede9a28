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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

var (
	// ErrNoTagInPoll is returned by a poll cycle when no card answered.
	// It wraps mfrc522.ErrNoCard so card operations treat it as retryable.
	ErrNoTagInPoll = fmt.Errorf("no card answered the poll: %w", mfrc522.ErrNoCard)
	// ErrNoCardPresent is returned by WriteToCard when the session has no card.
	ErrNoCardPresent = errors.New("no card present")
	// ErrCardChanged is returned when a different card answered during a write.
	ErrCardChanged = errors.New("card changed during operation")
	// ErrSessionClosed is returned by Start after Close.
	ErrSessionClosed = errors.New("session closed")
)

// CardFunc operates on a selected card. The device is owned by the caller
// for the duration of the call.
type CardFunc func(ctx context.Context, device *mfrc522.Device, uid mfrc522.UID) error

// Metrics is a snapshot of session counters.
type Metrics struct {
	PollCycles      uint64
	PollErrors      uint64
	CardsDetected   uint64
	CallbackErrors  uint64
	Recoveries      uint64
	LastPollLatency time.Duration
}

type sessionMetrics struct {
	pollCycles      atomic.Uint64
	pollErrors      atomic.Uint64
	cardsDetected   atomic.Uint64
	callbackErrors  atomic.Uint64
	recoveries      atomic.Uint64
	lastPollLatency atomic.Int64
}

// Session handles continuous card monitoring with state machine.
//
// Callbacks run on the polling goroutine after the card has been halted and
// the device released. The session state already reports the new card, so a
// callback may talk to it through WriteToCard or WriteToNextCard.
type Session struct {
	OnCardDetected func(uid mfrc522.UID) error
	OnCardChanged  func(uid mfrc522.UID) error
	OnCardRemoved  func(uid mfrc522.UID)
	config         *Config
	recoverer      DeviceRecoverer
	device         atomic.Pointer[mfrc522.Device]
	pauseChan      chan struct{}
	resumeChan     chan struct{}
	ackChan        chan struct{}
	lastCardTime   time.Time
	state          CardState
	metrics        sessionMetrics
	stateMutex     syncutil.RWMutex
	writeMutex     syncutil.Mutex
	deviceMutex    syncutil.Mutex
	closed         atomic.Bool
	isPaused       atomic.Bool
}

// NewSession creates a new card monitoring session
func NewSession(device *mfrc522.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Session{
		config:       config,
		pauseChan:    make(chan struct{}, 1),
		resumeChan:   make(chan struct{}, 1),
		ackChan:      make(chan struct{}, 1),
		lastCardTime: time.Now(),
	}
	s.device.Store(device)
	return s
}

// SetRecoverer installs the strategy used after fatal errors and host sleep.
// Without one, a fatal error ends Start.
func (s *Session) SetRecoverer(r DeviceRecoverer) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.recoverer = r
}

// GetState returns a copy of the card state.
func (s *Session) GetState() CardState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// GetDevice returns the device in use. It changes after a reconnection.
func (s *Session) GetDevice() *mfrc522.Device {
	return s.device.Load()
}

// Metrics returns a snapshot of the session counters.
func (s *Session) Metrics() Metrics {
	return Metrics{
		PollCycles:      s.metrics.pollCycles.Load(),
		PollErrors:      s.metrics.pollErrors.Load(),
		CardsDetected:   s.metrics.cardsDetected.Load(),
		CallbackErrors:  s.metrics.callbackErrors.Load(),
		Recoveries:      s.metrics.recoveries.Load(),
		LastPollLatency: time.Duration(s.metrics.lastPollLatency.Load()),
	}
}

// SetOnCardDetected sets the callback for when a card is detected
func (s *Session) SetOnCardDetected(callback func(mfrc522.UID) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardDetected = callback
}

// SetOnCardRemoved sets the callback for when a card is removed
func (s *Session) SetOnCardRemoved(callback func(mfrc522.UID)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardRemoved = callback
}

// SetOnCardChanged sets the callback for when a different card replaces the current one
func (s *Session) SetOnCardChanged(callback func(mfrc522.UID) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardChanged = callback
}

// Close stops the removal timer and releases a paused loop.
func (s *Session) Close() error {
	s.closed.Store(true)

	s.stateMutex.Lock()
	safeTimerStop(s.state.RemovalTimer)
	s.state.RemovalTimer = nil
	s.stateMutex.Unlock()

	s.isPaused.Store(false)
	select {
	case <-s.pauseChan:
	default:
	}
	select {
	case s.resumeChan <- struct{}{}:
	default:
	}
	return nil
}

// Pause stops polling after the current cycle.
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts polling after Pause.
func (s *Session) Resume() {
	if s.isPaused.CompareAndSwap(true, false) {
		// a pause the loop never picked up is simply withdrawn
		select {
		case <-s.pauseChan:
			return
		default:
		}
		select {
		case s.resumeChan <- struct{}{}:
		default:
		}
	}
}

// pauseWithAck pauses polling and waits briefly for the loop to confirm.
func (s *Session) pauseWithAck(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !s.isPaused.CompareAndSwap(false, true) {
		return nil
	}

	// drop an ack left over from a pause that timed out
	select {
	case <-s.ackChan:
	default:
	}
	select {
	case s.pauseChan <- struct{}{}:
	default:
		return nil
	}

	ackTimeout := time.NewTimer(100 * time.Millisecond)
	defer ackTimeout.Stop()
	select {
	case <-s.ackChan:
		return nil
	case <-ackTimeout.C:
		// the loop is busy, possibly running the caller's callback; the
		// device mutex still serializes access
		return nil
	case <-ctx.Done():
		s.isPaused.Store(false)
		return ctx.Err()
	}
}

// Start polls for cards until ctx is done, a callback fails, or the device
// fails beyond recovery.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	timer := time.NewTimer(0)
	defer safeTimerStop(timer)
	<-timer.C

	for {
		if err := s.handleContextAndPause(ctx); err != nil {
			return err
		}
		if s.closed.Load() {
			return ErrSessionClosed
		}

		if err := s.executeSinglePollingCycle(ctx); err != nil {
			return err
		}

		if err := s.waitForNextPollOrPause(ctx, timer); err != nil {
			return err
		}
	}
}

func (s *Session) nextInterval() time.Duration {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	if s.state.Present {
		return s.config.PollInterval
	}
	return s.config.interval(time.Since(s.lastCardTime))
}

func (s *Session) waitForNextPollOrPause(ctx context.Context, timer *time.Timer) error {
	interval := s.nextInterval()
	armed := time.Now()
	timer.Reset(interval)

	select {
	case <-timer.C:
		if s.config.SleepRecovery.DetectSleep(time.Since(armed), interval) {
			return s.handleSleep(ctx, time.Since(armed))
		}
		return nil
	case <-s.pauseChan:
		safeTimerStop(timer)
		return s.handlePauseSignal(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handlePauseSignal(ctx context.Context) error {
	select {
	case s.ackChan <- struct{}{}:
	default:
	}
	return s.waitForResume(ctx)
}

func (s *Session) handleContextAndPause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.pauseChan:
		return s.handlePauseSignal(ctx)
	default:
		return nil
	}
}

func (s *Session) waitForResume(ctx context.Context) error {
	select {
	case <-s.resumeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) executeSinglePollingCycle(ctx context.Context) error {
	s.deviceMutex.Lock()
	start := time.Now()
	device := s.device.Load()

	uid, sak, err := performSinglePoll(device)
	if err == nil {
		if haltErr := device.Halt(); haltErr != nil {
			mfrc522.Debugf("halt after poll failed: %v", haltErr)
		}
	}
	s.deviceMutex.Unlock()

	s.metrics.pollCycles.Add(1)
	s.metrics.lastPollLatency.Store(int64(time.Since(start)))

	var cbErr error
	if err == nil {
		cbErr = s.processPollingResults(uid, sak)
	}

	if cbErr != nil {
		s.metrics.callbackErrors.Add(1)
		return fmt.Errorf("callback error during polling: %w", cbErr)
	}
	if err == nil || errors.Is(err, ErrNoTagInPoll) {
		return nil
	}

	s.metrics.pollErrors.Add(1)
	if !mfrc522.IsFatal(err) {
		mfrc522.Debugf("poll cycle failed: %v", err)
		return nil
	}
	return s.recover(ctx, err)
}

// performSinglePoll wakes any card in the field, reads its UID and selects it.
// WUPA is used so a card halted by the previous cycle answers again.
func performSinglePoll(device *mfrc522.Device) (mfrc522.UID, byte, error) {
	present, err := device.WakeUp()
	if err != nil {
		return mfrc522.UID{}, 0, fmt.Errorf("wake-up failed: %w", err)
	}
	if !present {
		return mfrc522.UID{}, 0, ErrNoTagInPoll
	}

	uid, err := device.GetUID()
	if err != nil {
		return mfrc522.UID{}, 0, fmt.Errorf("anti-collision failed: %w", err)
	}
	sak, err := device.SelectCard(uid.Identity())
	if err != nil {
		return mfrc522.UID{}, 0, fmt.Errorf("select failed: %w", err)
	}
	return uid, sak, nil
}

func (s *Session) processPollingResults(uid mfrc522.UID, sak byte) error {
	s.stateMutex.Lock()
	wasPresent := s.state.Present
	changed := wasPresent && s.state.LastUID != uid
	s.state.Present = true
	s.state.LastUID = uid
	s.state.LastSAK = sak
	s.lastCardTime = time.Now()
	s.state.TransitionToReading()
	onDetected := s.OnCardDetected
	onChanged := s.OnCardChanged
	s.stateMutex.Unlock()

	var err error
	switch {
	case !wasPresent:
		s.metrics.cardsDetected.Add(1)
		mfrc522.Debugf("card detected: %s (SAK 0x%02X)", uid, sak)
		if onDetected != nil {
			err = safeCallCallback(onDetected, uid, "OnCardDetected")
		}
	case changed:
		s.metrics.cardsDetected.Add(1)
		mfrc522.Debugf("card changed: %s (SAK 0x%02X)", uid, sak)
		if onChanged != nil {
			err = safeCallCallback(onChanged, uid, "OnCardChanged")
		}
	}

	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	if !s.state.Present || s.state.LastUID != uid {
		// the card was dropped while a callback ran
		return err
	}
	if wasPresent && !changed {
		s.state.TransitionToDetected(s.config.CardRemovalTimeout, s.handleCardRemoval)
	} else {
		s.state.TransitionToPostReadGrace(s.config.CardRemovalTimeout, s.handleCardRemoval)
	}
	return err
}

func safeCallCallback(callback func(mfrc522.UID) error, uid mfrc522.UID, callbackName string) error {
	var callbackErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callbackErr = fmt.Errorf("%s callback panicked: %v", callbackName, r)
			}
		}()
		callbackErr = callback(uid)
	}()
	if callbackErr != nil {
		return fmt.Errorf("%s callback failed: %w", callbackName, callbackErr)
	}
	return nil
}

func (s *Session) handleCardRemoval() {
	if s.closed.Load() {
		return
	}

	s.stateMutex.Lock()
	if s.state.DetectionState == StateReading {
		s.stateMutex.Unlock()
		return
	}
	wasPresent := s.state.Present
	uid := s.state.LastUID
	if wasPresent {
		s.state.TransitionToIdle()
		s.lastCardTime = time.Now()
	}
	onRemoved := s.OnCardRemoved
	s.stateMutex.Unlock()

	if wasPresent {
		mfrc522.Debugf("card removed: %s", uid)
		if onRemoved != nil {
			onRemoved(uid)
		}
	}
}

// recover hands a fatal error to the recoverer. A nil return means polling
// may continue on the (possibly new) device.
func (s *Session) recover(ctx context.Context, cause error) error {
	s.stateMutex.RLock()
	recoverer := s.recoverer
	s.stateMutex.RUnlock()
	if recoverer == nil {
		return fmt.Errorf("device failure: %w", cause)
	}

	mfrc522.Debugf("attempting recovery after: %v", cause)
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	if err := recoverer.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("recovery failed: %w", errors.Join(cause, err))
	}
	s.device.Store(recoverer.GetDevice())
	s.metrics.recoveries.Add(1)

	// card state is unknown after a reset
	s.stateMutex.Lock()
	if s.state.Present {
		s.state.DetectionState = StateTagDetected
	}
	s.stateMutex.Unlock()
	s.handleCardRemoval()
	return nil
}

func (s *Session) handleSleep(ctx context.Context, elapsed time.Duration) error {
	mfrc522.Debugf("poll timer fired %v late, assuming host sleep", elapsed)
	s.stateMutex.RLock()
	hasRecoverer := s.recoverer != nil
	s.stateMutex.RUnlock()
	if !hasRecoverer {
		return nil
	}
	return s.recover(ctx, errors.New("host sleep detected"))
}

// WriteToCard runs fn against the card currently tracked by the session.
// Polling is paused for the duration. Retryable failures restart the whole
// exchange from wake-up, so fn must be safe to repeat.
func (s *Session) WriteToCard(ctx context.Context, fn CardFunc) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	s.stateMutex.Lock()
	if !s.state.Present {
		s.stateMutex.Unlock()
		return ErrNoCardPresent
	}
	expected := s.state.LastUID
	s.state.TransitionToReading()
	s.stateMutex.Unlock()

	defer func() {
		s.stateMutex.Lock()
		if s.state.Present {
			s.state.TransitionToPostReadGrace(s.config.CardRemovalTimeout, s.handleCardRemoval)
		}
		s.stateMutex.Unlock()
	}()

	if err := s.pauseWithAck(ctx); err != nil {
		return fmt.Errorf("failed to pause polling: %w", err)
	}
	defer s.Resume()

	return mfrc522.RetryCardOperation(ctx, func(ctx context.Context) error {
		return s.attemptWrite(ctx, &expected, fn)
	}, s.config.WriteRetries, "write to card")
}

// WriteToNextCard waits up to timeout for any card and runs fn against it.
func (s *Session) WriteToNextCard(ctx context.Context, timeout time.Duration, fn CardFunc) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if err := s.pauseWithAck(ctx); err != nil {
		return fmt.Errorf("failed to pause polling: %w", err)
	}
	defer s.Resume()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		err := s.attemptWrite(timeoutCtx, nil, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoTagInPoll) {
			return fmt.Errorf("card write failed: %w", err)
		}

		select {
		case <-ticker.C:
		case <-timeoutCtx.Done():
			if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
				return errors.New("timeout waiting for card")
			}
			return timeoutCtx.Err()
		}
	}
}

// attemptWrite selects a card and runs fn. When expected is set the card
// must carry that UID.
func (s *Session) attemptWrite(ctx context.Context, expected *mfrc522.UID, fn CardFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()

	device := s.device.Load()
	uid, _, err := performSinglePoll(device)
	if err != nil {
		return err
	}
	defer func() {
		if haltErr := device.Halt(); haltErr != nil {
			mfrc522.Debugf("halt after write failed: %v", haltErr)
		}
	}()

	if expected != nil && uid != *expected {
		return fmt.Errorf("%w: expected %s, found %s", ErrCardChanged, *expected, uid)
	}
	return fn(ctx, device, uid)
}
