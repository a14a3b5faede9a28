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
	"context"
	"errors"
	"time"
)

// errPollExhausted is returned by Poll when every attempt saw the condition unmet.
var errPollExhausted = errors.New("poll attempts exhausted")

// PollConfig bounds a wait on chip state: the condition is checked at most
// MaxAttempts times with Interval between checks.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// Budget returns the approximate worst-case time a poll spends sleeping.
func (c PollConfig) Budget() time.Duration {
	if c.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(c.MaxAttempts-1) * c.Interval
}

// PollFunc checks a condition once. Returning an error stops the poll.
type PollFunc func() (bool, error)

// Poll evaluates cond until it reports true, returns an error, or the attempt
// budget runs out. Exhaustion yields errPollExhausted, which callers translate
// into the status that fits the wait point (TimeOut, BootTimeout).
// Cancellation is only observed between attempts.
func Poll(ctx context.Context, cfg PollConfig, cond PollFunc) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := range attempts {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if cfg.Interval <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(cfg.Interval)
		} else {
			timer.Reset(cfg.Interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errPollExhausted
}

// pollStatus runs Poll without cancellation and maps exhaustion to onExhausted.
func pollStatus(cfg PollConfig, onExhausted Status, cond PollFunc) error {
	err := Poll(context.Background(), cfg, cond)
	if errors.Is(err, errPollExhausted) {
		return onExhausted
	}
	return err
}
