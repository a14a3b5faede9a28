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
	"fmt"
	"time"
)

// CardOperationFunc is one complete card exchange, typically starting from discovery.
type CardOperationFunc func(ctx context.Context) error

var cardRetryDelays = [...]time.Duration{CardRetryDelay1, CardRetryDelay2, CardRetryDelay3}

// RetryCardOperation re-runs op while it fails with a retryable error.
// Cards sliding into the field often fail the first exchange; the whole
// operation is repeated from the start so the state machine restarts at Idle.
func RetryCardOperation(ctx context.Context, op CardOperationFunc, maxRetries int, name string) error {
	if maxRetries <= 0 {
		maxRetries = CardOperationRetries
	}

	var lastErr error
	for i := range maxRetries {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if i > 0 {
				Debugf("%s succeeded on attempt %d", name, i+1)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			Debugf("%s failed with non-retryable error: %v", name, err)
			return err
		}
		if i >= maxRetries-1 {
			break
		}

		delay := cardRetryDelays[len(cardRetryDelays)-1]
		if i < len(cardRetryDelays) {
			delay = cardRetryDelays[i]
		}
		Debugf("%s attempt %d failed (retrying after %v): %v", name, i+1, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, maxRetries, lastErr)
}
