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
	"math/rand/v2"
	"time"
)

// RetryConfig controls how transport-level operations are repeated.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts; zero runs once without retry.
	MaxAttempts int
	// InitialBackoff is the delay after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay after every failure.
	BackoffMultiplier float64
	// Jitter is the fraction of the delay added at random.
	Jitter float64
	// RetryTimeout bounds all attempts together.
	RetryTimeout time.Duration
}

// DefaultRetryConfig suits register traffic over SPI, I2C and UART.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       TransportRegisterRetries,
		InitialBackoff:    2 * time.Millisecond,
		MaxBackoff:        50 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      time.Second,
	}
}

// RetryableFunc is a single attempt.
type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, fails with an error that
// IsRetryable rejects, or the attempts or timeout run out. The last
// attempt's error is returned.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	b := backoff{config: config, next: config.InitialBackoff}
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(b.step())
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

type backoff struct {
	config *RetryConfig
	next   time.Duration
}

// step returns the jittered current delay and advances to the next one.
func (b *backoff) step() time.Duration {
	d := calculateJitteredSleep(b.next, b.config.Jitter)
	b.next = calculateNextBackoff(b.next, b.config)
	return d
}

func calculateNextBackoff(current time.Duration, config *RetryConfig) time.Duration {
	next := time.Duration(float64(current) * config.BackoffMultiplier)
	if next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

// calculateJitteredSleep adds up to jitterFactor*base of random delay.
func calculateJitteredSleep(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || base <= 0 {
		return base
	}
	//nolint:gosec // jitter does not need a cryptographic source
	return base + time.Duration(rand.Float64()*jitterFactor*float64(base))
}
