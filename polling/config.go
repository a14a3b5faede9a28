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

import "time"

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is how far past the expected poll interval a
	// wake-up must be before it counts as a host sleep. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed exceeds pollInterval by more than the
// threshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds polling configuration options
type Config struct {
	// PollInterval is the pause between presence checks.
	PollInterval time.Duration
	// CardRemovalTimeout is how long a card may stay silent before it is
	// reported removed.
	CardRemovalTimeout time.Duration
	// IdleAfter slows polling down to IdleInterval once no card has been
	// seen for this long. Zero keeps PollInterval forever.
	IdleAfter    time.Duration
	IdleInterval time.Duration
	// WriteRetries bounds the attempts WriteToCard makes on retryable
	// errors. Zero uses mfrc522.CardOperationRetries.
	WriteRetries int
	// SleepRecovery configures automatic recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       100 * time.Millisecond,
		CardRemovalTimeout: 600 * time.Millisecond,
		IdleAfter:          5 * time.Second,
		IdleInterval:       250 * time.Millisecond,
		SleepRecovery:      DefaultSleepRecoveryConfig(),
	}
}

// interval returns the poll interval given how long the field has been empty.
func (c *Config) interval(sinceLastCard time.Duration) time.Duration {
	if c.IdleAfter > 0 && c.IdleInterval > c.PollInterval && sinceLastCard > c.IdleAfter {
		return c.IdleInterval
	}
	return c.PollInterval
}
