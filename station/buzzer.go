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

package station

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"periph.io/x/conn/v3/gpio"
)

// Buzzer is an on/off sounder.
type Buzzer interface {
	On() error
	Off() error
}

// PinBuzzer drives a buzzer from a GPIO output, active high.
type PinBuzzer struct {
	Pin gpio.PinOut
}

// On drives the pin high.
func (b PinBuzzer) On() error {
	if err := b.Pin.Out(gpio.High); err != nil {
		return fmt.Errorf("buzzer %s on: %w", b.Pin, err)
	}
	return nil
}

// Off drives the pin low.
func (b PinBuzzer) Off() error {
	if err := b.Pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("buzzer %s off: %w", b.Pin, err)
	}
	return nil
}

// tone is one beep followed by a silence.
type tone struct {
	on, off time.Duration
}

var (
	confirmPattern = []tone{{on: 500 * time.Millisecond}}
	startPattern   = []tone{
		{on: 500 * time.Millisecond, off: 500 * time.Millisecond},
		{on: 500 * time.Millisecond, off: 500 * time.Millisecond},
		{on: 500 * time.Millisecond, off: 500 * time.Millisecond},
		{on: time.Second},
	}
)

// play sounds pattern. Buzzer faults are logged, never returned: the card
// operation has already succeeded. Cancellation silences the buzzer.
func (s *Station) play(ctx context.Context, pattern []tone) {
	if s.buzzer == nil {
		return
	}
	defer func() {
		if err := s.buzzer.Off(); err != nil {
			mfrc522.Debugf("%v", err)
		}
	}()

	for _, t := range pattern {
		if err := s.buzzer.On(); err != nil {
			mfrc522.Debugf("%v", err)
			return
		}
		if s.sleep(ctx, t.on) != nil {
			return
		}
		if err := s.buzzer.Off(); err != nil {
			mfrc522.Debugf("%v", err)
			return
		}
		if t.off > 0 && s.sleep(ctx, t.off) != nil {
			return
		}
	}
}
