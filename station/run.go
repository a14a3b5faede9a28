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
	"errors"

	"github.com/ZaparooProject/go-mfrc522"
	"periph.io/x/conn/v3/gpio"
)

// Action is what one loop iteration did.
type Action int

const (
	ActionStamp Action = iota
	ActionStart
	ActionRead
)

func (a Action) String() string {
	switch a {
	case ActionStamp:
		return "stamp"
	case ActionStart:
		return "start"
	case ActionRead:
		return "read"
	default:
		return "unknown"
	}
}

// Inputs are the operator controls. Mode low selects post-operation
// stamping, high selects the base station. Buttons read high when pressed.
type Inputs struct {
	Mode  gpio.PinIn
	Start gpio.PinIn
	Read  gpio.PinIn
}

// Result reports one loop iteration.
type Result struct {
	Err    error
	Record Record
	Action Action
}

// Run is the operator loop. Each iteration performs one action chosen by
// the inputs and hands the outcome to report. Card errors are reported and
// the loop continues; it ends on ctx cancellation or a fatal device error.
func (s *Station) Run(ctx context.Context, in Inputs, report func(Result)) error {
	for {
		action, err := s.nextAction(ctx, in)
		if err != nil {
			return err
		}

		var rec Record
		switch action {
		case ActionStamp:
			rec, err = s.StampCard(ctx)
		case ActionStart:
			rec, err = s.StartCard(ctx)
		case ActionRead:
			rec, err = s.ReadCard(ctx)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if report != nil {
			report(Result{Action: action, Record: rec, Err: err})
		}
		if err != nil {
			if mfrc522.IsFatal(err) {
				return err
			}
			mfrc522.Debugf("%s failed: %v", action, err)
		}

		if err := s.sleep(ctx, s.config.LoopDelay); err != nil {
			return err
		}
	}
}

// nextAction reads the mode switch and, in base mode, waits for a button.
func (s *Station) nextAction(ctx context.Context, in Inputs) (Action, error) {
	if in.Mode == nil || in.Mode.Read() == gpio.Low {
		return ActionStamp, nil
	}
	if in.Start == nil && in.Read == nil {
		return 0, errors.New("base mode needs a start or read button")
	}

	for {
		switch {
		case pressed(in.Start):
			return ActionStart, nil
		case pressed(in.Read):
			return ActionRead, nil
		}
		if err := s.sleep(ctx, s.config.ButtonPoll); err != nil {
			return 0, err
		}
	}
}

func pressed(pin gpio.PinIn) bool {
	return pin != nil && pin.Read() == gpio.High
}
