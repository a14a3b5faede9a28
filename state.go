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

// CardState is the position of the card exchange in the discovery state machine:
// Idle -> Requested -> UIDPending -> UIDAcquired -> Selected -> Authenticated -> Halted.
// Any failure drops back to Idle.
type CardState int

const (
	StateIdle CardState = iota
	StateRequested
	StateUIDPending
	StateUIDAcquired
	StateSelected
	StateAuthenticated
	StateHalted
)

func (s CardState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRequested:
		return "Requested"
	case StateUIDPending:
		return "UIDPending"
	case StateUIDAcquired:
		return "UIDAcquired"
	case StateSelected:
		return "Selected"
	case StateAuthenticated:
		return "Authenticated"
	case StateHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// State returns the current card exchange state.
func (d *Device) State() CardState {
	return d.state
}

// CurrentUID returns the UID acquired by the last successful GetUID.
func (d *Device) CurrentUID() UID {
	return d.uid
}

func (d *Device) setState(s CardState) {
	if d.state != s {
		Tracef("card state %s -> %s", d.state, s)
	}
	d.state = s
	if s != StateAuthenticated {
		d.authSector = -1
	}
}

func (d *Device) resetCardState() {
	d.setState(StateIdle)
	d.uid = UID{}
}

// fail drops the state machine back to Idle and passes err through.
func (d *Device) fail(err error) error {
	d.setState(StateIdle)
	return err
}
