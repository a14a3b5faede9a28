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

// Package station implements the timestamp station appliance: a base station
// that issues cards and post-operation stations that stamp the time onto them.
//
// A card's data area is filled with its first UID byte (the marker) when it
// is issued. Each stamp replaces the first seven marker bytes still on the
// card with a clock reading, so the card accumulates readings in visit order.
package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"github.com/ZaparooProject/go-mfrc522/rtc"
)

var (
	// ErrCardFull is returned by StampCard when fewer than seven marker
	// bytes remain on the card.
	ErrCardFull = errors.New("no room left for another timestamp")
	// ErrCardChanged is returned when a retry finds a different card in
	// the field.
	ErrCardChanged = errors.New("card changed during operation")
	// ErrInvalidDataBlocks is returned by New for an unusable block list.
	ErrInvalidDataBlocks = errors.New("invalid data blocks")
)

// Config holds station configuration options
type Config struct {
	// Location is used when presenting stamped times.
	Location *time.Location
	// DataBlocks are the card blocks forming the data area, in order.
	// Sector trailers are not allowed.
	DataBlocks []byte
	// Key unlocks every sector holding a data block.
	Key     mfrc522.SectorKey
	KeyType mfrc522.KeyType
	// Retries bounds attempts per card operation. Zero uses the driver default.
	Retries int
	// ButtonPoll is the pause between button reads in base mode.
	ButtonPoll time.Duration
	// LoopDelay is the pause between operator loop iterations.
	LoopDelay time.Duration
}

// DefaultConfig returns the 64-byte data area in blocks 4-6 and 8 with the
// factory key.
func DefaultConfig() Config {
	return Config{
		Location:   time.Local,
		DataBlocks: []byte{4, 5, 6, 8},
		Key:        mfrc522.DefaultKey,
		KeyType:    mfrc522.KeyA,
		ButtonPoll: 500 * time.Millisecond,
		LoopDelay:  1500 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if len(c.DataBlocks) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidDataBlocks)
	}
	for _, b := range c.DataBlocks {
		if b == 0 || b > mfrc522.MaxBlock || mfrc522.IsTrailerBlock(b) {
			return fmt.Errorf("%w: block %d", ErrInvalidDataBlocks, b)
		}
	}
	return nil
}

// Station runs card flows on one reader. Methods are serialized.
type Station struct {
	device *mfrc522.Device
	clock  rtc.Clock
	buzzer Buzzer
	sleep  func(context.Context, time.Duration) error
	config Config
	mu     syncutil.Mutex
}

// New creates a station. buzzer may be nil.
func New(device *mfrc522.Device, clock rtc.Clock, buzzer Buzzer, config Config) (*Station, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Station{
		device: device,
		clock:  clock,
		buzzer: buzzer,
		config: config,
		sleep:  sleepContext,
	}, nil
}

// Config returns the station configuration.
func (s *Station) Config() Config {
	return s.config
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartCard waits for a card and issues it: the whole data area is filled
// with the card's marker byte. The start pattern sounds afterwards.
func (s *Station) StartCard(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Record
	err := s.withCard(ctx, "start card", func(uid mfrc522.UID) error {
		data := make([]byte, s.dataSize())
		for i := range data {
			data[i] = uid[0]
		}
		if err := s.writeData(uid, data); err != nil {
			return err
		}
		rec = Record{UID: uid, Data: data}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	mfrc522.Debugf("card %s issued", rec.UID)
	s.play(ctx, startPattern)
	return rec, nil
}

// StampCard waits for a card, reads the clock and writes the reading over
// the first seven marker bytes. A short confirmation beep follows.
func (s *Station) StampCard(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// the stamp is computed once; a retry rewrites the same bytes
	var stamped []byte
	var rec Record
	err := s.withCard(ctx, "stamp card", func(uid mfrc522.UID) error {
		if stamped == nil {
			data, err := s.readData(uid)
			if err != nil {
				return err
			}
			ts, err := s.clock.ReadTimestamp()
			if err != nil {
				return fmt.Errorf("read clock: %w", err)
			}
			if !stamp(data, uid[0], ts.Bytes()) {
				return fmt.Errorf("card %s: %w", uid, ErrCardFull)
			}
			stamped = data
			mfrc522.Debugf("card %s stamped at %s", uid, ts)
		}
		if err := s.writeData(uid, stamped); err != nil {
			return err
		}
		rec = Record{UID: uid, Data: stamped}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	s.play(ctx, confirmPattern)
	return rec, nil
}

// ReadCard waits for a card and returns its data area.
func (s *Station) ReadCard(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Record
	err := s.withCard(ctx, "read card", func(uid mfrc522.UID) error {
		data, err := s.readData(uid)
		if err != nil {
			return err
		}
		rec = Record{UID: uid, Data: data}
		return nil
	})
	return rec, err
}

// withCard runs fn against a selected card and halts it afterwards. The
// first attempt waits for a newly presented card. Retries wake the same card
// with WUPA and fail with ErrCardChanged when another card answers.
func (s *Station) withCard(ctx context.Context, name string, fn func(mfrc522.UID) error) error {
	var held *mfrc522.UID
	return mfrc522.RetryCardOperation(ctx, func(ctx context.Context) error {
		uid, err := s.acquire(ctx, held)
		if err != nil {
			return err
		}
		held = &uid
		if _, err := s.device.SelectCard(uid.Identity()); err != nil {
			return fmt.Errorf("select %s: %w", uid, err)
		}
		defer func() {
			if err := s.device.Halt(); err != nil {
				mfrc522.Debugf("halt %s: %v", uid, err)
			}
		}()
		return fn(uid)
	}, s.config.Retries, name)
}

func (s *Station) acquire(ctx context.Context, held *mfrc522.UID) (mfrc522.UID, error) {
	if held == nil {
		return s.device.WaitForUID(ctx)
	}
	want := *held
	present, err := s.device.WakeUp()
	if err != nil {
		return mfrc522.UID{}, err
	}
	if !present {
		return mfrc522.UID{}, mfrc522.ErrNoCard
	}
	uid, err := s.device.GetUID()
	if err != nil {
		return mfrc522.UID{}, err
	}
	if !uid.Equal(want.Identity()) {
		return mfrc522.UID{}, fmt.Errorf("%w: expected %s, found %s", ErrCardChanged, want, uid)
	}
	return uid, nil
}

func (s *Station) dataSize() int {
	return len(s.config.DataBlocks) * mfrc522.BlockSize
}

func (s *Station) unlock(uid mfrc522.UID, block byte) error {
	if s.device.Authenticated(block) {
		return nil
	}
	if err := s.device.AuthenticateCard(s.config.KeyType, block, s.config.Key, uid.Identity()); err != nil {
		return fmt.Errorf("authenticate sector %d: %w", mfrc522.SectorOf(block), err)
	}
	return nil
}

func (s *Station) readData(uid mfrc522.UID) ([]byte, error) {
	data := make([]byte, 0, s.dataSize())
	for _, block := range s.config.DataBlocks {
		if err := s.unlock(uid, block); err != nil {
			return nil, err
		}
		b, err := s.device.ReadBlock(block)
		if err != nil {
			return nil, fmt.Errorf("read block %d: %w", block, err)
		}
		data = append(data, b[:]...)
	}
	return data, nil
}

func (s *Station) writeData(uid mfrc522.UID, data []byte) error {
	for i, block := range s.config.DataBlocks {
		if err := s.unlock(uid, block); err != nil {
			return err
		}
		var b mfrc522.Block
		copy(b[:], data[i*mfrc522.BlockSize:])
		if err := s.device.WriteBlock(block, b); err != nil {
			return fmt.Errorf("write block %d: %w", block, err)
		}
	}
	return nil
}

// stamp writes ts over the first len(ts) bytes of data equal to marker.
// It reports false, leaving data untouched, when there are not enough.
func stamp(data []byte, marker byte, ts [7]byte) bool {
	positions := make([]int, 0, len(ts))
	for i, b := range data {
		if b == marker {
			positions = append(positions, i)
			if len(positions) == len(ts) {
				break
			}
		}
	}
	if len(positions) < len(ts) {
		return false
	}
	for i, pos := range positions {
		data[pos] = ts[i]
	}
	return true
}
