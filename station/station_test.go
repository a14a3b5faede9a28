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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/ZaparooProject/go-mfrc522/rtc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

var testStamp = rtc.Timestamp{Weekday: 3, Day: 14, Month: 5, Year: 71, Hour: 9, Minute: 30, Second: 5}

type fakeClock struct {
	err   error
	ts    rtc.Timestamp
	reads int
}

func (c *fakeClock) ReadTimestamp() (rtc.Timestamp, error) {
	c.reads++
	return c.ts, c.err
}

// flakyTransport fails the first register write fail matches with a
// transient error, then behaves like the simulator.
type flakyTransport struct {
	*testutil.SimulatorTransport
	fail func(reg mfrc522.Register, data []byte) bool
}

func (t *flakyTransport) WriteRegister(reg mfrc522.Register, data ...byte) error {
	if t.fail != nil && t.fail(reg, data) {
		t.fail = nil
		return mfrc522.NewTransportWriteError("write", "simulator", nil)
	}
	return t.SimulatorTransport.WriteRegister(reg, data...)
}

// failBlockWrite matches the FIFO load carrying a MIFARE WRITE for block.
func failBlockWrite(block byte) func(mfrc522.Register, []byte) bool {
	return func(reg mfrc522.Register, data []byte) bool {
		return reg == mfrc522.FIFODataReg && len(data) >= 2 &&
			data[0] == mfrc522.PICCMifareWrite && data[1] == block
	}
}

type recordingBuzzer struct {
	events []string
}

func (b *recordingBuzzer) On() error {
	b.events = append(b.events, "on")
	return nil
}

func (b *recordingBuzzer) Off() error {
	b.events = append(b.events, "off")
	return nil
}

type fixture struct {
	station *Station
	card    *testutil.VirtualCard
	clock   *fakeClock
	buzzer  *recordingBuzzer
	sleeps  *[]time.Duration
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	device, sim, err := testutil.NewSimulatedDevice()
	require.NoError(t, err)
	card := testutil.NewVirtualCard(testutil.TestUID)
	sim.AddCard(card)

	clock := &fakeClock{ts: testStamp}
	buzzer := &recordingBuzzer{}
	s, err := New(device, clock, buzzer, cfg)
	require.NoError(t, err)

	sleeps := &[]time.Duration{}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return ctx.Err()
	}
	return fixture{station: s, card: card, clock: clock, buzzer: buzzer, sleeps: sleeps}
}

// represent takes the halted card out of the field and puts it back.
func (f fixture) represent() {
	f.card.Remove()
	f.card.Insert()
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Retries = 1
	return cfg
}

func markerBlock() [16]byte {
	var b [16]byte
	for i := range b {
		b[i] = testutil.TestUID[0]
	}
	return b
}

func TestNewValidatesDataBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		blocks []byte
		ok     bool
	}{
		{name: "default", blocks: []byte{4, 5, 6, 8}, ok: true},
		{name: "single block", blocks: []byte{1}, ok: true},
		{name: "empty", blocks: nil},
		{name: "manufacturer block", blocks: []byte{0, 1}},
		{name: "sector trailer", blocks: []byte{4, 5, 6, 7}},
		{name: "out of range", blocks: []byte{64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.DataBlocks = tt.blocks
			_, err := New(nil, nil, nil, cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidDataBlocks)
			}
		})
	}
}

func TestStartCard(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	rec, err := f.station.StartCard(context.Background())
	require.NoError(t, err)

	assert.True(t, rec.UID.Equal(testutil.TestUID))
	assert.Equal(t, bytes.Repeat([]byte{0x12}, 64), rec.Data)
	for _, block := range []int{4, 5, 6, 8} {
		assert.Equal(t, markerBlock(), f.card.Block(block), "block %d", block)
	}
	assert.Equal(t, testutil.DefaultTrailer, f.card.Block(7))
	assert.Equal(t, 9, rec.Free())
	assert.Empty(t, rec.Stamps())

	ms := 500 * time.Millisecond
	assert.Equal(t, []time.Duration{ms, ms, ms, ms, ms, ms, time.Second}, *f.sleeps)
	assert.Equal(t, []string{"on", "off", "on", "off", "on", "off", "on", "off", "off"}, f.buzzer.events)
}

func TestStampCard(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	_, err := f.station.StartCard(context.Background())
	require.NoError(t, err)
	*f.sleeps = nil

	// a halted card only answers a fresh presentation
	f.represent()
	rec, err := f.station.StampCard(context.Background())
	require.NoError(t, err)
	stamp1 := testStamp.Bytes()
	assert.Equal(t, stamp1[:], rec.Data[:7])
	assert.Equal(t, bytes.Repeat([]byte{0x12}, 57), rec.Data[7:])
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, *f.sleeps)

	second := testStamp
	second.Minute = 45
	f.clock.ts = second
	f.represent()
	rec, err = f.station.StampCard(context.Background())
	require.NoError(t, err)

	stamps := rec.Stamps()
	require.Len(t, stamps, 2)
	assert.Equal(t, testStamp, stamps[0])
	assert.Equal(t, second, stamps[1])
	assert.Equal(t, 7, rec.Free())

	// the card holds what the record says
	block4 := f.card.Block(4)
	assert.Equal(t, rec.Data[:16], block4[:])
}

func TestStampCardErrors(t *testing.T) {
	t.Parallel()

	t.Run("card full", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fastConfig())
		full := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
		for _, block := range []int{4, 5, 6} {
			f.card.SetBlock(block, full)
		}
		partial := markerBlock()
		copy(partial[:10], full[:10])
		f.card.SetBlock(8, partial)

		_, err := f.station.StampCard(context.Background())
		require.ErrorIs(t, err, ErrCardFull)
		assert.Equal(t, partial, f.card.Block(8))
		assert.Empty(t, f.buzzer.events)
	})

	t.Run("clock failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, fastConfig())
		f.clock.err = errors.New("i2c nack")

		_, err := f.station.StampCard(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read clock: i2c nack")
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		cfg := fastConfig()
		cfg.Key = mfrc522.SectorKey(testutil.WrongKey)
		f := newFixture(t, cfg)

		_, err := f.station.StampCard(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authenticate sector 1")
	})
}

func TestStampCardRetryRewritesSameStamp(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualMFRC522()
	card := testutil.NewVirtualCard(testutil.TestUID)
	sim.AddCard(card)
	transport := &flakyTransport{
		SimulatorTransport: testutil.NewSimulatorTransport(sim),
		fail:               failBlockWrite(5),
	}
	device, err := testutil.NewTestDevice(transport)
	require.NoError(t, err)

	// block 4 has room for three stamp bytes, block 5 is untouched
	var used [16]byte
	for i := range 13 {
		used[i] = byte(0x40 + i)
	}
	block4 := used
	block4[13], block4[14], block4[15] = 0x12, 0x12, 0x12
	card.SetBlock(4, block4)
	card.SetBlock(5, markerBlock())

	cfg := DefaultConfig()
	cfg.DataBlocks = []byte{4, 5}
	cfg.Retries = 3
	clock := &fakeClock{ts: testStamp}
	s, err := New(device, clock, nil, cfg)
	require.NoError(t, err)

	rec, err := s.StampCard(context.Background())
	require.NoError(t, err)
	assert.Nil(t, transport.fail, "fault was never injected")
	assert.Equal(t, 1, clock.reads)

	ts := testStamp.Bytes()
	want4 := used
	copy(want4[13:], ts[:3])
	want5 := markerBlock()
	copy(want5[:4], ts[3:])
	assert.Equal(t, want4, card.Block(4))
	assert.Equal(t, want5, card.Block(5))
	assert.Equal(t, want4[:], rec.Data[:16])
	assert.Equal(t, want5[:], rec.Data[16:])
	assert.Equal(t, 12, rec.Free())
}

func TestStampCardRetryRejectsOtherCard(t *testing.T) {
	t.Parallel()

	sim := testutil.NewVirtualMFRC522()
	card := testutil.NewVirtualCard(testutil.TestUID)
	other := testutil.NewVirtualCard([4]byte{0x21, 0x22, 0x23, 0x24})
	other.Remove()
	sim.AddCard(card)
	sim.AddCard(other)

	swap := failBlockWrite(4)
	transport := &flakyTransport{
		SimulatorTransport: testutil.NewSimulatorTransport(sim),
		fail: func(reg mfrc522.Register, data []byte) bool {
			if !swap(reg, data) {
				return false
			}
			card.Remove()
			other.Insert()
			return true
		},
	}
	device, err := testutil.NewTestDevice(transport)
	require.NoError(t, err)
	for _, block := range []int{4, 5, 6, 8} {
		card.SetBlock(block, markerBlock())
	}

	cfg := DefaultConfig()
	cfg.Retries = 3
	s, err := New(device, &fakeClock{ts: testStamp}, nil, cfg)
	require.NoError(t, err)

	_, err = s.StampCard(context.Background())
	require.ErrorIs(t, err, ErrCardChanged)
	assert.Equal(t, markerBlock(), card.Block(4))
	assert.Equal(t, [16]byte{}, other.Block(4))
}

func TestReadCard(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	f.card.SetBlock(4, testutil.TestBlock(0x20))

	rec, err := f.station.ReadCard(context.Background())
	require.NoError(t, err)
	want := testutil.TestBlock(0x20)
	assert.Equal(t, want[:], rec.Data[:16])
	assert.Len(t, rec.Data, 64)
	assert.Empty(t, f.buzzer.events)
}

func TestReadCardCancelled(t *testing.T) {
	t.Parallel()

	device, _, err := testutil.NewSimulatedDevice()
	require.NoError(t, err)
	s, err := New(device, &fakeClock{}, nil, fastConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.ReadCard(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStamp(t *testing.T) {
	t.Parallel()

	ts := [7]byte{1, 2, 3, 4, 5, 6, 7}
	tests := []struct {
		name string
		data []byte
		want []byte
		ok   bool
	}{
		{
			name: "fresh card",
			data: []byte{9, 9, 9, 9, 9, 9, 9, 9},
			want: []byte{1, 2, 3, 4, 5, 6, 7, 9},
			ok:   true,
		},
		{
			name: "scattered markers",
			data: []byte{0, 9, 0, 9, 9, 0, 9, 9, 9, 9, 0},
			want: []byte{0, 1, 0, 2, 3, 0, 4, 5, 6, 7, 0},
			ok:   true,
		},
		{
			name: "too few markers",
			data: []byte{9, 9, 9, 0, 9, 9, 9},
			want: []byte{9, 9, 9, 0, 9, 9, 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := append([]byte(nil), tt.data...)
			assert.Equal(t, tt.ok, stamp(data, 9, ts))
			assert.Equal(t, tt.want, data)
		})
	}
}

func TestRecordStamps(t *testing.T) {
	t.Parallel()

	uid := mfrc522.NewUID([4]byte{0x05, 0, 0, 0})
	ts := rtc.Timestamp{Weekday: 1, Day: 2, Month: 3, Year: 4, Hour: 6, Minute: 7, Second: 5}
	raw := ts.Bytes()

	data := bytes.Repeat([]byte{0x05}, 21)
	copy(data, raw[:])
	rec := Record{UID: uid, Data: data}

	// the stamp ends in a byte equal to the marker but is still whole
	require.Len(t, rec.Stamps(), 1)
	assert.Equal(t, ts, rec.Stamps()[0])
	assert.Equal(t, 2, rec.Free())
	assert.Contains(t, rec.String(), "1: 02/03/1956 06:07:05")

	empty := Record{UID: uid, Data: bytes.Repeat([]byte{0x05}, 16)}
	assert.Empty(t, empty.Stamps())
	assert.Contains(t, empty.String(), "no stamps")
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mode   gpio.Level
		start  gpio.Level
		read   gpio.Level
		action Action
	}{
		{name: "post operation", mode: gpio.Low, action: ActionStamp},
		{name: "base start", mode: gpio.High, start: gpio.High, action: ActionStart},
		{name: "base read", mode: gpio.High, read: gpio.High, action: ActionRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, fastConfig())
			if tt.action == ActionStamp {
				for _, block := range []int{4, 5, 6, 8} {
					f.card.SetBlock(block, markerBlock())
				}
			}
			in := Inputs{
				Mode:  &gpiotest.Pin{N: "mode", L: tt.mode},
				Start: &gpiotest.Pin{N: "start", L: tt.start},
				Read:  &gpiotest.Pin{N: "read", L: tt.read},
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			var results []Result
			err := f.station.Run(ctx, in, func(r Result) {
				results = append(results, r)
				cancel()
			})
			require.ErrorIs(t, err, context.Canceled)
			require.Len(t, results, 1)
			assert.Equal(t, tt.action, results[0].Action)
			require.NoError(t, results[0].Err)
			assert.True(t, results[0].Record.UID.Equal(testutil.TestUID))
		})
	}
}

func TestRunWaitsForButton(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.ButtonPoll = 123 * time.Millisecond
	f := newFixture(t, cfg)
	start := &gpiotest.Pin{N: "start", L: gpio.Low}
	in := Inputs{Mode: &gpiotest.Pin{N: "mode", L: gpio.High}, Start: start}

	polls := 0
	f.station.sleep = func(ctx context.Context, d time.Duration) error {
		if d == f.station.Config().ButtonPoll {
			polls++
			if polls == 3 {
				require.NoError(t, start.Out(gpio.High))
			}
		}
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got Action = -1
	err := f.station.Run(ctx, in, func(r Result) {
		got = r.Action
		cancel()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ActionStart, got)
	assert.Equal(t, 3, polls)
}

func TestRunReportsCardErrorsAndContinues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	f.clock.err = errors.New("clock gone")
	for _, block := range []int{4, 5, 6, 8} {
		f.card.SetBlock(block, markerBlock())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var results []Result
	err := f.station.Run(ctx, Inputs{}, func(r Result) {
		results = append(results, r)
		if len(results) == 2 {
			cancel()
		}
		f.represent()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, ActionStamp, r.Action)
		assert.Error(t, r.Err)
	}
	assert.Contains(t, *f.sleeps, f.station.Config().LoopDelay)
}

func TestRunBaseModeWithoutButtons(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fastConfig())
	err := f.station.Run(context.Background(), Inputs{Mode: &gpiotest.Pin{N: "mode", L: gpio.High}}, nil)
	assert.Error(t, err)
}

func TestPinBuzzer(t *testing.T) {
	t.Parallel()

	pin := &gpiotest.Pin{N: "buzzer"}
	b := PinBuzzer{Pin: pin}

	require.NoError(t, b.On())
	assert.Equal(t, gpio.High, pin.Read())
	require.NoError(t, b.Off())
	assert.Equal(t, gpio.Low, pin.Read())
}

func TestPlayStopsOnCancel(t *testing.T) {
	t.Parallel()

	buzzer := &recordingBuzzer{}
	s := &Station{buzzer: buzzer, sleep: sleepContext}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.play(ctx, startPattern)
	assert.Equal(t, []string{"on", "off"}, buzzer.events)
}
