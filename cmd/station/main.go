// go-mfrc522
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mfrc522.
//
// go-mfrc522 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mfrc522 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mfrc522; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Command station runs an MFRC522 timestamp station.
//
// In auto mode a switch selects between the base station, which issues
// cards on the start button and reads them back on the read button, and
// the post-operation station, which stamps the DS1307 time onto every
// card presented.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	_ "github.com/ZaparooProject/go-mfrc522/detection/i2c"
	_ "github.com/ZaparooProject/go-mfrc522/detection/spi"
	_ "github.com/ZaparooProject/go-mfrc522/detection/uart"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"github.com/ZaparooProject/go-mfrc522/polling"
	"github.com/ZaparooProject/go-mfrc522/rtc"
	"github.com/ZaparooProject/go-mfrc522/station"
	"github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	modeAuto     = "auto"
	modeBase     = "base"
	modePost     = "post"
	modeRead     = "read"
	modeSelfTest = "selftest"
	modeUID      = "uid"
)

var modes = []string{modeAuto, modeBase, modePost, modeRead, modeSelfTest, modeUID}

type config struct {
	devicePath string
	mode       string
	rtcBus     string
	resetPin   string
	switchPin  string
	startPin   string
	readPin    string
	buzzerPin  string
	loopDelay  time.Duration
	debug      bool
	setTime    bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagMode       string
	flagRTCBus     string
	flagResetPin   string
	flagSwitchPin  string
	flagStartPin   string
	flagReadPin    string
	flagBuzzerPin  string
	flagLoopDelay  time.Duration
	flagDebug      bool
	flagSetTime    bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "", "Reader path, e.g. /dev/spidev0.0, /dev/i2c-1:0x28, /dev/ttyUSB0 (auto-detect if empty)")
	flag.StringVar(&flagMode, "mode", modeAuto, "One of "+strings.Join(modes, ", "))
	flag.StringVar(&flagRTCBus, "rtc-bus", "", "I2C bus of the DS1307 (first bus if empty)")
	flag.StringVar(&flagResetPin, "reset-pin", "", "GPIO wired to the reader's NRSTPD line")
	flag.StringVar(&flagSwitchPin, "switch-pin", "GPIO5", "GPIO of the mode switch (high selects the base station)")
	flag.StringVar(&flagStartPin, "start-pin", "GPIO6", "GPIO of the start button")
	flag.StringVar(&flagReadPin, "read-pin", "GPIO13", "GPIO of the read button")
	flag.StringVar(&flagBuzzerPin, "buzzer-pin", "GPIO19", "GPIO of the buzzer (empty for none)")
	flag.DurationVar(&flagLoopDelay, "loop-delay", 1500*time.Millisecond, "Pause between station operations")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagSetTime, "set-time", false, "Set the clock to the host time before starting")
}

func parseConfig() (*config, error) {
	cfg := &config{
		devicePath: flagDevicePath,
		mode:       strings.ToLower(flagMode),
		rtcBus:     flagRTCBus,
		resetPin:   flagResetPin,
		switchPin:  flagSwitchPin,
		startPin:   flagStartPin,
		readPin:    flagReadPin,
		buzzerPin:  flagBuzzerPin,
		loopDelay:  flagLoopDelay,
		debug:      flagDebug,
		setTime:    flagSetTime,
	}

	validMode := false
	for _, m := range modes {
		if cfg.mode == m {
			validMode = true
			break
		}
	}
	if !validMode {
		return nil, fmt.Errorf("unknown mode %q (want one of %s)", flagMode, strings.Join(modes, ", "))
	}
	if cfg.loopDelay < 0 {
		return nil, fmt.Errorf("loop delay must not be negative, got %v", cfg.loopDelay)
	}

	if cfg.debug {
		mfrc522.SetDebugEnabled(true)
	}
	return cfg, nil
}

// needsClock reports whether the mode stamps cards.
func (c *config) needsClock() bool {
	return c.setTime || c.mode == modeAuto || c.mode == modePost
}

// newTransportFromDevice creates a new transport from a detected device.
func newTransportFromDevice(device detection.DeviceInfo) (mfrc522.Transport, error) {
	switch strings.ToLower(device.Transport) {
	case "uart":
		transport, err := uart.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	case "i2c":
		transport, err := i2c.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return transport, nil
	case "spi":
		transport, err := spi.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}

// newTransport picks a transport from the shape of path.
func newTransport(path string) (mfrc522.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	pathLower := strings.ToLower(path)

	if strings.Contains(pathLower, "i2c") {
		transport, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
		}
		return transport, nil
	}

	if strings.Contains(pathLower, "spi") {
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	}

	// Default to UART for serial ports
	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

func lookupPin(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown GPIO %q", name)
	}
	return pin, nil
}

func inputPin(name string) (gpio.PinIn, error) {
	if name == "" {
		return nil, nil
	}
	pin, err := lookupPin(name)
	if err != nil {
		return nil, err
	}
	if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", name, err)
	}
	return pin, nil
}

func connectToDevice(ctx context.Context, cfg *config) (*mfrc522.Device, error) {
	var deviceOpts []mfrc522.Option
	if cfg.resetPin != "" {
		pin, err := lookupPin(cfg.resetPin)
		if err != nil {
			return nil, err
		}
		deviceOpts = append(deviceOpts, mfrc522.WithResetPin(pin))
	}

	connectOpts := []mfrc522.ConnectOption{
		mfrc522.WithDeviceOptions(deviceOpts...),
		mfrc522.WithConnectTimeout(time.Second),
	}
	if cfg.devicePath == "" {
		connectOpts = append(connectOpts,
			mfrc522.WithAutoDetection(),
			mfrc522.WithTransportFromDeviceFactory(newTransportFromDevice))
		mfrc522.Debugln("auto-detecting MFRC522 readers")
	} else {
		connectOpts = append(connectOpts, mfrc522.WithTransportFactory(newTransport))
		mfrc522.Debugf("opening reader %s", cfg.devicePath)
	}

	device, err := mfrc522.ConnectDevice(ctx, cfg.devicePath, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MFRC522 reader: %w", err)
	}

	if version, err := device.Version(); err == nil {
		_, _ = fmt.Printf("Reader: %s via %s\n", version, device.Transport().Type())
	}
	return device, nil
}

func runSelfTest(device *mfrc522.Device) error {
	version, err := device.Version()
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	_, _ = fmt.Printf("Version: %s\n", version)

	ok, err := device.SelfTest()
	if err != nil {
		return fmt.Errorf("self test: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", mfrc522.ErrSelfTestMismatch, version)
	}
	_, _ = fmt.Println("Self test passed")
	return nil
}

// runUIDMode prints cards as they come and go until ctx ends.
func runUIDMode(ctx context.Context, device *mfrc522.Device, reopen polling.ReopenFunc) error {
	sessionConfig := polling.DefaultConfig()
	session := polling.NewSession(device, sessionConfig)
	session.SetRecoverer(polling.NewRecoverer(device, reopen, sessionConfig.SleepRecovery))

	defer func() {
		if err := session.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
	}()

	session.SetOnCardDetected(func(uid mfrc522.UID) error {
		_, _ = fmt.Printf("Card detected: UID=%s\n", uid)
		return nil
	})
	session.SetOnCardChanged(func(uid mfrc522.UID) error {
		_, _ = fmt.Printf("Card changed: UID=%s\n", uid)
		return nil
	})
	session.SetOnCardRemoved(func(uid mfrc522.UID) {
		_, _ = fmt.Printf("Card removed: UID=%s\n", uid)
	})

	_, _ = fmt.Println("Watching for cards. Press Ctrl+C to stop...")
	err := session.Start(ctx)
	if current := session.GetDevice(); current != device {
		_ = current.Close()
	}
	m := session.Metrics()
	mfrc522.Debugf("session: %d polls, %d errors, %d cards, %d recoveries",
		m.PollCycles, m.PollErrors, m.CardsDetected, m.Recoveries)
	if err != nil {
		return fmt.Errorf("session stopped: %w", err)
	}
	return nil
}

func openClock(cfg *config) (*rtc.DS1307, error) {
	clock, err := rtc.Open(cfg.rtcBus)
	if err != nil {
		return nil, fmt.Errorf("failed to open clock: %w", err)
	}
	if cfg.setTime {
		ts := rtc.FromTime(time.Now())
		if err := clock.SetDateTime(ts); err != nil {
			_ = clock.Close()
			return nil, fmt.Errorf("failed to set clock: %w", err)
		}
		_, _ = fmt.Printf("Clock set to %s\n", ts)
	}
	running, err := clock.OscillatorRunning()
	if err != nil {
		_ = clock.Close()
		return nil, fmt.Errorf("failed to read clock: %w", err)
	}
	if !running {
		_, _ = fmt.Println("Clock oscillator was halted; starting it (run with -set-time to correct the time)")
		if err := clock.StartOscillator(); err != nil {
			_ = clock.Close()
			return nil, fmt.Errorf("failed to start clock: %w", err)
		}
	}
	return clock, nil
}

func printResult(r station.Result) {
	if r.Err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s failed: %v\n", r.Action, r.Err)
		return
	}
	switch r.Action {
	case station.ActionStart:
		_, _ = fmt.Printf("START! card %s issued\n", r.Record.UID)
	case station.ActionStamp:
		_, _ = fmt.Printf("Card %s stamped (%d free)\n", r.Record.UID, r.Record.Free())
	case station.ActionRead:
		_, _ = fmt.Println(r.Record)
	}
}

// runFixed repeats one station action until ctx ends.
func runFixed(ctx context.Context, st *station.Station, action station.Action) error {
	for {
		var rec station.Record
		var err error
		switch action {
		case station.ActionStart:
			_, _ = fmt.Println("Waiting for a card to issue...")
			rec, err = st.StartCard(ctx)
		case station.ActionRead:
			_, _ = fmt.Println("Waiting for a card to read...")
			rec, err = st.ReadCard(ctx)
		default:
			_, _ = fmt.Println("Waiting for a card to stamp...")
			rec, err = st.StampCard(ctx)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		printResult(station.Result{Action: action, Record: rec, Err: err})
		if mfrc522.IsFatal(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(st.Config().LoopDelay):
		}
	}
}

func runAuto(ctx context.Context, st *station.Station, cfg *config) error {
	var in station.Inputs
	var err error
	if in.Mode, err = inputPin(cfg.switchPin); err != nil {
		return err
	}
	if in.Start, err = inputPin(cfg.startPin); err != nil {
		return err
	}
	if in.Read, err = inputPin(cfg.readPin); err != nil {
		return err
	}
	_, _ = fmt.Println("Station running. Press Ctrl+C to stop...")
	return st.Run(ctx, in, printResult)
}

func newStation(device *mfrc522.Device, clock rtc.Clock, cfg *config) (*station.Station, error) {
	var buzzer station.Buzzer
	if cfg.mode == modeAuto || cfg.mode == modeBase || cfg.mode == modePost {
		if cfg.buzzerPin != "" {
			pin, err := lookupPin(cfg.buzzerPin)
			if err != nil {
				return nil, err
			}
			buzzer = station.PinBuzzer{Pin: pin}
		}
	}
	stationConfig := station.DefaultConfig()
	stationConfig.LoopDelay = cfg.loopDelay
	st, err := station.New(device, clock, buzzer, stationConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create station: %w", err)
	}
	return st, nil
}

func runStation(ctx context.Context, device *mfrc522.Device, cfg *config) error {
	var clock rtc.Clock
	if cfg.needsClock() {
		ds, err := openClock(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := ds.Close(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to close clock: %v\n", err)
			}
		}()
		clock = ds
	}

	st, err := newStation(device, clock, cfg)
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modeBase:
		return runFixed(ctx, st, station.ActionStart)
	case modePost:
		return runFixed(ctx, st, station.ActionStamp)
	case modeRead:
		return runFixed(ctx, st, station.ActionRead)
	default:
		return runAuto(ctx, st, cfg)
	}
}

func run(ctx context.Context, cfg *config) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph host: %w", err)
	}
	if syncutil.DeadlockDetection {
		mfrc522.Debugln("deadlock detection enabled")
	}

	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	switch cfg.mode {
	case modeSelfTest:
		return runSelfTest(device)
	case modeUID:
		return runUIDMode(ctx, device, func() (*mfrc522.Device, error) {
			return connectToDevice(ctx, cfg)
		})
	default:
		return runStation(ctx, device, cfg)
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		return 2
	}

	if cfg.debug {
		if path, err := mfrc522.InitSessionLog(); err == nil {
			_, _ = fmt.Fprintf(os.Stderr, "Debug log: %s\n", path)
			defer func() { _ = mfrc522.CloseSessionLog() }()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
