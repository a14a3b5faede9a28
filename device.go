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

package mfrc522

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522/detection"
	"periph.io/x/conn/v3/gpio"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retry behavior for connection setup
	RetryConfig *RetryConfig
	// PollConfig bounds the wait for command completion in Communicate
	PollConfig PollConfig
	// CRCPollConfig bounds the wait for the CRC coprocessor
	CRCPollConfig PollConfig
	// BootPollConfig bounds the wait for the chip to leave power-down after reset
	BootPollConfig PollConfig
	// SelfTestPollConfig bounds the wait for the 64-byte self-test result
	SelfTestPollConfig PollConfig
	// CardPollInterval is the pause between WaitForUID attempts
	CardPollInterval time.Duration
	// ResetSettle is the pause after a reset before boot polling starts
	ResetSettle time.Duration
	// Timeout is the per-transaction transport timeout
	Timeout time.Duration
	// AntennaGain is the receiver gain (0-7) applied by Initialize; negative keeps the chip default
	AntennaGain int
	// TraceDepth is the number of register transactions kept for error reports
	TraceDepth int
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:        DefaultRetryConfig(),
		PollConfig:         PollConfig{MaxAttempts: CommandPollAttempts, Interval: CommandPollInterval},
		CRCPollConfig:      PollConfig{MaxAttempts: CRCPollAttempts, Interval: CRCPollInterval},
		BootPollConfig:     PollConfig{MaxAttempts: BootPollAttempts, Interval: BootPollInterval},
		SelfTestPollConfig: PollConfig{MaxAttempts: SelfTestPollAttempts, Interval: SelfTestPollInterval},
		CardPollInterval:   DefaultCardPollInterval,
		ResetSettle:        SoftResetSettle,
		Timeout:            TransportDefaultTimeout,
		AntennaGain:        -1,
		TraceDepth:         32,
	}
}

// Device represents an MFRC522 reader chip and the card currently in its field.
//
// Thread Safety: Device is NOT thread-safe. It owns the chip exclusively and
// all methods must be called from a single goroutine or protected with
// external synchronization. polling.Session provides that ownership when
// card monitoring runs in the background.
type Device struct {
	bus         *RegisterBus
	config      *DeviceConfig
	resetPin    gpio.PinOut
	state       CardState
	uid         UID
	authSector  int
	lastBits    byte
	initialized bool
	closed      bool
	// field options seen during New, replayed over WithDeviceConfig
	overrides []func(*DeviceConfig)
}

func (d *Device) set(apply func(*DeviceConfig)) {
	apply(d.config)
	d.overrides = append(d.overrides, apply)
}

// Option configures a Device at construction time.
type Option func(*Device) error

// WithResetPin drives the chip's NRSTPD line for hard resets.
func WithResetPin(pin gpio.PinOut) Option {
	return func(d *Device) error {
		if pin == nil {
			return fmt.Errorf("%w: nil reset pin", ErrInvalidParameter)
		}
		d.resetPin = pin
		return nil
	}
}

// WithDeviceConfig replaces the base configuration with a copy of config.
// Field options such as WithPollConfig still win, wherever they appear in
// the option list.
func WithDeviceConfig(config *DeviceConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return fmt.Errorf("%w: nil device config", ErrInvalidParameter)
		}
		cfg := *config
		d.config = &cfg
		for _, apply := range d.overrides {
			apply(d.config)
		}
		return nil
	}
}

// WithPollConfig sets the command completion poll budget.
func WithPollConfig(cfg PollConfig) Option {
	return func(d *Device) error {
		d.set(func(c *DeviceConfig) { c.PollConfig = cfg })
		return nil
	}
}

// WithBootPollConfig sets the boot-up poll budget.
func WithBootPollConfig(cfg PollConfig) Option {
	return func(d *Device) error {
		d.set(func(c *DeviceConfig) { c.BootPollConfig = cfg })
		return nil
	}
}

// WithCardPollInterval sets the pause between WaitForUID attempts.
func WithCardPollInterval(interval time.Duration) Option {
	return func(d *Device) error {
		if interval < 0 {
			return fmt.Errorf("%w: negative card poll interval", ErrInvalidParameter)
		}
		d.set(func(c *DeviceConfig) { c.CardPollInterval = interval })
		return nil
	}
}

// WithResetSettle sets the pause between a reset and boot polling.
func WithResetSettle(settle time.Duration) Option {
	return func(d *Device) error {
		d.set(func(c *DeviceConfig) { c.ResetSettle = settle })
		return nil
	}
}

// WithAntennaGain sets the receiver gain applied by Initialize.
func WithAntennaGain(gain int) Option {
	return func(d *Device) error {
		if gain > 7 {
			return fmt.Errorf("%w: antenna gain %d out of range 0-7", ErrInvalidParameter, gain)
		}
		d.set(func(c *DeviceConfig) { c.AntennaGain = gain })
		return nil
	}
}

// WithRetryConfig sets the retry behavior used while connecting.
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.set(func(c *DeviceConfig) { c.RetryConfig = config })
		return nil
	}
}

// New creates a new MFRC522 device with the given transport.
// The chip is not touched until Initialize is called.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	device := &Device{
		config:     DefaultDeviceConfig(),
		authSector: -1,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	device.overrides = nil
	device.bus = NewRegisterBus(transport, device.config.TraceDepth)
	return device, nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)
	deviceOptions          []Option
	timeout                time.Duration
	autoDetect             bool
	connectionRetries      int
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout sets the per-transaction transport timeout used after connecting
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection retry attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		connectionRetries: DefaultConnectionRetries,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

// ConnectDevice creates and initializes an MFRC522 device from a path or auto-detection.
//
// Example usage:
//
//	// Connect to specific device
//	device, err := mfrc522.ConnectDevice(ctx, "/dev/spidev0.0",
//	    mfrc522.WithTransportFactory(func(p string) (mfrc522.Transport, error) { return spi.New(p) }))
//
//	// Auto-detect device
//	device, err := mfrc522.ConnectDevice(ctx, "", mfrc522.WithAutoDetection(), ...)
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := setupDeviceWithRetry(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return device, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	}
	return createManualTransport(path, config.transportFactory)
}

func setupDevice(transport Transport, config *connectConfig) (*Device, error) {
	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if config.timeout > 0 {
		if err := device.SetTimeout(config.timeout); err != nil {
			return nil, fmt.Errorf("failed to set timeout: %w", err)
		}
	}

	if err := device.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	return device, nil
}

// setupDeviceWithRetry wraps setupDevice with retry logic for connection attempts
func setupDeviceWithRetry(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	// Auto-detection already probed the chip, so a single attempt is enough
	if config.autoDetect {
		return setupDevice(transport, config)
	}

	retryConfig := &RetryConfig{
		MaxAttempts:       config.connectionRetries,
		InitialBackoff:    ConnectionInitialBackoff,
		MaxBackoff:        ConnectionMaxBackoff,
		BackoffMultiplier: ConnectionBackoffMultiplier,
		Jitter:            ConnectionJitter,
		RetryTimeout:      ConnectionRetryTimeout,
	}

	var device *Device
	err := RetryWithConfig(ctx, retryConfig, func() error {
		var err error
		device, err = setupDevice(transport, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup device after %d attempts: %w", config.connectionRetries, err)
	}

	return device, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) (Transport, error) {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	if detector == nil {
		detector = detection.DetectAll
	}
	devices, err := detector(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no MFRC522 readers found", ErrDeviceNotFound)
	}

	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	return factory(devices[0])
}

// Bus returns the register bus for low-level access.
func (d *Device) Bus() *RegisterBus {
	return d.bus
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.bus.Transport()
}

// Config returns the active configuration.
func (d *Device) Config() *DeviceConfig {
	return d.config
}

// SetTimeout sets the per-transaction transport timeout
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.config.Timeout = timeout
	if err := d.bus.Transport().SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

func (d *Device) checkOpen() error {
	if d.closed {
		return ErrDeviceClosed
	}
	return nil
}

// HardReset pulses the reset line and waits for the chip to boot. Without a
// reset pin it falls back to SoftReset.
func (d *Device) HardReset() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if d.resetPin == nil {
		Debugf("%v, using soft reset", ErrNoResetPin)
		return d.SoftReset()
	}

	if err := d.resetPin.Out(gpio.Low); err != nil {
		return fmt.Errorf("reset pin low: %w", err)
	}
	time.Sleep(ResetPulseWidth)
	if err := d.resetPin.Out(gpio.High); err != nil {
		return fmt.Errorf("reset pin high: %w", err)
	}
	d.resetCardState()
	return d.settleAndWaitForBoot()
}

// PowerDown holds NRSTPD low, which puts the chip into hard power-down
// with the oscillator and antenna off. HardReset or Initialize wakes it.
func (d *Device) PowerDown() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if d.resetPin == nil {
		return ErrNoResetPin
	}
	if err := d.resetPin.Out(gpio.Low); err != nil {
		return fmt.Errorf("reset pin low: %w", err)
	}
	d.resetCardState()
	d.initialized = false
	return nil
}

// SoftReset issues the SoftReset command and waits for the chip to boot.
func (d *Device) SoftReset() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if err := d.bus.WriteRegister(CommandReg, byte(CmdSoftReset)); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	d.resetCardState()
	return d.settleAndWaitForBoot()
}

func (d *Device) settleAndWaitForBoot() error {
	if d.config.ResetSettle > 0 {
		time.Sleep(d.config.ResetSettle)
	}
	return d.WaitForBootUp()
}

// WaitForBootUp polls CommandReg until the PowerDown bit clears. It gives up
// with StatusBootTimeout once BootPollConfig is exhausted.
func (d *Device) WaitForBootUp() error {
	err := pollStatus(d.config.BootPollConfig, StatusBootTimeout, func() (bool, error) {
		v, err := d.bus.ReadRegister(CommandReg)
		if err != nil {
			return false, err
		}
		return v&PowerDownBit == 0, nil
	})
	if err != nil {
		return d.bus.timedOut("boot", fmt.Errorf("wait for boot: %w", err))
	}
	return nil
}

// StateAntennas switches the antenna drivers TX1 and TX2 on or off.
func (d *Device) StateAntennas(on bool) error {
	if !on {
		return d.bus.ClearBitMask(TxControlReg, AntennaOn)
	}
	current, err := d.bus.ReadRegister(TxControlReg)
	if err != nil {
		return err
	}
	if current&AntennaOn == AntennaOn {
		return nil
	}
	return d.bus.WriteRegister(TxControlReg, current|AntennaOn)
}

// AntennaGain returns the receiver gain setting (0-7).
func (d *Device) AntennaGain() (int, error) {
	v, err := d.bus.ReadRegister(RFCfgReg)
	if err != nil {
		return 0, err
	}
	return int((v & RxGainMask) >> 4), nil
}

// SetAntennaGain sets the receiver gain (0-7).
func (d *Device) SetAntennaGain(gain int) error {
	if gain < 0 || gain > 7 {
		return fmt.Errorf("%w: antenna gain %d out of range 0-7", ErrInvalidParameter, gain)
	}
	current, err := d.bus.ReadRegister(RFCfgReg)
	if err != nil {
		return err
	}
	return d.bus.WriteRegister(RFCfgReg, current&^RxGainMask|byte(gain)<<4)
}

// CheckError reads ErrorReg and returns the highest-priority status it reports,
// or nil when no error flag is set.
func (d *Device) CheckError() error {
	flags, err := d.bus.ReadRegister(ErrorReg)
	if err != nil {
		return err
	}
	return statusFromErrorReg(flags).Err()
}

// Initialize resets the chip and applies the baseline configuration: timer
// in auto mode, 100% ASK, CRC preset 0x6363, antenna on. It can be called
// again at any time to return to the same state.
func (d *Device) Initialize() error {
	if err := d.HardReset(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := d.applyBaseline(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	d.initialized = true
	Debugf("MFRC522 initialized via %s", d.bus.Transport().Type())
	return nil
}

func (d *Device) applyBaseline() error {
	baseline := []struct {
		reg   Register
		value byte
	}{
		{TxModeReg, 0x00},
		{RxModeReg, 0x00},
		{ModWidthReg, defaultModWidth},
		{TModeReg, defaultTMode},
		{TPrescalerReg, defaultTPrescaler},
		{TReloadRegH, defaultTReloadH},
		{TReloadRegL, defaultTReloadL},
		{TxASKReg, defaultTxASK},
		{ModeReg, defaultMode},
	}
	for _, r := range baseline {
		if err := d.bus.WriteRegister(r.reg, r.value); err != nil {
			return err
		}
	}
	if d.config.AntennaGain >= 0 {
		if err := d.SetAntennaGain(d.config.AntennaGain); err != nil {
			return err
		}
	}
	return d.StateAntennas(true)
}

// Initialized reports whether Initialize has completed successfully.
func (d *Device) Initialized() bool {
	return d.initialized
}

// Version reads VersionReg.
func (d *Device) Version() (Version, error) {
	v, err := d.bus.ReadRegister(VersionReg)
	if err != nil {
		return 0, err
	}
	return Version(v), nil
}

// ClearFIFO flushes the FIFO buffer.
func (d *Device) ClearFIFO() error {
	return d.bus.WriteRegister(FIFOLevelReg, FlushBufferBit)
}

// FillFIFO flushes the FIFO and fills all 64 bytes with value.
func (d *Device) FillFIFO(value byte) error {
	var buf Buffer
	buf.Fill(value)
	return d.WriteFIFO(buf.Bytes())
}

// ClearInternalBuffer overwrites the chip's 25-byte internal memory with zeros.
func (d *Device) ClearInternalBuffer() error {
	var zeros [InternalBufferSize]byte
	if _, err := d.Communicate(CmdMem, zeros[:], nil); err != nil {
		return fmt.Errorf("clear internal buffer: %w", err)
	}
	return nil
}

// GenerateRandomID runs the chip's random number generator and returns the
// 10-byte result.
func (d *Device) GenerateRandomID() ([10]byte, error) {
	var id [10]byte
	if _, err := d.Communicate(CmdGenerateRandomID, nil, nil); err != nil {
		return id, fmt.Errorf("generate random ID: %w", err)
	}
	var mem [InternalBufferSize]byte
	n, err := d.Communicate(CmdMem, nil, mem[:])
	if err != nil {
		return id, fmt.Errorf("read random ID: %w", err)
	}
	if n < len(id) {
		return id, &CommandError{Op: "GenerateRandomID", Command: CmdMem, Status: StatusProtocolError, Received: n}
	}
	copy(id[:], mem[:])
	return id, nil
}

// Close switches the antenna off, idles the chip and closes the transport.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	_ = d.StateAntennas(false)
	_ = d.bus.WriteRegister(CommandReg, byte(CmdIdle))
	d.closed = true
	d.resetCardState()
	if err := d.bus.Transport().Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}
