// Copyright 2026 The Kaspa Register Contributors.
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

// Package spi drives a PN532 over an SPI bus as a Type 2 tag transport.
// It owns the chip's reset line (RSTPD_N, active low) and an optional
// status indicator LED with an idle auto-off timer.
package spi

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	register "github.com/laudena/kaspa-register"
	"github.com/laudena/kaspa-register/internal/chip"
	"github.com/laudena/kaspa-register/internal/frame"
	"github.com/laudena/kaspa-register/internal/syncutil"
)

const (
	// SPI protocol bytes the PN532 understands
	spiStatRead  = 0x02
	spiDataWrite = 0x01
	spiDataRead  = 0x03
	spiReady     = 0x01

	// Default SPI settings
	defaultFreq = 1 * physic.MegaHertz
	spiMode     = spi.Mode0 // CPOL=0, CPHA=0 (LSB first handled by bit reversal)

	// resetPulse is how long RSTPD_N is held low; bootDelay how long the
	// chip needs after release before it accepts commands.
	resetPulse = 10 * time.Millisecond
	bootDelay  = 100 * time.Millisecond

	// detectInterval paces passive discovery attempts during Detect.
	detectInterval = 100 * time.Millisecond
)

// Transport implements register.Transport for a PN532 on an SPI bus.
type Transport struct {
	port      spi.PortCloser
	conn      spi.Conn
	rst       gpio.PinIO
	indicator *indicator
	portName  string
	timeout   time.Duration
	target    byte
	mu        syncutil.Mutex
	closed    bool
}

// Option configures the SPI transport.
type Option func(*config)

type config struct {
	resetPin     string
	indicatorPin string
	idleOff      time.Duration
	timeout      time.Duration
}

// WithResetPin names the GPIO pin wired to RSTPD_N (e.g. "GPIO25").
func WithResetPin(name string) Option {
	return func(c *config) { c.resetPin = name }
}

// WithIndicatorPin names the GPIO pin driving the status LED (e.g.
// "GPIO13"). The LED turns on with tag activity and an independent timer
// turns it off after idleOff; repeated activity resets the timer.
func WithIndicatorPin(name string, idleOff time.Duration) Option {
	return func(c *config) {
		c.indicatorPin = name
		c.idleOff = idleOff
	}
}

// WithTimeout sets the per-exchange ready-wait timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) { c.timeout = timeout }
}

// New opens the SPI port (e.g. "SPI0.0") and prepares the PN532.
func New(portName string, opts ...Option) (*Transport, error) {
	cfg := &config{
		idleOff: 20 * time.Second,
		timeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, spiMode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
		timeout:  cfg.timeout,
	}

	if cfg.resetPin != "" {
		t.rst = gpioreg.ByName(cfg.resetPin)
		if t.rst == nil {
			_ = port.Close()
			return nil, fmt.Errorf("reset pin %s not found", cfg.resetPin)
		}
	}
	if cfg.indicatorPin != "" {
		pin := gpioreg.ByName(cfg.indicatorPin)
		if pin == nil {
			_ = port.Close()
			return nil, fmt.Errorf("indicator pin %s not found", cfg.indicatorPin)
		}
		t.indicator = newIndicator(pin, cfg.idleOff)
	}

	t.wakeup()
	return t, nil
}

// wakeup sends a dummy byte to bring the PN532 out of power-down.
func (t *Transport) wakeup() {
	time.Sleep(1 * time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, nil) // Ignore error for wakeup
	time.Sleep(1 * time.Millisecond)
}

// resetChip pulses RSTPD_N low and waits for the chip to boot. A no-op
// when no reset line is configured.
func (t *Transport) resetChip() {
	if t.rst == nil {
		return
	}
	_ = t.rst.Out(gpio.Low)
	time.Sleep(resetPulse)
	_ = t.rst.Out(gpio.High)
	time.Sleep(bootDelay)
	t.wakeup()
}

// Detect implements register.Transport. It resets the chip, configures the
// SAM and polls passive discovery until a tag answers or the timeout
// expires.
func (t *Transport) Detect(ctx context.Context, timeout time.Duration) (*register.TagHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, register.NewTransportClosedError("Detect", t.portName)
	}

	t.resetChip()
	if err := chip.Configure(t.sendCommand); err != nil {
		return nil, fmt.Errorf("%w: %w", register.ErrNoTagDetected, err)
	}

	t.indicator.Touch()

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target, err := chip.ListPassiveTarget(t.sendCommand)
		if err != nil && !register.IsRetryable(err) {
			return nil, fmt.Errorf("%w: %w", register.ErrNoTagDetected, err)
		}
		if target != nil {
			t.target = target.Number
			t.indicator.Touch()
			return &register.TagHandle{UID: target.UID}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: no target after %s", register.ErrNoTagDetected, timeout)
		}
		time.Sleep(detectInterval)
	}
}

// ReadPage implements register.Transport.
func (t *Transport) ReadPage(page uint8) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, register.NewTransportClosedError("ReadPage", t.portName)
	}

	t.indicator.Touch()
	return chip.ReadPage(t.sendCommand, t.target, page)
}

// WritePage implements register.Transport.
func (t *Transport) WritePage(page uint8, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return register.NewTransportClosedError("WritePage", t.portName)
	}

	t.indicator.Touch()
	return chip.WritePage(t.sendCommand, t.target, page, data)
}

// Close implements register.Transport. The chip is held in reset so its RF
// field is definitely off; the indicator timer keeps running so the LED
// still auto-extinguishes on its own schedule.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	if t.target != 0 {
		_ = chip.Release(t.sendCommand, t.target) // Best effort
	}
	if t.rst != nil {
		_ = t.rst.Out(gpio.Low)
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// Type implements register.Transport.
func (*Transport) Type() register.TransportType {
	return register.TransportSPI
}

// reverseBit reverses the bits in a byte (LSB <-> MSB).
// The PN532 shifts LSB first but the SPI controller is MSB first.
func reverseBit(b byte) byte {
	var result byte
	for i := 0; i < 8; i++ {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

// reverseBytes returns a bit-reversed copy of data.
func reverseBytes(data []byte) []byte {
	reversed := make([]byte, len(data))
	for i, b := range data {
		reversed[i] = reverseBit(b)
	}
	return reversed
}

// waitReady polls the PN532 status byte until it signals ready.
func (t *Transport) waitReady() error {
	deadline := time.Now().Add(t.timeout)
	statusCmd := []byte{reverseBit(spiStatRead), 0}
	statusResp := make([]byte, 2)

	for time.Now().Before(deadline) {
		time.Sleep(1 * time.Millisecond)

		if err := t.conn.Tx(statusCmd, statusResp); err != nil {
			return fmt.Errorf("SPI status read failed: %w", err)
		}
		if reverseBit(statusResp[1]) == spiReady {
			return nil
		}

		time.Sleep(5 * time.Millisecond)
	}

	return register.NewTransportNotReadyError("waitReady", t.portName)
}

// sendCommand sends one command frame and returns the response payload.
func (t *Transport) sendCommand(cmd byte, args []byte) ([]byte, error) {
	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}
	if err := t.waitAck(); err != nil {
		return nil, err
	}

	// Small delay for the PN532 to process the command
	time.Sleep(6 * time.Millisecond)

	return t.receiveFrame(cmd)
}

// sendFrame builds an information frame and clocks it out LSB first behind
// the data-write SPI prefix.
func (t *Transport) sendFrame(cmd byte, args []byte) error {
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return register.NewTransportError("sendFrame", t.portName, err, register.ErrorTypePermanent)
	}

	spiData := make([]byte, 0, len(frm)+1)
	spiData = append(spiData, reverseBit(spiDataWrite))
	spiData = append(spiData, reverseBytes(frm)...)

	time.Sleep(2 * time.Millisecond) // Required delay before asserting data
	if err := t.conn.Tx(spiData, nil); err != nil {
		return register.NewTransportWriteError("sendFrame", t.portName)
	}
	return nil
}

// waitAck waits for the ACK frame acknowledging the last command.
func (t *Transport) waitAck() error {
	if err := t.waitReady(); err != nil {
		return err
	}

	readCmd := []byte{reverseBit(spiDataRead)}
	readData := make([]byte, len(frame.AckFrame)+1)
	if err := t.conn.Tx(readCmd, readData); err != nil {
		return register.NewTransportReadError("waitAck", t.portName)
	}

	// Skip the first (status) byte, then convert LSB to MSB
	ack := reverseBytes(readData[1:])
	if !bytes.Equal(ack, frame.AckFrame) {
		if bytes.Equal(ack, frame.NackFrame) {
			return register.NewNACKReceivedError("waitAck", t.portName)
		}
		return register.NewInvalidResponseError("waitAck", t.portName)
	}
	return nil
}

// receiveFrame reads and validates a response frame.
func (t *Transport) receiveFrame(cmd byte) ([]byte, error) {
	if err := t.waitReady(); err != nil {
		return nil, err
	}

	readCmd := []byte{reverseBit(spiDataRead)}
	headerData := make([]byte, frame.HeaderLength+3+1)
	if err := t.conn.Tx(readCmd, headerData); err != nil {
		return nil, register.NewTransportReadError("receiveFrame", t.portName)
	}

	header := reverseBytes(headerData[1:])
	if !frame.ValidHeader(header) {
		return nil, register.NewFrameCorruptedError("receiveFrame", t.portName)
	}
	length := int(header[3])

	// Read TFI + PD + DCS + postamble in one more transfer
	full := make([]byte, length+2+1)
	if err := t.conn.Tx(readCmd, full); err != nil {
		return nil, register.NewTransportReadError("receiveFrame", t.portName)
	}
	data := reverseBytes(full[1:])

	if !frame.ValidData(data[:length], data[length]) {
		return nil, register.NewChecksumMismatchError("receiveFrame", t.portName)
	}

	resp, ok := frame.ExtractResponse(cmd, data[:length])
	if !ok {
		return nil, register.NewInvalidResponseError("receiveFrame", t.portName)
	}
	return resp, nil
}

var _ register.Transport = (*Transport)(nil)
