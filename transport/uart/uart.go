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

// Package uart drives a PN532 over a serial port (HSU) as a Type 2 tag
// transport. The wire protocol is the same information-frame exchange the
// SPI transport speaks, without the bit reversal and with an explicit
// wake-up preamble before every command.
package uart

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"

	register "github.com/laudena/kaspa-register"
	"github.com/laudena/kaspa-register/internal/chip"
	"github.com/laudena/kaspa-register/internal/frame"
	"github.com/laudena/kaspa-register/internal/syncutil"
)

const (
	readTimeout    = 50 * time.Millisecond
	detectInterval = 100 * time.Millisecond

	// ackScanLimit bounds how many bytes waitAck scans before giving up.
	ackScanLimit = 32
)

// Transport implements register.Transport for a PN532 on a serial port.
type Transport struct {
	port     serial.Port
	portName string
	target   byte
	mu       syncutil.Mutex
	closed   bool
}

// New opens portName at the PN532's fixed 115200-8N1 and returns a ready
// transport.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
	}, nil
}

// Detect implements register.Transport.
func (t *Transport) Detect(ctx context.Context, timeout time.Duration) (*register.TagHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, register.NewTransportClosedError("Detect", t.portName)
	}

	if err := chip.Configure(t.sendCommand); err != nil {
		return nil, fmt.Errorf("%w: %w", register.ErrNoTagDetected, err)
	}

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
	return chip.ReadPage(t.sendCommand, t.target, page)
}

// WritePage implements register.Transport.
func (t *Transport) WritePage(page uint8, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return register.NewTransportClosedError("WritePage", t.portName)
	}
	return chip.WritePage(t.sendCommand, t.target, page, data)
}

// Close implements register.Transport.
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
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type implements register.Transport.
func (*Transport) Type() register.TransportType {
	return register.TransportUART
}

// wakeUp brings the PN532 out of its low-VBAT state. Over UART the chip
// must see a 0x55 dummy byte followed by enough padding to satisfy its
// wake-up timing before any frame.
func (t *Transport) wakeUp() error {
	wake := []byte{
		0x55, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	n, err := t.port.Write(wake)
	if err != nil {
		return fmt.Errorf("UART wake up write failed: %w", err)
	}
	if n != len(wake) {
		return register.NewTransportWriteError("wakeUp", t.portName)
	}
	if err := t.port.Drain(); err != nil {
		return fmt.Errorf("UART wake up drain failed: %w", err)
	}
	return nil
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

	resp, err := t.receiveFrame(cmd)
	if err != nil {
		return nil, err
	}

	if err := t.sendAck(); err != nil {
		return nil, err
	}
	return resp, nil
}

// sendFrame wakes the chip and writes one information frame.
func (t *Transport) sendFrame(cmd byte, args []byte) error {
	frm, err := frame.Build(cmd, args)
	if err != nil {
		return register.NewTransportError("sendFrame", t.portName, err, register.ErrorTypePermanent)
	}

	if err := t.wakeUp(); err != nil {
		return err
	}

	n, err := t.port.Write(frm)
	if err != nil {
		return fmt.Errorf("UART send frame write failed: %w", err)
	}
	if n != len(frm) {
		return register.NewTransportWriteError("sendFrame", t.portName)
	}

	if err := t.port.Drain(); err != nil {
		return fmt.Errorf("UART send frame drain failed: %w", err)
	}
	return nil
}

// sendAck acknowledges a received response frame.
func (t *Transport) sendAck() error {
	n, err := t.port.Write(frame.AckFrame)
	if err != nil {
		return fmt.Errorf("UART ACK write failed: %w", err)
	}
	if n != len(frame.AckFrame) {
		return register.NewTransportWriteError("sendAck", t.portName)
	}
	if err := t.port.Drain(); err != nil {
		return fmt.Errorf("UART ACK drain failed: %w", err)
	}
	return nil
}

// waitAck scans the incoming byte stream for the ACK frame. The chip may
// precede the ACK with stray nulls, so a sliding six-byte window is matched
// rather than one fixed read.
func (t *Transport) waitAck() error {
	window := make([]byte, 0, len(frame.AckFrame))
	buf := make([]byte, 1)

	for tries := 0; tries < ackScanLimit; {
		n, err := t.port.Read(buf)
		if err != nil {
			return fmt.Errorf("UART ACK read failed: %w", err)
		}
		if n == 0 {
			tries++
			continue
		}

		window = append(window, buf[0])
		if len(window) < len(frame.AckFrame) {
			continue
		}
		if bytes.Equal(window, frame.AckFrame) {
			return nil
		}
		if bytes.Equal(window, frame.NackFrame) {
			return register.NewNACKReceivedError("waitAck", t.portName)
		}
		window = window[1:]
		tries++
	}

	return register.NewTransportNotReadyError("waitAck", t.portName)
}

// readFull reads exactly len(p) bytes, tolerating the port's short reads.
func (t *Transport) readFull(p []byte) error {
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for got < len(p) {
		if time.Now().After(deadline) {
			return register.NewTimeoutError("receiveFrame", t.portName)
		}
		n, err := t.port.Read(p[got:])
		if err != nil {
			return fmt.Errorf("UART read failed: %w", err)
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		got += n
	}
	return nil
}

// receiveFrame reads and validates a response frame.
func (t *Transport) receiveFrame(cmd byte) ([]byte, error) {
	header := make([]byte, frame.HeaderLength)
	if err := t.readFull(header); err != nil {
		return nil, err
	}
	if !frame.ValidHeader(header) {
		return nil, register.NewFrameCorruptedError("receiveFrame", t.portName)
	}
	length := int(header[3])

	body := make([]byte, length+2) // TFI+PD, DCS, postamble
	if err := t.readFull(body); err != nil {
		return nil, err
	}
	if !frame.ValidData(body[:length], body[length]) {
		return nil, register.NewChecksumMismatchError("receiveFrame", t.portName)
	}

	resp, ok := frame.ExtractResponse(cmd, body[:length])
	if !ok {
		return nil, register.NewInvalidResponseError("receiveFrame", t.portName)
	}
	return resp, nil
}

var _ register.Transport = (*Transport)(nil)
