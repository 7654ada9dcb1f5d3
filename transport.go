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

package register

import (
	"context"
	"time"

	"github.com/laudena/kaspa-register/internal/syncutil"
)

// Transport is the hardware path to a Type 2 tag. Implementations live in
// the transport/ subpackages: a PN532 chip over SPI or UART, and a PC/SC
// smartcard reader. All operations are synchronous and bounded; none may
// block past its timeout.
type Transport interface {
	// Detect waits up to timeout for a tag to enter the field and returns
	// its handle, or ErrNoTagDetected. The context cancels the wait early.
	Detect(ctx context.Context, timeout time.Duration) (*TagHandle, error)

	// ReadPage reads the 4 bytes of one tag page.
	ReadPage(page uint8) ([]byte, error)

	// WritePage writes exactly 4 bytes to one tag page.
	WritePage(page uint8, data []byte) error

	// Close releases the underlying hardware resource. It is idempotent
	// and always safe to call.
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportSPI is the PN532 chip protocol over an SPI bus.
	TransportSPI TransportType = "spi"
	// TransportUART is the PN532 chip protocol over a serial port.
	TransportUART TransportType = "uart"
	// TransportPCSC is the smartcard APDU protocol over a PC/SC reader.
	TransportPCSC TransportType = "pcsc"
	// TransportMock is a mock transport for testing
	TransportMock TransportType = "mock"
)

// TagHandle identifies a detected tag.
type TagHandle struct {
	// UID is the tag's unique identifier (typically 7 bytes for NTAG21x).
	UID []byte
}

// Factory produces the Transport for a write session. The writer calls it
// on entering Detecting and owns the result until the session terminates.
type Factory func() (Transport, error)

// MockTransport provides an in-memory Transport implementation for testing.
// It simulates a Type 2 tag page store with scriptable per-page write
// failures and read corruption.
type MockTransport struct {
	pages         map[uint8][]byte
	writeFailures map[uint8]int
	writeAttempts map[uint8]int
	readOverride  map[uint8][]byte
	readErrors    map[uint8]error
	detectErr     error
	uid           []byte
	closeCount    int
	mu            syncutil.Mutex
	closed        bool
}

// NewMockTransport creates a mock transport simulating an empty NDEF tag of
// the given usable capacity (CapacityNTAG215 or CapacityNTAG216).
func NewMockTransport(capacity int) *MockTransport {
	m := &MockTransport{
		pages:         make(map[uint8][]byte),
		writeFailures: make(map[uint8]int),
		writeAttempts: make(map[uint8]int),
		readOverride:  make(map[uint8][]byte),
		readErrors:    make(map[uint8]error),
		uid:           []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
	}
	// Capability container: magic, version 1.0, capacity/8, read/write access
	//nolint:gosec // capacity/8 fits in a byte for all supported variants
	m.pages[CapabilityPage] = []byte{0xE1, 0x10, byte(capacity / 8), 0x00}
	return m
}

// Detect implements Transport.
func (m *MockTransport) Detect(ctx context.Context, _ time.Duration) (*TagHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, NewTransportClosedError("Detect", "mock")
	}
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	return &TagHandle{UID: m.uid}, nil
}

// ReadPage implements Transport.
func (m *MockTransport) ReadPage(page uint8) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, NewTransportClosedError("ReadPage", "mock")
	}
	if err, ok := m.readErrors[page]; ok {
		return nil, err
	}
	if data, ok := m.readOverride[page]; ok {
		out := make([]byte, PageSize)
		copy(out, data)
		return out, nil
	}
	out := make([]byte, PageSize)
	copy(out, m.pages[page])
	return out, nil
}

// WritePage implements Transport.
func (m *MockTransport) WritePage(page uint8, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NewTransportClosedError("WritePage", "mock")
	}
	if len(data) != PageSize {
		return NewInvalidResponseError("WritePage", "mock")
	}

	m.writeAttempts[page]++
	if m.writeFailures[page] > 0 {
		m.writeFailures[page]--
		return NewTransportWriteError("WritePage", "mock")
	}

	stored := make([]byte, PageSize)
	copy(stored, data)
	m.pages[page] = stored
	return nil
}

// Close implements Transport. It is idempotent but counts every call so
// tests can assert close-exactly-once.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCount++
	return nil
}

// Type implements Transport.
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetDetectError makes Detect fail with the given error.
func (m *MockTransport) SetDetectError(err error) {
	m.mu.Lock()
	m.detectErr = err
	m.mu.Unlock()
}

// FailWritePage makes the next n writes to a page fail with a retryable
// transport error before succeeding.
func (m *MockTransport) FailWritePage(page uint8, n int) {
	m.mu.Lock()
	m.writeFailures[page] = n
	m.mu.Unlock()
}

// CorruptReadPage makes reads of a page return the given bytes instead of
// the stored ones, simulating a bad read-back during verification.
func (m *MockTransport) CorruptReadPage(page uint8, data []byte) {
	m.mu.Lock()
	m.readOverride[page] = data
	m.mu.Unlock()
}

// SetReadError makes reads of a page fail with the given error.
func (m *MockTransport) SetReadError(page uint8, err error) {
	m.mu.Lock()
	m.readErrors[page] = err
	m.mu.Unlock()
}

// WriteAttempts returns how many times a page write was attempted.
func (m *MockTransport) WriteAttempts(page uint8) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeAttempts[page]
}

// CloseCount returns how many times Close was called.
func (m *MockTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// PageData returns a copy of the stored bytes for a page.
func (m *MockTransport) PageData(page uint8) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, PageSize)
	copy(out, m.pages[page])
	return out
}

var _ Transport = (*MockTransport)(nil)
