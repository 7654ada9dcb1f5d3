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
	"errors"
	"fmt"
	"io"
)

// Encoding errors - caller input problems, never retryable
var (
	// ErrAddressInvalid indicates a malformed or empty kaspa address.
	ErrAddressInvalid = errors.New("kaspa address invalid")
	// ErrAmountInvalid indicates a negative amount or one with more than
	// eight fractional digits.
	ErrAmountInvalid = errors.New("amount invalid")
	// ErrMessageTooLong indicates the message alone exceeds the sane bound,
	// before any capacity check.
	ErrMessageTooLong = errors.New("message too long")
)

// Session errors - terminal write session failures
var (
	// ErrNoTagDetected indicates the detect timeout expired with no tag in field.
	ErrNoTagDetected = errors.New("no tag detected")
	// ErrSelectFailed indicates the tag identification exchange failed or the
	// tag is not an NDEF-formatted NTAG215/216.
	ErrSelectFailed = errors.New("tag selection failed")
	// ErrCancelled indicates the session was cancelled externally.
	ErrCancelled = errors.New("write cancelled")
	// ErrAlreadyWriting indicates a write session is already active.
	ErrAlreadyWriting = errors.New("write session already active")
)

// Transport errors - potentially retryable
var (
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")
	ErrNACKReceived      = errors.New("NACK received")
	ErrFrameCorrupted    = errors.New("frame corrupted")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrInvalidResponse   = errors.New("invalid response format")
)

// Reader errors - smartcard transport specific
var (
	// ErrReaderUnavailable indicates no PC/SC reader service or no matching reader.
	ErrReaderUnavailable = errors.New("reader unavailable")
	// ErrCardRemoved indicates the card left the field mid-exchange.
	ErrCardRemoved = errors.New("card removed")
)

// ErrRateUnavailable indicates the fiat price rate is missing or stale.
// It never fails a write; callers fall back to treating the entered amount
// as KAS and surface the degraded mode as a status event.
var ErrRateUnavailable = errors.New("price rate unavailable")

// PayloadExceedsCapacityError indicates the page-aligned image does not fit
// the target tag variant.
type PayloadExceedsCapacityError struct {
	Required int
	Capacity int
}

func (e *PayloadExceedsCapacityError) Error() string {
	return fmt.Sprintf("payload of %d bytes exceeds tag capacity of %d bytes", e.Required, e.Capacity)
}

// WriteError indicates a page write exhausted its retry budget.
type WriteError struct {
	Err  error
	Page uint8
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed at page %d: %v", e.Page, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// VerifyMismatchError indicates a read-back page did not match the source image.
type VerifyMismatchError struct {
	Page     uint8
	Expected [PageSize]byte
	Actual   [PageSize]byte
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("verify mismatch at page %d: wrote % 02X, read % 02X",
		e.Page, e.Expected, e.Actual)
}

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port, bus or reader identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrNACKReceived),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the transport or reader is gone
// and the session should fail without further per-page retries. This is
// distinct from IsRetryable which covers a single operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrReaderUnavailable),
		errors.Is(err, ErrCardRemoved),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Error constructors for consistent error creation

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewFrameCorruptedError creates a frame corruption error
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewNACKReceivedError creates a "NACK received" error (transient)
func NewNACKReceivedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNACKReceived, ErrorTypeTransient)
}

// NewInvalidResponseError creates an invalid response error (permanent)
func NewInvalidResponseError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrInvalidResponse, ErrorTypePermanent)
}

// NewChecksumMismatchError creates a checksum mismatch error (transient)
func NewChecksumMismatchError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrChecksumMismatch, ErrorTypeTransient)
}

// NewTransportNotReadyError creates a transport not ready error (timeout)
func NewTransportNotReadyError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportNotReady, ErrorTypeTimeout)
}

// NewTransportClosedError creates a transport closed error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// NewCardRemovedError creates a card removed error (permanent), preserving the
// reader-level cause for diagnostics.
func NewCardRemovedError(op, port string, cause error) *TransportError {
	return NewTransportError(op, port, fmt.Errorf("%w: %w", ErrCardRemoved, cause), ErrorTypePermanent)
}
