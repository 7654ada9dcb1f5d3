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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		name      string
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "Timeout constructor", err: NewTimeoutError("ReadPage", "SPI0.0"), retryable: true},
		{name: "Write constructor", err: NewTransportWriteError("WritePage", "SPI0.0"), retryable: true},
		{name: "NACK constructor", err: NewNACKReceivedError("waitAck", "SPI0.0"), retryable: true},
		{name: "Checksum constructor", err: NewChecksumMismatchError("receiveFrame", "SPI0.0"), retryable: true},
		{name: "Invalid response constructor", err: NewInvalidResponseError("ReadPage", "SPI0.0"), retryable: false},
		{name: "Closed constructor", err: NewTransportClosedError("WritePage", "SPI0.0"), retryable: false},
		{name: "Bare sentinel timeout", err: ErrTransportTimeout, retryable: true},
		{name: "Wrapped sentinel read", err: fmt.Errorf("op: %w", ErrTransportRead), retryable: true},
		{name: "Unrelated error", err: errors.New("boom"), retryable: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(NewTransportClosedError("WritePage", "mock")))
	assert.True(t, IsFatal(NewCardRemovedError("exchange", "ACR1252", errors.New("sharing violation"))))
	assert.True(t, IsFatal(ErrReaderUnavailable))
	assert.True(t, IsFatal(io.EOF))
	assert.False(t, IsFatal(NewTimeoutError("ReadPage", "mock")))
	assert.False(t, IsFatal(nil))
}

func TestTransportError_Formatting(t *testing.T) {
	t.Parallel()

	withPort := NewTimeoutError("ReadPage", "SPI0.0")
	assert.Equal(t, "ReadPage SPI0.0: transport timeout", withPort.Error())

	withoutPort := NewTimeoutError("ReadPage", "")
	assert.Equal(t, "ReadPage: transport timeout", withoutPort.Error())

	assert.ErrorIs(t, withPort, ErrTransportTimeout)
}

func TestStructuredErrors(t *testing.T) {
	t.Parallel()

	capErr := &PayloadExceedsCapacityError{Required: 600, Capacity: 504}
	assert.Contains(t, capErr.Error(), "600")
	assert.Contains(t, capErr.Error(), "504")

	writeErr := &WriteError{Page: 9, Err: ErrTransportWrite}
	assert.Contains(t, writeErr.Error(), "page 9")
	assert.ErrorIs(t, writeErr, ErrTransportWrite)

	mismatch := &VerifyMismatchError{Page: 7}
	assert.Contains(t, mismatch.Error(), "page 7")
}

func TestNewCardRemovedError_PreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("scard: card was removed")
	err := NewCardRemovedError("exchange", "ACR1252 PICC", cause)
	assert.ErrorIs(t, err, ErrCardRemoved)
	assert.ErrorIs(t, err, cause)
}
