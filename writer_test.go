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
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestImage encodes a small payment image for writer tests.
func newTestImage(t *testing.T, message string) *TagImage {
	t.Helper()
	p := PaymentURI{
		Address: testAddress,
		Amount:  decimal.RequireFromString("2.50"),
		Message: message,
	}
	image, err := EncodeTagImage(p, CapacityNTAG216)
	require.NoError(t, err)
	return image
}

// stages extracts the stage sequence from a status snapshot.
func stages(events []StatusEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Stage)
	}
	return out
}

func staticFactory(transport Transport) Factory {
	return func() (Transport, error) { return transport, nil }
}

func TestTagWriter_WriteSuccess(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(CapacityNTAG216)
	writer := NewTagWriter(staticFactory(mock))
	image := newTestImage(t, "")

	err := writer.Write(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, writer.State())
	assert.Equal(t, 1, mock.CloseCount())

	// Every page landed at its physical index.
	for n := 0; n < image.Pages(); n++ {
		assert.Equal(t, image.Page(n), mock.PageData(image.PageIndex(n)), "page %d", n)
	}

	assert.Equal(t,
		[]string{"detecting", "selecting", "writing", "succeeded"},
		stages(writer.Status().Snapshot()))
}

func TestTagWriter_VerifyPasses(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(CapacityNTAG216)
	writer := NewTagWriter(staticFactory(mock), WithVerify(true))

	err := writer.Write(context.Background(), newTestImage(t, "latte"))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"detecting", "selecting", "writing", "verifying", "succeeded"},
		stages(writer.Status().Snapshot()))
}

func TestTagWriter_PageRetrySucceeds(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(CapacityNTAG216)
	mock.FailWritePage(5, 2) // Two transient failures, then success
	writer := NewTagWriter(staticFactory(mock))
	image := newTestImage(t, "")

	err := writer.Write(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, 3, mock.WriteAttempts(5))
	assert.Equal(t, StateSucceeded, writer.State())
}

func TestTagWriter_PageRetryExhausted(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(CapacityNTAG216)
	mock.FailWritePage(5, 3) // Exhausts the per-page budget
	writer := NewTagWriter(staticFactory(mock))

	err := writer.Write(context.Background(), newTestImage(t, ""))
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, uint8(5), writeErr.Page)
	assert.Equal(t, 3, mock.WriteAttempts(5))
	assert.Equal(t, StateFailed, writer.State())
	assert.Equal(t, 1, mock.CloseCount())

	events := writer.Status().Snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "failed", last.Stage)
	assert.False(t, last.OK)
}

func TestTagWriter_VerifyMismatch(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(CapacityNTAG216)
	mock.CorruptReadPage(7, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	writer := NewTagWriter(staticFactory(mock), WithVerify(true))

	err := writer.Write(context.Background(), newTestImage(t, "mocha"))
	require.Error(t, err)

	var mismatch *VerifyMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint8(7), mismatch.Page)
	assert.Equal(t, [PageSize]byte{0xDE, 0xAD, 0xBE, 0xEF}, mismatch.Actual)
	assert.Equal(t, 1, mock.CloseCount())
	assert.Equal(t, StateFailed, writer.State())
}

func TestTagWriter_PayloadExceedsDetectedCapacity(t *testing.T) {
	t.Parallel()

	// Image encoded against an NTAG216 budget, presented tag is an NTAG215.
	p := PaymentURI{
		Address: testAddress,
		Amount:  decimal.RequireFromString("1"),
		Message: strings.Repeat("m", 250),
	}
	image, err := EncodeTagImage(p, CapacityNTAG216)
	require.NoError(t, err)

	mock := NewMockTransport(CapacityNTAG215)
	writer := NewTagWriter(staticFactory(mock))

	err = writer.Write(context.Background(), image)
	require.Error(t, err)

	var capErr *PayloadExceedsCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, CapacityNTAG215, capErr.Capacity)
	assert.Equal(t, 1, mock.CloseCount())
}

func TestTagWriter_NotNDEFFormatted(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(CapacityNTAG216)
	mock.CorruptReadPage(CapabilityPage, []byte{0x00, 0x00, 0x00, 0x00})
	writer := NewTagWriter(staticFactory(mock))

	err := writer.Write(context.Background(), newTestImage(t, ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSelectFailed)
}

func TestTagWriter_DetectFailure(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(CapacityNTAG216)
	mock.SetDetectError(NewTimeoutError("Detect", "mock"))
	writer := NewTagWriter(staticFactory(mock))

	err := writer.Write(context.Background(), newTestImage(t, ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTagDetected)
	assert.Equal(t, 1, mock.CloseCount())
}

// blockingTransport holds Detect until released so a session stays active.
type blockingTransport struct {
	*MockTransport
	release chan struct{}
}

func (b *blockingTransport) Detect(ctx context.Context, timeout time.Duration) (*TagHandle, error) {
	select {
	case <-b.release:
		return b.MockTransport.Detect(ctx, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestTagWriter_AlreadyWriting(t *testing.T) {
	t.Parallel()

	blocking := &blockingTransport{
		MockTransport: NewMockTransport(CapacityNTAG216),
		release:       make(chan struct{}),
	}
	writer := NewTagWriter(staticFactory(blocking))
	image := newTestImage(t, "")

	done := make(chan error, 1)
	go func() {
		done <- writer.Write(context.Background(), image)
	}()

	// Wait for the first session to enter the state machine.
	require.Eventually(t, func() bool {
		return writer.State() == StateDetecting
	}, time.Second, time.Millisecond)

	err := writer.Write(context.Background(), image)
	assert.ErrorIs(t, err, ErrAlreadyWriting)

	close(blocking.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateSucceeded, writer.State())
}

// cancellingTransport cancels the session context from inside a page write,
// simulating the operator aborting mid-write.
type cancellingTransport struct {
	*MockTransport
	cancel context.CancelFunc
	onPage uint8
}

func (c *cancellingTransport) WritePage(page uint8, data []byte) error {
	if page == c.onPage {
		c.cancel()
		return NewTransportWriteError("WritePage", "mock")
	}
	return c.MockTransport.WritePage(page, data)
}

func TestTagWriter_CancelDuringWrite(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := NewMockTransport(CapacityNTAG216)
	cancelling := &cancellingTransport{MockTransport: mock, cancel: cancel, onPage: 6}
	writer := NewTagWriter(staticFactory(cancelling))

	err := writer.Write(ctx, newTestImage(t, ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateFailed, writer.State())
	assert.Equal(t, 1, mock.CloseCount())

	// The closed transport rejects further operations.
	werr := mock.WritePage(6, []byte{0, 0, 0, 0})
	assert.ErrorIs(t, werr, ErrTransportClosed)
}

func TestIsSessionError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSessionError(ErrNoTagDetected))
	assert.True(t, IsSessionError(ErrCancelled))
	assert.True(t, IsSessionError(&WriteError{Page: 5, Err: ErrTransportWrite}))
	assert.True(t, IsSessionError(&PayloadExceedsCapacityError{Required: 600, Capacity: 504}))
	assert.True(t, IsSessionError(&VerifyMismatchError{Page: 7}))
	assert.False(t, IsSessionError(ErrTransportTimeout))
	assert.False(t, IsSessionError(nil))
}
