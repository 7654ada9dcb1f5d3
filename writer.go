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
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/laudena/kaspa-register/internal/syncutil"
)

// State is a write session state.
type State string

const (
	// StateIdle means no session is active.
	StateIdle State = "idle"
	// StateDetecting means the session is waiting for a tag in the field.
	StateDetecting State = "detecting"
	// StateSelecting means the tag identification exchange is in progress.
	StateSelecting State = "selecting"
	// StateWriting means image pages are being written.
	StateWriting State = "writing"
	// StateVerifying means written pages are being read back and compared.
	StateVerifying State = "verifying"
	// StateSucceeded is the terminal success state.
	StateSucceeded State = "succeeded"
	// StateFailed is the terminal failure state.
	StateFailed State = "failed"
)

// TagWriter drives write sessions against a Transport obtained from a
// Factory. At most one session is active at a time; a second request fails
// fast with ErrAlreadyWriting. The writer never branches on hardware kind;
// the factory is chosen once at startup from configuration.
type TagWriter struct {
	factory        Factory
	status         *StatusBroadcaster
	log            zerolog.Logger
	pageRetry      *RetryConfig
	detectTimeout  time.Duration
	sessionTimeout time.Duration
	state          State
	stateMu        syncutil.RWMutex
	active         atomic.Bool
	verify         bool
}

// WriterOption configures a TagWriter.
type WriterOption func(*TagWriter)

// WithVerify enables byte-exact read-back verification after writing.
// Verification is off by default.
func WithVerify(verify bool) WriterOption {
	return func(w *TagWriter) { w.verify = verify }
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) WriterOption {
	return func(w *TagWriter) { w.log = log }
}

// WithDetectTimeout bounds the wait for a tag to enter the field.
func WithDetectTimeout(d time.Duration) WriterOption {
	return func(w *TagWriter) { w.detectTimeout = d }
}

// WithSessionTimeout bounds the whole write session. Zero means the caller's
// context is the only bound.
func WithSessionTimeout(d time.Duration) WriterOption {
	return func(w *TagWriter) { w.sessionTimeout = d }
}

// WithPageRetry overrides the per-page retry configuration.
func WithPageRetry(config *RetryConfig) WriterOption {
	return func(w *TagWriter) { w.pageRetry = config }
}

// NewTagWriter creates a TagWriter acquiring transports from factory.
func NewTagWriter(factory Factory, opts ...WriterOption) *TagWriter {
	w := &TagWriter{
		factory:       factory,
		status:        NewStatusBroadcaster(),
		log:           zerolog.Nop(),
		pageRetry:     PageRetryConfig(),
		detectTimeout: 5 * time.Second,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Status returns the writer's status broadcaster.
func (w *TagWriter) Status() *StatusBroadcaster {
	return w.status
}

// State returns the current session state.
func (w *TagWriter) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// Write runs one complete write session for the image: detect the tag,
// select and size-check it, write all pages in ascending order with bounded
// per-page retries, optionally verify by read-back, and release the
// transport. It blocks until the session reaches a terminal state; run it
// on a goroutine if the caller must not block.
//
// Returns nil on success, ErrAlreadyWriting immediately if a session is
// active, or the terminal failure reason. The transport is closed exactly
// once on every exit path.
func (w *TagWriter) Write(ctx context.Context, image *TagImage) error {
	if !w.active.CompareAndSwap(false, true) {
		return ErrAlreadyWriting
	}
	defer w.active.Store(false)

	if w.sessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.sessionTimeout)
		defer cancel()
	}

	w.status.reset()
	err := w.runSession(ctx, image)
	if err != nil {
		w.setState(StateFailed)
		w.publish(StateFailed, err.Error(), false)
		w.log.Error().Err(err).Msg("write session failed")
		return err
	}

	w.setState(StateSucceeded)
	w.publish(StateSucceeded, fmt.Sprintf("wrote %d pages", image.Pages()), true)
	w.log.Info().Int("pages", image.Pages()).Msg("write session succeeded")
	return nil
}

// runSession executes the state machine up to (but not including) the
// terminal transition, which Write handles so the failure event always
// carries the final reason.
func (w *TagWriter) runSession(ctx context.Context, image *TagImage) error {
	w.setState(StateDetecting)
	w.publish(StateDetecting, "waiting for tag", true)

	transport, err := w.factory()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoTagDetected, err)
	}

	// The transport belongs to this session from here on; exactly one close
	// on every path out, including cancellation.
	var closeOnce sync.Once
	closeTransport := func() {
		closeOnce.Do(func() {
			if cerr := transport.Close(); cerr != nil {
				w.log.Warn().Err(cerr).Msg("transport close failed")
			}
		})
	}
	defer closeTransport()

	handle, err := transport.Detect(ctx, w.detectTimeout)
	if err != nil {
		return w.mapSessionError(ctx, err, ErrNoTagDetected)
	}
	w.log.Debug().Str("uid", hex.EncodeToString(handle.UID)).Msg("tag detected")

	w.setState(StateSelecting)
	w.publish(StateSelecting, fmt.Sprintf("tag %s", hex.EncodeToString(handle.UID)), true)

	if err := w.selectTag(ctx, transport, image); err != nil {
		return w.mapSessionError(ctx, err, ErrSelectFailed)
	}

	w.setState(StateWriting)
	w.publish(StateWriting, fmt.Sprintf("writing %d pages", image.Pages()), true)

	if err := w.writePages(ctx, transport, image); err != nil {
		return err
	}

	if w.verify {
		w.setState(StateVerifying)
		w.publish(StateVerifying, fmt.Sprintf("verifying %d pages", image.Pages()), true)

		if err := w.verifyPages(ctx, transport, image); err != nil {
			return err
		}
	}

	return nil
}

// selectTag reads the capability container and checks the tag is an
// NDEF-formatted NTAG215/216 large enough for the image. The caller-assumed
// capacity was already enforced at encode time; this catches a smaller tag
// than assumed before any page is touched.
func (w *TagWriter) selectTag(ctx context.Context, transport Transport, image *TagImage) error {
	var cc []byte
	err := RetryWithConfig(ctx, w.pageRetry, func() error {
		var rerr error
		cc, rerr = transport.ReadPage(CapabilityPage)
		return rerr
	})
	if err != nil {
		return fmt.Errorf("%w: capability container read: %w", ErrSelectFailed, err)
	}

	if len(cc) < PageSize || cc[0] != 0xE1 {
		return fmt.Errorf("%w: tag is not NDEF-formatted", ErrSelectFailed)
	}
	capacity := int(cc[2]) * 8
	if !IsNTAGCapacity(capacity) {
		return fmt.Errorf("%w: capacity %d bytes is not NTAG215/216", ErrSelectFailed, capacity)
	}
	if image.Len() > capacity {
		return &PayloadExceedsCapacityError{Required: image.Len(), Capacity: capacity}
	}

	w.log.Debug().Int("capacity", capacity).Msg("tag selected")
	return nil
}

// writePages writes all image pages in strictly ascending order. Each page
// gets the per-page retry budget before the session fails.
func (w *TagWriter) writePages(ctx context.Context, transport Transport, image *TagImage) error {
	pages := image.Pages()
	for n := 0; n < pages; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		page := image.PageIndex(n)
		err := RetryWithConfig(ctx, w.pageRetry, func() error {
			return transport.WritePage(page, image.Page(n))
		})
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, cerr)
			}
			return &WriteError{Page: page, Err: err}
		}
	}
	return nil
}

// verifyPages reads every written page back and compares byte-exact against
// the source image.
func (w *TagWriter) verifyPages(ctx context.Context, transport Transport, image *TagImage) error {
	pages := image.Pages()
	for n := 0; n < pages; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		page := image.PageIndex(n)
		var got []byte
		err := RetryWithConfig(ctx, w.pageRetry, func() error {
			var rerr error
			got, rerr = transport.ReadPage(page)
			return rerr
		})
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return fmt.Errorf("%w: %w", ErrCancelled, cerr)
			}
			return &WriteError{Page: page, Err: err}
		}

		if !bytes.Equal(got, image.Page(n)) {
			mismatch := &VerifyMismatchError{Page: page}
			copy(mismatch.Expected[:], image.Page(n))
			copy(mismatch.Actual[:], got)
			return mismatch
		}
	}
	return nil
}

// mapSessionError folds a stage failure into the session taxonomy:
// cancellation wins over the stage reason, and already-classified errors
// pass through unchanged.
func (*TagWriter) mapSessionError(ctx context.Context, err, stageErr error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, cerr)
	}
	if IsSessionError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", stageErr, err)
}

// IsSessionError reports whether err already carries a session-level reason
// from the error taxonomy.
func IsSessionError(err error) bool {
	for _, target := range []error{
		ErrNoTagDetected, ErrSelectFailed, ErrCancelled,
		ErrAlreadyWriting, ErrReaderUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var pece *PayloadExceedsCapacityError
	var we *WriteError
	var vme *VerifyMismatchError
	return errors.As(err, &pece) || errors.As(err, &we) || errors.As(err, &vme)
}

func (w *TagWriter) setState(state State) {
	w.stateMu.Lock()
	w.state = state
	w.stateMu.Unlock()
}

func (w *TagWriter) publish(stage State, message string, ok bool) {
	w.status.Publish(StatusEvent{
		Stage:   string(stage),
		Message: message,
		OK:      ok,
	})
}
