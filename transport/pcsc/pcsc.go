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

// Package pcsc drives a PC/SC smartcard reader (ACR1252 and compatible) as
// a Type 2 tag transport. Raw READ/WRITE commands are tunnelled through
// the reader's Transparent Exchange facility, so the reader firmware
// handles CRC, parity and RF timing.
package pcsc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"

	register "github.com/laudena/kaspa-register"
	"github.com/laudena/kaspa-register/internal/syncutil"
)

const (
	// Type 2 opcodes tunnelled through Transparent Exchange
	t2CmdRead  = 0x30
	t2CmdWrite = 0xA2

	t2ReadLength = 16

	connectInterval = 200 * time.Millisecond
)

// Transport implements register.Transport over PC/SC.
type Transport struct {
	ctx    *scard.Context
	card   *scard.Card
	reader string
	mu     syncutil.Mutex
	closed bool
}

// New establishes a PC/SC context and picks a reader. With a non-empty
// hint the first reader whose name contains the hint AND "PICC" wins, then
// any hint match; otherwise the first reader. ACR1252 units expose both a
// PICC (contactless) and a SAM interface under similar names, so the PICC
// preference matters.
func New(readerHint string) (*Transport, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("%w: establish context: %w", register.ErrReaderUnavailable, err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("%w: list readers: %w", register.ErrReaderUnavailable, err)
	}
	if len(readers) == 0 {
		_ = ctx.Release()
		return nil, fmt.Errorf("%w: no PC/SC readers found", register.ErrReaderUnavailable)
	}

	return &Transport{
		ctx:    ctx,
		reader: pickReader(readers, readerHint),
	}, nil
}

// pickReader resolves the reader name from a hint.
func pickReader(readers []string, hint string) string {
	if hint == "" {
		return readers[0]
	}
	lower := strings.ToLower(hint)
	for _, name := range readers {
		if strings.Contains(strings.ToLower(name), lower) && strings.Contains(name, "PICC") {
			return name
		}
	}
	for _, name := range readers {
		if strings.Contains(strings.ToLower(name), lower) {
			return name
		}
	}
	return readers[0]
}

// Detect implements register.Transport. PC/SC has no explicit polling
// command; a card is present exactly when Connect succeeds, so Detect
// retries Connect until the timeout.
func (t *Transport) Detect(ctx context.Context, timeout time.Duration) (*register.TagHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, register.NewTransportClosedError("Detect", t.reader)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		card, err := t.ctx.Connect(t.reader, scard.ShareShared, scard.ProtocolAny)
		if err == nil {
			t.card = card
			uid, uidErr := t.readUID()
			if uidErr != nil {
				// UID is informational; the session can proceed without it.
				uid = nil
			}
			return &register.TagHandle{UID: uid}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: no card on %s after %s", register.ErrNoTagDetected, t.reader, timeout)
		}
		time.Sleep(connectInterval)
	}
}

// readUID issues the GetData pseudo-APDU. Requires a connected card.
func (t *Transport) readUID() ([]byte, error) {
	resp, err := t.card.Transmit(getUIDAPDU)
	if err != nil {
		return nil, register.NewCardRemovedError("readUID", t.reader, err)
	}
	return checkSW(resp)
}

// ReadPage implements register.Transport. The Type 2 READ returns 16
// bytes; only the requested page is returned.
func (t *Transport) ReadPage(page uint8) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, register.NewTransportClosedError("ReadPage", t.reader)
	}
	if t.card == nil {
		return nil, register.NewTransportNotReadyError("ReadPage", t.reader)
	}

	resp, err := t.exchange([]byte{t2CmdRead, page})
	if err != nil {
		return nil, err
	}
	if len(resp) < register.PageSize {
		return nil, register.NewInvalidResponseError("ReadPage", t.reader)
	}
	// Full responses carry t2ReadLength bytes; the first page is the one
	// asked for.
	out := make([]byte, register.PageSize)
	copy(out, resp[:register.PageSize])
	return out, nil
}

// WritePage implements register.Transport.
func (t *Transport) WritePage(page uint8, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return register.NewTransportClosedError("WritePage", t.reader)
	}
	if t.card == nil {
		return register.NewTransportNotReadyError("WritePage", t.reader)
	}
	if len(data) != register.PageSize {
		return register.NewInvalidResponseError("WritePage", t.reader)
	}

	cmd := make([]byte, 0, 2+register.PageSize)
	cmd = append(cmd, t2CmdWrite, page)
	cmd = append(cmd, data...)

	_, err := t.exchange(cmd)
	return err
}

// exchange tunnels one raw Type 2 command through Transparent Exchange
// and always ends the transparent session afterwards so the reader's own
// card management resumes.
func (t *Transport) exchange(cmd []byte) ([]byte, error) {
	defer func() {
		_, _ = t.card.Transmit(endSessionAPDU) // Best effort
	}()

	resp, err := t.card.Transmit(buildTransparentExchange(cmd))
	if err != nil {
		return nil, register.NewCardRemovedError("exchange", t.reader, err)
	}

	body, err := checkSW(resp)
	if err != nil {
		return nil, register.NewTransportError("exchange", t.reader, err, register.ErrorTypeTransient)
	}
	card, err := parseTransparentResponse(body)
	if err != nil {
		return nil, register.NewInvalidResponseError("exchange", t.reader)
	}
	return card, nil
}

// Close implements register.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	if t.card != nil {
		_ = t.card.Disconnect(scard.LeaveCard)
		t.card = nil
	}
	if err := t.ctx.Release(); err != nil {
		return fmt.Errorf("PC/SC context release failed: %w", err)
	}
	return nil
}

// Type implements register.Transport.
func (*Transport) Type() register.TransportType {
	return register.TransportPCSC
}

var _ register.Transport = (*Transport)(nil)
