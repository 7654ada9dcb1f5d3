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

// Package chip implements the PN532 command layer shared by the SPI and
// UART transports: target discovery and Type 2 page exchanges on top of a
// link-level send function.
package chip

import (
	"fmt"

	register "github.com/laudena/kaspa-register"
)

// PN532 command codes
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
)

// Type 2 tag opcodes carried inside InDataExchange
const (
	T2CmdRead  = 0x30 // READ: returns 16 bytes (4 pages)
	T2CmdWrite = 0xA2 // WRITE: writes 4 bytes to one page
)

// t2ReadLength is the byte count a Type 2 READ returns.
const t2ReadLength = 16

// SendFunc performs one command/response exchange on the link layer.
type SendFunc func(cmd byte, args []byte) ([]byte, error)

// Target describes a discovered passive target.
type Target struct {
	UID     []byte
	Number  byte
	SENSRes [2]byte
	SELRes  byte
}

// Error is a PN532 status-byte error returned inside an InDataExchange
// response.
type Error struct {
	Command string
	Code    byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.Code, errorCodeMeaning(e.Code))
}

// IsTimeout reports whether the chip signalled a target response timeout.
func (e *Error) IsTimeout() bool {
	return e.Code == 0x01
}

// errorCodeMeaning maps PN532 status codes to text (PN532 User Manual §7.1).
func errorCodeMeaning(code byte) string {
	meanings := map[byte]string{
		0x01: "timeout",
		0x02: "CRC error",
		0x03: "parity error",
		0x05: "framing error",
		0x07: "communication buffer size insufficient",
		0x09: "RF buffer overflow",
		0x0B: "RF protocol error",
		0x0D: "overheating",
		0x13: "data format does not match",
		0x14: "authentication error",
		0x25: "invalid state",
		0x27: "wrong context for command",
		0x29: "target released by initiator",
		0x2B: "card disappeared",
		0x81: "command not supported",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown error"
}

// Configure puts the SAM in normal mode, the required first exchange after
// chip power-up or reset.
func Configure(send SendFunc) error {
	// Normal mode, timeout 0x14 * 50ms, use IRQ
	if _, err := send(CmdSAMConfiguration, []byte{0x01, 0x14, 0x01}); err != nil {
		return fmt.Errorf("SAM configuration: %w", err)
	}
	return nil
}

// ListPassiveTarget performs one passive discovery attempt for a single
// 106 kbps type A target. Returns (nil, nil) when no target answered within
// the chip's own attempt window.
func ListPassiveTarget(send SendFunc) (*Target, error) {
	// MaxTg=1, BrTy=0 (106 kbps type A)
	resp, err := send(CmdInListPassiveTarget, []byte{0x01, 0x00})
	if err != nil {
		return nil, err
	}
	return parseListResponse(resp)
}

// parseListResponse decodes an InListPassiveTarget response:
// NbTg, [Tg, SENS_RES(2), SEL_RES, NFCIDLen, NFCID...].
func parseListResponse(resp []byte) (*Target, error) {
	if len(resp) < 1 {
		return nil, register.NewInvalidResponseError("InListPassiveTarget", "")
	}
	if resp[0] == 0 {
		return nil, nil
	}
	if len(resp) < 6 {
		return nil, register.NewInvalidResponseError("InListPassiveTarget", "")
	}

	uidLen := int(resp[5])
	if len(resp) < 6+uidLen {
		return nil, register.NewInvalidResponseError("InListPassiveTarget", "")
	}

	target := &Target{
		Number: resp[1],
		SELRes: resp[4],
		UID:    make([]byte, uidLen),
	}
	copy(target.SENSRes[:], resp[2:4])
	copy(target.UID, resp[6:6+uidLen])
	return target, nil
}

// ReadPage reads one 4-byte page through InDataExchange. The Type 2 READ
// returns 16 bytes; only the requested page is returned.
func ReadPage(send SendFunc, target byte, page uint8) ([]byte, error) {
	resp, err := send(CmdInDataExchange, []byte{target, T2CmdRead, page})
	if err != nil {
		return nil, err
	}
	if err := checkStatus("READ", resp); err != nil {
		return nil, err
	}
	if len(resp) < 1+register.PageSize {
		return nil, register.NewInvalidResponseError("ReadPage", "")
	}
	// A full READ response carries t2ReadLength bytes; a short one still
	// covers the requested page.
	out := make([]byte, register.PageSize)
	copy(out, resp[1:1+register.PageSize])
	return out, nil
}

// WritePage writes one 4-byte page through InDataExchange.
func WritePage(send SendFunc, target byte, page uint8, data []byte) error {
	if len(data) != register.PageSize {
		return register.NewInvalidResponseError("WritePage", "")
	}

	args := make([]byte, 0, 3+register.PageSize)
	args = append(args, target, T2CmdWrite, page)
	args = append(args, data...)

	resp, err := send(CmdInDataExchange, args)
	if err != nil {
		return err
	}
	return checkStatus("WRITE", resp)
}

// Release releases a previously discovered target so the field can
// re-discover it later.
func Release(send SendFunc, target byte) error {
	if _, err := send(CmdInRelease, []byte{target}); err != nil {
		return fmt.Errorf("InRelease: %w", err)
	}
	return nil
}

// checkStatus validates the status byte leading every InDataExchange
// response. Timeouts map to retryable transport errors; other codes are
// chip-level errors.
func checkStatus(op string, resp []byte) error {
	if len(resp) < 1 {
		return register.NewInvalidResponseError(op, "")
	}
	code := resp[0] & 0x3F
	if code == 0 {
		return nil
	}

	chipErr := &Error{Command: op, Code: code}
	if chipErr.IsTimeout() {
		return register.NewTransportError(op, "", chipErr, register.ErrorTypeTimeout)
	}
	return register.NewTransportError(op, "", chipErr, register.ErrorTypeTransient)
}
