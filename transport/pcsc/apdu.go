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

package pcsc

import "errors"

// Transparent Exchange (PC/SC Part 3 / ACR1252) APDU plumbing. Raw Type 2
// commands are wrapped in data objects inside an FF C2 00 01 APDU; the
// reader handles CRC, parity and RF timing, and returns the card's answer
// in a 0x97 response DO.

// rfParamsDO is the 5F 46 timer DO carried before every wrapped command:
// a 1,000,000 µs (0x000F4240 little-endian) response timeout.
var rfParamsDO = []byte{0x5F, 0x46, 0x04, 0x40, 0x42, 0x0F, 0x00}

// endSessionAPDU tells the reader to end the transparent session and
// restore its own card management.
var endSessionAPDU = []byte{0xFF, 0xC2, 0x00, 0x00, 0x02, 0x82, 0x00}

// getUIDAPDU is the PC/SC pseudo-APDU returning the card's UID.
var getUIDAPDU = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

var (
	errBadStatusWord = errors.New("status word is not 9000")
	errNoResponseDO  = errors.New("no 0x97 response data object")
)

// buildTransparentExchange wraps a raw Type 2 command (opcode plus
// operands) in a Transparent Exchange APDU.
func buildTransparentExchange(cmd []byte) []byte {
	body := make([]byte, 0, len(rfParamsDO)+2+len(cmd))
	body = append(body, rfParamsDO...)
	body = append(body, 0x95, byte(len(cmd)))
	body = append(body, cmd...)

	apdu := make([]byte, 0, 5+len(body))
	apdu = append(apdu, 0xFF, 0xC2, 0x00, 0x01, byte(len(body)))
	apdu = append(apdu, body...)
	return apdu
}

// checkSW validates the trailing SW1 SW2 status word and returns the
// response with the status word stripped.
func checkSW(resp []byte) ([]byte, error) {
	n := len(resp)
	if n < 2 || resp[n-2] != 0x90 || resp[n-1] != 0x00 {
		return nil, errBadStatusWord
	}
	return resp[:n-2], nil
}

// parseTransparentResponse extracts the card's answer from the data
// objects of a Transparent Exchange response (status word already
// stripped). The 0x97 DO carries the raw card response; other DOs (0xC0
// status, 0x92 version) are skipped.
func parseTransparentResponse(data []byte) ([]byte, error) {
	var card []byte
	found := false
	for i := 0; i+2 <= len(data); {
		tag := data[i]
		length := int(data[i+1])
		i += 2
		if i+length > len(data) {
			break
		}
		if tag == 0x97 {
			card = data[i : i+length]
			found = true
		}
		i += length
	}
	if !found {
		return nil, errNoResponseDO
	}
	out := make([]byte, len(card))
	copy(out, card)
	return out, nil
}
