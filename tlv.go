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
	"encoding/binary"
	"errors"
	"fmt"
)

// TLV type constants per NFC Forum Type 2 Tag specification
const (
	TLVTypeNull       = 0x00 // NULL TLV - padding byte, no length field
	TLVTypeNDEF       = 0x03 // NDEF Message TLV - contains NDEF data
	TLVTypeTerminator = 0xFE // Terminator TLV - end of data area, no length field
)

// TLV parsing errors
var (
	ErrTLVDataTooShort  = errors.New("TLV data too short")
	ErrTLVInvalidLength = errors.New("TLV invalid length format")
	ErrTLVNDEFNotFound  = errors.New("NDEF TLV not found")
)

// tlvLongLengthThreshold is the NDEF message length at which the 3-byte
// extended length form (0xFF + 2-byte big-endian) replaces the 1-byte form.
const tlvLongLengthThreshold = 0xFF

// maxTLVMessageLength is the largest NDEF message an extended-length TLV
// can carry (NFCForum-TS-Type-2-Tag 1.1, page 9).
const maxTLVMessageLength = 0xFFFF

// WrapNDEFMessage wraps NDEF message bytes in an NDEF Message TLV followed
// by a Terminator TLV, then zero-pads the result to a whole number of pages.
func WrapNDEFMessage(message []byte) ([]byte, error) {
	if len(message) > maxTLVMessageLength {
		return nil, fmt.Errorf("%w: message length %d", ErrTLVInvalidLength, len(message))
	}

	var out []byte
	if len(message) < tlvLongLengthThreshold {
		out = append(out, TLVTypeNDEF, byte(len(message)))
	} else {
		out = append(out, TLVTypeNDEF, 0xFF, 0x00, 0x00)
		binary.BigEndian.PutUint16(out[2:4], uint16(len(message)))
	}
	out = append(out, message...)
	out = append(out, TLVTypeTerminator)

	for len(out)%PageSize != 0 {
		out = append(out, 0x00)
	}
	return out, nil
}

// ExtractNDEFMessage scans TLV blocks for the NDEF Message TLV (0x03) and
// returns its value bytes. NULL TLVs are skipped; a Terminator before any
// NDEF TLV means the data area holds no message.
func ExtractNDEFMessage(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, ErrTLVDataTooShort
	}

	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVTypeNull:
			offset++

		case TLVTypeTerminator:
			return nil, ErrTLVNDEFNotFound

		case TLVTypeNDEF:
			start, length, err := parseNDEFLength(data, offset)
			if err != nil {
				return nil, err
			}
			if start+length > len(data) {
				return nil, fmt.Errorf("%w: NDEF length %d exceeds data size %d",
					ErrTLVInvalidLength, length, len(data)-start)
			}
			return data[start : start+length], nil

		default:
			// Lock Control, Memory Control and proprietary TLVs all carry a
			// length field; skip over them.
			next, err := skipTLVBlock(data, offset)
			if err != nil {
				return nil, err
			}
			offset = next
		}
	}

	return nil, ErrTLVNDEFNotFound
}

// parseNDEFLength decodes the length field of an NDEF TLV at offset and
// returns the value start offset and length.
func parseNDEFLength(data []byte, offset int) (start, length int, err error) {
	if offset+1 >= len(data) {
		return 0, 0, ErrTLVDataTooShort
	}

	lengthByte := data[offset+1]
	if lengthByte != 0xFF {
		return offset + 2, int(lengthByte), nil
	}

	if offset+3 >= len(data) {
		return 0, 0, fmt.Errorf("%w: incomplete long length at offset %d", ErrTLVInvalidLength, offset)
	}
	return offset + 4, int(binary.BigEndian.Uint16(data[offset+2 : offset+4])), nil
}

// skipTLVBlock skips over a TLV block with a length field and returns the
// offset of the next block.
func skipTLVBlock(data []byte, offset int) (int, error) {
	if offset+1 >= len(data) {
		return 0, ErrTLVDataTooShort
	}

	lengthByte := data[offset+1]
	if lengthByte != 0xFF {
		return offset + 2 + int(lengthByte), nil
	}

	if offset+3 >= len(data) {
		return 0, fmt.Errorf("%w: incomplete long length at offset %d", ErrTLVInvalidLength, offset)
	}
	return offset + 4 + int(binary.BigEndian.Uint16(data[offset+2:offset+4])), nil
}
