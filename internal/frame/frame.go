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

// Package frame implements PN532 information frame construction and
// validation shared by the SPI and UART transports.
package frame

import "errors"

// Frame direction constants - these indicate the direction of data flow
const (
	HostToPN532 = 0xD4 // Commands from host to PN532
	PN532ToHost = 0xD5 // Responses from PN532 to host
)

// Frame markers and control bytes
const (
	Preamble   = 0x00 // Frame preamble byte
	StartCode1 = 0x00 // Start code byte 1
	StartCode2 = 0xFF // Start code byte 2
	Postamble  = 0x00 // Frame postamble byte
)

// Frame size limits
const (
	// MaxDataLength is the maximum TFI+PD data length in a normal frame.
	MaxDataLength = 255
	// HeaderLength covers preamble, start code, length and length checksum.
	HeaderLength = 5
)

// ACK and NACK frames - these are used for flow control
var (
	AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)

// ErrDataTooLarge is returned when command data exceeds the normal frame
// limit. Extended frames are not used; every Type 2 exchange fits easily.
var ErrDataTooLarge = errors.New("frame data too large")

// Checksum returns the running-sum checksum over data. The complement
// relation (sum + checksumByte) & 0xFF == 0 holds for valid frames.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Build constructs a complete host-to-PN532 information frame around a
// command byte and its arguments:
//
//	00 00 FF LEN LCS D4 CMD ARGS... DCS 00
func Build(cmd byte, args []byte) ([]byte, error) {
	dataLen := 2 + len(args) // TFI + cmd + args
	if dataLen > MaxDataLength {
		return nil, ErrDataTooLarge
	}

	frm := make([]byte, 0, HeaderLength+dataLen+2)
	frm = append(frm, Preamble, StartCode1, StartCode2)
	frm = append(frm, byte(dataLen), ^byte(dataLen)+1)
	frm = append(frm, HostToPN532, cmd)
	frm = append(frm, args...)

	checksum := byte(HostToPN532) + cmd + Checksum(args)
	frm = append(frm, ^checksum+1, Postamble)
	return frm, nil
}

// ValidHeader checks the start code and length checksum of a received
// frame header beginning at the preamble.
func ValidHeader(header []byte) bool {
	if len(header) < HeaderLength {
		return false
	}
	if header[0] != Preamble || header[1] != StartCode1 || header[2] != StartCode2 {
		return false
	}
	return header[3]+header[4] == 0
}

// ValidData checks the data checksum over TFI+PD bytes followed by the DCS
// byte.
func ValidData(data []byte, dcs byte) bool {
	return Checksum(data)+dcs == 0
}

// ExtractResponse strips TFI and the response code from validated frame
// data, returning the payload of a response to cmd. The response code is
// always cmd+1.
func ExtractResponse(cmd byte, data []byte) ([]byte, bool) {
	if len(data) < 2 || data[0] != PN532ToHost || data[1] != cmd+1 {
		return nil, false
	}
	out := make([]byte, len(data)-2)
	copy(out, data[2:])
	return out, true
}
