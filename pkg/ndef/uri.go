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

package ndef

import (
	"errors"
	"strings"
)

// URIRecordType is the Well-Known type name of a URI record.
const URIRecordType = "U"

// URI record errors.
var (
	ErrURIPayloadTooShort   = errors.New("ndef: URI payload too short")
	ErrURIInvalidPrefixCode = errors.New("ndef: invalid URI prefix code")
	ErrNotURIRecord         = errors.New("ndef: not a URI record")
)

// URI prefix codes as defined by the NFC Forum URI RTD specification.
// Index 0 means no prefix (raw URI); kaspa: URIs always encode as 0x00.
var uriPrefixes = []string{
	"",                           // 0x00 - No prepending
	"http://www.",                // 0x01
	"https://www.",               // 0x02
	"http://",                    // 0x03
	"https://",                   // 0x04
	"tel:",                       // 0x05
	"mailto:",                    // 0x06
	"ftp://anonymous:anonymous@", // 0x07
	"ftp://ftp.",                 // 0x08
	"ftps://",                    // 0x09
	"sftp://",                    // 0x0A
	"smb://",                     // 0x0B
	"nfs://",                     // 0x0C
	"ftp://",                     // 0x0D
	"dav://",                     // 0x0E
	"news:",                      // 0x0F
	"telnet://",                  // 0x10
	"imap:",                      // 0x11
	"rtsp://",                    // 0x12
	"urn:",                       // 0x13
	"pop:",                       // 0x14
	"sip:",                       // 0x15
	"sips:",                      // 0x16
	"tftp:",                      // 0x17
	"btspp://",                   // 0x18
	"btl2cap://",                 // 0x19
	"btgoep://",                  // 0x1A
	"tcpobex://",                 // 0x1B
	"irdaobex://",                // 0x1C
	"file://",                    // 0x1D
	"urn:epc:id:",                // 0x1E
	"urn:epc:tag:",               // 0x1F
	"urn:epc:pat:",               // 0x20
	"urn:epc:raw:",               // 0x21
	"urn:epc:",                   // 0x22
	"urn:nfc:",                   // 0x23
}

// NewURIRecord creates a new NDEF Well-Known URI record. The URI is
// compressed with the NFC Forum prefix table when a prefix matches.
func NewURIRecord(uri string) *Record {
	return &Record{
		TNF:     TNFWellKnown,
		Type:    URIRecordType,
		Payload: EncodeURIPayload(uri),
	}
}

// URI extracts the full URI from a Well-Known URI record.
func (r *Record) URI() (string, error) {
	if r.TNF != TNFWellKnown || r.Type != URIRecordType {
		return "", ErrNotURIRecord
	}
	return DecodeURIPayload(r.Payload)
}

// EncodeURIPayload creates a URI record payload: one prefix code byte
// followed by the remaining URI bytes. The longest matching prefix wins.
func EncodeURIPayload(uri string) []byte {
	bestMatch := 0
	bestLen := 0
	for i := 1; i < len(uriPrefixes); i++ {
		if strings.HasPrefix(uri, uriPrefixes[i]) && len(uriPrefixes[i]) > bestLen {
			bestMatch = i
			bestLen = len(uriPrefixes[i])
		}
	}

	suffix := uri[bestLen:]
	payload := make([]byte, 1+len(suffix))
	payload[0] = byte(bestMatch)
	copy(payload[1:], suffix)
	return payload
}

// DecodeURIPayload expands a URI record payload back into the full URI.
func DecodeURIPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", ErrURIPayloadTooShort
	}

	prefixCode := int(payload[0])
	if prefixCode >= len(uriPrefixes) {
		return "", ErrURIInvalidPrefixCode
	}

	return uriPrefixes[prefixCode] + string(payload[1:]), nil
}
