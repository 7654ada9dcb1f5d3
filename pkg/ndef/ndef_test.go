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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeURIPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		uri          string
		expectedCode byte
		expectedRest string
	}{
		{
			name:         "kaspa URI has no table prefix",
			uri:          "kaspa:qqexample?amount=1",
			expectedCode: 0x00,
			expectedRest: "kaspa:qqexample?amount=1",
		},
		{
			name:         "https www takes the longer prefix",
			uri:          "https://www.example.com",
			expectedCode: 0x02,
			expectedRest: "example.com",
		},
		{
			name:         "plain https",
			uri:          "https://example.com",
			expectedCode: 0x04,
			expectedRest: "example.com",
		},
		{
			name:         "mailto",
			uri:          "mailto:pay@example.com",
			expectedCode: 0x06,
			expectedRest: "pay@example.com",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload := EncodeURIPayload(tt.uri)
			require.NotEmpty(t, payload)
			assert.Equal(t, tt.expectedCode, payload[0])
			assert.Equal(t, tt.expectedRest, string(payload[1:]))

			decoded, err := DecodeURIPayload(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.uri, decoded)
		})
	}
}

func TestDecodeURIPayload_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeURIPayload(nil)
	assert.ErrorIs(t, err, ErrURIPayloadTooShort)

	_, err = DecodeURIPayload([]byte{0x7F, 'x'})
	assert.ErrorIs(t, err, ErrURIInvalidPrefixCode)
}

func TestURIMessage_RoundTrip(t *testing.T) {
	t.Parallel()

	uri := "kaspa:qqexample?amount=5.00&message=Table+7"
	data, err := NewURIMessage(uri).Marshal()
	require.NoError(t, err)

	var msg Message
	consumed, err := msg.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), consumed)
	require.Len(t, msg.Records, 1)

	record := msg.Records[0]
	assert.Equal(t, TNFWellKnown, record.TNF)
	assert.Equal(t, URIRecordType, record.Type)
	assert.True(t, record.MB())
	assert.True(t, record.ME())

	got, err := record.URI()
	require.NoError(t, err)
	assert.Equal(t, uri, got)
}

func TestRecord_ShortAndLongForm(t *testing.T) {
	t.Parallel()

	// 200-byte payload fits the short record form.
	short := NewURIRecord("kaspa:" + strings.Repeat("q", 194))
	shortData, err := short.Marshal()
	require.NoError(t, err)
	assert.NotZero(t, shortData[0]&flagSR, "SR flag expected for small payloads")

	// Past 255 payload bytes the 4-byte length form is required.
	long := NewURIRecord("kaspa:" + strings.Repeat("q", 300))
	longData, err := long.Marshal()
	require.NoError(t, err)
	assert.Zero(t, longData[0]&flagSR, "SR flag must be clear for large payloads")

	var decoded Record
	_, err = decoded.Unmarshal(longData)
	require.NoError(t, err)
	uri, err := decoded.URI()
	require.NoError(t, err)
	assert.Equal(t, "kaspa:"+strings.Repeat("q", 300), uri)
}

func TestRecord_URI_WrongType(t *testing.T) {
	t.Parallel()

	record := &Record{TNF: TNFWellKnown, Type: "T", Payload: []byte{0x02, 'e', 'n', 'h', 'i'}}
	_, err := record.URI()
	assert.ErrorIs(t, err, ErrNotURIRecord)
}

func TestMessage_Empty(t *testing.T) {
	t.Parallel()

	var msg Message
	_, err := msg.Marshal()
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = msg.Unmarshal(nil)
	assert.Error(t, err)
}

func TestRecord_Unmarshal_Chunked(t *testing.T) {
	t.Parallel()

	// A record with the CF flag set is the start of a chunked record.
	data := []byte{flagMB | flagCF | flagSR | TNFWellKnown, 0x01, 0x00, 'U'}
	var record Record
	_, err := record.Unmarshal(data)
	assert.ErrorIs(t, err, ErrChunkedRecord)
}

func TestRecord_Unmarshal_Truncated(t *testing.T) {
	t.Parallel()

	full, err := NewURIRecord("kaspa:qqexample").Marshal()
	require.NoError(t, err)

	var record Record
	_, err = record.Unmarshal(full[:len(full)-2])
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}
