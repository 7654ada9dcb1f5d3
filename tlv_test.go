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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNDEFMessage_ShortForm(t *testing.T) {
	t.Parallel()

	message := []byte{0xD1, 0x01, 0x01, 0x55, 0x00}
	wrapped, err := WrapNDEFMessage(message)
	require.NoError(t, err)

	assert.Equal(t, byte(TLVTypeNDEF), wrapped[0])
	assert.Equal(t, byte(len(message)), wrapped[1])
	assert.Equal(t, message, wrapped[2:2+len(message)])
	assert.Equal(t, byte(TLVTypeTerminator), wrapped[2+len(message)])
	assert.Equal(t, 0, len(wrapped)%PageSize)
}

func TestWrapNDEFMessage_ExtendedForm(t *testing.T) {
	t.Parallel()

	// 254 is the largest short-form length; 255 switches to extended.
	short, err := WrapNDEFMessage(make([]byte, 254))
	require.NoError(t, err)
	assert.Equal(t, byte(254), short[1])

	long, err := WrapNDEFMessage(make([]byte, 255))
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), long[1])
	assert.Equal(t, byte(0x00), long[2])
	assert.Equal(t, byte(0xFF), long[3])
	assert.Equal(t, byte(TLVTypeTerminator), long[4+255])
}

func TestWrapNDEFMessage_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, size := range []int{1, 16, 254, 255, 600} {
		message := bytes.Repeat([]byte{0xAB}, size)
		wrapped, err := WrapNDEFMessage(message)
		require.NoError(t, err, "size %d", size)

		got, err := ExtractNDEFMessage(wrapped)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, message, got, "size %d", size)
	}
}

func TestExtractNDEFMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expectedErr error
		name        string
		data        []byte
		expected    []byte
	}{
		{
			name:     "NULL TLVs before the message are skipped",
			data:     []byte{0x00, 0x00, 0x03, 0x02, 0xAA, 0xBB, 0xFE},
			expected: []byte{0xAA, 0xBB},
		},
		{
			name: "Lock control TLV is skipped",
			data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x03, 0x01, 0xCC, 0xFE},

			expected: []byte{0xCC},
		},
		{
			name:        "Terminator before any NDEF TLV",
			data:        []byte{0x00, 0xFE, 0x03, 0x01, 0xAA},
			expectedErr: ErrTLVNDEFNotFound,
		},
		{
			name:        "Data too short",
			data:        []byte{0x03},
			expectedErr: ErrTLVDataTooShort,
		},
		{
			name:        "Declared length exceeds data",
			data:        []byte{0x03, 0x10, 0xAA},
			expectedErr: ErrTLVInvalidLength,
		},
		{
			name:        "No NDEF TLV at all",
			data:        []byte{0x00, 0x00, 0x00, 0x00},
			expectedErr: ErrTLVNDEFNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ExtractNDEFMessage(tt.data)
			if tt.expectedErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
