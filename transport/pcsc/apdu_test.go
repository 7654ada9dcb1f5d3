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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTransparentExchange(t *testing.T) {
	t.Parallel()

	apdu := buildTransparentExchange([]byte{t2CmdRead, 0x04})

	expected := []byte{
		0xFF, 0xC2, 0x00, 0x01, // Transparent Exchange header
		0x0B,                                     // Lc: 7-byte timer DO + 4-byte command DO
		0x5F, 0x46, 0x04, 0x40, 0x42, 0x0F, 0x00, // timer DO
		0x95, 0x02, 0x30, 0x04, // command DO wrapping READ page 4
	}
	assert.Equal(t, expected, apdu)
}

func TestBuildTransparentExchange_WriteCommand(t *testing.T) {
	t.Parallel()

	cmd := []byte{t2CmdWrite, 0x05, 0xDE, 0xAD, 0xBE, 0xEF}
	apdu := buildTransparentExchange(cmd)

	// Lc covers the timer DO plus the command DO.
	assert.Equal(t, byte(len(rfParamsDO)+2+len(cmd)), apdu[4])
	assert.Equal(t, byte(0x95), apdu[5+len(rfParamsDO)])
	assert.Equal(t, byte(len(cmd)), apdu[6+len(rfParamsDO)])
	assert.Equal(t, cmd, apdu[7+len(rfParamsDO):])
}

func TestCheckSW(t *testing.T) {
	t.Parallel()

	body, err := checkSW([]byte{0x01, 0x02, 0x90, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, body)

	body, err = checkSW([]byte{0x90, 0x00})
	require.NoError(t, err)
	assert.Empty(t, body)

	_, err = checkSW([]byte{0x63, 0x00})
	assert.ErrorIs(t, err, errBadStatusWord)

	_, err = checkSW([]byte{0x90})
	assert.ErrorIs(t, err, errBadStatusWord)
}

func TestParseTransparentResponse(t *testing.T) {
	t.Parallel()

	t.Run("Response DO among status DOs", func(t *testing.T) {
		t.Parallel()

		page := []byte{0xE1, 0x10, 0x3F, 0x00}
		data := []byte{0xC0, 0x03, 0x00, 0x90, 0x00}
		data = append(data, 0x97, byte(len(page)))
		data = append(data, page...)

		got, err := parseTransparentResponse(data)
		require.NoError(t, err)
		assert.Equal(t, page, got)
	})

	t.Run("Empty response DO", func(t *testing.T) {
		t.Parallel()

		got, err := parseTransparentResponse([]byte{0x97, 0x00})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("No response DO", func(t *testing.T) {
		t.Parallel()

		_, err := parseTransparentResponse([]byte{0xC0, 0x03, 0x01, 0x64, 0x01})
		assert.ErrorIs(t, err, errNoResponseDO)
	})

	t.Run("Truncated DO is ignored", func(t *testing.T) {
		t.Parallel()

		_, err := parseTransparentResponse([]byte{0x97, 0x10, 0x01})
		assert.ErrorIs(t, err, errNoResponseDO)
	})
}
