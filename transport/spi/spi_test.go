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

package spi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReverseBit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       byte
		expected byte
	}{
		{name: "Zero", in: 0x00, expected: 0x00},
		{name: "All ones", in: 0xFF, expected: 0xFF},
		{name: "LSB to MSB", in: 0x01, expected: 0x80},
		{name: "MSB to LSB", in: 0x80, expected: 0x01},
		{name: "TFI byte", in: 0xD4, expected: 0x2B},
		{name: "Status read", in: 0x02, expected: 0x40},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, reverseBit(tt.in))
		})
	}
}

func TestReverseBit_Involution(t *testing.T) {
	t.Parallel()

	for b := 0; b < 256; b++ {
		assert.Equal(t, byte(b), reverseBit(reverseBit(byte(b))))
	}
}

func TestReverseBytes(t *testing.T) {
	t.Parallel()

	in := []byte{0x01, 0x80, 0xD4}
	out := reverseBytes(in)
	assert.Equal(t, []byte{0x80, 0x01, 0x2B}, out)
	assert.Equal(t, []byte{0x01, 0x80, 0xD4}, in, "input must not be mutated")
}
