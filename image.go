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

import "fmt"

// Type 2 tag memory geometry
const (
	// PageSize is the number of bytes per Type 2 tag page, the unit of
	// every read and write operation.
	PageSize = 4
	// FirstUserPage is the first page of user memory on NTAG21x tags.
	// Pages 0-2 hold the UID and lock bytes, page 3 the capability container.
	FirstUserPage = 4
	// CapabilityPage holds the capability container [0xE1, ver, cap/8, access].
	CapabilityPage = 3
)

// Usable byte capacities of the supported tag variants.
const (
	// CapacityNTAG215 is the usable capacity of an NTAG215 in bytes.
	CapacityNTAG215 = 504
	// CapacityNTAG216 is the usable capacity of an NTAG216 in bytes.
	CapacityNTAG216 = 888
)

// ntagCapacities lists capability-container capacities accepted during
// selection. 496/872 appear on tags whose CC was written by tools that
// reserve the trailing config pages.
var ntagCapacities = map[int]bool{
	496: true,
	504: true,
	872: true,
	888: true,
}

// IsNTAGCapacity reports whether a capability-container capacity value
// belongs to an NTAG215 or NTAG216.
func IsNTAGCapacity(capacity int) bool {
	return ntagCapacities[capacity]
}

// TagImage is a page-aligned byte image of tag user memory, indexed from
// FirstUserPage. The last non-padding byte is always the Terminator TLV.
type TagImage struct {
	data []byte
}

// NewTagImage wraps raw bytes as a tag image. The length must be a whole
// number of pages.
func NewTagImage(data []byte) (*TagImage, error) {
	if len(data) == 0 || len(data)%PageSize != 0 {
		return nil, fmt.Errorf("%w: image length %d is not a multiple of %d",
			ErrInvalidResponse, len(data), PageSize)
	}
	return &TagImage{data: data}, nil
}

// Bytes returns the full image contents.
func (i *TagImage) Bytes() []byte {
	return i.data
}

// Len returns the image length in bytes.
func (i *TagImage) Len() int {
	return len(i.data)
}

// Pages returns the number of 4-byte pages in the image.
func (i *TagImage) Pages() int {
	return len(i.data) / PageSize
}

// Page returns the 4 bytes of the n-th page of the image (0-based).
func (i *TagImage) Page(n int) []byte {
	return i.data[n*PageSize : (n+1)*PageSize]
}

// PageIndex returns the physical tag page number for the n-th image page.
func (i *TagImage) PageIndex(n int) uint8 {
	return uint8(FirstUserPage + n)
}
