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

// Package register writes kaspa payment URIs to NFC Forum Type 2 tags
// (NTAG215/216).
//
// The package is built from three parts:
//
//   - An encoder that turns payment fields (address, amount, optional
//     message) into a page-aligned tag memory image: a single Well-Known
//     URI NDEF record wrapped in an NDEF Message TLV, followed by a
//     Terminator TLV and zero padding.
//
//   - A Transport interface abstracting the hardware path to the tag.
//     Three implementations live in the transport/ subpackages: a PN532
//     chip driven over SPI or UART, and a PC/SC smartcard reader using
//     transparent exchange APDUs.
//
//   - A TagWriter that drives one write session against one transport:
//     detect, select, write pages with bounded retries, optionally verify
//     by read-back, and publish ordered status events along the way.
//
// Basic usage:
//
//	uri := register.PaymentURI{
//		Address: "qqll33tlfscxfyzwp204l06wgtz32yckln5nlpqanmcvk5xgphxpc57sark5n",
//		Amount:  decimal.RequireFromString("5.00"),
//		Message: "Thanks!",
//	}
//	image, err := register.EncodeTagImage(uri, register.CapacityNTAG215)
//	if err != nil {
//		// handle encoding error
//	}
//	writer := register.NewTagWriter(func() (register.Transport, error) {
//		return spi.New("SPI0.0")
//	}, register.WithVerify(true))
//	err = writer.Write(ctx, image)
//
// Exactly one write session may be active per TagWriter; a concurrent
// request fails fast with ErrAlreadyWriting. Status events are available
// as a snapshot and as a broadcast stream via writer.Status().
package register
