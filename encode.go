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
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/laudena/kaspa-register/pkg/ndef"
)

// URIScheme is the kaspa payment URI scheme.
const URIScheme = "kaspa"

// maxMessageBytes bounds the merchant message on its own, before the
// capacity check against the target tag variant.
const maxMessageBytes = 512

// amountScale is the number of fractional digits a kaspa amount may carry
// (1 KAS = 1e8 sompi).
const amountScale = 8

// addressCharset is the bech32 character set kaspa addresses are drawn from.
const addressCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// PaymentURI holds the payment fields written to a tag. Address is the
// bech32 part without the kaspa: scheme; Validate accepts and strips a
// leading scheme. Message is optional merchant text.
type PaymentURI struct {
	Address string
	Message string
	Amount  decimal.Decimal
}

// Validate normalizes and checks the payment fields.
func (p *PaymentURI) Validate() error {
	p.Address = strings.TrimPrefix(strings.TrimSpace(p.Address), URIScheme+":")
	if p.Address == "" {
		return fmt.Errorf("%w: empty address", ErrAddressInvalid)
	}
	for _, c := range p.Address {
		if !strings.ContainsRune(addressCharset, c) {
			return fmt.Errorf("%w: character %q not in address charset", ErrAddressInvalid, c)
		}
	}

	if p.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrAmountInvalid, p.Amount)
	}
	if p.Amount.Exponent() < -amountScale {
		return fmt.Errorf("%w: more than %d fractional digits in %s",
			ErrAmountInvalid, amountScale, p.Amount)
	}

	if len(p.Message) > maxMessageBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(p.Message), maxMessageBytes)
	}

	return nil
}

// BuildURI renders the payment URI text:
//
//	kaspa:<address>?amount=<decimal>&label=<message>&message=<message>
//
// The amount is fixed-point decimal, never scientific notation. The message
// is percent-encoded; label and message are omitted together when the
// message is empty.
func (p *PaymentURI) BuildURI() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(URIScheme)
	sb.WriteByte(':')
	sb.WriteString(p.Address)
	sb.WriteString("?amount=")
	sb.WriteString(p.Amount.String())
	if p.Message != "" {
		encoded := url.QueryEscape(p.Message)
		sb.WriteString("&label=")
		sb.WriteString(encoded)
		sb.WriteString("&message=")
		sb.WriteString(encoded)
	}
	return sb.String(), nil
}

// EncodeTagImage builds the complete tag memory image for a payment:
// a single Well-Known URI NDEF record (prefix code 0x00, kaspa: has no
// abbreviation), wrapped as a one-record NDEF message inside an NDEF
// Message TLV, terminated and zero-padded to whole pages.
//
// capacity is the usable byte capacity of the targeted tag variant
// (CapacityNTAG215 or CapacityNTAG216); the caller chooses the variant,
// the encoder only enforces the bound.
func EncodeTagImage(p PaymentURI, capacity int) (*TagImage, error) {
	uri, err := p.BuildURI()
	if err != nil {
		return nil, err
	}

	message, err := ndef.NewURIMessage(uri).Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal NDEF message: %w", err)
	}

	wrapped, err := WrapNDEFMessage(message)
	if err != nil {
		return nil, err
	}

	if len(wrapped) > capacity {
		return nil, &PayloadExceedsCapacityError{Required: len(wrapped), Capacity: capacity}
	}

	return NewTagImage(wrapped)
}

// DecodeTagImage recovers the payment URI text from a tag image. It is the
// inverse of EncodeTagImage and is used for read-back verification and in
// tests.
func DecodeTagImage(image *TagImage) (string, error) {
	message, err := ExtractNDEFMessage(image.Bytes())
	if err != nil {
		return "", err
	}

	var msg ndef.Message
	if _, err := msg.Unmarshal(message); err != nil {
		return "", fmt.Errorf("unmarshal NDEF message: %w", err)
	}
	if len(msg.Records) == 0 {
		return "", ndef.ErrEmptyMessage
	}

	uri, err := msg.Records[0].URI()
	if err != nil {
		return "", err
	}
	return uri, nil
}

// ParsePaymentURI parses payment URI text back into its fields.
func ParsePaymentURI(uri string) (*PaymentURI, error) {
	rest, ok := strings.CutPrefix(uri, URIScheme+":")
	if !ok {
		return nil, fmt.Errorf("%w: missing %s: scheme", ErrAddressInvalid, URIScheme)
	}

	address, query, _ := strings.Cut(rest, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("%w: bad query: %w", ErrAddressInvalid, err)
	}

	p := &PaymentURI{
		Address: address,
		Message: values.Get("message"),
	}
	if amount := values.Get("amount"); amount != "" {
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAmountInvalid, err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
