// addressing.go - Mixnet destination addressing.
// Copyright (C) 2026  The go-mixnet-transport developers.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package mixnet

import (
	"encoding/base64"
	"errors"
)

// There are exactly two ways to name a destination on the mixnet: a stable
// Recipient address, used when initiating contact, and an anonymous
// SenderTag reply handle derived from previously received traffic.  Nothing
// above this package may assume both are available at once.

var errEmptyAddress = errors.New("mixnet: empty address")

// Recipient is a stable, publishable mixnet address.
type Recipient struct {
	raw string
}

// NewRecipient constructs a Recipient from its raw address bytes.
func NewRecipient(b []byte) Recipient {
	return Recipient{raw: string(b)}
}

// ParseRecipient parses the base64 text form of a Recipient.
func ParseRecipient(s string) (Recipient, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Recipient{}, err
	}
	if len(b) == 0 {
		return Recipient{}, errEmptyAddress
	}
	return NewRecipient(b), nil
}

// Bytes returns the raw address bytes.
func (r Recipient) Bytes() []byte {
	return []byte(r.raw)
}

// String returns the base64 text form of the address.
func (r Recipient) String() string {
	return base64.StdEncoding.EncodeToString([]byte(r.raw))
}

// Equal reports whether two Recipients name the same address.
func (r Recipient) Equal(o Recipient) bool {
	return r.raw == o.raw
}

// IsZero reports whether the Recipient is unset.
func (r Recipient) IsZero() bool {
	return r.raw == ""
}

// SenderTag is an opaque anonymous reply handle attached to an inbound
// delivery.  It is the only way to address a reply to the originator; the
// originator's true recipient address is never revealed to the receiver.
type SenderTag struct {
	raw string
}

// NewSenderTag constructs a SenderTag from its raw bytes.
func NewSenderTag(b []byte) SenderTag {
	return SenderTag{raw: string(b)}
}

// ParseSenderTag parses the base64 text form of a SenderTag.
func ParseSenderTag(s string) (SenderTag, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return SenderTag{}, err
	}
	if len(b) == 0 {
		return SenderTag{}, errEmptyAddress
	}
	return NewSenderTag(b), nil
}

// Bytes returns the raw tag bytes.
func (t SenderTag) Bytes() []byte {
	return []byte(t.raw)
}

// String returns the base64 text form of the tag.
func (t SenderTag) String() string {
	return base64.StdEncoding.EncodeToString([]byte(t.raw))
}

// Equal reports whether two SenderTags are the same handle.
func (t SenderTag) Equal(o SenderTag) bool {
	return t.raw == o.raw
}
