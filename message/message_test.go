// message_test.go - Wire message tests.
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

package message

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	connID := NewConnectionID()
	subID := NewSubstreamID()
	dataMsg, err := NewDataMessage(subID, []byte("hello"))
	require.NoError(t, err)

	msgs := []*Message{
		NewConnectionRequest(connID, []byte("identity material")),
		NewConnectionResponse(connID, true, []byte("responder identity")),
		NewConnectionResponse(connID, false, nil),
		NewTransportMessage(1, connID, NewOpenRequest(subID)),
		NewTransportMessage(2, connID, NewOpenResponse(subID)),
		NewTransportMessage(3, connID, dataMsg),
		NewTransportMessage(4, connID, NewClose(subID)),
	}

	for _, m := range msgs {
		raw, err := m.ToBytes()
		require.NoError(t, err, m.Kind.String())

		decoded, err := FromBytes(raw)
		require.NoError(t, err, m.Kind.String())
		require.Equal(t, m, decoded, m.Kind.String())
	}
}

func TestFromBytesMalformed(t *testing.T) {
	// Not CBOR at all.
	_, err := FromBytes([]byte{0xff, 0x00, 0xde, 0xad})
	require.ErrorIs(t, err, ErrMalformedMessage)

	// Empty buffer.
	_, err = FromBytes(nil)
	require.ErrorIs(t, err, ErrMalformedMessage)

	// Valid CBOR, but no message body.
	raw, err := cbor.Marshal(&Message{Kind: KindConnectionRequest})
	require.NoError(t, err)
	_, err = FromBytes(raw)
	require.ErrorIs(t, err, ErrMalformedMessage)

	// Kind and body disagree.
	m := &Message{Kind: KindTransport, Request: &ConnectionRequest{}}
	_, err = m.ToBytes()
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestFromBytesUnknownKind(t *testing.T) {
	m := NewConnectionRequest(NewConnectionID(), nil)
	m.Kind = Kind(42)
	_, err := m.ToBytes()
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDataMessageValidation(t *testing.T) {
	subID := NewSubstreamID()

	_, err := NewDataMessage(subID, nil)
	require.ErrorIs(t, err, ErrEmptyData)
	_, err = NewDataMessage(subID, []byte{})
	require.ErrorIs(t, err, ErrEmptyData)

	// A Data message with no payload must not decode either.
	m := NewTransportMessage(1, NewConnectionID(), &SubstreamMessage{
		SubstreamID: subID,
		Type:        SubstreamData,
	})
	_, err = m.ToBytes()
	require.ErrorIs(t, err, ErrMalformedMessage)

	// Control messages must not carry payload.
	m = NewTransportMessage(1, NewConnectionID(), &SubstreamMessage{
		SubstreamID: subID,
		Type:        SubstreamClose,
		Data:        []byte("x"),
	})
	_, err = m.ToBytes()
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestIDGeneration(t *testing.T) {
	seen := make(map[ConnectionID]bool)
	for i := 0; i < 1024; i++ {
		id := NewConnectionID()
		require.False(t, seen[id])
		seen[id] = true
	}

	require.NotEqual(t, NewSubstreamID(), NewSubstreamID())
}
