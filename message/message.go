// message.go - Mixnet transport wire messages.
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

// Package message implements the typed messages that cross the mixnet
// between two transport endpoints, and their byte encoding.  The encoding
// must merely agree between both peers of a connection; it is private to
// this transport.
package message

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/katzenpost/hpqc/rand"
)

// IDLength is the size in bytes of connection and substream identifiers.
const IDLength = 16

var (
	// ErrMalformedMessage is returned when a byte buffer does not decode
	// to a valid Message.
	ErrMalformedMessage = errors.New("message: malformed message")

	// ErrEmptyData is returned when constructing a data message with an
	// empty payload.  An empty payload must use Close semantics instead.
	ErrEmptyData = errors.New("message: empty data payload")
)

// ConnectionID is the identifier of one logical connection between two
// mixnet addresses.  It is generated by the dialing side and carried on
// every message belonging to that connection.
type ConnectionID [IDLength]byte

// NewConnectionID generates a process-unique ConnectionID.
func NewConnectionID() ConnectionID {
	var id ConnectionID
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		panic(err)
	}
	return id
}

func (id ConnectionID) String() string {
	return hex.EncodeToString(id[:])
}

// SubstreamID is the identifier of one logical byte stream within a
// connection, generated by whichever side opens the substream.  It is only
// meaningful relative to its ConnectionID.
type SubstreamID [IDLength]byte

// NewSubstreamID generates a process-unique SubstreamID.
func NewSubstreamID() SubstreamID {
	var id SubstreamID
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		panic(err)
	}
	return id
}

func (id SubstreamID) String() string {
	return hex.EncodeToString(id[:])
}

// SubstreamMessageType indicates what a SubstreamMessage does to its
// substream.
type SubstreamMessageType uint8

const (
	// SubstreamOpenRequest asks the peer to create the substream.
	SubstreamOpenRequest SubstreamMessageType = 1 + iota

	// SubstreamOpenResponse acknowledges an open request.
	SubstreamOpenResponse

	// SubstreamData carries an application payload chunk.
	SubstreamData

	// SubstreamClose closes the substream.
	SubstreamClose
)

func (t SubstreamMessageType) String() string {
	switch t {
	case SubstreamOpenRequest:
		return "OpenRequest"
	case SubstreamOpenResponse:
		return "OpenResponse"
	case SubstreamData:
		return "Data"
	case SubstreamClose:
		return "Close"
	default:
		return fmt.Sprintf("[unknown SubstreamMessageType: %d]", t)
	}
}

// SubstreamMessage is the substream-multiplexed unit carried inside a
// TransportMessage.
type SubstreamMessage struct {
	SubstreamID SubstreamID
	Type        SubstreamMessageType
	Data        []byte `cbor:",omitempty"`
}

func (m *SubstreamMessage) validate() error {
	switch m.Type {
	case SubstreamData:
		if len(m.Data) == 0 {
			return fmt.Errorf("%w: Data substream message without payload", ErrMalformedMessage)
		}
	case SubstreamOpenRequest, SubstreamOpenResponse, SubstreamClose:
		if len(m.Data) != 0 {
			return fmt.Errorf("%w: %v substream message with payload", ErrMalformedMessage, m.Type)
		}
	default:
		return fmt.Errorf("%w: unknown substream message type %d", ErrMalformedMessage, m.Type)
	}
	return nil
}

// NewOpenRequest constructs a substream OpenRequest.
func NewOpenRequest(id SubstreamID) *SubstreamMessage {
	return &SubstreamMessage{SubstreamID: id, Type: SubstreamOpenRequest}
}

// NewOpenResponse constructs a substream OpenResponse.
func NewOpenResponse(id SubstreamID) *SubstreamMessage {
	return &SubstreamMessage{SubstreamID: id, Type: SubstreamOpenResponse}
}

// NewClose constructs a substream Close.
func NewClose(id SubstreamID) *SubstreamMessage {
	return &SubstreamMessage{SubstreamID: id, Type: SubstreamClose}
}

// NewDataMessage constructs a substream Data message.  The payload must be
// non-empty; callers signalling end of stream use NewClose instead.
func NewDataMessage(id SubstreamID, data []byte) (*SubstreamMessage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return &SubstreamMessage{SubstreamID: id, Type: SubstreamData, Data: data}, nil
}

// Kind discriminates the Message sum type.
type Kind uint8

const (
	// KindConnectionRequest proposes opening a new connection.
	KindConnectionRequest Kind = 1 + iota

	// KindConnectionResponse accepts or rejects a ConnectionRequest.
	KindConnectionResponse

	// KindTransport carries substream-multiplexed payload.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindConnectionRequest:
		return "ConnectionRequest"
	case KindConnectionResponse:
		return "ConnectionResponse"
	case KindTransport:
		return "TransportMessage"
	default:
		return fmt.Sprintf("[unknown Kind: %d]", k)
	}
}

// ConnectionRequest proposes opening a new connection.  Identity is the
// initiator's public identity material, opaque to this layer.
type ConnectionRequest struct {
	ConnectionID ConnectionID
	Identity     []byte
}

// ConnectionResponse accepts or rejects a ConnectionRequest.
type ConnectionResponse struct {
	ConnectionID ConnectionID
	Accepted     bool
	Identity     []byte `cbor:",omitempty"`
}

// TransportMessage carries one SubstreamMessage on an established
// connection.  Nonce is assigned monotonically per connection by the
// sender; this layer records but does not enforce ordering with it.
type TransportMessage struct {
	Nonce        uint64
	ConnectionID ConnectionID
	Substream    *SubstreamMessage
}

// Message is the sum of everything this transport puts on the mixnet wire.
// Exactly one body field is populated, matching Kind.
type Message struct {
	Kind      Kind
	Request   *ConnectionRequest  `cbor:",omitempty"`
	Response  *ConnectionResponse `cbor:",omitempty"`
	Transport *TransportMessage   `cbor:",omitempty"`
}

// NewConnectionRequest constructs a ConnectionRequest message.
func NewConnectionRequest(id ConnectionID, identity []byte) *Message {
	return &Message{
		Kind:    KindConnectionRequest,
		Request: &ConnectionRequest{ConnectionID: id, Identity: identity},
	}
}

// NewConnectionResponse constructs a ConnectionResponse message.
func NewConnectionResponse(id ConnectionID, accepted bool, identity []byte) *Message {
	return &Message{
		Kind:     KindConnectionResponse,
		Response: &ConnectionResponse{ConnectionID: id, Accepted: accepted, Identity: identity},
	}
}

// NewTransportMessage constructs a TransportMessage wrapping the given
// substream message.
func NewTransportMessage(nonce uint64, id ConnectionID, sub *SubstreamMessage) *Message {
	return &Message{
		Kind:      KindTransport,
		Transport: &TransportMessage{Nonce: nonce, ConnectionID: id, Substream: sub},
	}
}

func (m *Message) validate() error {
	bodies := 0
	if m.Request != nil {
		bodies++
	}
	if m.Response != nil {
		bodies++
	}
	if m.Transport != nil {
		bodies++
	}
	if bodies != 1 {
		return fmt.Errorf("%w: %d bodies present", ErrMalformedMessage, bodies)
	}

	switch m.Kind {
	case KindConnectionRequest:
		if m.Request == nil {
			return fmt.Errorf("%w: ConnectionRequest without request body", ErrMalformedMessage)
		}
	case KindConnectionResponse:
		if m.Response == nil {
			return fmt.Errorf("%w: ConnectionResponse without response body", ErrMalformedMessage)
		}
	case KindTransport:
		if m.Transport == nil {
			return fmt.Errorf("%w: TransportMessage without transport body", ErrMalformedMessage)
		}
		if m.Transport.Substream == nil {
			return fmt.Errorf("%w: TransportMessage without substream message", ErrMalformedMessage)
		}
		return m.Transport.Substream.validate()
	default:
		return fmt.Errorf("%w: unknown message kind %d", ErrMalformedMessage, m.Kind)
	}
	return nil
}

// ToBytes serializes the message for transmission over the mixnet.
func (m *Message) ToBytes() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return cbor.Marshal(m)
}

// FromBytes deserializes a message received over the mixnet.  An
// ill-formed buffer yields an error wrapping ErrMalformedMessage.
func FromBytes(b []byte) (*Message, error) {
	m := new(Message)
	if err := cbor.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}
