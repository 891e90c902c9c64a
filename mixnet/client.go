// client.go - Mixnet client boundary.
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

// Package mixnet bridges a raw mixnet client to the typed message queues
// consumed by the connection layer above it.
package mixnet

// DefaultSURBCount is the number of single use reply blocks attached to a
// direct send so the remote peer can answer anonymously.
const DefaultSURBCount = 10

// Packet is one reassembled inbound mixnet delivery.  SenderTag, when
// present, is the only handle usable to reply to the packet's origin.
type Packet struct {
	Payload   []byte
	SenderTag *SenderTag
}

// Client is the surface this package requires from a mixnet client.  The
// bridge takes exclusive ownership of the Client passed to Initialize; no
// other component may use it afterwards.
type Client interface {
	// Address returns the local mixnet address.
	Address() Recipient

	// Messages yields reassembled inbound packets.  The channel is
	// closed when the client fails unrecoverably or is closed.
	Messages() <-chan *Packet

	// SplitSender returns a Sender usable independently of the inbound
	// packet stream.
	SplitSender() Sender

	// Close tears down the client.
	Close() error
}

// Sender is the write half of a mixnet client.
type Sender interface {
	// SendMessage sends payload to a stable recipient address,
	// attaching surbs reply blocks so the peer may answer anonymously.
	SendMessage(r Recipient, payload []byte, surbs int) error

	// SendReply sends payload anonymously via a sender tag obtained
	// from a previously received packet.
	SendReply(t SenderTag, payload []byte) error
}
