// memnet.go - In-process mixnet.
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

// Package memnet provides an in-process mixnet for tests and self-contained
// demos.  It models the mixnet delivery contract: best-effort unordered
// packet delivery to a stable recipient address, and anonymous replies via
// sender tags that never reveal the origin address.
package memnet

import (
	"errors"
	"io"
	"sync"

	"github.com/katzenpost/hpqc/rand"

	"github.com/mfahampshire/go-mixnet-transport/mixnet"
)

const (
	addressLength = 32
	tagLength     = 16

	// clientQueueDepth bounds each client's delivery queue; packets
	// beyond it are dropped, as a congested mixnet would.
	clientQueueDepth = 1024
)

var (
	errUnknownRecipient = errors.New("memnet: no such recipient")
	errUnknownTag       = errors.New("memnet: no such sender tag")
	errClientClosed     = errors.New("memnet: client closed")
)

// Switch routes packets between the in-process clients attached to it.
type Switch struct {
	sync.Mutex

	clients map[string]*Client // recipient text form
	tags    map[string]*Client // sender tag text form -> origin
}

// NewSwitch creates an empty Switch.
func NewSwitch() *Switch {
	return &Switch{
		clients: make(map[string]*Client),
		tags:    make(map[string]*Client),
	}
}

// NewClient attaches a new client with a freshly minted recipient address.
func (s *Switch) NewClient() *Client {
	var addr [addressLength]byte
	if _, err := io.ReadFull(rand.Reader, addr[:]); err != nil {
		panic(err)
	}

	c := &Client{
		sw:     s,
		addr:   mixnet.NewRecipient(addr[:]),
		recvCh: make(chan *mixnet.Packet, clientQueueDepth),
	}
	s.Lock()
	s.clients[c.addr.String()] = c
	s.Unlock()
	return c
}

// mintTag creates a fresh reply handle mapped back to origin.  The tag is
// all a receiver ever learns about the packet's source.
func (s *Switch) mintTag(origin *Client) mixnet.SenderTag {
	var raw [tagLength]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		panic(err)
	}
	t := mixnet.NewSenderTag(raw[:])
	s.tags[t.String()] = origin
	return t
}

// deliver enqueues pkt for dst, dropping it when the queue is full.  The
// caller holds the switch lock, which also serializes delivery against
// client teardown.
func (s *Switch) deliver(dst *Client, pkt *mixnet.Packet) {
	if dst.closed {
		return
	}
	select {
	case dst.recvCh <- pkt:
	default:
		// Best-effort network: a saturated receiver loses packets.
	}
}

func (s *Switch) send(origin *Client, r mixnet.Recipient, payload []byte, surbs int) error {
	s.Lock()
	defer s.Unlock()
	if origin.closed {
		return errClientClosed
	}
	dst, ok := s.clients[r.String()]
	if !ok {
		return errUnknownRecipient
	}

	pkt := &mixnet.Packet{Payload: append([]byte{}, payload...)}
	if surbs > 0 {
		t := s.mintTag(origin)
		pkt.SenderTag = &t
	}
	s.deliver(dst, pkt)
	return nil
}

func (s *Switch) reply(origin *Client, t mixnet.SenderTag, payload []byte) error {
	s.Lock()
	defer s.Unlock()
	if origin.closed {
		return errClientClosed
	}
	dst, ok := s.tags[t.String()]
	if !ok {
		return errUnknownTag
	}

	// A reply reaches the tag's origin without learning its address,
	// and itself arrives untagged.
	s.deliver(dst, &mixnet.Packet{Payload: append([]byte{}, payload...)})
	return nil
}

func (s *Switch) detach(c *Client) {
	s.Lock()
	defer s.Unlock()
	c.closed = true
	delete(s.clients, c.addr.String())
	for tag, origin := range s.tags {
		if origin == c {
			delete(s.tags, tag)
		}
	}
	close(c.recvCh)
}

// Client is an in-process mixnet.Client attached to a Switch.
type Client struct {
	sw     *Switch
	addr   mixnet.Recipient
	recvCh chan *mixnet.Packet

	closeOnce sync.Once
	closed    bool // guarded by sw's lock
}

// Address returns the client's recipient address.
func (c *Client) Address() mixnet.Recipient {
	return c.addr
}

// Messages yields the client's inbound packets.
func (c *Client) Messages() <-chan *mixnet.Packet {
	return c.recvCh
}

// SplitSender returns the write half of the client.
func (c *Client) SplitSender() mixnet.Sender {
	return &sender{c: c}
}

// Close detaches the client from the switch and closes its inbound stream.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.sw.detach(c)
	})
	return nil
}

type sender struct {
	c *Client
}

func (s *sender) SendMessage(r mixnet.Recipient, payload []byte, surbs int) error {
	return s.c.sw.send(s.c, r, payload, surbs)
}

func (s *sender) SendReply(t mixnet.SenderTag, payload []byte) error {
	return s.c.sw.reply(s.c, t, payload)
}
