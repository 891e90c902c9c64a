// conn.go - Logical connection between two mixnet addresses.
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

package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mfahampshire/go-mixnet-transport/instrument"
	"github.com/mfahampshire/go-mixnet-transport/message"
	"github.com/mfahampshire/go-mixnet-transport/mixnet"
)

// Conn is one logical connection.  A dialed Conn routes outbound traffic
// to the peer's recipient address; an accepted Conn only holds the
// anonymous reply tag taken from the peer's ConnectionRequest.
type Conn struct {
	t  *Transport
	id message.ConnectionID

	remoteIdentity []byte

	// Exactly one of these is set, fixing the addressing mode for the
	// connection's lifetime.
	recipient *mixnet.Recipient
	senderTag *mixnet.SenderTag

	// nonce is the last sequence number assigned to an outbound
	// TransportMessage on this connection.
	nonce uint64

	// lastSeenNonce tracks the highest inbound nonce for observability.
	// This layer does not reorder or deduplicate; the mixnet reorders
	// freely and reliability belongs above.
	lastSeenNonce uint64

	mu           sync.Mutex
	substreams   map[message.SubstreamID]*Substream
	pendingOpens map[message.SubstreamID]chan struct{}
	closed       bool

	acceptSubCh chan *Substream
	closedCh    chan struct{}
}

func newConn(t *Transport, id message.ConnectionID) *Conn {
	return &Conn{
		t:            t,
		id:           id,
		substreams:   make(map[message.SubstreamID]*Substream),
		pendingOpens: make(map[message.SubstreamID]chan struct{}),
		acceptSubCh:  make(chan *Substream, acceptQueueDepth),
		closedCh:     make(chan struct{}),
	}
}

func newDialConn(t *Transport, id message.ConnectionID, r mixnet.Recipient) *Conn {
	c := newConn(t, id)
	c.recipient = &r
	return c
}

func newAcceptConn(t *Transport, id message.ConnectionID, tag mixnet.SenderTag, identity []byte) *Conn {
	c := newConn(t, id)
	c.senderTag = &tag
	c.remoteIdentity = identity
	return c
}

// ID returns the connection identifier.
func (c *Conn) ID() message.ConnectionID {
	return c.id
}

// RemoteIdentity returns the peer's identity material from connection
// establishment.
func (c *Conn) RemoteIdentity() []byte {
	return c.remoteIdentity
}

// OpenSubstream opens a new substream and blocks until the peer
// acknowledges it, ctx is done, or the connection closes.
func (c *Conn) OpenSubstream(ctx context.Context) (*Substream, error) {
	id := message.NewSubstreamID()
	ss := newSubstream(c, id)
	ackCh := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.substreams[id] = ss
	c.pendingOpens[id] = ackCh
	c.mu.Unlock()

	abort := func() {
		c.mu.Lock()
		delete(c.substreams, id)
		delete(c.pendingOpens, id)
		c.mu.Unlock()
	}

	if err := c.send(message.NewOpenRequest(id)); err != nil {
		abort()
		return nil, err
	}

	select {
	case <-ackCh:
		return ss, nil
	case <-ctx.Done():
		abort()
		return nil, ctx.Err()
	case <-c.closedCh:
		return nil, ErrConnectionClosed
	}
}

// AcceptSubstream blocks until the peer opens a substream, ctx is done, or
// the connection closes.
func (c *Conn) AcceptSubstream(ctx context.Context) (*Substream, error) {
	select {
	case ss := <-c.acceptSubCh:
		return ss, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closedCh:
		return nil, ErrConnectionClosed
	}
}

// Close closes every substream, notifying the peer, and deregisters the
// connection.  There is no connection-level close on the wire; a peer
// observes closure substream by substream.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sss := make([]*Substream, 0, len(c.substreams))
	for _, ss := range c.substreams {
		sss = append(sss, ss)
	}
	c.mu.Unlock()

	for _, ss := range sss {
		_ = ss.Close()
	}
	close(c.closedCh)
	c.t.removeConn(c.id)
	return nil
}

// teardown closes the connection without touching the wire, for use when
// the transport itself is going away.
func (c *Conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sss := make([]*Substream, 0, len(c.substreams))
	for _, ss := range c.substreams {
		sss = append(sss, ss)
	}
	c.mu.Unlock()

	for _, ss := range sss {
		ss.abandon()
	}
	close(c.closedCh)
	c.t.removeConn(c.id)
}

// send wraps sub in a TransportMessage with the next nonce and queues it
// on the bridge using the connection's addressing mode.
func (c *Conn) send(sub *message.SubstreamMessage) error {
	n := atomic.AddUint64(&c.nonce, 1)
	out := &mixnet.OutboundMessage{
		Message:   message.NewTransportMessage(n, c.id, sub),
		Recipient: c.recipient,
		SenderTag: c.senderTag,
	}
	return c.t.bridge.SendMessage(out)
}

// handleTransportMessage runs on the transport's inbound worker.
func (c *Conn) handleTransportMessage(tm *message.TransportMessage) {
	if prev := c.lastSeenNonce; tm.Nonce <= prev && prev != 0 {
		c.t.log.Debugf("Connection %v: nonce %d arrived at or before %d", c.id, tm.Nonce, prev)
	} else {
		c.lastSeenNonce = tm.Nonce
	}

	sub := tm.Substream
	switch sub.Type {
	case message.SubstreamOpenRequest:
		c.onOpenRequest(sub.SubstreamID)
	case message.SubstreamOpenResponse:
		c.onOpenResponse(sub.SubstreamID)
	case message.SubstreamData:
		c.onData(sub.SubstreamID, sub.Data)
	case message.SubstreamClose:
		c.onClose(sub.SubstreamID)
	}
}

func (c *Conn) onOpenRequest(id message.SubstreamID) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, exists := c.substreams[id]; exists {
		c.mu.Unlock()
		c.t.log.Debugf("Connection %v: ignoring duplicate OpenRequest for %v", c.id, id)
		return
	}
	ss := newSubstream(c, id)
	c.substreams[id] = ss
	c.mu.Unlock()

	if err := c.send(message.NewOpenResponse(id)); err != nil {
		c.t.log.Warningf("Connection %v: failed to queue OpenResponse: %v", c.id, err)
	}

	select {
	case c.acceptSubCh <- ss:
	default:
		instrument.Dropped("substream-accept-queue-full")
		c.t.log.Warningf("Connection %v: substream accept queue full, dropping %v", c.id, id)
		c.removeSubstream(id)
	}
}

func (c *Conn) onOpenResponse(id message.SubstreamID) {
	c.mu.Lock()
	ackCh, ok := c.pendingOpens[id]
	if ok {
		delete(c.pendingOpens, id)
	}
	c.mu.Unlock()
	if !ok {
		c.t.log.Debugf("Connection %v: ignoring unsolicited OpenResponse for %v", c.id, id)
		return
	}
	close(ackCh)
}

func (c *Conn) onData(id message.SubstreamID, data []byte) {
	c.mu.Lock()
	ss, ok := c.substreams[id]
	c.mu.Unlock()
	if !ok {
		instrument.Dropped("unknown-substream")
		c.t.log.Debugf("Connection %v: dropping Data for unknown substream %v", c.id, id)
		return
	}
	ss.deliver(data)
}

func (c *Conn) onClose(id message.SubstreamID) {
	c.mu.Lock()
	ss, ok := c.substreams[id]
	c.mu.Unlock()
	if !ok {
		c.t.log.Debugf("Connection %v: ignoring Close for unknown substream %v", c.id, id)
		return
	}
	ss.remoteClose()
}

func (c *Conn) removeSubstream(id message.SubstreamID) {
	c.mu.Lock()
	delete(c.substreams, id)
	c.mu.Unlock()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
