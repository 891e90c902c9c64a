// transport.go - Connection layer over the mixnet bridge.
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

// Package transport interprets the bridge's message stream as logical
// connections carrying independently closable substreams.  A dialer names
// its peer by stable recipient address; the accepting side only ever
// learns an anonymous reply tag.
package transport

import (
	"context"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/mfahampshire/go-mixnet-transport/instrument"
	"github.com/mfahampshire/go-mixnet-transport/log"
	"github.com/mfahampshire/go-mixnet-transport/message"
	"github.com/mfahampshire/go-mixnet-transport/mixnet"
	"github.com/mfahampshire/go-mixnet-transport/worker"
)

// acceptQueueDepth bounds the queues of connections and substreams waiting
// to be accepted.
const acceptQueueDepth = 16

// Transport multiplexes connections over one mixnet bridge.  It is the
// bridge's single inbound consumer.
type Transport struct {
	worker.Worker

	log      *logging.Logger
	bridge   *mixnet.Bridge
	identity []byte

	sync.Mutex // guards conns and pendingDials
	conns        map[message.ConnectionID]*Conn
	pendingDials map[message.ConnectionID]chan *message.ConnectionResponse

	acceptCh chan *Conn

	shutdownOnce sync.Once
}

// New creates a Transport consuming bridge.  identity is the local public
// identity material offered to peers during connection establishment.
func New(bridge *mixnet.Bridge, identity []byte, logBackend *log.Backend) *Transport {
	t := &Transport{
		log:          logBackend.GetLogger("transport"),
		bridge:       bridge,
		identity:     identity,
		conns:        make(map[message.ConnectionID]*Conn),
		pendingDials: make(map[message.ConnectionID]chan *message.ConnectionResponse),
		acceptCh:     make(chan *Conn, acceptQueueDepth),
	}
	t.Go(t.inboundWorker)
	return t
}

// Recipient returns the local mixnet address peers can dial.
func (t *Transport) Recipient() mixnet.Recipient {
	return t.bridge.Recipient()
}

// Dial opens a connection to the peer at r and blocks until the peer
// responds, ctx is done, or the transport halts.
func (t *Transport) Dial(ctx context.Context, r mixnet.Recipient) (*Conn, error) {
	id := message.NewConnectionID()
	c := newDialConn(t, id, r)
	respCh := make(chan *message.ConnectionResponse, 1)

	t.Lock()
	t.conns[id] = c
	t.pendingDials[id] = respCh
	t.Unlock()

	abort := func() {
		t.Lock()
		delete(t.conns, id)
		delete(t.pendingDials, id)
		t.Unlock()
	}

	out := &mixnet.OutboundMessage{
		Message:   message.NewConnectionRequest(id, t.identity),
		Recipient: &r,
	}
	if err := t.bridge.SendMessage(out); err != nil {
		abort()
		return nil, err
	}

	select {
	case resp := <-respCh:
		if !resp.Accepted {
			abort()
			return nil, ErrConnectionRefused
		}
		c.remoteIdentity = resp.Identity
		t.log.Debugf("Dialed connection %v established", id)
		return c, nil
	case <-ctx.Done():
		abort()
		return nil, ctx.Err()
	case <-t.HaltCh():
		abort()
		return nil, ErrHalted
	}
}

// Accept blocks until an inbound connection is established, ctx is done,
// or the transport halts.
func (t *Transport) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-t.acceptCh:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.HaltCh():
		return nil, ErrHalted
	}
}

// Shutdown tears down the transport, all connections, and the bridge.
func (t *Transport) Shutdown() {
	t.shutdownOnce.Do(func() {
		t.Halt()

		t.Lock()
		conns := make([]*Conn, 0, len(t.conns))
		for _, c := range t.conns {
			conns = append(conns, c)
		}
		t.Unlock()
		for _, c := range conns {
			c.teardown()
		}
		t.bridge.Shutdown()
	})
}

func (t *Transport) removeConn(id message.ConnectionID) {
	t.Lock()
	delete(t.conns, id)
	t.Unlock()
}

func (t *Transport) inboundWorker() {
	for {
		select {
		case <-t.HaltCh():
			return
		case im, ok := <-t.bridge.Inbound():
			if !ok {
				// The bridge is dead, and with it every open
				// connection.
				t.log.Warningf("Bridge inbound stream closed, transport unavailable")
				go t.Shutdown()
				return
			}
			t.onInbound(im)
		}
	}
}

func (t *Transport) onInbound(im *mixnet.InboundMessage) {
	switch im.Message.Kind {
	case message.KindConnectionRequest:
		t.onConnectionRequest(im.Message.Request, im.SenderTag)
	case message.KindConnectionResponse:
		t.onConnectionResponse(im.Message.Response)
	case message.KindTransport:
		t.onTransportMessage(im.Message.Transport)
	}
}

func (t *Transport) onConnectionRequest(req *message.ConnectionRequest, tag *mixnet.SenderTag) {
	if tag == nil {
		// Without a reply tag there is no way to answer the
		// anonymous dialer.
		instrument.Dropped("request-without-tag")
		t.log.Warningf("Dropping ConnectionRequest %v without sender tag", req.ConnectionID)
		return
	}

	t.Lock()
	if _, exists := t.conns[req.ConnectionID]; exists {
		t.Unlock()
		t.log.Debugf("Ignoring duplicate ConnectionRequest %v", req.ConnectionID)
		return
	}
	c := newAcceptConn(t, req.ConnectionID, *tag, req.Identity)
	t.conns[req.ConnectionID] = c
	t.Unlock()

	out := &mixnet.OutboundMessage{
		Message:   message.NewConnectionResponse(req.ConnectionID, true, t.identity),
		SenderTag: tag,
	}
	if err := t.bridge.SendMessage(out); err != nil {
		t.log.Warningf("Failed to queue ConnectionResponse for %v: %v", req.ConnectionID, err)
		t.removeConn(req.ConnectionID)
		return
	}

	select {
	case t.acceptCh <- c:
		t.log.Debugf("Accepted connection %v", req.ConnectionID)
	default:
		// Nobody is accepting; shed the connection rather than block
		// the inbound worker.
		instrument.Dropped("accept-queue-full")
		t.log.Warningf("Accept queue full, dropping connection %v", req.ConnectionID)
		c.teardown()
	}
}

func (t *Transport) onConnectionResponse(resp *message.ConnectionResponse) {
	t.Lock()
	ch, ok := t.pendingDials[resp.ConnectionID]
	if ok {
		delete(t.pendingDials, resp.ConnectionID)
	}
	t.Unlock()
	if !ok {
		t.log.Debugf("Ignoring unsolicited ConnectionResponse %v", resp.ConnectionID)
		return
	}
	ch <- resp
}

func (t *Transport) onTransportMessage(tm *message.TransportMessage) {
	t.Lock()
	c, ok := t.conns[tm.ConnectionID]
	t.Unlock()
	if !ok {
		instrument.Dropped("unknown-connection")
		t.log.Debugf("Dropping %v for unknown connection %v", tm.Substream.Type, tm.ConnectionID)
		return
	}
	c.handleTransportMessage(tm)
}
