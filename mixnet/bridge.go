// bridge.go - Bidirectional pump between a mixnet client and typed queues.
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
	"fmt"
	"sync"

	"gopkg.in/eapache/channels.v1"
	"gopkg.in/op/go-logging.v1"

	"github.com/mfahampshire/go-mixnet-transport/instrument"
	"github.com/mfahampshire/go-mixnet-transport/log"
	"github.com/mfahampshire/go-mixnet-transport/message"
	"github.com/mfahampshire/go-mixnet-transport/worker"
)

// OutboundMessage is a typed message queued for transmission.  Exactly one
// of Recipient and SenderTag must be set; when both are set the sender tag
// wins, since replies take precedence and a recipient may be present for
// caller-side bookkeeping only.
type OutboundMessage struct {
	Message   *message.Message
	Recipient *Recipient
	SenderTag *SenderTag
}

// InboundMessage is a typed message received from the mixnet.  SenderTag,
// when present, is the only way to address a reply to the originator.
type InboundMessage struct {
	Message   *message.Message
	SenderTag *SenderTag
}

// Bridge owns the only live handle to a mixnet client and moves messages
// between it and a pair of unbounded queues.  Many goroutines may call
// SendMessage; a single consumer is expected on Inbound.
type Bridge struct {
	worker.Worker

	log    *logging.Logger
	client Client
	sender Sender

	recipient Recipient
	surbs     int

	inboundQ  *channels.InfiniteChannel
	outboundQ *channels.InfiniteChannel
	inboundCh chan *InboundMessage
	notifyCh  chan<- struct{}

	fatalErrCh chan error

	shutdownOnce sync.Once
	sendMu       sync.RWMutex
	halted       bool
}

// Initialize takes ownership of client, spawns the bridge pump and returns
// the Bridge.  notify, if non-nil, receives a coalesced wakeup signal on
// every inbound delivery; it is for callers that wake a separate waiting
// task rather than poll Inbound directly.
func Initialize(client Client, logBackend *log.Backend, notify chan<- struct{}) (*Bridge, error) {
	return InitializeWithSURBCount(client, logBackend, notify, DefaultSURBCount)
}

// InitializeWithSURBCount is Initialize with an explicit count of reply
// blocks attached to each direct send.
func InitializeWithSURBCount(client Client, logBackend *log.Backend, notify chan<- struct{}, surbs int) (*Bridge, error) {
	if surbs <= 0 {
		surbs = DefaultSURBCount
	}
	b := &Bridge{
		log:        logBackend.GetLogger("mixnet/bridge"),
		client:     client,
		sender:     client.SplitSender(),
		recipient:  client.Address(),
		surbs:      surbs,
		inboundQ:   channels.NewInfiniteChannel(),
		outboundQ:  channels.NewInfiniteChannel(),
		inboundCh:  make(chan *InboundMessage),
		notifyCh:   notify,
		fatalErrCh: make(chan error),
	}

	// The fatal error watcher must not run under worker.Worker because
	// Shutdown blocks until all worker routines have returned, which
	// would deadlock.
	go b.fatalErrWorker()
	b.Go(b.pump)
	b.Go(b.inboundSinkWorker)
	return b, nil
}

// Recipient returns the local mixnet address.
func (b *Bridge) Recipient() Recipient {
	return b.recipient
}

// Inbound returns the channel of decoded inbound messages.  It is closed
// when the bridge shuts down.
func (b *Bridge) Inbound() <-chan *InboundMessage {
	return b.inboundCh
}

// SendMessage queues m for transmission.  The queue is unbounded so this
// never blocks on capacity.  A message with no route is rejected here,
// before any I/O is attempted.
func (b *Bridge) SendMessage(m *OutboundMessage) error {
	if m.Recipient == nil && m.SenderTag == nil {
		return ErrNoRouteAvailable
	}

	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.halted {
		return ErrBridgeHalted
	}
	b.outboundQ.In() <- m
	return nil
}

// Shutdown cleanly tears down the bridge and closes the mixnet client.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.sendMu.Lock()
		b.halted = true
		b.sendMu.Unlock()

		b.Halt()
		if err := b.client.Close(); err != nil {
			b.log.Warningf("Failure closing mixnet client: %v", err)
		}
		b.inboundQ.Close()
		b.outboundQ.Close()
	})
}

// fatal hands an unrecoverable pump error to the fatal error watcher
// without deadlocking against a halt already in progress.
func (b *Bridge) fatal(err error) {
	select {
	case b.fatalErrCh <- err:
	case <-b.HaltCh():
	}
}

func (b *Bridge) fatalErrWorker() {
	select {
	case <-b.HaltCh():
	case err := <-b.fatalErrCh:
		b.log.Warningf("Shutting down bridge due to error: %v", err)
		b.Shutdown()
	}
}

// pump races the inbound packet stream against the outbound queue.  Go's
// select chooses uniformly among ready cases, so sustained one-sided load
// cannot starve the other direction.  The pump only terminates on halt or
// when the client's inbound stream dies.
func (b *Bridge) pump() {
	defer b.log.Debugf("Bridge pump terminating")
	for {
		select {
		case <-b.HaltCh():
			return
		case pkt, ok := <-b.client.Messages():
			if !ok {
				// The client is dead; the transport above must
				// treat every open connection as unserviceable.
				b.fatal(fmt.Errorf("mixnet: client inbound stream closed"))
				return
			}
			b.onInboundPacket(pkt)
		case v, ok := <-b.outboundQ.Out():
			if !ok {
				b.fatal(fmt.Errorf("mixnet: outbound queue torn down"))
				return
			}
			b.onOutboundMessage(v.(*OutboundMessage))
		}
	}
}

// inboundSinkWorker drains the unbounded inbound queue into the typed
// consumer channel, so a slow consumer backs up the queue rather than the
// pump.
func (b *Bridge) inboundSinkWorker() {
	defer close(b.inboundCh)
	for {
		select {
		case <-b.HaltCh():
			b.log.Debugf("Inbound sink worker terminating gracefully.")
			return
		case v := <-b.inboundQ.Out():
			select {
			case b.inboundCh <- v.(*InboundMessage):
			case <-b.HaltCh():
				b.log.Debugf("Inbound sink worker terminating gracefully.")
				return
			}
		}
	}
}

func (b *Bridge) onInboundPacket(pkt *Packet) {
	m, err := message.FromBytes(pkt.Payload)
	if err != nil {
		// A bad packet must never halt the bridge for unrelated
		// traffic.
		instrument.Malformed()
		b.log.Warningf("Dropping undecodable packet (%d bytes): %v", len(pkt.Payload), err)
		return
	}
	instrument.Inbound(m.Kind.String())
	b.notify()
	b.inboundQ.In() <- &InboundMessage{Message: m, SenderTag: pkt.SenderTag}
}

// notify fires the inbound wakeup signal.  The send is coalescing: if a
// wakeup is already pending the new delivery is covered by it, so the pump
// never blocks on a slow notify consumer.
func (b *Bridge) notify() {
	if b.notifyCh == nil {
		return
	}
	select {
	case b.notifyCh <- struct{}{}:
	default:
	}
}

func (b *Bridge) onOutboundMessage(m *OutboundMessage) {
	b.logOutbound(m)

	raw, err := m.Message.ToBytes()
	if err != nil {
		instrument.Dropped("encode")
		b.log.Errorf("Dropping unencodable outbound %v: %v", m.Message.Kind, err)
		return
	}

	// Replies take precedence: route by sender tag whenever one is
	// present, fall back to the stable recipient address otherwise.
	switch {
	case m.SenderTag != nil:
		instrument.Outbound(m.Message.Kind.String(), "reply")
		b.log.Debugf("Writing reply to sender tag %v", m.SenderTag)
		err = b.sender.SendReply(*m.SenderTag, raw)
	case m.Recipient != nil:
		instrument.Outbound(m.Message.Kind.String(), "direct")
		b.log.Debugf("Sending message to recipient %v", m.Recipient)
		err = b.sender.SendMessage(*m.Recipient, raw, b.surbs)
	default:
		// SendMessage rejects unroutable envelopes before they are
		// queued, so this is unreachable short of a caller bug.
		instrument.Dropped("no-route")
		b.log.Errorf("Dropping unroutable outbound %v", m.Message.Kind)
		return
	}
	if err != nil {
		// One undeliverable message does not stop the pump.
		instrument.SendFailure()
		b.log.Warningf("Outbound %v dispatch failed: %v: %v", m.Message.Kind, ErrSendFailure, err)
	}
}

// logOutbound logs the message kind and chosen addressing mode.  The
// switches are exhaustive over the tagged variants so that a new variant
// is a compile-visible gap here, not a silent default.
func (b *Bridge) logOutbound(m *OutboundMessage) {
	hasTag := m.SenderTag != nil
	hasRecipient := m.Recipient != nil

	switch m.Message.Kind {
	case message.KindConnectionRequest:
		b.log.Debugf("Outbound ConnectionRequest: conn=%v, has_tag=%v, has_recipient=%v",
			m.Message.Request.ConnectionID, hasTag, hasRecipient)
	case message.KindConnectionResponse:
		b.log.Debugf("Outbound ConnectionResponse: conn=%v, accepted=%v, has_tag=%v, has_recipient=%v",
			m.Message.Response.ConnectionID, m.Message.Response.Accepted, hasTag, hasRecipient)
	case message.KindTransport:
		tm := m.Message.Transport
		switch tm.Substream.Type {
		case message.SubstreamOpenRequest:
			b.log.Debugf("Outbound OpenRequest: nonce=%d, substream=%v, has_tag=%v, has_recipient=%v",
				tm.Nonce, tm.Substream.SubstreamID, hasTag, hasRecipient)
		case message.SubstreamOpenResponse:
			b.log.Debugf("Outbound OpenResponse: nonce=%d, substream=%v, has_tag=%v, has_recipient=%v",
				tm.Nonce, tm.Substream.SubstreamID, hasTag, hasRecipient)
		case message.SubstreamData:
			b.log.Debugf("Outbound Data: nonce=%d, substream=%v, len=%d",
				tm.Nonce, tm.Substream.SubstreamID, len(tm.Substream.Data))
		case message.SubstreamClose:
			b.log.Debugf("Outbound Close: nonce=%d, substream=%v",
				tm.Nonce, tm.Substream.SubstreamID)
		}
	}
}
