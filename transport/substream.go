// substream.go - Independently closable byte stream within a connection.
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
	"io"
	"sync"

	"gopkg.in/eapache/channels.v1"

	"github.com/mfahampshire/go-mixnet-transport/message"
)

// MaxPayloadSize is the largest Data chunk written per TransportMessage.
// The mixnet client reassembles bigger application messages, but bounding
// the chunk keeps per-packet latency and loss impact small.
const MaxPayloadSize = 32 * 1024

// Substream is one logical byte stream multiplexed within a Conn.  It
// implements io.ReadWriteCloser.  Reads drain chunks delivered by the
// connection; writes are chunked into substream Data messages.
type Substream struct {
	c  *Conn
	id message.SubstreamID

	// inboundQ holds delivered chunks.  It is unbounded so the
	// transport's inbound worker never blocks on a slow reader.
	inboundQ *channels.InfiniteChannel
	readBuf  []byte

	mu          sync.Mutex
	recvClosed  bool
	writeClosed bool

	closeOnce sync.Once
}

func newSubstream(c *Conn, id message.SubstreamID) *Substream {
	return &Substream{
		c:        c,
		id:       id,
		inboundQ: channels.NewInfiniteChannel(),
	}
}

// ID returns the substream identifier.
func (s *Substream) ID() message.SubstreamID {
	return s.id
}

// Read reads buffered payload.  Once the substream is closed and drained
// it returns io.EOF.
func (s *Substream) Read(p []byte) (int, error) {
	for len(s.readBuf) == 0 {
		v, ok := <-s.inboundQ.Out()
		if !ok {
			return 0, io.EOF
		}
		s.readBuf = v.([]byte)
	}
	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

// Write chunks p into Data messages and queues them for transmission.
func (s *Substream) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.writeClosed
	s.mu.Unlock()
	if closed {
		return 0, ErrSubstreamClosed
	}
	if s.c.isClosed() {
		return 0, ErrConnectionClosed
	}

	var written int
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxPayloadSize {
			chunk = chunk[:MaxPayloadSize]
		}
		m, err := message.NewDataMessage(s.id, chunk)
		if err != nil {
			return written, err
		}
		if err := s.c.send(m); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// Close closes both directions of the substream and notifies the peer.
// Buffered inbound data remains readable until drained.
func (s *Substream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.writeClosed = true
		closeRecv := !s.recvClosed
		if closeRecv {
			s.recvClosed = true
		}
		s.mu.Unlock()

		if closeRecv {
			s.inboundQ.Close()
		}
		err = s.c.send(message.NewClose(s.id))
		s.c.removeSubstream(s.id)
	})
	return err
}

// deliver hands an inbound chunk to the reader.  Chunks arriving after the
// substream closed are dropped.
func (s *Substream) deliver(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recvClosed {
		return
	}
	s.inboundQ.In() <- b
}

// remoteClose handles the peer's Close message: no more data will be
// delivered, and local writes are refused.  Already buffered data remains
// readable.
func (s *Substream) remoteClose() {
	s.mu.Lock()
	if s.recvClosed {
		s.mu.Unlock()
		return
	}
	s.recvClosed = true
	s.writeClosed = true
	s.mu.Unlock()

	s.inboundQ.Close()
	s.c.removeSubstream(s.id)
}

// abandon closes the substream without touching the wire.
func (s *Substream) abandon() {
	s.mu.Lock()
	if s.recvClosed {
		s.writeClosed = true
		s.mu.Unlock()
		return
	}
	s.recvClosed = true
	s.writeClosed = true
	s.mu.Unlock()
	s.inboundQ.Close()
}
