// transport_test.go - Connection layer tests.
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

package transport_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfahampshire/go-mixnet-transport/log"
	"github.com/mfahampshire/go-mixnet-transport/mixnet"
	"github.com/mfahampshire/go-mixnet-transport/mixnet/memnet"
	"github.com/mfahampshire/go-mixnet-transport/transport"
)

const testTimeout = 5 * time.Second

func newTestTransport(t *testing.T, sw *memnet.Switch, identity string) *transport.Transport {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	bridge, err := mixnet.Initialize(sw.NewClient(), logBackend, nil)
	require.NoError(t, err)
	return transport.New(bridge, []byte(identity), logBackend)
}

func newConnectedPair(t *testing.T) (dialed, accepted *transport.Conn, dialer, listener *transport.Transport) {
	sw := memnet.NewSwitch()
	dialer = newTestTransport(t, sw, "dialer identity")
	listener = newTestTransport(t, sw, "listener identity")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	acceptedCh := make(chan *transport.Conn, 1)
	go func() {
		c, err := listener.Accept(ctx)
		if err == nil {
			acceptedCh <- c
		}
	}()

	dialed, err := dialer.Dial(ctx, listener.Recipient())
	require.NoError(t, err)

	select {
	case accepted = <-acceptedCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for accept")
	}
	return dialed, accepted, dialer, listener
}

func TestDialAccept(t *testing.T) {
	dialed, accepted, dialer, listener := newConnectedPair(t)
	defer dialer.Shutdown()
	defer listener.Shutdown()

	require.Equal(t, dialed.ID(), accepted.ID())
	require.Equal(t, []byte("listener identity"), dialed.RemoteIdentity())
	require.Equal(t, []byte("dialer identity"), accepted.RemoteIdentity())
}

func TestSubstreamPing(t *testing.T) {
	dialed, accepted, dialer, listener := newConnectedPair(t)
	defer dialer.Shutdown()
	defer listener.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	out, err := dialed.OpenSubstream(ctx)
	require.NoError(t, err)

	in, err := accepted.AcceptSubstream(ctx)
	require.NoError(t, err)
	require.Equal(t, out.ID(), in.ID())

	// Data sent before Close must be readable before EOF.
	_, err = out.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, out.Close())

	buf := make([]byte, 16)
	n, err := in.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), buf[:n])

	_, err = in.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestSubstreamBidirectional(t *testing.T) {
	dialed, accepted, dialer, listener := newConnectedPair(t)
	defer dialer.Shutdown()
	defer listener.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	out, err := dialed.OpenSubstream(ctx)
	require.NoError(t, err)
	in, err := accepted.AcceptSubstream(ctx)
	require.NoError(t, err)

	_, err = out.Write([]byte("marco"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := in.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("marco"), buf[:n])

	// The accepting side answers through the anonymous reply path.
	_, err = in.Write([]byte("polo"))
	require.NoError(t, err)
	n, err = out.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("polo"), buf[:n])
}

func TestSubstreamLargeWrite(t *testing.T) {
	dialed, accepted, dialer, listener := newConnectedPair(t)
	defer dialer.Shutdown()
	defer listener.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	out, err := dialed.OpenSubstream(ctx)
	require.NoError(t, err)
	in, err := accepted.AcceptSubstream(ctx)
	require.NoError(t, err)

	// Spans multiple Data chunks.
	payload := bytes.Repeat([]byte("abcdefgh"), 10*1024)
	n, err := out.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, out.Close())

	got, err := io.ReadAll(in)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestSubstreamWriteAfterClose(t *testing.T) {
	dialed, accepted, dialer, listener := newConnectedPair(t)
	defer dialer.Shutdown()
	defer listener.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	out, err := dialed.OpenSubstream(ctx)
	require.NoError(t, err)
	_, err = accepted.AcceptSubstream(ctx)
	require.NoError(t, err)

	require.NoError(t, out.Close())
	_, err = out.Write([]byte("too late"))
	require.ErrorIs(t, err, transport.ErrSubstreamClosed)
}

func TestDialUnreachablePeer(t *testing.T) {
	sw := memnet.NewSwitch()
	dialer := newTestTransport(t, sw, "dialer identity")
	defer dialer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	// Nobody answers at this address; the dial must respect the
	// caller's deadline since the layer itself has none.
	_, err := dialer.Dial(ctx, mixnet.NewRecipient([]byte("nobody home")))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectionClose(t *testing.T) {
	dialed, accepted, dialer, listener := newConnectedPair(t)
	defer dialer.Shutdown()
	defer listener.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	out, err := dialed.OpenSubstream(ctx)
	require.NoError(t, err)
	in, err := accepted.AcceptSubstream(ctx)
	require.NoError(t, err)

	require.NoError(t, dialed.Close())

	// The peer's substream observes the close.
	buf := make([]byte, 4)
	require.Eventually(t, func() bool {
		_, err := in.Read(buf)
		return err == io.EOF
	}, testTimeout, 10*time.Millisecond)

	// Local operations on the closed connection fail.
	_, err = out.Write([]byte("x"))
	require.Error(t, err)
	_, err = dialed.OpenSubstream(ctx)
	require.ErrorIs(t, err, transport.ErrConnectionClosed)
}

func TestShutdownHaltsAccept(t *testing.T) {
	sw := memnet.NewSwitch()
	tr := newTestTransport(t, sw, "identity")
	tr.Shutdown()

	_, err := tr.Accept(context.Background())
	require.ErrorIs(t, err, transport.ErrHalted)
}
