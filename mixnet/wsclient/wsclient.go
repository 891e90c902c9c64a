// wsclient.go - Websocket client for an external mixnet daemon.
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

// Package wsclient implements mixnet.Client against the websocket API of a
// locally running mixnet daemon.  The daemon speaks JSON text frames; raw
// payloads travel base64-encoded inside them.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"
	"nhooyr.io/websocket"

	"github.com/mfahampshire/go-mixnet-transport/config"
	"github.com/mfahampshire/go-mixnet-transport/log"
	"github.com/mfahampshire/go-mixnet-transport/mixnet"
	"github.com/mfahampshire/go-mixnet-transport/worker"
)

const recvQueueDepth = 1024

// frame is the daemon's JSON message envelope.
type frame struct {
	Type      string `json:"type"`
	Address   string `json:"address,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	SenderTag string `json:"senderTag,omitempty"`
	Message   []byte `json:"message,omitempty"`
	SURBs     int    `json:"replySurbs,omitempty"`
	Error     string `json:"message_error,omitempty"`
}

const (
	frameSelfAddress = "selfAddress"
	frameSend        = "send"
	frameReply       = "reply"
	frameReceived    = "received"
	frameError       = "error"
)

// Client is a mixnet.Client backed by a daemon websocket session.
type Client struct {
	worker.Worker

	log  *logging.Logger
	conn *websocket.Conn
	addr mixnet.Recipient

	recvCh chan *mixnet.Packet

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the daemon named by cfg, resolves the local address and
// starts the receive worker.
func Dial(ctx context.Context, cfg *config.Config, logBackend *log.Backend) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Mixnet.ConnectTimeout)*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, cfg.Mixnet.DaemonURL, nil)
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial %s: %v", cfg.Mixnet.DaemonURL, err)
	}
	// Reassembled mixnet messages can be large.
	conn.SetReadLimit(-1)

	c := &Client{
		log:    logBackend.GetLogger("mixnet/wsclient"),
		conn:   conn,
		recvCh: make(chan *mixnet.Packet, recvQueueDepth),
	}

	if err := c.writeFrame(dialCtx, &frame{Type: frameSelfAddress}); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, err
	}
	f, err := c.readFrame(dialCtx)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, err
	}
	if f.Type != frameSelfAddress || f.Address == "" {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("wsclient: unexpected handshake frame %q", f.Type)
	}
	c.addr = mixnet.NewRecipient([]byte(f.Address))
	c.log.Noticef("Connected to mixnet daemon, local address: %s", f.Address)

	c.Go(c.recvWorker)
	return c, nil
}

// Address returns the daemon's mixnet address.
func (c *Client) Address() mixnet.Recipient {
	return c.addr
}

// Messages yields inbound packets.  The channel closes when the daemon
// session dies.
func (c *Client) Messages() <-chan *mixnet.Packet {
	return c.recvCh
}

// SplitSender returns the write half of the client.
func (c *Client) SplitSender() mixnet.Sender {
	return &sender{c: c}
}

// Close tears down the daemon session.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
		c.Halt()
	})
	return nil
}

func (c *Client) recvWorker() {
	defer close(c.recvCh)
	for {
		f, err := c.readFrame(context.Background())
		if err != nil {
			select {
			case <-c.HaltCh():
			default:
				c.log.Warningf("Daemon session died: %v", err)
			}
			return
		}
		switch f.Type {
		case frameReceived:
			pkt := &mixnet.Packet{Payload: f.Message}
			if f.SenderTag != "" {
				t := mixnet.NewSenderTag([]byte(f.SenderTag))
				pkt.SenderTag = &t
			}
			select {
			case c.recvCh <- pkt:
			case <-c.HaltCh():
				return
			}
		case frameError:
			c.log.Warningf("Daemon reported error: %s", f.Error)
		default:
			c.log.Debugf("Ignoring daemon frame %q", f.Type)
		}
	}
}

func (c *Client) writeFrame(ctx context.Context, f *frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *Client) readFrame(ctx context.Context) (*frame, error) {
	_, b, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	f := new(frame)
	if err := json.Unmarshal(b, f); err != nil {
		return nil, fmt.Errorf("wsclient: malformed daemon frame: %v", err)
	}
	return f, nil
}

type sender struct {
	c *Client
}

func (s *sender) SendMessage(r mixnet.Recipient, payload []byte, surbs int) error {
	return s.c.writeFrame(context.Background(), &frame{
		Type:      frameSend,
		Recipient: string(r.Bytes()),
		Message:   payload,
		SURBs:     surbs,
	})
}

func (s *sender) SendReply(t mixnet.SenderTag, payload []byte) error {
	return s.c.writeFrame(context.Background(), &frame{
		Type:      frameReply,
		SenderTag: string(t.Bytes()),
		Message:   payload,
	})
}
