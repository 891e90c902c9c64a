// main.go - Mixnet transport chat demo.
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

// chat relays lines between stdin/stdout and a peer reached over the
// mixnet.  Without a destination argument it prints its own address and
// waits for a peer to dial in; with one it dials out.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/katzenpost/hpqc/rand"

	"github.com/mfahampshire/go-mixnet-transport/config"
	"github.com/mfahampshire/go-mixnet-transport/instrument"
	"github.com/mfahampshire/go-mixnet-transport/log"
	"github.com/mfahampshire/go-mixnet-transport/mixnet"
	"github.com/mfahampshire/go-mixnet-transport/mixnet/memnet"
	"github.com/mfahampshire/go-mixnet-transport/mixnet/wsclient"
	"github.com/mfahampshire/go-mixnet-transport/transport"
)

func newIdentity() []byte {
	id := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, id); err != nil {
		panic(err)
	}
	return id
}

func newTransport(client mixnet.Client, cfg *config.Config, logBackend *log.Backend) (*transport.Transport, error) {
	bridge, err := mixnet.InitializeWithSURBCount(client, logBackend, nil, cfg.Mixnet.SURBCount)
	if err != nil {
		return nil, err
	}
	return transport.New(bridge, newIdentity(), logBackend), nil
}

// runEchoPeer services one connection on t, echoing every substream back
// at its sender.
func runEchoPeer(t *transport.Transport) {
	conn, err := t.Accept(context.Background())
	if err != nil {
		return
	}
	for {
		ss, err := conn.AcceptSubstream(context.Background())
		if err != nil {
			return
		}
		go func() {
			_, _ = io.Copy(ss, ss)
			_ = ss.Close()
		}()
	}
}

func chat(ss *transport.Substream) {
	go func() {
		scanner := bufio.NewScanner(ss)
		for scanner.Scan() {
			fmt.Printf("peer: %s\n", scanner.Text())
		}
		fmt.Fprintln(os.Stderr, "peer closed the stream")
		os.Exit(0)
	}()

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		if _, err := ss.Write(append(stdin.Bytes(), '\n')); err != nil {
			fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
			return
		}
	}
	_ = ss.Close()
}

func main() {
	cfgFile := flag.String("cfg", "", "config file")
	loopback := flag.Bool("loopback", false, "chat with an in-process echo peer instead of a mixnet daemon")
	flag.Parse()

	cfg := config.Default()
	if *cfgFile != "" {
		var err error
		cfg, err = config.LoadFile(*cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	logBackend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	instrument.Init(cfg.Debug.MetricsAddress)

	if *loopback {
		sw := memnet.NewSwitch()
		peer, err := newTransport(sw.NewClient(), cfg, logBackend)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start echo peer: %v\n", err)
			os.Exit(1)
		}
		go runEchoPeer(peer)

		t, err := newTransport(sw.NewClient(), cfg, logBackend)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start transport: %v\n", err)
			os.Exit(1)
		}
		defer t.Shutdown()

		conn, err := t.Dial(context.Background(), peer.Recipient())
		if err != nil {
			fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
			os.Exit(1)
		}
		ss, err := conn.OpenSubstream(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "substream open failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "connected to in-process echo peer, type away")
		chat(ss)
		return
	}

	client, err := wsclient.Dial(context.Background(), cfg, logBackend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to mixnet daemon: %v\n", err)
		os.Exit(1)
	}
	t, err := newTransport(client, cfg, logBackend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start transport: %v\n", err)
		os.Exit(1)
	}
	defer t.Shutdown()

	var ss *transport.Substream
	if dest := flag.Arg(0); dest != "" {
		conn, err := t.Dial(context.Background(), mixnet.NewRecipient([]byte(dest)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
			os.Exit(1)
		}
		ss, err = conn.OpenSubstream(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "substream open failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintf(os.Stderr, "our address: %s\nwaiting for a peer...\n", string(t.Recipient().Bytes()))
		conn, err := t.Accept(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "accept failed: %v\n", err)
			os.Exit(1)
		}
		ss, err = conn.AcceptSubstream(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "substream accept failed: %v\n", err)
			os.Exit(1)
		}
	}
	chat(ss)
}
