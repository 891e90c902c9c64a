// config.go - Mixnet transport configuration.
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

// Package config implements the configuration for the mixnet transport.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultLogLevel       = "NOTICE"
	defaultDaemonURL      = "ws://127.0.0.1:1977"
	defaultConnectTimeout = 30
	defaultSURBCount      = 10
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Mixnet is the mixnet daemon configuration.
type Mixnet struct {
	// DaemonURL is the websocket URL of the local mixnet daemon.
	DaemonURL string

	// ConnectTimeout is the number of seconds a daemon dial is allowed
	// to take until it is canceled.
	ConnectTimeout int

	// SURBCount is the number of single use reply blocks attached to
	// each direct send, so the remote peer can answer anonymously.
	SURBCount int
}

func (mCfg *Mixnet) fixup() {
	if mCfg.DaemonURL == "" {
		mCfg.DaemonURL = defaultDaemonURL
	}
	if mCfg.ConnectTimeout <= 0 {
		mCfg.ConnectTimeout = defaultConnectTimeout
	}
	if mCfg.SURBCount <= 0 {
		mCfg.SURBCount = defaultSURBCount
	}
}

func (mCfg *Mixnet) validate() error {
	u, err := url.Parse(mCfg.DaemonURL)
	if err != nil {
		return fmt.Errorf("config: Mixnet: DaemonURL '%v' is invalid: %v", mCfg.DaemonURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("config: Mixnet: DaemonURL scheme '%v' is invalid", u.Scheme)
	}
	return nil
}

// Debug is the debug configuration.
type Debug struct {
	// MetricsAddress, if set, exposes prometheus metrics over HTTP on
	// the given listen address.
	MetricsAddress string
}

// Config is the top level transport configuration.
type Config struct {
	Logging *Logging
	Mixnet  *Mixnet
	Debug   *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	// Handle missing sections if possible.
	if c.Logging == nil {
		lCfg := defaultLogging
		c.Logging = &lCfg
	}
	if c.Mixnet == nil {
		c.Mixnet = new(Mixnet)
	}
	if c.Debug == nil {
		c.Debug = new(Debug)
	}
	c.Mixnet.fixup()

	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Mixnet.validate(); err != nil {
		return err
	}
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// Default returns a validated Config populated entirely from defaults.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}
