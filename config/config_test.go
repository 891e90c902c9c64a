// config_test.go - Configuration tests.
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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	require.Equal(t, "NOTICE", cfg.Logging.Level)
	require.False(t, cfg.Logging.Disable)
	require.Equal(t, "ws://127.0.0.1:1977", cfg.Mixnet.DaemonURL)
	require.Equal(t, 30, cfg.Mixnet.ConnectTimeout)
	require.Equal(t, 10, cfg.Mixnet.SURBCount)
	require.Empty(t, cfg.Debug.MetricsAddress)

	require.Equal(t, cfg, Default())
}

func TestLoad(t *testing.T) {
	const body = `
[Logging]
Level = "debug"

[Mixnet]
DaemonURL = "wss://mixnet.example.com:443"
SURBCount = 25

[Debug]
MetricsAddress = "127.0.0.1:6543"
`
	cfg, err := Load([]byte(body))
	require.NoError(t, err)

	// Levels are forced uppercase.
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, "wss://mixnet.example.com:443", cfg.Mixnet.DaemonURL)
	require.Equal(t, 25, cfg.Mixnet.SURBCount)
	// Unset values still pick up defaults.
	require.Equal(t, 30, cfg.Mixnet.ConnectTimeout)
	require.Equal(t, "127.0.0.1:6543", cfg.Debug.MetricsAddress)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := Load([]byte("[Logging]\nLevel = \"LOUD\"\n"))
	require.Error(t, err)
}

func TestInvalidDaemonURL(t *testing.T) {
	_, err := Load([]byte("[Mixnet]\nDaemonURL = \"http://127.0.0.1:1977\"\n"))
	require.Error(t, err)
}

func TestUndecodedKeys(t *testing.T) {
	_, err := Load([]byte("[Mixnet]\nDeamonURL = \"ws://127.0.0.1:1977\"\n"))
	require.Error(t, err)
}
