// errors.go - Connection layer errors.
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

import "errors"

var (
	// ErrHalted is returned by operations on a transport that has shut
	// down; all connections and substreams are no longer serviceable.
	ErrHalted = errors.New("transport: halted")

	// ErrConnectionRefused is returned when the remote peer rejects a
	// connection request.
	ErrConnectionRefused = errors.New("transport: connection refused by peer")

	// ErrConnectionClosed is returned by operations on a closed
	// connection.
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrSubstreamClosed is returned when writing to a closed
	// substream.
	ErrSubstreamClosed = errors.New("transport: substream closed")
)
