// errors.go - Mixnet bridge errors.
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

import "errors"

var (
	// ErrNoRouteAvailable is returned when an OutboundMessage specifies
	// neither a recipient nor a sender tag.  It is rejected before any
	// network I/O is attempted.
	ErrNoRouteAvailable = errors.New("mixnet: no recipient or sender tag, cannot route message")

	// ErrBridgeHalted is returned when sending on a bridge that has
	// shut down.  Callers must treat the transport as dead and fail
	// open connections with a transport-unavailable condition.
	ErrBridgeHalted = errors.New("mixnet: bridge halted")

	// ErrSendFailure wraps a mixnet client send or reply failure.
	ErrSendFailure = errors.New("mixnet: client send failure")
)
