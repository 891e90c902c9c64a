// addressing_test.go - Addressing model tests.
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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecipientTextForm(t *testing.T) {
	r := NewRecipient([]byte("a stable mixnet address"))

	parsed, err := ParseRecipient(r.String())
	require.NoError(t, err)
	require.True(t, r.Equal(parsed))
	require.Equal(t, r.Bytes(), parsed.Bytes())

	_, err = ParseRecipient("not!base64!")
	require.Error(t, err)

	_, err = ParseRecipient("")
	require.Error(t, err)

	require.True(t, Recipient{}.IsZero())
	require.False(t, r.IsZero())
}

func TestSenderTagTextForm(t *testing.T) {
	tag := NewSenderTag([]byte{0x01, 0x02, 0x03, 0x04})

	parsed, err := ParseSenderTag(tag.String())
	require.NoError(t, err)
	require.True(t, tag.Equal(parsed))

	other := NewSenderTag([]byte("different"))
	require.False(t, tag.Equal(other))
}
