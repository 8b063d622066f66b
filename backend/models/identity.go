// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package models

import (
	"time"
)

// RoomClass gates which identity kind may join a room. It is fixed
// when the room is created and never changes afterwards.
type RoomClass string

const (
	RoomClassLegacy        RoomClass = "legacy"
	RoomClassAuthenticated RoomClass = "authenticated"
)

// Identity is either a legacy (ephemeral, username-picked) identity or
// an authenticated account. The public key is opaque to the server;
// only clients ever interpret it.
type Identity struct {
	Username      string    `json:"username" db:"username"`
	PublicKey     []byte    `json:"public_key" db:"public_key"`
	Authenticated bool      `json:"authenticated" db:"authenticated"`
	LastSeen      time.Time `json:"last_seen" db:"last_seen"`
}

// Class maps the identity onto the room class it may create or join.
func (i Identity) Class() RoomClass {
	if i.Authenticated {
		return RoomClassAuthenticated
	}
	return RoomClassLegacy
}

// MemberKey is one entry of a membership+public-key snapshot.
type MemberKey struct {
	Username  string `json:"username"`
	PublicKey []byte `json:"public_key"`
	Online    bool   `json:"online"`
}
