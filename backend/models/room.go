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

// Room is an ephemeral encrypted room. The room id is internal; the
// room code is the short shareable identifier used to request a join.
// When the owner leaves, the room and its entire history are deleted.
type Room struct {
	RoomID    string    `json:"room_id" db:"room_id"`
	RoomCode  string    `json:"room_code" db:"room_code"`
	Owner     string    `json:"owner" db:"owner"`
	Class     RoomClass `json:"room_class" db:"room_class"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Membership records that an identity belongs to a room. The owner
// keeps a membership row for as long as the room exists.
type Membership struct {
	RoomID   string    `json:"room_id" db:"room_id"`
	Username string    `json:"username" db:"username"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
