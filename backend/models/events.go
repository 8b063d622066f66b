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

// Event is the wire envelope for everything the server pushes to a
// connection.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Outbound event names.
const (
	EventRoomCreated         = "room-created"
	EventJoinRequest         = "join-request"
	EventJoinApproved        = "join-approved"
	EventJoinDenied          = "join-denied"
	EventRoomData            = "room-data"
	EventNewMessage          = "new-message"
	EventMessageStateChanged = "message-state-changed"
	EventMessageDeleted      = "message-deleted"
	EventMessageDeletedLocal = "message-deleted-me"
	EventMemberJoined        = "member-joined"
	EventMemberLeft          = "member-left"
	EventMemberOffline       = "member-offline"
	EventMembersUpdate       = "members-update"
	EventRoomClosed          = "room-closed"
	EventError               = "error"
)

// RoomCreatedData acknowledges room creation to the owner.
type RoomCreatedData struct {
	RoomID    string    `json:"room_id"`
	RoomCode  string    `json:"room_code"`
	RoomClass RoomClass `json:"room_class"`
}

// JoinRequestData is delivered to the room owner when someone asks to
// join via room code.
type JoinRequestData struct {
	RequestID string `json:"request_id"`
	RoomID    string `json:"room_id"`
	Username  string `json:"username"`
	PublicKey []byte `json:"public_key"`
}

// RoomSnapshot is the membership+key view of a room, sent on approval
// and on reconnect-join.
type RoomSnapshot struct {
	RoomID    string      `json:"room_id"`
	RoomCode  string      `json:"room_code"`
	RoomClass RoomClass   `json:"room_class"`
	Owner     string      `json:"owner"`
	Members   []MemberKey `json:"members"`
}

// RoomData bundles the snapshot with message history for reconnects.
type RoomData struct {
	RoomSnapshot
	Messages []Message `json:"messages"`
}

// MemberChangeData announces a single member joining, leaving or going
// offline.
type MemberChangeData struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

// StateChangeData announces a delivery-state transition to a room.
type StateChangeData struct {
	MessageID string       `json:"message_id"`
	RoomID    string       `json:"room_id"`
	State     MessageState `json:"state"`
	UpdatedBy string       `json:"updated_by,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// MessageDeletedData announces a delete-for-everyone to a room.
type MessageDeletedData struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	DeletedBy string `json:"deleted_by"`
}

// ErrorData is only ever sent to the connection whose operation
// failed, never broadcast.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
