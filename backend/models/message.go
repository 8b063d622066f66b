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

// MessageState is the room-wide delivery state of a message. It only
// ever moves forward: pending -> delivered -> read.
type MessageState string

const (
	MessagePending   MessageState = "pending"
	MessageDelivered MessageState = "delivered"
	MessageRead      MessageState = "read"
)

// Rank orders states for the monotonic-progress check. Unknown states
// rank below pending so they can never win a comparison.
func (s MessageState) Rank() int {
	switch s {
	case MessagePending:
		return 1
	case MessageDelivered:
		return 2
	case MessageRead:
		return 3
	}
	return 0
}

// Message carries an opaque ciphertext+iv pair through a room. The
// server never inspects or decrypts the payload.
type Message struct {
	MessageID     string       `json:"message_id" db:"message_id"`
	RoomID        string       `json:"room_id" db:"room_id"`
	Sender        string       `json:"sender" db:"sender"`
	Ciphertext    string       `json:"ciphertext" db:"ciphertext"`
	IV            string       `json:"iv" db:"iv"`
	AttachmentRef string       `json:"attachment_ref,omitempty" db:"attachment_ref"`
	State         MessageState `json:"state" db:"state"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	DeliveredAt   *time.Time   `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt        *time.Time   `json:"read_at,omitempty" db:"read_at"`
}
