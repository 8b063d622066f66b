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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/efchatnet/efrelay/backend/models"
)

// ErrNotFound is returned by every store when the requested row does
// not exist. Implementations must map their driver's not-found
// condition onto it.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateCode is returned by CreateRoom when the room code is
// already held by a live room. Implementations must map their driver's
// unique-violation onto it so callers can re-roll the code.
var ErrDuplicateCode = errors.New("storage: room code already in use")

type IdentityStore interface {
	// UpsertIdentity creates the identity or refreshes its public key
	// and last-seen timestamp. The authenticated flag is only ever
	// raised, never cleared, so an account cannot be downgraded by a
	// later legacy registration under the same name.
	UpsertIdentity(ctx context.Context, identity models.Identity) error
	GetIdentity(ctx context.Context, username string) (*models.Identity, error)
	TouchLastSeen(ctx context.Context, username string, at time.Time) error
}

type RoomStore interface {
	// CreateRoom persists the room row and the owner's membership in
	// one transaction. A room never exists without its owner's
	// membership row.
	CreateRoom(ctx context.Context, room models.Room) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	RoomCodeExists(ctx context.Context, code string) (bool, error)
}

type MembershipStore interface {
	AddMember(ctx context.Context, roomID, username string, at time.Time) error
	RemoveMember(ctx context.Context, roomID, username string) error
	IsMember(ctx context.Context, roomID, username string) (bool, error)
	// GetMembers returns the full identities of a room's members so
	// callers can build membership+public-key snapshots.
	GetMembers(ctx context.Context, roomID string) ([]models.Identity, error)
}

type MessageStore interface {
	SaveMessage(ctx context.Context, msg models.Message) error
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	// GetRoomMessages returns up to limit messages, oldest first.
	GetRoomMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	// AdvanceMessageState moves a message forward to the given state
	// and stamps the matching timestamp. It reports false without
	// error when the message is already at or past the target state,
	// keeping redundant acknowledgements idempotent.
	AdvanceMessageState(ctx context.Context, messageID string, state models.MessageState, at time.Time) (bool, error)
	DeleteMessage(ctx context.Context, messageID string) error
	CountRoomMessages(ctx context.Context, roomID string) (int, error)
}

type CleanupStore interface {
	// CascadeOnOwnerLeave deletes a room's messages, memberships and
	// room row, then reclaims member identities left with zero
	// memberships. Only legacy identities are reclaimed; authenticated
	// accounts are never deleted here. The whole cascade is one transaction:
	// it either fully succeeds or leaves everything in place.
	// It returns the usernames that were members before the cascade.
	CascadeOnOwnerLeave(ctx context.Context, roomID string) ([]string, error)
}

type Store interface {
	IdentityStore
	RoomStore
	MembershipStore
	MessageStore
	CleanupStore
}
