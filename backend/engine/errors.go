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

package engine

import (
	"errors"
)

// Protocol error taxonomy. Every error is reported only to the
// connection whose operation failed; none of these are ever broadcast.
var (
	ErrNotRegistered      = errors.New("connection has no registered identity")
	ErrIdentityInUse      = errors.New("identity is bound to another live connection")
	ErrRoomNotFound       = errors.New("room not found")
	ErrAlreadyMember      = errors.New("already a member of this room")
	ErrNotAMember         = errors.New("not a member of this room")
	ErrRoomClassMismatch  = errors.New("identity class does not match room class")
	ErrOwnerOffline       = errors.New("room owner is not reachable")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrMessageNotFound    = errors.New("message not found")
	ErrCleanupFailed      = errors.New("room cleanup failed")
	ErrPersistenceFailure = errors.New("persistence failure")
)

// ErrorCode maps a protocol error onto its wire code for error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotRegistered):
		return "NotRegistered"
	case errors.Is(err, ErrIdentityInUse):
		return "IdentityInUse"
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrAlreadyMember):
		return "AlreadyMember"
	case errors.Is(err, ErrNotAMember):
		return "NotAMember"
	case errors.Is(err, ErrRoomClassMismatch):
		return "RoomClassMismatch"
	case errors.Is(err, ErrOwnerOffline):
		return "OwnerOffline"
	case errors.Is(err, ErrNotAuthorized):
		return "NotAuthorized"
	case errors.Is(err, ErrMessageNotFound):
		return "MessageNotFound"
	case errors.Is(err, ErrCleanupFailed):
		return "CleanupFailed"
	}
	return "PersistenceFailure"
}
