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
	"context"
	"fmt"

	"github.com/efchatnet/efrelay/backend/models"
)

// closeRoom runs the ephemeral teardown after an owner leaves: the
// store cascades messages, memberships, the room row and orphaned
// legacy identities in one transaction, then every subscriber hears
// room-closed and the routing state for the room is dropped. The
// broadcast happens only after the cascade committed, so nobody is
// told about a closure that may still roll back.
func (e *Engine) closeRoom(ctx context.Context, room *models.Room) error {
	members, err := e.store.CascadeOnOwnerLeave(ctx, room.RoomID)
	if err != nil {
		e.log.Error("owner-leave cascade failed", "room", room.RoomID, "error", err)
		return fmt.Errorf("%w: %v", ErrCleanupFailed, err)
	}

	e.reg.Broadcast(room.RoomID, models.Event{
		Event: models.EventRoomClosed,
		Data:  models.MemberChangeData{RoomID: room.RoomID, Username: room.Owner},
	})
	e.reg.DropRoom(room.RoomID)

	e.log.Info("room closed",
		"room", room.RoomID, "owner", room.Owner, "members", len(members))
	return nil
}
