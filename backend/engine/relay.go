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
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/session"
	"github.com/efchatnet/efrelay/backend/storage"
)

// SendMessage persists an opaque ciphertext envelope and broadcasts it
// to the room. The message is durable before any peer hears about it;
// a crash between the two can lose a broadcast but never show a
// message that storage does not hold. If any other member is currently
// reachable the message immediately advances to delivered, as a
// coarse room-wide signal rather than a per-recipient receipt.
func (e *Engine) SendMessage(ctx context.Context, conn session.Conn, roomID, ciphertext, iv, attachmentRef string) error {
	sender, err := e.usernameFor(conn)
	if err != nil {
		return err
	}

	member, err := e.store.IsMember(ctx, roomID, sender)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !member {
		return ErrNotAMember
	}

	msg := models.Message{
		MessageID:     uuid.NewString(),
		RoomID:        roomID,
		Sender:        sender,
		Ciphertext:    ciphertext,
		IV:            iv,
		AttachmentRef: attachmentRef,
		State:         models.MessagePending,
		CreatedAt:     e.now(),
	}
	if err := e.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	e.reg.Broadcast(roomID, models.Event{
		Event: models.EventNewMessage,
		Data:  msg,
	})

	if e.reg.OnlinePeerInRoom(roomID, sender) {
		now := e.now()
		advanced, err := e.store.AdvanceMessageState(ctx, msg.MessageID, models.MessageDelivered, now)
		if err != nil {
			e.log.Warn("auto-deliver failed", "message", msg.MessageID, "error", err)
		} else if advanced {
			e.reg.Broadcast(roomID, models.Event{
				Event: models.EventMessageStateChanged,
				Data: models.StateChangeData{
					MessageID: msg.MessageID,
					RoomID:    roomID,
					State:     models.MessageDelivered,
					Timestamp: now,
				},
			})
		}
	}

	if err := e.store.TouchLastSeen(ctx, sender, msg.CreatedAt); err != nil {
		e.log.Warn("last-seen update failed", "username", sender, "error", err)
	}
	e.reg.Touch(ctx, sender)
	return nil
}

// MarkDelivered advances a message to delivered on behalf of a room
// member. Redundant calls are silent no-ops, and the sender can never
// advance its own message.
func (e *Engine) MarkDelivered(ctx context.Context, conn session.Conn, messageID string) error {
	return e.advance(ctx, conn, messageID, models.MessageDelivered)
}

// MarkRead advances a message to read, the terminal state.
func (e *Engine) MarkRead(ctx context.Context, conn session.Conn, messageID string) error {
	return e.advance(ctx, conn, messageID, models.MessageRead)
}

func (e *Engine) advance(ctx context.Context, conn session.Conn, messageID string, state models.MessageState) error {
	by, err := e.usernameFor(conn)
	if err != nil {
		return err
	}

	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	// The sender's own acknowledgements never move the state machine.
	if msg.Sender == by {
		return nil
	}

	member, err := e.store.IsMember(ctx, msg.RoomID, by)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !member {
		return ErrNotAMember
	}

	now := e.now()
	advanced, err := e.store.AdvanceMessageState(ctx, messageID, state, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !advanced {
		// Already at or past the target state.
		return nil
	}

	e.reg.Broadcast(msg.RoomID, models.Event{
		Event: models.EventMessageStateChanged,
		Data: models.StateChangeData{
			MessageID: messageID,
			RoomID:    msg.RoomID,
			State:     state,
			UpdatedBy: by,
			Timestamp: now,
		},
	})
	return nil
}

// DeleteForEveryone removes the persisted message and tells the room.
// No tombstone remains; message ids are never recycled.
func (e *Engine) DeleteForEveryone(ctx context.Context, conn session.Conn, roomID, messageID string) error {
	requester, err := e.usernameFor(conn)
	if err != nil {
		return err
	}

	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if msg.RoomID != roomID {
		return ErrMessageNotFound
	}

	member, err := e.store.IsMember(ctx, roomID, requester)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !member {
		return ErrNotAMember
	}

	if err := e.store.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	e.reg.Broadcast(roomID, models.Event{
		Event: models.EventMessageDeleted,
		Data: models.MessageDeletedData{
			MessageID: messageID,
			RoomID:    roomID,
			DeletedBy: requester,
		},
	})
	return nil
}

// DeleteForMe is a client-local view operation: nothing persisted
// changes, the requester's own connection just gets an acknowledgement
// to apply its local filter.
func (e *Engine) DeleteForMe(conn session.Conn, roomID, messageID string) error {
	if _, ok := e.reg.UsernameFor(conn.ID()); !ok {
		return ErrNotRegistered
	}
	conn.Send(models.Event{
		Event: models.EventMessageDeletedLocal,
		Data: models.MessageDeletedData{
			MessageID: messageID,
			RoomID:    roomID,
		},
	})
	return nil
}
