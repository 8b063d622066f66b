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

// CreateRoom creates an Active room owned by the connection's
// identity. The room class is fixed here, by the owner's own class,
// and never changes afterwards. The room row and the owner's
// membership are persisted atomically.
func (e *Engine) CreateRoom(ctx context.Context, conn session.Conn) error {
	owner, err := e.identityFor(ctx, conn)
	if err != nil {
		return err
	}

	var room models.Room
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return fmt.Errorf("%w: room code space exhausted", ErrPersistenceFailure)
		}
		code, err := e.newCode()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		taken, err := e.store.RoomCodeExists(ctx, code)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		if taken {
			continue
		}
		room = models.Room{
			RoomID:    uuid.NewString(),
			RoomCode:  code,
			Owner:     owner.Username,
			Class:     owner.Class(),
			CreatedAt: e.now(),
		}
		if err := e.store.CreateRoom(ctx, room); err != nil {
			// A collision that slipped past the existence check lands
			// on the unique constraint instead; re-roll like any other.
			if errors.Is(err, storage.ErrDuplicateCode) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		break
	}

	// Subscribe only after the room is durable.
	e.reg.Subscribe(conn.ID(), room.RoomID)

	conn.Send(models.Event{
		Event: models.EventRoomCreated,
		Data: models.RoomCreatedData{
			RoomID:    room.RoomID,
			RoomCode:  room.RoomCode,
			RoomClass: room.Class,
		},
	})
	e.log.Info("room created",
		"room", room.RoomID, "code", room.RoomCode,
		"owner", owner.Username, "class", room.Class)
	return nil
}

// RequestJoin resolves a room code to a room, validates the requester
// against the current persisted state and routes a transient join
// request to the owner's live connection. If the owner is unreachable
// the request is discarded; nothing is queued.
func (e *Engine) RequestJoin(ctx context.Context, conn session.Conn, roomCode string) error {
	requester, err := e.identityFor(ctx, conn)
	if err != nil {
		return err
	}

	// The room is looked up from the store, never from memory: a
	// cached room could have been cascaded away in the meantime.
	room, err := e.store.GetRoomByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	member, err := e.store.IsMember(ctx, room.RoomID, requester.Username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if member {
		return ErrAlreadyMember
	}
	if requester.Class() != room.Class {
		return ErrRoomClassMismatch
	}

	ownerConn := e.reg.ConnFor(room.Owner)
	if ownerConn == nil {
		return ErrOwnerOffline
	}

	req := &JoinRequest{
		ID:        uuid.NewString(),
		RoomID:    room.RoomID,
		Requester: *requester,
		Conn:      conn,
	}
	e.joins.put(req)

	ownerConn.Send(models.Event{
		Event: models.EventJoinRequest,
		Data: models.JoinRequestData{
			RequestID: req.ID,
			RoomID:    room.RoomID,
			Username:  requester.Username,
			PublicKey: requester.PublicKey,
		},
	})
	e.log.Info("join requested",
		"room", room.RoomID, "requester", requester.Username, "request", req.ID)
	return nil
}

// ApproveJoin resolves a pending join request. The room and the
// approver's ownership are re-checked against the store: an approval
// racing an owner-leave cascade must fail, never hand out membership
// in a deleted room.
func (e *Engine) ApproveJoin(ctx context.Context, conn session.Conn, requestID string) error {
	approver, err := e.usernameFor(conn)
	if err != nil {
		return err
	}

	req, ok := e.joins.get(requestID)
	if !ok {
		return ErrRoomNotFound
	}

	room, err := e.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.joins.remove(requestID)
			return ErrRoomNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if approver != room.Owner {
		return ErrNotAuthorized
	}

	if err := e.store.AddMember(ctx, room.RoomID, req.Requester.Username, e.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	e.joins.remove(requestID)

	// Subscribe the requester's current connection if the identity is
	// still live; the one captured in the request may be long gone.
	requesterConn := e.reg.ConnFor(req.Requester.Username)
	if requesterConn != nil {
		e.reg.Subscribe(requesterConn.ID(), room.RoomID)
	}

	e.reg.Broadcast(room.RoomID, models.Event{
		Event: models.EventMemberJoined,
		Data:  models.MemberChangeData{RoomID: room.RoomID, Username: req.Requester.Username},
	})

	snapshot, err := e.roomSnapshot(ctx, room)
	if err != nil {
		return err
	}
	e.reg.Broadcast(room.RoomID, models.Event{
		Event: models.EventMembersUpdate,
		Data:  snapshot,
	})
	if requesterConn != nil {
		requesterConn.Send(models.Event{
			Event: models.EventJoinApproved,
			Data:  snapshot,
		})
	}
	e.log.Info("join approved",
		"room", room.RoomID, "requester", req.Requester.Username, "request", requestID)
	return nil
}

// DenyJoin discards a pending join request after the same freshness
// checks as ApproveJoin and notifies the requester if still reachable.
func (e *Engine) DenyJoin(ctx context.Context, conn session.Conn, requestID string) error {
	approver, err := e.usernameFor(conn)
	if err != nil {
		return err
	}

	req, ok := e.joins.get(requestID)
	if !ok {
		return ErrRoomNotFound
	}

	room, err := e.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.joins.remove(requestID)
			return ErrRoomNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if approver != room.Owner {
		return ErrNotAuthorized
	}

	e.joins.remove(requestID)
	e.reg.SendTo(req.Requester.Username, models.Event{
		Event: models.EventJoinDenied,
		Data:  models.MemberChangeData{RoomID: room.RoomID, Username: req.Requester.Username},
	})
	e.log.Info("join denied",
		"room", room.RoomID, "requester", req.Requester.Username, "request", requestID)
	return nil
}

// ReconnectJoin re-subscribes a returning member to a room it already
// belongs to and replays the membership snapshot plus message history.
// Membership and room class are checked against the store, so a class
// switched after creation can never sneak back in.
func (e *Engine) ReconnectJoin(ctx context.Context, conn session.Conn, roomID string) error {
	username, err := e.usernameFor(conn)
	if err != nil {
		return err
	}

	// Room existence is checked before the identity row: a member whose
	// legacy identity was reclaimed by the owner's cascade still gets
	// RoomNotFound here, not a confusing registration error.
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	member, err := e.store.IsMember(ctx, roomID, username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !member {
		return ErrNotAMember
	}

	identity, err := e.identityFor(ctx, conn)
	if err != nil {
		return err
	}
	if identity.Class() != room.Class {
		return ErrRoomClassMismatch
	}

	e.reg.Subscribe(conn.ID(), roomID)

	snapshot, err := e.roomSnapshot(ctx, room)
	if err != nil {
		return err
	}
	messages, err := e.store.GetRoomMessages(ctx, roomID, e.historyLimit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	conn.Send(models.Event{
		Event: models.EventRoomData,
		Data: models.RoomData{
			RoomSnapshot: snapshot,
			Messages:     messages,
		},
	})
	e.log.Info("member rejoined", "room", roomID, "username", identity.Username)
	return nil
}

// Leave removes the member from the room. When the owner leaves, the
// room's whole history is cascaded away and every subscriber is told
// the room is closed; any later reference to it yields RoomNotFound.
func (e *Engine) Leave(ctx context.Context, conn session.Conn, roomID string) error {
	username, err := e.usernameFor(conn)
	if err != nil {
		return err
	}

	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	member, err := e.store.IsMember(ctx, roomID, username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !member {
		return ErrNotAMember
	}

	if username == room.Owner {
		return e.closeRoom(ctx, room)
	}

	if err := e.store.RemoveMember(ctx, roomID, username); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	e.reg.Unsubscribe(conn.ID(), roomID)
	e.reg.Broadcast(roomID, models.Event{
		Event: models.EventMemberLeft,
		Data:  models.MemberChangeData{RoomID: roomID, Username: username},
	})
	e.log.Info("member left", "room", roomID, "username", username)
	return nil
}

// roomSnapshot builds the membership+public-key view of a room from
// persisted state.
func (e *Engine) roomSnapshot(ctx context.Context, room *models.Room) (models.RoomSnapshot, error) {
	members, err := e.store.GetMembers(ctx, room.RoomID)
	if err != nil {
		return models.RoomSnapshot{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	keys := make([]models.MemberKey, 0, len(members))
	for _, m := range members {
		keys = append(keys, models.MemberKey{
			Username:  m.Username,
			PublicKey: m.PublicKey,
			Online:    e.reg.IsOnline(m.Username),
		})
	}
	return models.RoomSnapshot{
		RoomID:    room.RoomID,
		RoomCode:  room.RoomCode,
		RoomClass: room.Class,
		Owner:     room.Owner,
		Members:   keys,
	}, nil
}
