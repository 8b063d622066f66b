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
	"testing"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage/memory"
)

// twoMemberRoom sets up alice (owner) and bob as members of one room.
func twoMemberRoom(t *testing.T) (*Engine, *memory.Store, *fakeConn, *fakeConn, string) {
	t.Helper()
	e, store := newTestEngine(t)
	alice := newFakeConn("c-alice")
	register(t, e, alice, "alice", false)
	roomID, roomCode := createRoom(t, e, alice)

	bob := newFakeConn("c-bob")
	register(t, e, bob, "bob", false)
	joinViaApproval(t, e, alice, bob, roomCode)
	alice.reset()
	bob.reset()
	return e, store, alice, bob, roomID
}

func sentMessage(t *testing.T, conn *fakeConn) models.Message {
	t.Helper()
	ev, ok := conn.lastNamed(models.EventNewMessage)
	if !ok {
		t.Fatal("no new-message event")
	}
	return ev.Data.(models.Message)
}

func TestSendRequiresMembership(t *testing.T) {
	e, _, _, _, roomID := twoMemberRoom(t)
	mallory := newFakeConn("c-mallory")
	register(t, e, mallory, "mallory", false)

	err := e.SendMessage(context.Background(), mallory, roomID, "ct", "iv", "")
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestSendPersistsThenBroadcasts(t *testing.T) {
	e, store, alice, bob, roomID := twoMemberRoom(t)

	if err := e.SendMessage(context.Background(), alice, roomID, "cipher", "vector", "att-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := sentMessage(t, bob)
	if msg.Ciphertext != "cipher" || msg.IV != "vector" || msg.AttachmentRef != "att-1" {
		t.Fatalf("broadcast payload mangled: %+v", msg)
	}
	persisted, err := store.GetMessage(context.Background(), msg.MessageID)
	if err != nil {
		t.Fatalf("message not durable: %v", err)
	}
	if persisted.Sender != "alice" {
		t.Errorf("sender mismatch: %s", persisted.Sender)
	}
}

func TestSendPersistFailureBroadcastsNothing(t *testing.T) {
	e, store, alice, bob, roomID := twoMemberRoom(t)
	store.FailWrites = errors.New("wal full")

	err := e.SendMessage(context.Background(), alice, roomID, "ct", "iv", "")
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if evs := bob.eventsNamed(models.EventNewMessage); len(evs) != 0 {
		t.Fatal("a message that was never durable must not be broadcast")
	}
}

func TestSendAutoDeliversWithPeerOnline(t *testing.T) {
	e, store, alice, _, roomID := twoMemberRoom(t)

	if err := e.SendMessage(context.Background(), alice, roomID, "ct", "iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sentMessage(t, alice)

	persisted, _ := store.GetMessage(context.Background(), msg.MessageID)
	if persisted.State != models.MessageDelivered {
		t.Fatalf("expected auto-delivered, got %s", persisted.State)
	}
	ev, ok := alice.lastNamed(models.EventMessageStateChanged)
	if !ok {
		t.Fatal("no message-state-changed broadcast")
	}
	change := ev.Data.(models.StateChangeData)
	if change.State != models.MessageDelivered {
		t.Fatalf("expected delivered, got %s", change.State)
	}
}

func TestSendStaysPendingWithoutPeers(t *testing.T) {
	e, store := newTestEngine(t)
	alice := newFakeConn("c-alice")
	register(t, e, alice, "alice", false)
	roomID, _ := createRoom(t, e, alice)

	if err := e.SendMessage(context.Background(), alice, roomID, "ct", "iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sentMessage(t, alice)

	persisted, _ := store.GetMessage(context.Background(), msg.MessageID)
	if persisted.State != models.MessagePending {
		t.Fatalf("expected pending with no peers online, got %s", persisted.State)
	}
}

func TestSenderCannotAdvanceOwnMessage(t *testing.T) {
	e, store, alice, _, roomID := twoMemberRoom(t)

	if err := e.SendMessage(context.Background(), alice, roomID, "ct", "iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sentMessage(t, alice)
	alice.reset()

	// Silent no-op for the sender, whatever the target state.
	if err := e.MarkRead(context.Background(), alice, msg.MessageID); err != nil {
		t.Fatalf("sender ack must be silent, got %v", err)
	}
	persisted, _ := store.GetMessage(context.Background(), msg.MessageID)
	if persisted.State == models.MessageRead {
		t.Fatal("sender must not advance own message")
	}
	if evs := alice.eventsNamed(models.EventMessageStateChanged); len(evs) != 0 {
		t.Fatal("no state-change broadcast expected")
	}
}

func TestStateNeverMovesBackward(t *testing.T) {
	e, store, alice, bob, roomID := twoMemberRoom(t)
	ctx := context.Background()

	if err := e.SendMessage(ctx, alice, roomID, "ct", "iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sentMessage(t, bob)

	if err := e.MarkRead(ctx, bob, msg.MessageID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	persisted, _ := store.GetMessage(ctx, msg.MessageID)
	if persisted.State != models.MessageRead {
		t.Fatalf("expected read, got %s", persisted.State)
	}
	alice.reset()

	// A late delivered ack after read changes nothing and stays quiet.
	if err := e.MarkDelivered(ctx, bob, msg.MessageID); err != nil {
		t.Fatalf("redundant ack must be silent, got %v", err)
	}
	persisted, _ = store.GetMessage(ctx, msg.MessageID)
	if persisted.State != models.MessageRead {
		t.Fatalf("state moved backward to %s", persisted.State)
	}
	if evs := alice.eventsNamed(models.EventMessageStateChanged); len(evs) != 0 {
		t.Fatal("redundant ack must not broadcast")
	}
}

func TestMarkReadByNonMember(t *testing.T) {
	e, _, alice, _, roomID := twoMemberRoom(t)
	ctx := context.Background()
	mallory := newFakeConn("c-mallory")
	register(t, e, mallory, "mallory", false)

	if err := e.SendMessage(ctx, alice, roomID, "ct", "iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sentMessage(t, alice)

	err := e.MarkRead(ctx, mallory, msg.MessageID)
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestMarkReadUnknownMessage(t *testing.T) {
	e, _, _, bob, _ := twoMemberRoom(t)
	err := e.MarkRead(context.Background(), bob, "no-such-id")
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestDeleteForEveryoneRemovesRow(t *testing.T) {
	e, store, alice, bob, roomID := twoMemberRoom(t)
	ctx := context.Background()

	if err := e.SendMessage(ctx, alice, roomID, "ct", "iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sentMessage(t, bob)

	if err := e.DeleteForEveryone(ctx, bob, roomID, msg.MessageID); err != nil {
		t.Fatalf("delete for everyone: %v", err)
	}
	if _, err := store.GetMessage(ctx, msg.MessageID); err == nil {
		t.Fatal("row must be gone")
	}
	ev, ok := alice.lastNamed(models.EventMessageDeleted)
	if !ok {
		t.Fatal("room did not hear message-deleted")
	}
	if data := ev.Data.(models.MessageDeletedData); data.DeletedBy != "bob" {
		t.Errorf("deleted_by mismatch: %s", data.DeletedBy)
	}
}

func TestDeleteForMeTouchesNothingPersisted(t *testing.T) {
	e, store, alice, bob, roomID := twoMemberRoom(t)
	ctx := context.Background()

	if err := e.SendMessage(ctx, alice, roomID, "ct", "iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := sentMessage(t, bob)
	alice.reset()

	if err := e.DeleteForMe(bob, roomID, msg.MessageID); err != nil {
		t.Fatalf("delete for me: %v", err)
	}
	if _, err := store.GetMessage(ctx, msg.MessageID); err != nil {
		t.Fatal("persisted row must survive delete-for-me")
	}
	if _, ok := bob.lastNamed(models.EventMessageDeletedLocal); !ok {
		t.Fatal("requester got no local-delete ack")
	}
	if len(alice.eventsNamed(models.EventMessageDeletedLocal)) != 0 {
		t.Fatal("delete-for-me must not reach other members")
	}
}

// Full protocol walk: create, code join, message, auto-deliver, read.
func TestDeliveryScenario(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := newFakeConn("c-alice")
	register(t, e, alice, "alice", false)
	roomID, roomCode := createRoom(t, e, alice)
	if len(roomCode) != 6 {
		t.Fatalf("room code %q is not 6 chars", roomCode)
	}

	bob := newFakeConn("c-bob")
	register(t, e, bob, "bob", false)
	joinViaApproval(t, e, alice, bob, roomCode)

	ev, ok := bob.lastNamed(models.EventJoinApproved)
	if !ok {
		t.Fatal("bob received no approval")
	}
	snapshot := ev.Data.(models.RoomSnapshot)
	if len(snapshot.Members) != 2 {
		t.Fatalf("snapshot should hold alice and bob, got %v", snapshot.Members)
	}

	if err := e.SendMessage(ctx, alice, roomID, "m1-cipher", "m1-iv", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	m1 := sentMessage(t, bob)

	// Bob is online, so the message auto-advanced to delivered.
	persisted, _ := store.GetMessage(ctx, m1.MessageID)
	if persisted.State != models.MessageDelivered {
		t.Fatalf("expected delivered, got %s", persisted.State)
	}
	alice.reset()

	if err := e.MarkRead(ctx, bob, m1.MessageID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	persisted, _ = store.GetMessage(ctx, m1.MessageID)
	if persisted.State != models.MessageRead {
		t.Fatalf("expected read, got %s", persisted.State)
	}

	change, ok := alice.lastNamed(models.EventMessageStateChanged)
	if !ok {
		t.Fatal("alice did not hear the read transition")
	}
	data := change.Data.(models.StateChangeData)
	if data.State != models.MessageRead || data.UpdatedBy != "bob" {
		t.Fatalf("unexpected state change %+v", data)
	}
}
