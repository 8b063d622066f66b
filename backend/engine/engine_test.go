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
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/session"
	"github.com/efchatnet/efrelay/backend/storage/memory"
)

// fakeConn records every event pushed to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []models.Event
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *fakeConn) eventsNamed(name string) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, ev := range c.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) lastNamed(name string) (models.Event, bool) {
	evs := c.eventsNamed(name)
	if len(evs) == 0 {
		return models.Event{}, false
	}
	return evs[len(evs)-1], true
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := session.NewRegistry(nil, log)
	return New(store, reg, log), store
}

func register(t *testing.T, e *Engine, conn session.Conn, username string, authenticated bool) {
	t.Helper()
	err := e.Register(context.Background(), conn, models.Identity{
		Username:      username,
		PublicKey:     []byte("pk-" + username),
		Authenticated: authenticated,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
}

// createRoom registers nothing; it drives create-room for an already
// registered connection and returns the announced room id and code.
func createRoom(t *testing.T, e *Engine, conn *fakeConn) (string, string) {
	t.Helper()
	if err := e.CreateRoom(context.Background(), conn); err != nil {
		t.Fatalf("create room: %v", err)
	}
	ev, ok := conn.lastNamed(models.EventRoomCreated)
	if !ok {
		t.Fatal("no room-created event")
	}
	data := ev.Data.(models.RoomCreatedData)
	return data.RoomID, data.RoomCode
}

// joinViaApproval walks requester through the code/approve flow.
func joinViaApproval(t *testing.T, e *Engine, owner, requester *fakeConn, roomCode string) {
	t.Helper()
	ctx := context.Background()
	if err := e.RequestJoin(ctx, requester, roomCode); err != nil {
		t.Fatalf("request join: %v", err)
	}
	ev, ok := owner.lastNamed(models.EventJoinRequest)
	if !ok {
		t.Fatal("owner received no join-request")
	}
	req := ev.Data.(models.JoinRequestData)
	if err := e.ApproveJoin(ctx, owner, req.RequestID); err != nil {
		t.Fatalf("approve join: %v", err)
	}
}

func TestRegisterRejectsLegacyIdentityInUse(t *testing.T) {
	e, _ := newTestEngine(t)
	first := newFakeConn("c1")
	register(t, e, first, "alice", false)

	err := e.Register(context.Background(), newFakeConn("c2"), models.Identity{
		Username: "alice",
	})
	if !errors.Is(err, ErrIdentityInUse) {
		t.Fatalf("expected ErrIdentityInUse, got %v", err)
	}
}

func TestRegisterAuthenticatedRebindAllowed(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, newFakeConn("c1"), "alice", true)

	err := e.Register(context.Background(), newFakeConn("c2"), models.Identity{
		Username:      "alice",
		Authenticated: true,
	})
	if err != nil {
		t.Fatalf("authenticated rebind should succeed, got %v", err)
	}
}

func TestRegisterLegacyCannotAssumeOfflineAccount(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	alice := newFakeConn("c-alice")
	register(t, e, alice, "alice", true)
	roomID, _ := createRoom(t, e, alice)

	// Alice disconnects; her account name stays reserved.
	e.Registry().Unbind(ctx, alice.ID())

	intruder := newFakeConn("c-intruder")
	err := e.Register(ctx, intruder, models.Identity{
		Username:  "alice",
		PublicKey: []byte("intruder-key"),
	})
	if !errors.Is(err, ErrIdentityInUse) {
		t.Fatalf("expected ErrIdentityInUse, got %v", err)
	}

	stored, err := store.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("account row: %v", err)
	}
	if string(stored.PublicKey) != "pk-alice" || !stored.Authenticated {
		t.Fatalf("account row was overwritten: %+v", stored)
	}

	// The rejected connection holds no binding and gets nothing.
	if err := e.ReconnectJoin(ctx, intruder, roomID); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegisterPersistFailureLeavesNoBinding(t *testing.T) {
	e, store := newTestEngine(t)
	store.FailWrites = errors.New("disk on fire")

	conn := newFakeConn("c1")
	err := e.Register(context.Background(), conn, models.Identity{Username: "alice"})
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if e.Registry().IsOnline("alice") {
		t.Fatal("binding must not exist after failed persist")
	}
}

func TestUnknownConnectionIsNotRegistered(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.CreateRoom(context.Background(), newFakeConn("ghost"))
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}
