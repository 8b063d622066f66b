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

package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/efchatnet/efrelay/backend/models"
)

type recordConn struct {
	id string

	mu     sync.Mutex
	events []models.Event
}

func (c *recordConn) ID() string { return c.id }

func (c *recordConn) Send(event models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *recordConn) named(name string) []models.Event {
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

func newTestRegistry() *Registry {
	return NewRegistry(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBindResolvesBothWays(t *testing.T) {
	r := newTestRegistry()
	conn := &recordConn{id: "c1"}
	r.Bind(context.Background(), conn, "alice")

	if got := r.ConnFor("alice"); got == nil || got.ID() != "c1" {
		t.Fatalf("ConnFor returned %v", got)
	}
	if username, ok := r.UsernameFor("c1"); !ok || username != "alice" {
		t.Fatalf("UsernameFor returned %q, %v", username, ok)
	}
	if !r.IsOnline("alice") {
		t.Fatal("alice should be online")
	}
	if r.IsOnline("bob") {
		t.Fatal("bob should not be online")
	}
}

func TestRebindReplacesConnection(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	r.Bind(ctx, &recordConn{id: "c1"}, "alice")
	r.Bind(ctx, &recordConn{id: "c2"}, "alice")

	if got := r.ConnFor("alice"); got == nil || got.ID() != "c2" {
		t.Fatalf("expected c2 after rebind, got %v", got)
	}
}

func TestRebindNewNameReleasesOldName(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	conn := &recordConn{id: "c1"}
	r.Bind(ctx, conn, "bob")
	r.Bind(ctx, conn, "carol")

	if r.IsOnline("bob") {
		t.Fatal("bob must go offline when his connection re-registers")
	}
	if got := r.ConnFor("bob"); got != nil {
		t.Fatalf("ConnFor(bob) resolved to %s, want nil", got.ID())
	}
	if got := r.ConnFor("carol"); got == nil || got.ID() != "c1" {
		t.Fatalf("ConnFor(carol) returned %v", got)
	}
}

func TestBindDisplacesOtherConnection(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	first := &recordConn{id: "c1"}
	second := &recordConn{id: "c2"}
	r.Bind(ctx, first, "alice")
	r.Bind(ctx, second, "alice")

	if got := r.ConnFor("alice"); got == nil || got.ID() != "c2" {
		t.Fatalf("expected c2 to hold alice, got %v", got)
	}
	// The displaced connection is no longer bound to anything.
	if username, ok := r.UsernameFor("c1"); ok {
		t.Fatalf("displaced connection still bound to %q", username)
	}
}

func TestUnbindBroadcastsMemberOffline(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	alice := &recordConn{id: "c1"}
	bob := &recordConn{id: "c2"}
	r.Bind(ctx, alice, "alice")
	r.Bind(ctx, bob, "bob")
	r.Subscribe("c1", "room-1")
	r.Subscribe("c2", "room-1")

	r.Unbind(ctx, "c2")

	evs := alice.named(models.EventMemberOffline)
	if len(evs) != 1 {
		t.Fatalf("expected one member-offline, got %d", len(evs))
	}
	data := evs[0].Data.(models.MemberChangeData)
	if data.Username != "bob" || data.RoomID != "room-1" {
		t.Fatalf("unexpected payload %+v", data)
	}
	if r.IsOnline("bob") {
		t.Fatal("bob still online after unbind")
	}
	if username, ok := r.UsernameFor("c2"); ok {
		t.Fatalf("binding %q survived unbind", username)
	}
}

func TestUnbindUnknownConnIsQuiet(t *testing.T) {
	r := newTestRegistry()
	r.Unbind(context.Background(), "nope")
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	alice := &recordConn{id: "c1"}
	bob := &recordConn{id: "c2"}
	carol := &recordConn{id: "c3"}
	r.Bind(ctx, alice, "alice")
	r.Bind(ctx, bob, "bob")
	r.Bind(ctx, carol, "carol")
	r.Subscribe("c1", "room-1")
	r.Subscribe("c2", "room-1")
	r.Subscribe("c3", "room-2")

	r.Broadcast("room-1", models.Event{Event: "ping"})

	if len(alice.named("ping")) != 1 || len(bob.named("ping")) != 1 {
		t.Fatal("room-1 subscribers missed the broadcast")
	}
	if len(carol.named("ping")) != 0 {
		t.Fatal("broadcast leaked to another room")
	}
}

func TestSubscribeRequiresBoundConn(t *testing.T) {
	r := newTestRegistry()
	r.Subscribe("ghost", "room-1")
	r.Broadcast("room-1", models.Event{Event: "ping"})
	if r.OnlinePeerInRoom("room-1", "") {
		t.Fatal("unbound connection must not count as a subscriber")
	}
}

func TestSendToUnreachable(t *testing.T) {
	r := newTestRegistry()
	if r.SendTo("nobody", models.Event{Event: "ping"}) {
		t.Fatal("SendTo should report false for unknown identity")
	}
}

func TestOnlinePeerInRoom(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	r.Bind(ctx, &recordConn{id: "c1"}, "alice")
	r.Subscribe("c1", "room-1")

	if r.OnlinePeerInRoom("room-1", "alice") {
		t.Fatal("alice alone is not a peer of herself")
	}

	r.Bind(ctx, &recordConn{id: "c2"}, "bob")
	r.Subscribe("c2", "room-1")
	if !r.OnlinePeerInRoom("room-1", "alice") {
		t.Fatal("bob is a live peer")
	}
	if !r.OnlinePeerInRoom("room-1", "bob") {
		t.Fatal("alice is a live peer")
	}
}

func TestDropRoomClearsSubscriptions(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	alice := &recordConn{id: "c1"}
	r.Bind(ctx, alice, "alice")
	r.Subscribe("c1", "room-1")

	r.DropRoom("room-1")
	r.Broadcast("room-1", models.Event{Event: "ping"})
	if len(alice.named("ping")) != 0 {
		t.Fatal("dropped room still routed a broadcast")
	}

	// The connection itself stays bound and usable elsewhere.
	if !r.IsOnline("alice") {
		t.Fatal("DropRoom must not unbind connections")
	}
}

func TestUnsubscribeUser(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	alice := &recordConn{id: "c1"}
	r.Bind(ctx, alice, "alice")
	r.Subscribe("c1", "room-1")

	r.UnsubscribeUser("alice", "room-1")
	r.Broadcast("room-1", models.Event{Event: "ping"})
	if len(alice.named("ping")) != 0 {
		t.Fatal("unsubscribed connection still received a broadcast")
	}
}
