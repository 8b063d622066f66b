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
	"log/slog"
	"sync"

	"github.com/efchatnet/efrelay/backend/models"
)

// Registry binds live connections to identities and tracks which rooms
// each connection is subscribed to. It is purely a routing table: no
// stateful decision (membership, ownership, message state) is ever
// answered from here. All of it vanishes with the process.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]Conn            // connID -> conn
	usernames map[string]string          // connID -> username
	byUser    map[string]string          // username -> connID
	subs      map[string]map[string]bool // connID -> roomIDs
	roomConns map[string]map[string]bool // roomID -> connIDs

	presence *Presence // optional
	log      *slog.Logger
}

func NewRegistry(presence *Presence, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		conns:     make(map[string]Conn),
		usernames: make(map[string]string),
		byUser:    make(map[string]string),
		subs:      make(map[string]map[string]bool),
		roomConns: make(map[string]map[string]bool),
		presence:  presence,
		log:       log,
	}
}

// Bind records conn as the live connection for username. Collision
// policy is decided by the caller; Bind itself just replaces bindings.
// A connection re-registering under a new name releases its old name,
// and a username claimed away from another connection leaves that
// connection unbound until it registers again.
func (r *Registry) Bind(ctx context.Context, conn Conn, username string) {
	r.mu.Lock()
	if prev, ok := r.usernames[conn.ID()]; ok && prev != username {
		if r.byUser[prev] == conn.ID() {
			delete(r.byUser, prev)
		}
	}
	if otherID, ok := r.byUser[username]; ok && otherID != conn.ID() {
		delete(r.usernames, otherID)
	}
	r.conns[conn.ID()] = conn
	r.usernames[conn.ID()] = username
	r.byUser[username] = conn.ID()
	r.mu.Unlock()

	if r.presence != nil {
		if err := r.presence.Up(ctx, username, conn.ID()); err != nil {
			r.log.Warn("presence update failed", "username", username, "error", err)
		}
	}
}

// Unbind tears down a connection's binding and subscriptions and tells
// every room it was subscribed to that the identity went offline.
// Persisted membership is untouched; only routing state dies here.
func (r *Registry) Unbind(ctx context.Context, connID string) {
	r.mu.Lock()
	username, bound := r.usernames[connID]
	rooms := make([]string, 0, len(r.subs[connID]))
	for roomID := range r.subs[connID] {
		rooms = append(rooms, roomID)
		delete(r.roomConns[roomID], connID)
		if len(r.roomConns[roomID]) == 0 {
			delete(r.roomConns, roomID)
		}
	}
	delete(r.subs, connID)
	delete(r.conns, connID)
	delete(r.usernames, connID)
	if bound && r.byUser[username] == connID {
		delete(r.byUser, username)
	}
	r.mu.Unlock()

	if !bound {
		return
	}

	if r.presence != nil {
		if err := r.presence.Down(ctx, username); err != nil {
			r.log.Warn("presence removal failed", "username", username, "error", err)
		}
	}

	for _, roomID := range rooms {
		r.Broadcast(roomID, models.Event{
			Event: models.EventMemberOffline,
			Data:  models.MemberChangeData{RoomID: roomID, Username: username},
		})
	}
}

// ConnFor answers "is identity X currently reachable, and on which
// connection". Returns nil when the identity has no live connection.
func (r *Registry) ConnFor(username string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connID, ok := r.byUser[username]
	if !ok {
		return nil
	}
	return r.conns[connID]
}

// UsernameFor returns the identity bound to a connection, if any.
func (r *Registry) UsernameFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	username, ok := r.usernames[connID]
	return username, ok
}

func (r *Registry) Subscribe(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	if r.subs[connID] == nil {
		r.subs[connID] = make(map[string]bool)
	}
	r.subs[connID][roomID] = true
	if r.roomConns[roomID] == nil {
		r.roomConns[roomID] = make(map[string]bool)
	}
	r.roomConns[roomID][connID] = true
}

func (r *Registry) Unsubscribe(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs[connID], roomID)
	delete(r.roomConns[roomID], connID)
	if len(r.roomConns[roomID]) == 0 {
		delete(r.roomConns, roomID)
	}
}

// UnsubscribeUser drops the room subscription of whichever connection
// currently represents username.
func (r *Registry) UnsubscribeUser(username, roomID string) {
	r.mu.RLock()
	connID, ok := r.byUser[username]
	r.mu.RUnlock()
	if ok {
		r.Unsubscribe(connID, roomID)
	}
}

// DropRoom removes every subscription to a room, used after the room
// has been closed and broadcast as such.
func (r *Registry) DropRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID := range r.roomConns[roomID] {
		delete(r.subs[connID], roomID)
	}
	delete(r.roomConns, roomID)
}

// Broadcast fans an event out to every connection subscribed to the
// room. Errors never propagate: delivery is best-effort by design.
func (r *Registry) Broadcast(roomID string, event models.Event) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.roomConns[roomID]))
	for connID := range r.roomConns[roomID] {
		if conn, ok := r.conns[connID]; ok {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range targets {
		conn.Send(event)
	}
}

// SendTo delivers an event point-to-point to the identity's live
// connection. Reports false if the identity is unreachable.
func (r *Registry) SendTo(username string, event models.Event) bool {
	conn := r.ConnFor(username)
	if conn == nil {
		return false
	}
	conn.Send(event)
	return true
}

// IsOnline reports whether the identity has a live connection.
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUser[username]
	return ok
}

// OnlinePeerInRoom reports whether any connection other than the one
// bound to except is subscribed to the room. This is the coarse,
// room-wide signal behind the automatic pending->delivered advance.
func (r *Registry) OnlinePeerInRoom(roomID, except string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for connID := range r.roomConns[roomID] {
		if r.usernames[connID] != except {
			return true
		}
	}
	return false
}

// Touch refreshes the presence TTL on activity.
func (r *Registry) Touch(ctx context.Context, username string) {
	if r.presence == nil {
		return
	}
	if err := r.presence.Refresh(ctx, username); err != nil {
		r.log.Warn("presence refresh failed", "username", username, "error", err)
	}
}
