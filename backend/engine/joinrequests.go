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
	"sync"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/session"
)

// JoinRequest bridges a join attempt to the owner's approve/deny
// decision. It lives only in memory between request and resolution;
// nothing about it is persisted and it carries no expiry.
type JoinRequest struct {
	ID        string
	RoomID    string
	Requester models.Identity
	Conn      session.Conn
}

// joinTable holds pending join requests keyed by request id.
type joinTable struct {
	mu   sync.Mutex
	reqs map[string]*JoinRequest
}

func newJoinTable() *joinTable {
	return &joinTable{reqs: make(map[string]*JoinRequest)}
}

func (t *joinTable) put(req *JoinRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reqs[req.ID] = req
}

func (t *joinTable) get(id string) (*JoinRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.reqs[id]
	return req, ok
}

func (t *joinTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.reqs, id)
}
