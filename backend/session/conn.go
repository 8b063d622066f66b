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
	"github.com/efchatnet/efrelay/backend/models"
)

// Conn is a live client connection. The engine only ever routes events
// through this interface; the websocket details live in the gateway.
// Send is best-effort: a slow or dead connection drops events rather
// than blocking the caller.
type Conn interface {
	ID() string
	Send(event models.Event)
}
