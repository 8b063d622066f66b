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

// Package gateway is the websocket transport in front of the protocol
// engine. It upgrades connections, decodes inbound event envelopes,
// routes them to the engine and writes outbound events back. It is the
// only package that knows the transport is websockets.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/efchatnet/efrelay/backend/engine"
	"github.com/efchatnet/efrelay/backend/middleware"
)

type Gateway struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func New(eng *engine.Engine, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the CORS layer in front.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeWS upgrades the request and starts the connection's pumps. A
// verified account token resolved by the auth middleware pins the
// connection's username; without one the connection registers a legacy
// identity of its own choosing.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	authUsername, _ := middleware.GetUsername(r)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(g, conn, authUsername)
	g.log.Info("connection opened", "conn", client.id, "authenticated", authUsername != "")

	go client.writePump()
	go client.readPump()
}
