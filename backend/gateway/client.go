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

package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/efchatnet/efrelay/backend/models"
)

const (
	writeWait  = 30 * time.Second
	pongWait   = 300 * time.Second
	pingPeriod = 240 * time.Second

	maxEventSize = 1 << 20
	sendBuffer   = 256
)

// Client wraps one websocket connection and implements session.Conn.
// Events are queued on a buffered channel; a client that cannot keep
// up loses events rather than stalling a broadcast.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan models.Event
	done chan struct{}
	gw   *Gateway

	// authUsername is set when the connection arrived with a verified
	// account token; empty for legacy connections.
	authUsername string
}

func newClient(gw *Gateway, conn *websocket.Conn, authUsername string) *Client {
	return &Client{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan models.Event, sendBuffer),
		done:         make(chan struct{}),
		gw:           gw,
		authUsername: authUsername,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues an event for delivery, dropping it if the client's
// buffer is full.
func (c *Client) Send(event models.Event) {
	select {
	case c.send <- event:
	default:
		c.gw.log.Warn("send buffer full, dropping event", "conn", c.id, "event", event.Event)
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		// Disconnect is the only cancellation signal: it tears down
		// the session binding and room subscriptions but leaves all
		// persisted state alone.
		c.gw.engine.Registry().Unbind(context.Background(), c.id)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.log.Warn("read error", "conn", c.id, "error", err)
			}
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("MalformedEvent", "malformed event envelope")
			continue
		}
		c.gw.dispatch(context.Background(), c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) sendError(code, message string) {
	c.Send(models.Event{
		Event: models.EventError,
		Data:  models.ErrorData{Code: code, Message: message},
	})
}
