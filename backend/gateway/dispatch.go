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

	"github.com/efchatnet/efrelay/backend/engine"
	"github.com/efchatnet/efrelay/backend/models"
)

// Inbound event names.
const (
	cmdRegister        = "register"
	cmdCreateRoom      = "create-room"
	cmdRequestJoin     = "request-join"
	cmdApproveJoin     = "approve-join"
	cmdDenyJoin        = "deny-join"
	cmdJoinRoom        = "join-room"
	cmdLeaveRoom       = "leave-room"
	cmdSendMessage     = "send-message"
	cmdAckMessage      = "ack-message"
	cmdReadMessage     = "read-message"
	cmdDeleteEveryone  = "delete-message-everyone"
	cmdDeleteForMe     = "delete-message-me"
)

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type registerData struct {
	Username  string `json:"username"`
	PublicKey []byte `json:"public_key"`
}

type roomCodeData struct {
	RoomCode string `json:"room_code"`
}

type requestIDData struct {
	RequestID string `json:"request_id"`
}

type roomIDData struct {
	RoomID string `json:"room_id"`
}

type sendMessageData struct {
	RoomID        string `json:"room_id"`
	Ciphertext    string `json:"ciphertext"`
	IV            string `json:"iv"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

type messageRefData struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

// dispatch handles one inbound event to completion: decode, call the
// engine, and report any failure back to this connection only.
func (g *Gateway) dispatch(ctx context.Context, c *Client, env inboundEnvelope) {
	var err error

	switch env.Event {
	case cmdRegister:
		var data registerData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			identity := models.Identity{
				Username:  data.Username,
				PublicKey: data.PublicKey,
			}
			// A verified token pins the identity; the register
			// payload cannot override it.
			if c.authUsername != "" {
				identity.Username = c.authUsername
				identity.Authenticated = true
			}
			err = g.engine.Register(ctx, c, identity)
		}

	case cmdCreateRoom:
		err = g.engine.CreateRoom(ctx, c)

	case cmdRequestJoin:
		var data roomCodeData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.RequestJoin(ctx, c, data.RoomCode)
		}

	case cmdApproveJoin:
		var data requestIDData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.ApproveJoin(ctx, c, data.RequestID)
		}

	case cmdDenyJoin:
		var data requestIDData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.DenyJoin(ctx, c, data.RequestID)
		}

	case cmdJoinRoom:
		var data roomIDData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.ReconnectJoin(ctx, c, data.RoomID)
		}

	case cmdLeaveRoom:
		var data roomIDData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.Leave(ctx, c, data.RoomID)
		}

	case cmdSendMessage:
		var data sendMessageData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.SendMessage(ctx, c, data.RoomID, data.Ciphertext, data.IV, data.AttachmentRef)
		}

	case cmdAckMessage:
		var data messageRefData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.MarkDelivered(ctx, c, data.MessageID)
		}

	case cmdReadMessage:
		var data messageRefData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.MarkRead(ctx, c, data.MessageID)
		}

	case cmdDeleteEveryone:
		var data messageRefData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.DeleteForEveryone(ctx, c, data.RoomID, data.MessageID)
		}

	case cmdDeleteForMe:
		var data messageRefData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			err = g.engine.DeleteForMe(c, data.RoomID, data.MessageID)
		}

	default:
		g.log.Warn("unknown event", "conn", c.id, "event", env.Event)
		return
	}

	if err != nil {
		g.log.Info("event failed", "conn", c.id, "event", env.Event, "error", err)
		c.sendError(engine.ErrorCode(err), err.Error())
	}
}
