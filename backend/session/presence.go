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
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PresenceTTL bounds how stale an externally visible presence key
	// can get if a process dies without unbinding its sessions.
	PresenceTTL = 90 * time.Second

	presenceKeyPrefix = "presence:" // presence:{username} -> connection id
)

// Presence mirrors live bindings into Redis with a TTL so sidecar
// services can see who is reachable. It is a routing hint only; the
// registry never consults it for stateful decisions, and every write
// is best-effort.
type Presence struct {
	rdb *redis.Client
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb}
}

func (p *Presence) Up(ctx context.Context, username, connID string) error {
	return p.rdb.Set(ctx, presenceKeyPrefix+username, connID, PresenceTTL).Err()
}

// Refresh extends the TTL on activity without rewriting the value.
func (p *Presence) Refresh(ctx context.Context, username string) error {
	return p.rdb.Expire(ctx, presenceKeyPrefix+username, PresenceTTL).Err()
}

func (p *Presence) Down(ctx context.Context, username string) error {
	return p.rdb.Del(ctx, presenceKeyPrefix+username).Err()
}
