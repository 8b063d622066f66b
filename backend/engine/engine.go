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

// Package engine is the room and message protocol core. It binds
// connections to identities, drives room creation and join approval,
// relays opaque message blobs while advancing the per-message delivery
// state machine, and cascades ephemeral teardown when an owner leaves.
//
// The durable store is authoritative for every stateful decision.
// In-memory state (session registry, pending join requests) is used
// for routing only and is re-validated against the store at the moment
// of use, never trusted across an I/O boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/session"
	"github.com/efchatnet/efrelay/backend/storage"
)

const defaultHistoryLimit = 500

type Engine struct {
	store        storage.Store
	reg          *session.Registry
	joins        *joinTable
	historyLimit int
	log          *slog.Logger

	now     func() time.Time
	newCode func() (string, error)
}

func New(store storage.Store, reg *session.Registry, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:        store,
		reg:          reg,
		joins:        newJoinTable(),
		historyLimit: defaultHistoryLimit,
		log:          log,
		now:          time.Now,
		newCode:      newRoomCode,
	}
}

// Registry exposes the session registry so the transport can unbind on
// disconnect.
func (e *Engine) Registry() *session.Registry {
	return e.reg
}

// Register binds a connection to an identity and persists the public
// key. A legacy identity already bound to a different live connection
// is rejected; authenticated identities cannot collide this way since
// their name comes from a verified credential.
func (e *Engine) Register(ctx context.Context, conn session.Conn, identity models.Identity) error {
	if existing := e.reg.ConnFor(identity.Username); existing != nil &&
		existing.ID() != conn.ID() && !identity.Authenticated {
		return ErrIdentityInUse
	}

	// An account name is reserved whether or not the account is
	// connected. Only a verified credential may register it; a legacy
	// register under it would otherwise overwrite the account's key and
	// inherit its class.
	if !identity.Authenticated {
		stored, err := e.store.GetIdentity(ctx, identity.Username)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		if err == nil && stored.Authenticated {
			return ErrIdentityInUse
		}
	}

	identity.LastSeen = e.now()
	if err := e.store.UpsertIdentity(ctx, identity); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	// Bind only after the persisted write succeeded.
	e.reg.Bind(ctx, conn, identity.Username)
	e.log.Info("identity registered",
		"username", identity.Username,
		"authenticated", identity.Authenticated,
		"conn", conn.ID())
	return nil
}

// usernameFor resolves the identity name bound to a connection. The
// binding is routing truth and lives only in the registry; operations
// that need stateful facts about the identity must go through
// identityFor instead.
func (e *Engine) usernameFor(conn session.Conn) (string, error) {
	username, ok := e.reg.UsernameFor(conn.ID())
	if !ok {
		return "", ErrNotRegistered
	}
	return username, nil
}

// identityFor resolves the full registered identity behind a
// connection, re-read from the store rather than from anything
// captured earlier. A legacy identity reclaimed by a cascade while
// its connection is still up resolves as not registered; the client
// must register again.
func (e *Engine) identityFor(ctx context.Context, conn session.Conn) (*models.Identity, error) {
	username, ok := e.reg.UsernameFor(conn.ID())
	if !ok {
		return nil, ErrNotRegistered
	}
	identity, err := e.store.GetIdentity(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return identity, nil
}
