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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

// Store is the durable source of truth for identities, rooms,
// memberships and messages. Every stateful decision in the protocol
// engine is re-derived from here at the moment of use.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertIdentity(ctx context.Context, identity models.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (username, public_key, authenticated, last_seen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE
		SET public_key = $2,
		    authenticated = identities.authenticated OR $3,
		    last_seen = $4`,
		identity.Username, identity.PublicKey, identity.Authenticated, identity.LastSeen)
	return err
}

func (s *Store) GetIdentity(ctx context.Context, username string) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT username, public_key, authenticated, last_seen
		FROM identities
		WHERE username = $1`, username).Scan(
		&identity.Username, &identity.PublicKey, &identity.Authenticated, &identity.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, username string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE identities SET last_seen = $2
		WHERE username = $1`,
		username, at)
	return err
}
