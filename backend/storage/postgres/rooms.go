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

	"github.com/lib/pq"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

func (s *Store) CreateRoom(ctx context.Context, room models.Room) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Create room
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (room_id, room_code, owner, room_class, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		room.RoomID, room.RoomCode, room.Owner, room.Class, room.CreatedAt)
	if err != nil {
		// A unique violation here is a code collision that slipped in
		// between the existence check and the insert.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return storage.ErrDuplicateCode
		}
		return err
	}

	// Add owner as member
	_, err = tx.ExecContext(ctx, `
		INSERT INTO room_members (room_id, username, joined_at)
		VALUES ($1, $2, $3)`,
		room.RoomID, room.Owner, room.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT room_id, room_code, owner, room_class, created_at
		FROM rooms
		WHERE room_id = $1`, roomID))
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT room_id, room_code, owner, room_class, created_at
		FROM rooms
		WHERE room_code = $1`, code))
}

func (s *Store) scanRoom(row *sql.Row) (*models.Room, error) {
	var room models.Room
	err := row.Scan(&room.RoomID, &room.RoomCode, &room.Owner, &room.Class, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) RoomCodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rooms
		WHERE room_code = $1`, code).Scan(&count)
	return count > 0, err
}

func (s *Store) AddMember(ctx context.Context, roomID, username string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_members (room_id, username, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, username) DO NOTHING`,
		roomID, username, at)
	return err
}

func (s *Store) RemoveMember(ctx context.Context, roomID, username string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM room_members
		WHERE room_id = $1 AND username = $2`,
		roomID, username)
	return err
}

func (s *Store) IsMember(ctx context.Context, roomID, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM room_members
		WHERE room_id = $1 AND username = $2`,
		roomID, username).Scan(&count)
	return count > 0, err
}

func (s *Store) GetMembers(ctx context.Context, roomID string) ([]models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.username, i.public_key, i.authenticated, i.last_seen
		FROM room_members m
		JOIN identities i ON i.username = m.username
		WHERE m.room_id = $1
		ORDER BY m.joined_at`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Identity
	for rows.Next() {
		var identity models.Identity
		if err := rows.Scan(&identity.Username, &identity.PublicKey,
			&identity.Authenticated, &identity.LastSeen); err != nil {
			return nil, err
		}
		members = append(members, identity)
	}

	return members, rows.Err()
}
