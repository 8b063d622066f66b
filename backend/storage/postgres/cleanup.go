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
)

// CascadeOnOwnerLeave tears down an ephemeral room inside a single
// transaction: messages first, then memberships, then the room row,
// then any member identity left with zero memberships and no account
// credential. A failure at any step rolls the whole cascade back.
func (s *Store) CascadeOnOwnerLeave(ctx context.Context, roomID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM messages
		WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, err
	}

	// Capture the membership list before deleting it; these are the
	// identities that may become orphaned.
	rows, err := tx.QueryContext(ctx, `
		SELECT username FROM room_members
		WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, err
	}
	var members []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			rows.Close()
			return nil, err
		}
		members = append(members, username)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM room_members
		WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM rooms
		WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, err
	}

	// Reclaim legacy identities orphaned by the cascade. Accounts
	// (authenticated = TRUE) are never reclaimed, whatever their
	// membership count.
	for _, username := range members {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM identities
			WHERE username = $1
			  AND authenticated = FALSE
			  AND NOT EXISTS (
				SELECT 1 FROM room_members
				WHERE username = $1
			  )`, username)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return members, nil
}
