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

func (s *Store) SaveMessage(ctx context.Context, msg models.Message) error {
	var attachment sql.NullString
	if msg.AttachmentRef != "" {
		attachment = sql.NullString{String: msg.AttachmentRef, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
		(message_id, room_id, sender, ciphertext, iv, attachment_ref, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.MessageID, msg.RoomID, msg.Sender, msg.Ciphertext, msg.IV,
		attachment, msg.State, msg.CreatedAt)
	return err
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	var attachment sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id, room_id, sender, ciphertext, iv, attachment_ref,
		       state, created_at, delivered_at, read_at
		FROM messages
		WHERE message_id = $1`, messageID).Scan(
		&msg.MessageID, &msg.RoomID, &msg.Sender, &msg.Ciphertext, &msg.IV,
		&attachment, &msg.State, &msg.CreatedAt, &msg.DeliveredAt, &msg.ReadAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	msg.AttachmentRef = attachment.String
	return &msg, nil
}

func (s *Store) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, room_id, sender, ciphertext, iv, attachment_ref,
		       state, created_at, delivered_at, read_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at
		LIMIT $2`,
		roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var attachment sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.RoomID, &msg.Sender,
			&msg.Ciphertext, &msg.IV, &attachment, &msg.State,
			&msg.CreatedAt, &msg.DeliveredAt, &msg.ReadAt); err != nil {
			return nil, err
		}
		msg.AttachmentRef = attachment.String
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// AdvanceMessageState enforces the forward-only progression in SQL:
// the UPDATE only matches rows whose current state ranks below the
// target, so a concurrent or repeated call simply affects zero rows.
func (s *Store) AdvanceMessageState(ctx context.Context, messageID string, state models.MessageState, at time.Time) (bool, error) {
	var res sql.Result
	var err error
	switch state {
	case models.MessageDelivered:
		res, err = s.db.ExecContext(ctx, `
			UPDATE messages
			SET state = 'delivered', delivered_at = $2
			WHERE message_id = $1 AND state = 'pending'`,
			messageID, at)
	case models.MessageRead:
		res, err = s.db.ExecContext(ctx, `
			UPDATE messages
			SET state = 'read', read_at = $2
			WHERE message_id = $1 AND state IN ('pending', 'delivered')`,
			messageID, at)
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE message_id = $1`, messageID)
	return err
}

func (s *Store) CountRoomMessages(ctx context.Context, roomID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE room_id = $1`, roomID).Scan(&count)
	return count, err
}
