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

func (s *Store) Migrate() error {
	migrations := []string{
		// Identities table (legacy and authenticated share one
		// namespace; usernames are globally unique)
		`CREATE TABLE IF NOT EXISTS identities (
			username VARCHAR(255) PRIMARY KEY,
			public_key BYTEA NOT NULL,
			authenticated BOOLEAN NOT NULL DEFAULT FALSE,
			last_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Rooms table
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id VARCHAR(255) PRIMARY KEY,
			room_code CHAR(6) NOT NULL UNIQUE,
			owner VARCHAR(255) NOT NULL,
			room_class VARCHAR(20) NOT NULL CHECK (room_class IN ('legacy', 'authenticated')),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Index for join-by-code lookups
		`CREATE INDEX IF NOT EXISTS idx_room_code
		ON rooms(room_code)`,

		// Room members table
		`CREATE TABLE IF NOT EXISTS room_members (
			room_id VARCHAR(255) NOT NULL,
			username VARCHAR(255) NOT NULL,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (room_id, username),
			FOREIGN KEY (room_id) REFERENCES rooms(room_id) ON DELETE CASCADE
		)`,

		// Index for reclaiming orphaned identities
		`CREATE INDEX IF NOT EXISTS idx_member_rooms
		ON room_members(username)`,

		// Messages table (ciphertext and iv are opaque client blobs)
		`CREATE TABLE IF NOT EXISTS messages (
			message_id VARCHAR(255) PRIMARY KEY,
			room_id VARCHAR(255) NOT NULL,
			sender VARCHAR(255) NOT NULL,
			ciphertext TEXT NOT NULL,
			iv TEXT NOT NULL,
			attachment_ref TEXT,
			state VARCHAR(20) NOT NULL DEFAULT 'pending'
				CHECK (state IN ('pending', 'delivered', 'read')),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			delivered_at TIMESTAMP,
			read_at TIMESTAMP,
			FOREIGN KEY (room_id) REFERENCES rooms(room_id) ON DELETE CASCADE
		)`,

		// Index for history retrieval
		`CREATE INDEX IF NOT EXISTS idx_room_messages
		ON messages(room_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
